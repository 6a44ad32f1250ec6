// Copyright 2025 Edgewatt Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package processor

import (
	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/metrics"
)

// EGauge validates energy meter readings: the data must name a device and
// carry a list of values that passes the pipeline's rules engine.
type EGauge struct {
	*Core
}

func newEGauge(core *Core) *EGauge {
	p := &EGauge{Core: core}
	core.hooks = p
	return p
}

func (p *EGauge) assess(e *envelope) bool {
	p.metrics.IncCounter(metrics.RxEGaugeMessageTotal)
	if !p.Core.assess(e) {
		return false
	}
	e.env["device_model"] = "egauge"
	return true
}

func (p *EGauge) validate(e *envelope) bool {
	if !p.Core.validate(e) {
		return false
	}
	data, ok := e.data.(map[string]any)
	if !ok {
		return false
	}
	device, _ := data["device"].(string)
	if device == "" {
		level.Warn(p.logger).Log("msg", "egauge data has no device", "pipeline", p.cfg.Name)
		return false
	}
	values, ok := data["values"].([]any)
	if !ok {
		level.Warn(p.logger).Log("msg", "egauge data has no values", "pipeline", p.cfg.Name)
		return false
	}
	if !p.rules.CheckValues(values) {
		level.Warn(p.logger).Log("msg", "egauge values failed validation", "pipeline", p.cfg.Name, "device", device)
		return false
	}
	return true
}
