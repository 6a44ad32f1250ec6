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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/metrics"
)

// zigbeeConfig is the processor-owned device table loaded from the
// pipeline's config file. Each device model maps to the list of fields to
// project out of the raw reading.
type zigbeeConfig struct {
	Devices    map[string][]map[string]any `json:"devices"`
	DataFields []string                    `json:"data_fields"`
}

// Zigbee normalizes raw sensor readings into {device, values[]} records
// using a per-model field table.
type Zigbee struct {
	*Core
	table zigbeeConfig
}

func newZigbee(core *Core) (*Zigbee, error) {
	p := &Zigbee{Core: core}
	if core.cfg.ConfigFile == "" {
		return nil, fmt.Errorf("pipeline %q: zigbee processor requires a config file", core.cfg.Name)
	}
	b, err := os.ReadFile(core.cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &p.table); err != nil {
		return nil, fmt.Errorf("decode zigbee config %q: %w", core.cfg.ConfigFile, err)
	}
	core.hooks = p
	return p, nil
}

func (p *Zigbee) assess(e *envelope) bool {
	p.metrics.IncCounter(metrics.RxZigbeeMessageTotal)
	return p.Core.assess(e)
}

// deviceModel resolves the model key: payload subject first, then the
// device model inside the data. Either way the lookup is upper-cased.
func (p *Zigbee) deviceModel(e *envelope) string {
	if subject, _ := e.payload["subject"].(string); subject != "" {
		return strings.ToUpper(subject)
	}
	data, _ := e.data.(map[string]any)
	device, _ := data["device"].(map[string]any)
	model, _ := device["model"].(string)
	return strings.ToUpper(model)
}

func (p *Zigbee) normalize(e *envelope) bool {
	data, ok := e.data.(map[string]any)
	if !ok {
		return false
	}
	model := p.deviceModel(e)
	fields, ok := p.table.Devices[model]
	if !ok {
		level.Warn(p.logger).Log("msg", "unknown zigbee device model", "pipeline", p.cfg.Name, "model", model)
		return false
	}

	values := make([]any, 0, len(fields))
	for _, spec := range fields {
		name, _ := spec["field"].(string)
		if name == "" {
			continue
		}
		v, found := data[name]
		if !found {
			mandatory := true
			if m, ok := spec["mandatory"].(bool); ok {
				mandatory = m
			}
			if mandatory {
				level.Warn(p.logger).Log("msg", "mandatory field missing", "pipeline", p.cfg.Name, "model", model, "field", name)
				return false
			}
			continue
		}
		rec := map[string]any{"value": v}
		for _, attr := range p.table.DataFields {
			if sv, ok := spec[attr]; ok {
				rec[attr] = sv
			}
		}
		values = append(values, rec)
	}
	e.data = map[string]any{
		"device": data["device"],
		"values": values,
	}
	e.env["device_model"] = model
	if !p.rules.CheckValues(values) {
		level.Warn(p.logger).Log("msg", "zigbee values failed validation", "pipeline", p.cfg.Name, "model", model)
		return false
	}
	return true
}
