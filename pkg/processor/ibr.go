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
	"strings"

	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/transport"
)

// ibrTypes is the default allow-list for IBR events.
var ibrTypes = []string{
	"ca.qc.hydro.iot.ibr.egauge",
	"ca.qc.hydro.iot.ibr.insighthome",
	"ca.qc.hydro.iot.ibr.predictivecontrol",
	"ca.qc.hydro.iot.ibr.outage",
	"ca.qc.hydro.iot.ibr.drift",
	"ca.qc.hydro.iot.ibr.optimize",
}

// IBR handles behind-the-meter resource events. The inbound type selects
// the device model and is preserved on the outbound envelope.
type IBR struct {
	*Core
}

func newIBR(core *Core) *IBR {
	p := &IBR{Core: core}
	core.hooks = p
	return p
}

func (p *IBR) assess(e *envelope) bool {
	p.metrics.IncCounter(metrics.RxIBRMessageTotal)
	if !p.Core.assess(e) {
		return false
	}
	if !p.typeAllowed(e, ibrTypes) {
		return false
	}
	typ, _ := e.payload["type"].(string)
	if i := strings.LastIndexByte(typ, '.'); i >= 0 {
		e.env["device_model"] = typ[i+1:]
	}
	return true
}

// GDP republishes the raw inbound data without a CloudEvent envelope,
// retained on the destination broker so late subscribers see the last state.
type GDP struct {
	*Core
}

func newGDP(core *Core) *GDP {
	p := &GDP{Core: core}
	core.hooks = p
	return p
}

func (p *GDP) assess(e *envelope) bool {
	p.metrics.IncCounter(metrics.RxGDPMessageTotal)
	return p.Core.assess(e)
}

func (p *GDP) finalize(e *envelope) (any, *transport.PubOptions) {
	retain := true
	return e.data, &transport.PubOptions{Retain: &retain}
}
