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

// rciCommandTypes is the default allow-list for RCI commands.
var rciCommandTypes = []string{"ca.qc.hydro.iot.rci.command"}

// RCICommand fans commands out from the cloud: when a device id attribute
// is configured, it routes each command to the device named by the payload
// instead of the pipeline default.
type RCICommand struct {
	*Core
}

func newRCICommand(core *Core) *RCICommand {
	p := &RCICommand{Core: core}
	core.hooks = p
	return p
}

func (p *RCICommand) assess(e *envelope) bool {
	if p.cfg.DeviceIDAttributeName != "" {
		p.metrics.IncCounter(metrics.TxCmdMessageTotal)
	} else {
		p.metrics.IncCounter(metrics.RxCmdMessageTotal)
	}
	if !p.Core.assess(e) {
		return false
	}
	return p.typeAllowed(e, rciCommandTypes)
}

func (p *RCICommand) destinationTopic(e *envelope) string {
	attr := p.cfg.DeviceIDAttributeName
	if attr == "" {
		return p.destTopic
	}
	device, _ := e.payload[attr].(string)
	if device == "" {
		level.Warn(p.logger).Log("msg", "command has no routing attribute", "pipeline", p.cfg.Name, "attribute", attr)
		return ""
	}
	return device
}
