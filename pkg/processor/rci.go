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

// RCI ingests raw controller readings that arrive without a CloudEvent
// envelope: a flat object of numeric measurements. Non-numeric entries are
// counted invalid with a log line but stay in the record; they do not fail
// the message.
type RCI struct {
	*Core
}

func newRCI(core *Core) *RCI {
	p := &RCI{Core: core}
	core.hooks = p
	return p
}

func (p *RCI) assess(e *envelope) bool {
	p.metrics.IncCounter(metrics.RxRCIMessageTotal)
	return true
}

func (p *RCI) validate(e *envelope) bool {
	if !p.Core.validate(e) {
		return false
	}
	obj, ok := e.data.(map[string]any)
	if !ok {
		level.Warn(p.logger).Log("msg", "rci data is not an object", "pipeline", p.cfg.Name)
		return false
	}
	for k, v := range obj {
		if _, ok := v.(float64); !ok {
			level.Warn(p.logger).Log("msg", "non-numeric rci value", "pipeline", p.cfg.Name, "key", k)
			p.metrics.IncCounter(metrics.RxMessageInvalid)
		}
	}
	return true
}
