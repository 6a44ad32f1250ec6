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
	"github.com/edgewatt/zeppelin/pkg/transport"
)

// Generic passes CloudEvents through unchanged, optionally restricted to a
// type allow-list and optionally copying declared attributes into the
// outbound envelope.
type Generic struct {
	*Core
}

func newGeneric(core *Core) *Generic {
	g := &Generic{Core: core}
	core.hooks = g
	return g
}

func (g *Generic) assess(e *envelope) bool {
	g.metrics.IncCounter(metrics.RxGenericMessageTotal)
	if !g.Core.assess(e) {
		return false
	}
	return g.typeAllowed(e, nil)
}

func (g *Generic) finalize(e *envelope) (any, *transport.PubOptions) {
	payload, opts := g.Core.finalize(e)
	out, ok := payload.(map[string]any)
	if !ok {
		return payload, opts
	}
	for _, attr := range g.cfg.PopulateCEAttributes {
		v, found := e.payload[attr]
		if !found {
			level.Warn(g.logger).Log("msg", "attribute to populate missing from payload", "pipeline", g.cfg.Name, "attribute", attr)
			continue
		}
		out[attr] = v
	}
	return out, opts
}
