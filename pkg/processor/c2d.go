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
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/transport"
)

// C2D relays cloud-to-device commands unchanged. The destination topic can
// be overridden by the payload or the message properties.
type C2D struct {
	*Core
}

func newC2D(core *Core) *C2D {
	p := &C2D{Core: core}
	core.hooks = p
	return p
}

func (p *C2D) assess(e *envelope) bool {
	p.metrics.IncCounter(metrics.RxC2DMessageTotal)
	return p.Core.assess(e)
}

func (p *C2D) destinationTopic(e *envelope) string {
	if e.payload != nil {
		if topic, _ := e.payload["dest_topic"].(string); topic != "" {
			return topic
		}
	}
	if topic := e.msg.Props["dest_topic"]; topic != "" {
		return topic
	}
	return p.destTopic
}

func (p *C2D) finalize(e *envelope) (any, *transport.PubOptions) {
	return e.msg.Payload, nil
}
