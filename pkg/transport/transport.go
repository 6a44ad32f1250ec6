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

// Package transport provides the uniform broker binding used by pipelines:
// local MQTT, the Azure IoT Edge module client, the Azure IoT device client,
// the cloud-side service client and a no-op variant.
package transport

import (
	"encoding/json"
	"time"

	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/queue"
)

// Connection retry policy shared by all broker bindings.
const (
	connectMaxRetry = 10
	connectInterval = 5 * time.Second
)

// PubOptions carries per-call publish overrides. Nil fields fall back to the
// broker config defaults. Variants without a QoS or retain concept ignore
// them.
type PubOptions struct {
	QoS    *byte
	Retain *bool
}

// Transport is the capability set a pipeline runner needs from a broker
// binding. Publish and StartListening report success as a bool; transport
// errors are logged and absorbed, never propagated.
type Transport interface {
	Publish(topic string, payload any) bool
	PublishOpts(topic string, payload any, opts *PubOptions) bool
	StartListening(topics []string, q *queue.Queue) bool
	Disconnect()
	DeviceID() string
	SetMetrics(m *metrics.Metrics)
	SetMaxMsgSec(n int)
	SetSleepSec(s float64)
}

// encodePayload renders an outbound payload: byte slices and strings pass
// through, everything else is JSON-encoded.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}

// decodePayload turns an inbound payload into its JSON value, falling back
// to the raw string when it is not valid JSON.
func decodePayload(b []byte) any {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return string(b)
	}
	return v
}
