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

package transport

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/queue"
	"github.com/edgewatt/zeppelin/pkg/throttle"
)

// InboundEvent is a broker message surfaced by an SDK client wrapper.
type InboundEvent struct {
	Topic   string
	Payload []byte
	Props   map[string]string
}

// MethodHandler handles a direct-method request and returns the response
// status code and body.
type MethodHandler func(payload []byte) (int, any)

// edgeClient abstracts the IoT Edge module SDK client.
type edgeClient interface {
	Connect(ctx context.Context) error
	SendEvent(ctx context.Context, output string, payload []byte, props map[string]string) error
	SubscribeEvents(ctx context.Context) (<-chan InboundEvent, error)
	RegisterMethod(ctx context.Context, name string, h MethodHandler) error
	Close() error
}

// The module SDK supports one client per process. All EdgeHubModule
// instances share this holder: one client, one throttle, one input→queue
// dispatch table.
var edgeHub = struct {
	mtx       sync.Mutex
	client    edgeClient
	thr       *throttle.Throttle
	topics    map[string]*queue.Queue
	listening bool
	newClient func() (edgeClient, error)
}{
	thr:       throttle.New(),
	topics:    map[string]*queue.Queue{},
	newClient: newSDKEdgeClient,
}

// EdgeHubModule binds a pipeline to the IoT Edge hub through the module
// client. Publishing addresses named outputs, listening named inputs.
type EdgeHubModule struct {
	logger   log.Logger
	cfg      *config.BrokerConfig
	myTopics []string
}

func newEdgeHubModule(logger log.Logger, cfg *config.BrokerConfig) *EdgeHubModule {
	return &EdgeHubModule{logger: logger, cfg: cfg}
}

// ensureClient creates and connects the shared module client on first use.
// Callers must hold edgeHub.mtx.
func (t *EdgeHubModule) ensureClient(ctx context.Context) bool {
	if edgeHub.client != nil {
		return true
	}
	c, err := edgeHub.newClient()
	if err != nil {
		level.Error(t.logger).Log("msg", "edge module client setup failed", "err", err)
		return false
	}
	if err := c.Connect(ctx); err != nil {
		level.Error(t.logger).Log("msg", "edge module connect failed", "err", err)
		return false
	}
	edgeHub.client = c
	return true
}

func (t *EdgeHubModule) StartListening(topics []string, q *queue.Queue) bool {
	edgeHub.mtx.Lock()
	defer edgeHub.mtx.Unlock()

	ctx := context.Background()
	if !t.ensureClient(ctx) {
		return false
	}
	for _, topic := range topics {
		edgeHub.topics[topic] = q
		t.myTopics = append(t.myTopics, topic)
	}
	if ec := t.cfg.IoTEdge; ec != nil && ec.EnableDirectMethod && ec.DirectMethodName != "" {
		if !t.registerMethod(ctx, ec.DirectMethodName, q) {
			return false
		}
	}
	if !edgeHub.listening {
		events, err := edgeHub.client.SubscribeEvents(ctx)
		if err != nil {
			level.Error(t.logger).Log("msg", "edge module subscribe failed", "err", err)
			return false
		}
		edgeHub.listening = true
		go t.dispatch(events)
	}
	return true
}

// dispatch routes inbound events from the shared client into the queue
// registered for their input. It serializes delivery across all pipelines
// that use this transport.
func (t *EdgeHubModule) dispatch(events <-chan InboundEvent) {
	for ev := range events {
		edgeHub.thr.Admit()

		edgeHub.mtx.Lock()
		q, ok := edgeHub.topics[ev.Topic]
		edgeHub.mtx.Unlock()
		if !ok {
			level.Warn(t.logger).Log("msg", "no queue for edge input, discarding", "input", ev.Topic)
			continue
		}
		q.Push(queue.Message{
			Topic:    ev.Topic,
			Payload:  decodePayload(ev.Payload),
			Size:     len(ev.Payload),
			Received: time.Now().UTC(),
			Props:    ev.Props,
		})
	}
	edgeHub.mtx.Lock()
	edgeHub.listening = false
	edgeHub.mtx.Unlock()
}

func (t *EdgeHubModule) registerMethod(ctx context.Context, name string, q *queue.Queue) bool {
	err := edgeHub.client.RegisterMethod(ctx, name, func(payload []byte) (int, any) {
		if len(payload) == 0 {
			return 400, "missing payload"
		}
		q.Push(queue.Message{
			Topic:    name,
			Payload:  decodePayload(payload),
			Size:     len(payload),
			Received: time.Now().UTC(),
		})
		return 200, "accepted"
	})
	if err != nil {
		level.Error(t.logger).Log("msg", "direct method registration failed", "method", name, "err", err)
		return false
	}
	return true
}

func (t *EdgeHubModule) Publish(topic string, payload any) bool {
	return t.PublishOpts(topic, payload, nil)
}

// PublishOpts sends to the named output. QoS/retain overrides do not apply
// to the module client and are ignored.
func (t *EdgeHubModule) PublishOpts(topic string, payload any, _ *PubOptions) bool {
	edgeHub.mtx.Lock()
	ctx := context.Background()
	if !t.ensureClient(ctx) {
		edgeHub.mtx.Unlock()
		return false
	}
	client := edgeHub.client
	edgeHub.mtx.Unlock()

	b, err := encodePayload(payload)
	if err != nil {
		level.Error(t.logger).Log("msg", "encode publish payload", "output", topic, "err", err)
		return false
	}
	if err := client.SendEvent(ctx, topic, b, nil); err != nil {
		level.Error(t.logger).Log("msg", "edge module publish failed", "output", topic, "err", err)
		return false
	}
	return true
}

// Disconnect removes this instance's inputs from the shared dispatch table.
// The shared client stays up for the other pipelines using it.
func (t *EdgeHubModule) Disconnect() {
	edgeHub.mtx.Lock()
	defer edgeHub.mtx.Unlock()
	for _, topic := range t.myTopics {
		delete(edgeHub.topics, topic)
	}
	t.myTopics = nil
}

func (t *EdgeHubModule) DeviceID() string { return os.Getenv("IOTEDGE_DEVICEID") }

func (t *EdgeHubModule) SetMetrics(m *metrics.Metrics) { edgeHub.thr.SetMetrics(m) }
func (t *EdgeHubModule) SetMaxMsgSec(n int)            { edgeHub.thr.SetMaxMsgSec(n) }
func (t *EdgeHubModule) SetSleepSec(s float64)         { edgeHub.thr.SetSleepSec(s) }
