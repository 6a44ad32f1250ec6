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
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/queue"
	"github.com/edgewatt/zeppelin/pkg/throttle"
)

const defaultAziotConfigPath = "/aziot_config.toml"

// deviceClient abstracts the IoT Hub device SDK client.
type deviceClient interface {
	Connect(ctx context.Context) error
	SendEvent(ctx context.Context, payload []byte, props map[string]string) error
	SubscribeEvents(ctx context.Context) (<-chan InboundEvent, error)
	DeviceID() string
	Close() error
}

// The device binding shares one hub connection and one topic dispatch table
// across all pipelines, mirroring the edge module holder.
var cloudDevice = struct {
	mtx       sync.Mutex
	client    deviceClient
	thr       *throttle.Throttle
	topics    map[string]*queue.Queue
	listening bool
	newClient func(connString string) (deviceClient, error)
}{
	thr:       throttle.New(),
	topics:    map[string]*queue.Queue{},
	newClient: newSDKDeviceClient,
}

// CloudDevice binds a pipeline directly to the cloud hub as a device. The
// connection string comes from the aziot identity config TOML.
type CloudDevice struct {
	logger   log.Logger
	cfg      *config.BrokerConfig
	myTopics []string
}

func newCloudDevice(logger log.Logger, cfg *config.BrokerConfig) *CloudDevice {
	return &CloudDevice{logger: logger, cfg: cfg}
}

type aziotConfig struct {
	Provisioning struct {
		ConnectionString string `toml:"connection_string"`
	} `toml:"provisioning"`
}

func deviceConnectionString() (string, error) {
	path := os.Getenv("AZIOT_CONFIG_PATH")
	if path == "" {
		path = defaultAziotConfigPath
	}
	var c aziotConfig
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return "", fmt.Errorf("read aziot config %q: %w", path, err)
	}
	if c.Provisioning.ConnectionString == "" {
		return "", fmt.Errorf("aziot config %q has no provisioning connection string", path)
	}
	return c.Provisioning.ConnectionString, nil
}

// ensureClient creates and connects the shared device client on first use.
// Callers must hold cloudDevice.mtx.
func (t *CloudDevice) ensureClient(ctx context.Context) bool {
	if cloudDevice.client != nil {
		return true
	}
	cs, err := deviceConnectionString()
	if err != nil {
		level.Error(t.logger).Log("msg", "device connection string unavailable", "err", err)
		return false
	}
	c, err := cloudDevice.newClient(cs)
	if err != nil {
		level.Error(t.logger).Log("msg", "device client setup failed", "err", err)
		return false
	}
	if err := c.Connect(ctx); err != nil {
		level.Error(t.logger).Log("msg", "device connect failed", "err", err)
		return false
	}
	cloudDevice.client = c
	return true
}

func (t *CloudDevice) StartListening(topics []string, q *queue.Queue) bool {
	cloudDevice.mtx.Lock()
	defer cloudDevice.mtx.Unlock()

	ctx := context.Background()
	if !t.ensureClient(ctx) {
		return false
	}
	for _, topic := range topics {
		cloudDevice.topics[topic] = q
		t.myTopics = append(t.myTopics, topic)
	}
	if !cloudDevice.listening {
		events, err := cloudDevice.client.SubscribeEvents(ctx)
		if err != nil {
			level.Error(t.logger).Log("msg", "device subscribe failed", "err", err)
			return false
		}
		cloudDevice.listening = true
		go t.dispatch(events)
	}
	return true
}

// dispatch routes cloud-to-device messages by their src_topic property.
// Messages without a mapped topic are discarded with a warning.
func (t *CloudDevice) dispatch(events <-chan InboundEvent) {
	for ev := range events {
		cloudDevice.thr.Admit()

		topic := ev.Topic
		if src, ok := ev.Props["src_topic"]; ok && src != "" {
			topic = src
		}
		cloudDevice.mtx.Lock()
		q, ok := cloudDevice.topics[topic]
		cloudDevice.mtx.Unlock()
		if !ok {
			level.Warn(t.logger).Log("msg", "no queue for topic, discarding", "topic", topic)
			continue
		}
		q.Push(queue.Message{
			Topic:    topic,
			Payload:  decodePayload(ev.Payload),
			Size:     len(ev.Payload),
			Received: time.Now().UTC(),
			Props:    ev.Props,
		})
	}
	cloudDevice.mtx.Lock()
	cloudDevice.listening = false
	cloudDevice.mtx.Unlock()
}

func (t *CloudDevice) Publish(topic string, payload any) bool {
	return t.PublishOpts(topic, payload, nil)
}

func (t *CloudDevice) PublishOpts(topic string, payload any, _ *PubOptions) bool {
	cloudDevice.mtx.Lock()
	ctx := context.Background()
	if !t.ensureClient(ctx) {
		cloudDevice.mtx.Unlock()
		return false
	}
	client := cloudDevice.client
	cloudDevice.mtx.Unlock()

	b, err := encodePayload(payload)
	if err != nil {
		level.Error(t.logger).Log("msg", "encode publish payload", "topic", topic, "err", err)
		return false
	}
	var props map[string]string
	if topic != "" {
		props = map[string]string{"src_topic": topic}
	}
	if err := client.SendEvent(ctx, b, props); err != nil {
		level.Error(t.logger).Log("msg", "device publish failed", "topic", topic, "err", err)
		return false
	}
	return true
}

func (t *CloudDevice) Disconnect() {
	cloudDevice.mtx.Lock()
	defer cloudDevice.mtx.Unlock()
	for _, topic := range t.myTopics {
		delete(cloudDevice.topics, topic)
	}
	t.myTopics = nil
}

func (t *CloudDevice) DeviceID() string {
	cloudDevice.mtx.Lock()
	defer cloudDevice.mtx.Unlock()
	if cloudDevice.client != nil {
		return cloudDevice.client.DeviceID()
	}
	return os.Getenv("IOTEDGE_DEVICEID")
}

func (t *CloudDevice) SetMetrics(m *metrics.Metrics) { cloudDevice.thr.SetMetrics(m) }
func (t *CloudDevice) SetMaxMsgSec(n int)            { cloudDevice.thr.SetMaxMsgSec(n) }
func (t *CloudDevice) SetSleepSec(s float64)         { cloudDevice.thr.SetSleepSec(s) }
