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
	"path/filepath"
	"testing"

	"github.com/go-kit/log"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/queue"
	"github.com/edgewatt/zeppelin/pkg/throttle"
)

type fakeDeviceClient struct {
	events chan InboundEvent
}

func (f *fakeDeviceClient) Connect(context.Context) error { return nil }

func (f *fakeDeviceClient) SendEvent(context.Context, []byte, map[string]string) error { return nil }

func (f *fakeDeviceClient) SubscribeEvents(context.Context) (<-chan InboundEvent, error) {
	return f.events, nil
}

func (f *fakeDeviceClient) DeviceID() string { return "edge-42" }

func (f *fakeDeviceClient) Close() error { return nil }

func writeAziotConfig(t *testing.T) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "aziot_config.toml")
	content := "[provisioning]\nconnection_string = \"HostName=h.azure-devices.net;DeviceId=edge-42;SharedAccessKey=abc\"\n"
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AZIOT_CONFIG_PATH", p)
}

func TestDeviceConnectionString(t *testing.T) {
	writeAziotConfig(t)
	cs, err := deviceConnectionString()
	if err != nil {
		t.Fatal(err)
	}
	if want := "HostName=h.azure-devices.net;DeviceId=edge-42;SharedAccessKey=abc"; cs != want {
		t.Fatalf("got %q, want %q", cs, want)
	}
}

func TestCloudDeviceDemuxBySrcTopic(t *testing.T) {
	writeAziotConfig(t)
	fake := &fakeDeviceClient{events: make(chan InboundEvent, 16)}

	cloudDevice.mtx.Lock()
	cloudDevice.client = nil
	cloudDevice.topics = map[string]*queue.Queue{}
	cloudDevice.listening = false
	cloudDevice.thr = throttle.New()
	cloudDevice.newClient = func(string) (deviceClient, error) { return fake, nil }
	cloudDevice.mtx.Unlock()

	tr := newCloudDevice(log.NewNopLogger(), &config.BrokerConfig{Class: "IoTDevice"})
	q := queue.New()
	if !tr.StartListening([]string{"commands"}, q) {
		t.Fatal("StartListening failed")
	}
	if got := tr.DeviceID(); got != "edge-42" {
		t.Fatalf("got device id %q", got)
	}

	fake.events <- InboundEvent{Payload: []byte(`{"c":1}`), Props: map[string]string{"src_topic": "commands"}}
	fake.events <- InboundEvent{Payload: []byte(`{"c":2}`), Props: map[string]string{"src_topic": "elsewhere"}}

	m := popWait(t, q)
	if m.Topic != "commands" {
		t.Fatalf("got topic %q, want commands", m.Topic)
	}
	if m.Props["src_topic"] != "commands" {
		t.Fatalf("props not carried: %v", m.Props)
	}
	if q.Len() != 0 {
		t.Fatal("unmapped src_topic must be discarded")
	}
}
