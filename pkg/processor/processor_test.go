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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/queue"
	"github.com/edgewatt/zeppelin/pkg/transport"
)

type published struct {
	topic   string
	payload any
	opts    *transport.PubOptions
}

type fakeTransport struct {
	published []published
	fail      bool
}

func (f *fakeTransport) Publish(topic string, payload any) bool {
	return f.PublishOpts(topic, payload, nil)
}

func (f *fakeTransport) PublishOpts(topic string, payload any, opts *transport.PubOptions) bool {
	if f.fail {
		return false
	}
	f.published = append(f.published, published{topic: topic, payload: payload, opts: opts})
	return true
}

func (f *fakeTransport) StartListening([]string, *queue.Queue) bool { return true }
func (f *fakeTransport) Disconnect()                                {}
func (f *fakeTransport) DeviceID() string                           { return "test-device" }
func (f *fakeTransport) SetMetrics(*metrics.Metrics)                {}
func (f *fakeTransport) SetMaxMsgSec(int)                           {}
func (f *fakeTransport) SetSleepSec(float64)                        {}

var testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// newTestProcessor builds a processor with a deterministic clock and id.
func newTestProcessor(t *testing.T, global *config.Config, cfg *config.PipelineConfig) (Processor, *fakeTransport, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	dest := &fakeTransport{}
	p, err := New(log.NewNopLogger(), global, cfg, m, dest, "test-device")
	if err != nil {
		t.Fatal(err)
	}
	var core *Core
	switch v := p.(type) {
	case *Generic:
		core = v.Core
	case *EGauge:
		core = v.Core
	case *Zigbee:
		core = v.Core
	case *IBR:
		core = v.Core
	case *GDP:
		core = v.Core
	case *C2D:
		core = v.Core
	case *RCI:
		core = v.Core
	case *RCICommand:
		core = v.Core
	}
	core.now = func() time.Time { return testTime }
	core.newID = func() string { return "fixed-id" }
	return p, dest, m
}

func counter(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	return testutil.ToFloat64(m.Counter(name))
}

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

// checkAccounting asserts the message accounting counters, and that they sum
// to the inbound total.
func checkAccounting(t *testing.T, m *metrics.Metrics, total, valid, invalid, errs float64) {
	t.Helper()
	if got := counter(t, m, metrics.RxMessageTotal); got != total {
		t.Errorf("rx_message_total = %v, want %v", got, total)
	}
	if got := counter(t, m, metrics.RxMessageValid); got != valid {
		t.Errorf("rx_message_valid = %v, want %v", got, valid)
	}
	if got := counter(t, m, metrics.RxMessageInvalid); got != invalid {
		t.Errorf("rx_message_invalid = %v, want %v", got, invalid)
	}
	if got := counter(t, m, metrics.RxMessageError); got != errs {
		t.Errorf("rx_message_error = %v, want %v", got, errs)
	}
	if valid+invalid+errs != total {
		t.Errorf("accounting does not sum to total: %v+%v+%v != %v", valid, invalid, errs, total)
	}
}

func TestGenericIdentity(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:              "p",
		Class:             "generic",
		SourceBroker:      config.BrokerConfig{Class: "Void", HasCloudEvent: true},
		DestinationBroker: config.BrokerConfig{Class: "Void", Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, &config.Config{}, cfg)

	in := decodeJSON(t, `{
		"specversion": "1.0",
		"id": "original-id",
		"time": "2023-01-01T00:00:00Z",
		"type": "com.example.reading",
		"source": "dev-9",
		"datacontenttype": "application/json",
		"custom": "attr",
		"data": {"v": 1.5}
	}`)
	p.Process(queue.Message{Topic: "in", Payload: in, Size: 100})

	if len(dest.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(dest.published))
	}
	if dest.published[0].topic != "out" {
		t.Fatalf("got topic %q, want out", dest.published[0].topic)
	}
	want := decodeJSON(t, `{
		"specversion": "1.0",
		"id": "fixed-id",
		"time": "2024-01-01T12:00:00Z",
		"type": "com.example.reading",
		"source": "dev-9",
		"datacontenttype": "application/json",
		"custom": "attr",
		"data": {"v": 1.5}
	}`)
	if diff := cmp.Diff(want, dest.published[0].payload); diff != "" {
		t.Fatalf("identity law violated (-want +got):\n%s", diff)
	}
	checkAccounting(t, m, 1, 1, 0, 0)
	if got := counter(t, m, metrics.TxMessageTotal); got != 1 {
		t.Fatalf("tx_message_total = %v, want 1", got)
	}
}

func TestOverSizeDrop(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:                "p",
		Class:               "generic",
		MaxPayloadSizeBytes: 1000,
		SourceBroker:        config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker:   config.BrokerConfig{Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, &config.Config{}, cfg)

	p.Process(queue.Message{Payload: map[string]any{}, Size: 1200})

	if len(dest.published) != 0 {
		t.Fatal("over-size message must not publish")
	}
	checkAccounting(t, m, 1, 0, 1, 0)
	if got := counter(t, m, metrics.RxMessageOverSize); got != 1 {
		t.Fatalf("rx_message_over_size = %v, want 1", got)
	}
}

func TestEGaugeHappyPath(t *testing.T) {
	global := &config.Config{GlobalValidationRules: map[string]any{"units": []any{"kw"}}}
	cfg := &config.PipelineConfig{
		Name:                       "egauge",
		Class:                      "egauge",
		ApplyGlobalValidationRules: true,
		SourceBroker:               config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker:          config.BrokerConfig{Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, global, cfg)

	in := decodeJSON(t, `{
		"specversion": "1.0",
		"type": "ca.qc.hydro.iot.egauge",
		"datacontenttype": "application/json",
		"source": "dev-1",
		"data": {"device": "eg1", "values": [{"value": 1.2, "value_type": "float", "unit": "kw"}]}
	}`)
	p.Process(queue.Message{Payload: in, Size: 200})

	if len(dest.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(dest.published))
	}
	out := dest.published[0].payload.(map[string]any)
	if got := out["device_model"]; got != "egauge" {
		t.Fatalf("device_model = %v, want egauge", got)
	}
	if diff := cmp.Diff(in["data"], out["data"]); diff != "" {
		t.Fatalf("data changed (-want +got):\n%s", diff)
	}
	checkAccounting(t, m, 1, 1, 0, 0)
	if got := counter(t, m, metrics.RxEGaugeMessageTotal); got != 1 {
		t.Fatalf("rx_egauge_message_total = %v, want 1", got)
	}
}

func TestEGaugeRejectsBadValues(t *testing.T) {
	global := &config.Config{GlobalValidationRules: map[string]any{"units": []any{"kw"}}}
	cfg := &config.PipelineConfig{
		Name:                       "egauge",
		Class:                      "egauge",
		ApplyGlobalValidationRules: true,
		SourceBroker:               config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker:          config.BrokerConfig{Topic: "out"},
	}

	cases := []struct {
		desc string
		data string
	}{
		{desc: "unknown unit", data: `{"device": "eg1", "values": [{"value": 1.2, "value_type": "float", "unit": "mi"}]}`},
		{desc: "missing device", data: `{"values": [{"value": 1.2, "value_type": "float", "unit": "kw"}]}`},
		{desc: "missing values", data: `{"device": "eg1"}`},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			p, dest, m := newTestProcessor(t, global, cfg)
			in := decodeJSON(t, `{"specversion": "1.0", "datacontenttype": "application/json", "source": "s", "data": `+c.data+`}`)
			p.Process(queue.Message{Payload: in, Size: 100})
			if len(dest.published) != 0 {
				t.Fatal("invalid message must not publish")
			}
			checkAccounting(t, m, 1, 0, 1, 0)
		})
	}
}

func TestZigbeeNormalization(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "zigbee.json")
	conf := `{
		"devices": {"XYZ": [{"field": "t", "unit": "C", "value_type": "float", "mandatory": true}]},
		"data_fields": ["unit", "value_type"]
	}`
	if err := os.WriteFile(confPath, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.PipelineConfig{
		Name:              "zigbee",
		Class:             "zigbee",
		ConfigFile:        confPath,
		SourceBroker:      config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker: config.BrokerConfig{Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, &config.Config{}, cfg)

	in := decodeJSON(t, `{
		"specversion": "1.0",
		"subject": "xyz",
		"datacontenttype": "application/json",
		"source": "s",
		"data": {"device": {"model": "xyz"}, "t": 21.5}
	}`)
	p.Process(queue.Message{Payload: in, Size: 100})

	if len(dest.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(dest.published))
	}
	out := dest.published[0].payload.(map[string]any)
	want := decodeJSON(t, `{"device": {"model": "xyz"}, "values": [{"value": 21.5, "unit": "C", "value_type": "float"}]}`)
	if diff := cmp.Diff(want, out["data"]); diff != "" {
		t.Fatalf("unexpected normalized data (-want +got):\n%s", diff)
	}
	if got := out["device_model"]; got != "XYZ" {
		t.Fatalf("device_model = %v, want XYZ", got)
	}
	if got := counter(t, m, metrics.RxZigbeeMessageTotal); got != 1 {
		t.Fatalf("rx_zigbee_message_total = %v, want 1", got)
	}

	// Missing mandatory field fails validation.
	in2 := decodeJSON(t, `{"specversion": "1.0", "subject": "xyz", "datacontenttype": "application/json", "source": "s", "data": {"device": {"model": "xyz"}}}`)
	p.Process(queue.Message{Payload: in2, Size: 100})
	checkAccounting(t, m, 2, 1, 1, 0)
}

func TestZigbeeRejectsUnlistedUnit(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "zigbee.json")
	conf := `{
		"devices": {"XYZ": [{"field": "t", "unit": "F", "value_type": "float"}]},
		"data_fields": ["unit", "value_type"]
	}`
	if err := os.WriteFile(confPath, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	global := &config.Config{GlobalValidationRules: map[string]any{"units": []any{"c"}}}
	cfg := &config.PipelineConfig{
		Name:              "zigbee",
		Class:             "zigbee",
		ConfigFile:        confPath,
		SourceBroker:      config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker: config.BrokerConfig{Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, global, cfg)

	in := decodeJSON(t, `{
		"specversion": "1.0",
		"subject": "xyz",
		"datacontenttype": "application/json",
		"source": "s",
		"data": {"device": {"model": "xyz"}, "t": 21.5}
	}`)
	p.Process(queue.Message{Payload: in, Size: 100})

	if len(dest.published) != 0 {
		t.Fatal("projected record with an unlisted unit must not publish")
	}
	checkAccounting(t, m, 1, 0, 1, 0)
}

func TestGDPLaw(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:              "gdp",
		Class:             "gdp",
		SourceBroker:      config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker: config.BrokerConfig{Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, &config.Config{}, cfg)

	in := decodeJSON(t, `{"specversion": "1.0", "datacontenttype": "application/json", "source": "s", "data": {"soc": 0.8}}`)
	p.Process(queue.Message{Payload: in, Size: 100})

	if len(dest.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(dest.published))
	}
	pub := dest.published[0]
	if diff := cmp.Diff(in["data"], pub.payload); diff != "" {
		t.Fatalf("gdp law violated (-want +got):\n%s", diff)
	}
	if pub.opts == nil || pub.opts.Retain == nil || !*pub.opts.Retain {
		t.Fatal("gdp publish must set retain")
	}
	if got := counter(t, m, metrics.RxGDPMessageTotal); got != 1 {
		t.Fatalf("rx_gdp_message_total = %v, want 1", got)
	}
}

func TestC2DLawAndRouting(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:              "c2d",
		Class:             "cloud2device",
		SourceBroker:      config.BrokerConfig{},
		DestinationBroker: config.BrokerConfig{Topic: "default-topic"},
	}

	cases := []struct {
		desc      string
		payload   any
		props     map[string]string
		wantTopic string
	}{
		{
			desc:      "payload dest_topic wins",
			payload:   map[string]any{"dest_topic": "from-payload", "cmd": "x"},
			props:     map[string]string{"dest_topic": "from-props"},
			wantTopic: "from-payload",
		},
		{
			desc:      "props dest_topic second",
			payload:   map[string]any{"cmd": "x"},
			props:     map[string]string{"dest_topic": "from-props"},
			wantTopic: "from-props",
		},
		{
			desc:      "pipeline default last",
			payload:   map[string]any{"cmd": "x"},
			wantTopic: "default-topic",
		},
		{
			desc:      "non-object payload passes through",
			payload:   "raw command",
			wantTopic: "default-topic",
		},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			p, dest, m := newTestProcessor(t, &config.Config{}, cfg)
			p.Process(queue.Message{Payload: c.payload, Size: 10, Props: c.props})
			if len(dest.published) != 1 {
				t.Fatalf("got %d publishes, want 1", len(dest.published))
			}
			if dest.published[0].topic != c.wantTopic {
				t.Fatalf("got topic %q, want %q", dest.published[0].topic, c.wantTopic)
			}
			// C2D law: payload republished exactly.
			if diff := cmp.Diff(c.payload, dest.published[0].payload); diff != "" {
				t.Fatalf("c2d law violated (-want +got):\n%s", diff)
			}
			if got := counter(t, m, metrics.RxC2DMessageTotal); got != 1 {
				t.Fatalf("rx_c2d_message_total = %v, want 1", got)
			}
		})
	}
}

func TestRCICountsNonNumericValues(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:              "rci",
		Class:             "rci",
		SourceBroker:      config.BrokerConfig{},
		DestinationBroker: config.BrokerConfig{Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, &config.Config{}, cfg)

	in := map[string]any{"temp": 21.5, "label": "north", "rpm": float64(900)}
	p.Process(queue.Message{Payload: in, Size: 50})

	if len(dest.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(dest.published))
	}
	out := dest.published[0].payload.(map[string]any)
	// Non-numeric entries are counted invalid but stay in the record.
	if diff := cmp.Diff(in, out["data"]); diff != "" {
		t.Fatalf("unexpected data (-want +got):\n%s", diff)
	}
	if got := out["source"]; got != "test-device" {
		t.Fatalf("source = %v, want synthesized device id", got)
	}
	if got := counter(t, m, metrics.RxMessageValid); got != 1 {
		t.Fatalf("rx_message_valid = %v, want 1", got)
	}
	if got := counter(t, m, metrics.RxMessageInvalid); got != 1 {
		t.Fatalf("rx_message_invalid = %v, want 1", got)
	}
	if got := counter(t, m, metrics.TxMessageTotal); got != 1 {
		t.Fatalf("tx_message_total = %v, want 1", got)
	}
}

func TestRCICommandFanOut(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:                  "rci-cmd",
		Class:                 "rci_command",
		DeviceIDAttributeName: "device_id",
		SourceBroker:          config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker:     config.BrokerConfig{Topic: "default"},
	}
	p, dest, m := newTestProcessor(t, &config.Config{}, cfg)

	in := decodeJSON(t, `{
		"specversion": "1.0",
		"type": "ca.qc.hydro.iot.rci.command",
		"datacontenttype": "application/json",
		"source": "cloud",
		"device_id": "edge-42",
		"data": {"setpoint": 2}
	}`)
	p.Process(queue.Message{Payload: in, Size: 100})

	if len(dest.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(dest.published))
	}
	if dest.published[0].topic != "edge-42" {
		t.Fatalf("got topic %q, want edge-42", dest.published[0].topic)
	}
	if got := counter(t, m, metrics.TxCmdMessageTotal); got != 1 {
		t.Fatalf("tx_cmd_message_total = %v, want 1", got)
	}

	// Missing routing attribute fails the message, but the command is still
	// counted on arrival.
	in2 := decodeJSON(t, `{"specversion": "1.0", "type": "ca.qc.hydro.iot.rci.command", "datacontenttype": "application/json", "source": "cloud", "data": {}}`)
	p.Process(queue.Message{Payload: in2, Size: 100})
	checkAccounting(t, m, 2, 1, 1, 0)
	if got := counter(t, m, metrics.TxCmdMessageTotal); got != 2 {
		t.Fatalf("tx_cmd_message_total = %v, want 2", got)
	}
}

func TestIBRAssessment(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:              "ibr",
		Class:             "ibr",
		SourceBroker:      config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker: config.BrokerConfig{Topic: "out"},
	}

	t.Run("allowed type sets device model and preserves type", func(t *testing.T) {
		p, dest, _ := newTestProcessor(t, &config.Config{}, cfg)
		in := decodeJSON(t, `{"specversion": "1.0", "type": "ca.qc.hydro.iot.ibr.egauge", "datacontenttype": "application/json", "source": "s", "data": {"v": 1.0}}`)
		p.Process(queue.Message{Payload: in, Size: 100})
		if len(dest.published) != 1 {
			t.Fatalf("got %d publishes, want 1", len(dest.published))
		}
		out := dest.published[0].payload.(map[string]any)
		if got := out["device_model"]; got != "egauge" {
			t.Fatalf("device_model = %v, want egauge", got)
		}
		if got := out["type"]; got != "ca.qc.hydro.iot.ibr.egauge" {
			t.Fatalf("type = %v, want preserved", got)
		}
	})

	t.Run("unlisted type rejected", func(t *testing.T) {
		p, dest, m := newTestProcessor(t, &config.Config{}, cfg)
		in := decodeJSON(t, `{"specversion": "1.0", "type": "ca.qc.hydro.iot.other", "datacontenttype": "application/json", "source": "s", "data": {}}`)
		p.Process(queue.Message{Payload: in, Size: 100})
		if len(dest.published) != 0 {
			t.Fatal("unlisted type must not publish")
		}
		checkAccounting(t, m, 1, 0, 1, 0)
	})
}

func TestPublishFailureStillCountsValid(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:              "p",
		Class:             "generic",
		SourceBroker:      config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker: config.BrokerConfig{Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, &config.Config{}, cfg)
	dest.fail = true

	// A failed publish leaves the message valid; only tx is withheld.
	in := decodeJSON(t, `{"specversion": "1.0", "datacontenttype": "application/json", "source": "s", "data": {}}`)
	p.Process(queue.Message{Payload: in, Size: 100})
	checkAccounting(t, m, 1, 1, 0, 0)
	if got := counter(t, m, metrics.TxMessageTotal); got != 0 {
		t.Fatalf("tx_message_total = %v, want 0", got)
	}
}

func TestSpecversionRejected(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:              "p",
		Class:             "generic",
		SourceBroker:      config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker: config.BrokerConfig{Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, &config.Config{}, cfg)

	in := decodeJSON(t, `{"specversion": "0.3", "datacontenttype": "application/json", "source": "s", "data": {}}`)
	p.Process(queue.Message{Payload: in, Size: 100})
	if len(dest.published) != 0 {
		t.Fatal("wrong specversion must not publish")
	}
	checkAccounting(t, m, 1, 0, 1, 0)
}

func TestSchemaValidation(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	schema := `{
		"type": "object",
		"required": ["specversion", "data"],
		"properties": {"data": {"type": "object", "required": ["v"]}}
	}`
	if err := os.WriteFile(schemaPath, []byte(schema), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.PipelineConfig{
		Name:              "p",
		Class:             "generic",
		JSONSchema:        schemaPath,
		SourceBroker:      config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker: config.BrokerConfig{Topic: "out"},
	}
	p, dest, m := newTestProcessor(t, &config.Config{}, cfg)

	ok := decodeJSON(t, `{"specversion": "1.0", "datacontenttype": "application/json", "source": "s", "data": {"v": 1.0}}`)
	bad := decodeJSON(t, `{"specversion": "1.0", "datacontenttype": "application/json", "source": "s", "data": {}}`)
	p.Process(queue.Message{Payload: ok, Size: 100})
	p.Process(queue.Message{Payload: bad, Size: 100})

	if len(dest.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(dest.published))
	}
	checkAccounting(t, m, 2, 1, 1, 0)
}

func TestSchemaEnforcedForPassThroughVariants(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	schema := `{"type": "object", "required": ["cmd"]}`
	if err := os.WriteFile(schemaPath, []byte(schema), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		class string
		good  map[string]any
		bad   map[string]any
	}{
		{class: "cloud2device", good: map[string]any{"cmd": "x"}, bad: map[string]any{"other": "x"}},
		{class: "rci", good: map[string]any{"cmd": 1.0}, bad: map[string]any{"other": 1.0}},
	}
	for _, c := range cases {
		t.Run(c.class, func(t *testing.T) {
			cfg := &config.PipelineConfig{
				Name:              "p",
				Class:             c.class,
				JSONSchema:        schemaPath,
				SourceBroker:      config.BrokerConfig{},
				DestinationBroker: config.BrokerConfig{Topic: "out"},
			}
			p, dest, m := newTestProcessor(t, &config.Config{}, cfg)

			p.Process(queue.Message{Payload: c.good, Size: 20})
			p.Process(queue.Message{Payload: c.bad, Size: 20})

			if len(dest.published) != 1 {
				t.Fatalf("got %d publishes, want 1", len(dest.published))
			}
			if got := counter(t, m, metrics.RxMessageInvalid); got != 1 {
				t.Fatalf("rx_message_invalid = %v, want 1", got)
			}
		})
	}
}

func TestPopulateCEAttributes(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:                 "p",
		Class:                "generic",
		PopulateCEAttributes: []string{"site", "missing_attr"},
		SourceBroker:         config.BrokerConfig{HasCloudEvent: true},
		DestinationBroker:    config.BrokerConfig{Topic: "out"},
	}
	p, dest, _ := newTestProcessor(t, &config.Config{}, cfg)

	in := decodeJSON(t, `{"specversion": "1.0", "datacontenttype": "application/json", "source": "s", "site": "mtl-7", "data": {}}`)
	p.Process(queue.Message{Payload: in, Size: 100})

	if len(dest.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(dest.published))
	}
	out := dest.published[0].payload.(map[string]any)
	if got := out["site"]; got != "mtl-7" {
		t.Fatalf("site = %v, want mtl-7", got)
	}
	if _, ok := out["missing_attr"]; ok {
		t.Fatal("missing attribute must not be populated")
	}
}

func TestUnknownProcessorClass(t *testing.T) {
	_, err := New(log.NewNopLogger(), &config.Config{}, &config.PipelineConfig{Name: "p", Class: "nope"}, metrics.New(prometheus.NewRegistry()), &fakeTransport{}, "d")
	if err == nil {
		t.Fatal("expected error for unknown class")
	}
}
