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

// Package metrics holds the named counters shared by transports, processors
// and pipelines, registered on a single Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Counter names. Transports and processors address counters by name so
// variant-specific counters need no dedicated accessors.
const (
	RxMessageTotal        = "rx_message_total"
	RxMessageOverSize     = "rx_message_over_size"
	RxMessageDiscarded    = "rx_message_discarded"
	RxMessageError        = "rx_message_error"
	RxMessageValid        = "rx_message_valid"
	RxMessageInvalid      = "rx_message_invalid"
	TxMessageTotal        = "tx_message_total"
	ThrottleTotal         = "throttle_total"
	RxZigbeeMessageTotal  = "rx_zigbee_message_total"
	RxEGaugeMessageTotal  = "rx_egauge_message_total"
	RxC2DMessageTotal     = "rx_c2d_message_total"
	RxGDPMessageTotal     = "rx_gdp_message_total"
	RxIBRMessageTotal     = "rx_ibr_message_total"
	RxRCIMessageTotal     = "rx_rci_message_total"
	TxCmdMessageTotal     = "tx_cmd_message_total"
	RxCmdMessageTotal     = "rx_cmd_message_total"
	RxGenericMessageTotal = "rx_generic_message_total"
)

var counterHelp = map[string]string{
	RxMessageTotal:        "Total number of messages received from source brokers.",
	RxMessageOverSize:     "Messages rejected for exceeding the configured payload size.",
	RxMessageDiscarded:    "Messages discarded before processing.",
	RxMessageError:        "Messages that failed during publishing.",
	RxMessageValid:        "Messages that passed all processing stages.",
	RxMessageInvalid:      "Messages rejected by an assessment, validation or normalization stage.",
	TxMessageTotal:        "Messages successfully published to destination brokers.",
	ThrottleTotal:         "Times the inbound rate limiter slept a receive path.",
	RxZigbeeMessageTotal:  "Messages assessed by the zigbee processor.",
	RxEGaugeMessageTotal:  "Messages assessed by the egauge processor.",
	RxC2DMessageTotal:     "Messages assessed by the cloud-to-device processor.",
	RxGDPMessageTotal:     "Messages assessed by the GDP processor.",
	RxIBRMessageTotal:     "Messages assessed by the IBR processor.",
	RxRCIMessageTotal:     "Messages assessed by the RCI processor.",
	TxCmdMessageTotal:     "RCI commands routed to a device-specific destination.",
	RxCmdMessageTotal:     "RCI commands routed to the default destination.",
	RxGenericMessageTotal: "Messages assessed by the generic processor.",
}

// Metrics is the set of service counters. All counters exist from
// construction so increments never race with registration.
type Metrics struct {
	counters map[string]prometheus.Counter
	version  *prometheus.GaugeVec
}

// New creates all counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
		version: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zeppelin",
			Name:      "version",
			Help:      "Configured service version information.",
		}, []string{"version", "version_date", "module"}),
	}
	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zeppelin",
			Name:      name,
			Help:      help,
		})
		m.counters[name] = c
		if reg != nil {
			reg.MustRegister(c)
		}
	}
	if reg != nil {
		reg.MustRegister(m.version)
	}
	return m
}

// IncCounter increments the named counter. Unknown names are ignored, which
// keeps the hot path free of error handling for variant counters.
func (m *Metrics) IncCounter(name string) {
	if m == nil {
		return
	}
	if c, ok := m.counters[name]; ok {
		c.Inc()
	}
}

// Counter returns the named counter, or nil if the name is unknown.
func (m *Metrics) Counter(name string) prometheus.Counter {
	return m.counters[name]
}

// SetVersion publishes the version info gauge.
func (m *Metrics) SetVersion(version, versionDate, module string) {
	m.version.WithLabelValues(version, versionDate, module).Set(1)
}
