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

// Package config defines the pipeline configuration model and its loader.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the top-level service configuration (zeppelin.json).
type Config struct {
	Version               string             `json:"version"`
	VersionDate           string             `json:"version_date"`
	GlobalValidationRules map[string]any     `json:"global_validation_rules"`
	Pipelines             []PipelineConfig   `json:"pipelines"`
	// Sources is the legacy name for Pipelines; Load folds it in.
	Sources []PipelineConfig `json:"sources"`
}

// PipelineConfig declares one source → processor → destination unit.
type PipelineConfig struct {
	Name                       string         `json:"name"`
	Class                      string         `json:"class"`
	SourceBroker               BrokerConfig   `json:"source_broker"`
	DestinationBroker          BrokerConfig   `json:"destination_broker"`
	JSONSchema                 string         `json:"json_schema"`
	ConfigFile                 string         `json:"config"`
	CloudEvent                 map[string]any `json:"cloud_event"`
	ValidationRules            map[string]any `json:"validation_rules"`
	ApplyGlobalValidationRules bool           `json:"apply_global_validation_rules"`
	MaxPayloadSizeBytes        int            `json:"max_payload_size_bytes"`
	ThreadIntervalSec          float64        `json:"thread_interval_sec"`
	DataTypes                  []string       `json:"data_types"`
	PopulateCEAttributes       []string       `json:"populate_ce_attributes"`
	DeviceIDAttributeName      string         `json:"device_id_attribute_name"`
}

// BrokerConfig selects and parameterizes a transport variant.
type BrokerConfig struct {
	Class                 string         `json:"class"`
	Topic                 any            `json:"topic"`
	HasCloudEvent         bool           `json:"has_cloud_event"`
	ThrottleMaxMessageSec *int           `json:"throttle_max_message_sec"`
	ThrottleSleepSec      *float64       `json:"throttle_sleep_sec"`
	MQTT                  *MQTTConfig    `json:"mqtt"`
	IoTEdge               *IoTEdgeConfig `json:"iotedge"`
	IoTHub                *IoTHubConfig  `json:"iothub"`
}

// Topics normalizes the topic field, which may be a single string or a list.
func (b *BrokerConfig) Topics() []string {
	switch t := b.Topic.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	}
	return nil
}

// MQTTConfig parameterizes the local MQTT broker binding.
type MQTTConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	KeepaliveSec int    `json:"keepalive_sec"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	CACerts      string `json:"ca_certs"`
	CertFile     string `json:"certfile"`
	KeyFile      string `json:"keyfile"`
	ClientID     string `json:"client_id"`
	DeviceID     string `json:"device_id"`
	QoS          byte   `json:"qos"`
	Retain       bool   `json:"retain"`
}

// IoTEdgeConfig parameterizes the edge module binding.
type IoTEdgeConfig struct {
	EnableDirectMethod bool   `json:"enable_direct_method"`
	DirectMethodName   string `json:"direct_method_name"`
}

// IoTHubConfig parameterizes the cloud-side service binding.
type IoTHubConfig struct {
	DirectMethodName     string  `json:"direct_method_name"`
	ConnectionTimeoutSec float64 `json:"connection_timeout_sec"`
	ResponseTimeoutSec   float64 `json:"response_timeout_sec"`
}

// Load reads and decodes the main configuration file. The legacy "sources"
// key is accepted and appended to Pipelines.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}
	cfg.Pipelines = append(cfg.Pipelines, cfg.Sources...)
	cfg.Sources = nil

	for i := range cfg.Pipelines {
		p := &cfg.Pipelines[i]
		if p.Name == "" {
			return nil, fmt.Errorf("pipeline %d: missing name", i)
		}
		if p.Class == "" {
			return nil, fmt.Errorf("pipeline %q: missing class", p.Name)
		}
		if p.ThreadIntervalSec <= 0 {
			p.ThreadIntervalSec = 1
		}
	}
	return &cfg, nil
}

// WatchedFiles returns the set of files whose change should trigger a full
// pipeline rebuild: the main config plus each pipeline's schema and config
// files when present.
func (c *Config) WatchedFiles(mainPath string) []string {
	files := []string{mainPath}
	for _, p := range c.Pipelines {
		if p.JSONSchema != "" {
			files = append(files, p.JSONSchema)
		}
		if p.ConfigFile != "" {
			files = append(files, p.ConfigFile)
		}
	}
	return files
}
