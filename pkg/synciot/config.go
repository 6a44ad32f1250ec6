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

// Package synciot mirrors device-to-cloud events from an IoT hub into a
// PostgreSQL database, routed by CloudEvent attribute filters.
package synciot

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Defaults, overridable through the configuration file or environment.
const (
	DefaultConfigTable             = "public.synciot_config"
	DefaultConfigKey               = "synciot_config"
	DefaultUpdateConfigIntervalSec = 300
	DefaultAction                  = "insert"

	// MaxQueueSize bounds the inbound event buffer; events beyond it are
	// dropped with a log line.
	MaxQueueSize = 900

	// BacklogIntervalSec is subtracted from the checkpoint so that a restart
	// re-reads a short overlap instead of losing in-flight events.
	BacklogIntervalSec = 30
)

// IoTHubConfig is the event source connection.
type IoTHubConfig struct {
	ConnectionString string `json:"connection_string"`
	ConsumerGroup    string `json:"consumer_group"`
}

// PGConfig is the PostgreSQL destination, including the checkpoint table and
// the default insert target.
type PGConfig struct {
	Host                    string `json:"host"`
	Port                    int    `json:"port"`
	Database                string `json:"database"`
	User                    string `json:"user"`
	Password                string `json:"password"`
	SSLMode                 string `json:"sslmode"`
	ConfigTable             string `json:"config_table"`
	ConfigKey               string `json:"config_key"`
	UpdateConfigIntervalSec int    `json:"update_config_interval_sec"`
	DefaultSchema           string `json:"default_schema"`
	DefaultTable            string `json:"default_table"`
}

// Filter matches one CloudEvent attribute against a literal value.
type Filter struct {
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

// Route sends matching events to a schema-qualified table. All filters must
// match.
type Route struct {
	Filters []Filter `json:"filters"`
	Schema  string   `json:"schema"`
	Table   string   `json:"table"`
	Action  string   `json:"action"`
}

// Config is the synciot.json file. One configuration per IoT hub.
type Config struct {
	IoTHub          IoTHubConfig `json:"iothub"`
	PostgreSQL      *PGConfig    `json:"postgresql"`
	PostgreSQLLocal *PGConfig    `json:"postgresql_local"`
	Routes          []Route      `json:"routes"`

	// PG is the selected database config after Load.
	PG *PGConfig `json:"-"`
}

// Load reads the configuration file, selects the cloud-hosted or local
// database section and applies the environment overrides. Secrets only come
// from the environment.
func Load(path string, cloudHosted bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if cloudHosted {
		cfg.PG = cfg.PostgreSQL
	} else {
		cfg.PG = cfg.PostgreSQLLocal
	}
	if cfg.PG == nil {
		return nil, fmt.Errorf("config %q: missing postgresql section", path)
	}
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("config %q: missing routes", path)
	}
	if cfg.PG.ConfigTable == "" {
		cfg.PG.ConfigTable = DefaultConfigTable
	}
	if cfg.PG.ConfigKey == "" {
		cfg.PG.ConfigKey = DefaultConfigKey
	}
	if cfg.PG.UpdateConfigIntervalSec <= 0 {
		cfg.PG.UpdateConfigIntervalSec = DefaultUpdateConfigIntervalSec
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	cs := os.Getenv("AZURE_IOTHUB_CONNECTION_STRING")
	if cs == "" {
		return fmt.Errorf("AZURE_IOTHUB_CONNECTION_STRING is not set")
	}
	c.IoTHub.ConnectionString = cs
	if v := os.Getenv("AZURE_IOTHUB_CONSUMER_GROUP"); v != "" {
		c.IoTHub.ConsumerGroup = v
	}
	if v := os.Getenv("AZURE_POSTGRESQL_HOST"); v != "" {
		c.PG.Host = v
	}
	if v := os.Getenv("AZURE_POSTGRESQL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AZURE_POSTGRESQL_PORT: %w", err)
		}
		c.PG.Port = port
	}
	if v := os.Getenv("AZURE_POSTGRESQL_DATABASE"); v != "" {
		c.PG.Database = v
	}
	user := os.Getenv("AZURE_POSTGRESQL_USERNAME")
	if user == "" {
		return fmt.Errorf("AZURE_POSTGRESQL_USERNAME is not set")
	}
	c.PG.User = user
	password := os.Getenv("AZURE_POSTGRESQL_PASSWORD")
	if password == "" {
		return fmt.Errorf("AZURE_POSTGRESQL_PASSWORD is not set")
	}
	c.PG.Password = password
	sslmode := os.Getenv("AZURE_POSTGRESQL_SSLMODE")
	if sslmode == "" {
		return fmt.Errorf("AZURE_POSTGRESQL_SSLMODE is not set")
	}
	c.PG.SSLMode = sslmode
	return nil
}
