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

// Package processor implements the per-pipeline message stage: assess,
// validate, normalize and republish. Variants share a Core and override
// individual stage hooks.
package processor

import (
	"os"
	"slices"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/queue"
	"github.com/edgewatt/zeppelin/pkg/rules"
	"github.com/edgewatt/zeppelin/pkg/transport"
)

// Processor consumes one inbound message, accounting it in the
// valid/invalid/error counters. It never propagates a failure to the
// pipeline loop.
type Processor interface {
	Process(msg queue.Message)
}

// stages are the variant hooks invoked by Core.Process in order. Core
// provides the default behavior for each; variants embed Core and override.
type stages interface {
	assess(e *envelope) bool
	validate(e *envelope) bool
	normalize(e *envelope) bool
	destinationTopic(e *envelope) string
	finalize(e *envelope) (any, *transport.PubOptions)
}

// envelope is the working state for one message on its way through the
// stages.
type envelope struct {
	msg        queue.Message
	payload    map[string]any // inbound payload when it is a JSON object
	env        map[string]any // outbound envelope under construction
	data       any            // extracted data or data_base64 value
	base64     bool
	compressed bool
}

// Core holds the state shared by all processor variants and implements the
// default stage behavior.
type Core struct {
	logger  log.Logger
	metrics *metrics.Metrics
	cfg     *config.PipelineConfig
	rules   *rules.Engine
	schema  *gojsonschema.Schema
	dest    transport.Transport

	deviceID       string
	destTopic      string
	expectEnvelope bool

	hooks stages

	// Injectable for tests.
	now   func() time.Time
	newID func() string
}

func newCore(logger log.Logger, global *config.Config, cfg *config.PipelineConfig, m *metrics.Metrics, dest transport.Transport, deviceID string) (*Core, error) {
	c := &Core{
		logger:         logger,
		metrics:        m,
		cfg:            cfg,
		dest:           dest,
		deviceID:       deviceID,
		expectEnvelope: cfg.SourceBroker.HasCloudEvent,
		now:            time.Now,
		newID:          func() string { return uuid.NewString() },
	}
	var globalRules map[string]any
	if global != nil {
		globalRules = global.GlobalValidationRules
	}
	c.rules = rules.NewEngine(rules.Merge(globalRules, cfg.ValidationRules, cfg.ApplyGlobalValidationRules))

	if cfg.JSONSchema != "" {
		b, err := os.ReadFile(cfg.JSONSchema)
		if err != nil {
			return nil, err
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
		if err != nil {
			return nil, err
		}
		c.schema = schema
	}
	if topics := cfg.DestinationBroker.Topics(); len(topics) > 0 {
		c.destTopic = topics[0]
	}
	c.hooks = c
	return c, nil
}

// Process runs the canonical stage flow for one inbound message.
func (c *Core) Process(msg queue.Message) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(c.logger).Log("msg", "processing panicked", "pipeline", c.cfg.Name, "panic", r)
			c.metrics.IncCounter(metrics.RxMessageError)
		}
	}()
	c.metrics.IncCounter(metrics.RxMessageTotal)

	if c.cfg.MaxPayloadSizeBytes > 0 && msg.Size > c.cfg.MaxPayloadSizeBytes {
		level.Warn(c.logger).Log("msg", "payload over size", "pipeline", c.cfg.Name, "size", msg.Size, "max", c.cfg.MaxPayloadSizeBytes)
		c.metrics.IncCounter(metrics.RxMessageInvalid)
		c.metrics.IncCounter(metrics.RxMessageOverSize)
		return
	}

	e, ok := c.newEnvelope(msg)
	if !ok || !c.hooks.assess(e) || !c.hooks.validate(e) || !c.hooks.normalize(e) {
		c.metrics.IncCounter(metrics.RxMessageInvalid)
		return
	}

	topic := c.hooks.destinationTopic(e)
	if topic == "" {
		level.Warn(c.logger).Log("msg", "no destination topic", "pipeline", c.cfg.Name)
		c.metrics.IncCounter(metrics.RxMessageInvalid)
		return
	}
	payload, opts := c.hooks.finalize(e)
	if payload == nil {
		level.Warn(c.logger).Log("msg", "nothing to publish", "pipeline", c.cfg.Name)
		c.metrics.IncCounter(metrics.RxMessageError)
		return
	}
	c.metrics.IncCounter(metrics.RxMessageValid)
	if c.dest.PublishOpts(topic, payload, opts) {
		c.metrics.IncCounter(metrics.TxMessageTotal)
	}
}

// newEnvelope builds the working envelope: the pipeline's cloud_event
// template overlaid with the inbound envelope attributes, which are carried
// through verbatim. Without an inbound envelope the source is the device id.
func (c *Core) newEnvelope(msg queue.Message) (*envelope, bool) {
	e := &envelope{msg: msg, env: map[string]any{}}
	for k, v := range c.cfg.CloudEvent {
		e.env[k] = v
	}
	if m, ok := msg.Payload.(map[string]any); ok {
		e.payload = m
	}
	if c.expectEnvelope {
		if e.payload == nil {
			level.Warn(c.logger).Log("msg", "expected cloud event object", "pipeline", c.cfg.Name)
			return nil, false
		}
		for k, v := range e.payload {
			if k == "data" || k == "data_base64" {
				continue
			}
			e.env[k] = v
		}
		if comp, ok := e.payload["compressed"].(bool); ok && comp {
			e.compressed = true
		}
		_, e.base64 = e.payload["data_base64"]
	} else {
		e.env["source"] = c.deviceID
	}
	return e, true
}

// assess is the default assessment: when an envelope is expected, its
// specversion must be 1.0.
func (c *Core) assess(e *envelope) bool {
	if c.expectEnvelope {
		if sv, _ := e.payload["specversion"].(string); sv != "1.0" {
			level.Warn(c.logger).Log("msg", "unsupported specversion", "pipeline", c.cfg.Name, "specversion", sv)
			return false
		}
	}
	return true
}

// typeAllowed checks the envelope type against the pipeline's data_types
// list, falling back to the variant's defaults. An empty list allows all.
func (c *Core) typeAllowed(e *envelope, defaults []string) bool {
	allowed := c.cfg.DataTypes
	if len(allowed) == 0 {
		allowed = defaults
	}
	if len(allowed) == 0 {
		return true
	}
	typ, _ := e.payload["type"].(string)
	if !slices.Contains(allowed, typ) {
		level.Warn(c.logger).Log("msg", "type not allowed", "pipeline", c.cfg.Name, "type", typ)
		return false
	}
	return true
}

// validate applies the JSON schema when configured, extracts the data field
// and enforces the content-type constraints.
func (c *Core) validate(e *envelope) bool {
	if c.schema != nil {
		res, err := c.schema.Validate(gojsonschema.NewGoLoader(e.msg.Payload))
		if err != nil {
			level.Warn(c.logger).Log("msg", "schema validation error", "pipeline", c.cfg.Name, "err", err)
			return false
		}
		if !res.Valid() {
			level.Warn(c.logger).Log("msg", "schema violation", "pipeline", c.cfg.Name, "violation", res.Errors()[0].String())
			return false
		}
	}
	if e.payload != nil && c.expectEnvelope {
		if e.base64 {
			e.data = e.payload["data_base64"]
		} else {
			e.data = e.payload["data"]
		}
	} else {
		e.data = e.msg.Payload
	}
	if e.data == nil {
		level.Warn(c.logger).Log("msg", "no data", "pipeline", c.cfg.Name)
		return false
	}

	if e.compressed || e.base64 {
		if _, ok := e.data.(string); !ok {
			level.Warn(c.logger).Log("msg", "compressed or base64 data must be a string", "pipeline", c.cfg.Name)
			return false
		}
		return true
	}
	if c.contentType(e) == "application/json" && c.expectEnvelope {
		if _, ok := e.data.(map[string]any); !ok {
			level.Warn(c.logger).Log("msg", "json data must be an object", "pipeline", c.cfg.Name)
			return false
		}
	}
	return true
}

func (c *Core) contentType(e *envelope) string {
	if e.payload != nil {
		if ct, ok := e.payload["datacontenttype"].(string); ok && ct != "" {
			return ct
		}
	}
	ct, _ := c.cfg.CloudEvent["datacontenttype"].(string)
	return ct
}

// normalize defaults to identity.
func (c *Core) normalize(*envelope) bool { return true }

func (c *Core) destinationTopic(*envelope) string { return c.destTopic }

// finalize builds the outbound CloudEvent: the carried envelope with a fresh
// id and time and the produced data.
func (c *Core) finalize(e *envelope) (any, *transport.PubOptions) {
	out := make(map[string]any, len(e.env)+4)
	for k, v := range e.env {
		out[k] = v
	}
	out["specversion"] = "1.0"
	out["id"] = c.newID()
	out["time"] = c.now().UTC().Format(time.RFC3339)
	if _, ok := out["datacontenttype"]; !ok {
		out["datacontenttype"] = "application/json"
	}
	if e.base64 {
		out["data_base64"] = e.data
	} else {
		out["data"] = e.data
	}
	return out, nil
}
