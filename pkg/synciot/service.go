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

package synciot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/hub"
)

// eventStore is the database surface the service needs; Store implements it.
type eventStore interface {
	InsertEvent(ctx context.Context, table, device, id string, epoch int64, raw []byte) error
	ReadCheckpoint(ctx context.Context, table, key string) (int64, error)
	SaveCheckpoint(ctx context.Context, table, key string, epoch int64) error
}

// Service routes hub events into PostgreSQL and keeps a resume checkpoint.
type Service struct {
	logger log.Logger
	cfg    *Config
	store  eventStore

	events chan hub.Event

	mtx            sync.Mutex
	eventCount     uint64
	lastEventTime  time.Time
	lastCheckpoint time.Time

	now func() time.Time
}

func NewService(logger log.Logger, cfg *Config, store eventStore) *Service {
	return &Service{
		logger: logger,
		cfg:    cfg,
		store:  store,
		events: make(chan hub.Event, MaxQueueSize),
		now:    time.Now,
	}
}

// HandleEvent enqueues one event without blocking the hub subscription; when
// the buffer is full the event is dropped.
func (s *Service) HandleEvent(ev hub.Event) {
	select {
	case s.events <- ev:
	default:
		level.Warn(s.logger).Log("msg", "event queue full, dropping event", "device", ev.DeviceID)
	}
}

// StartPosition resolves where to resume reading the hub event stream: the
// stored checkpoint, or a short backlog from now on first start.
func (s *Service) StartPosition(ctx context.Context) (time.Time, error) {
	epoch, err := s.store.ReadCheckpoint(ctx, s.cfg.PG.ConfigTable, s.cfg.PG.ConfigKey)
	if err != nil {
		return time.Time{}, err
	}
	if epoch == 0 {
		epoch = s.now().Unix() - BacklogIntervalSec
	}
	return time.Unix(epoch, 0).UTC(), nil
}

// Run consumes queued events until the context is canceled, checkpointing
// periodically.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.PG.UpdateConfigIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.checkpoint(context.Background())
			return ctx.Err()
		case <-ticker.C:
			s.checkpoint(ctx)
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Service) handle(ctx context.Context, ev hub.Event) {
	var ce map[string]any
	if err := json.Unmarshal(ev.Payload, &ce); err != nil {
		level.Warn(s.logger).Log("msg", "event is not a json object", "device", ev.DeviceID, "err", err)
		return
	}
	if _, ok := ce["data"]; !ok {
		level.Warn(s.logger).Log("msg", "event has no data field", "device", ev.DeviceID)
		return
	}
	id, _ := ce["id"].(string)
	if id == "" {
		level.Warn(s.logger).Log("msg", "event has no id field", "device", ev.DeviceID)
		return
	}
	device, _ := ce["source"].(string)
	if device == "" {
		level.Warn(s.logger).Log("msg", "event has no source field", "device", ev.DeviceID)
		return
	}

	eventTime := s.now()
	if tm, _ := ce["time"].(string); tm != "" {
		if parsed, err := time.Parse(time.RFC3339, tm); err == nil {
			eventTime = parsed
		} else {
			level.Warn(s.logger).Log("msg", "unparseable event time", "device", device, "time", tm)
		}
	}

	table, action := s.resolveRoute(ce)
	if table == "" {
		level.Warn(s.logger).Log("msg", "event matches no route", "device", device, "id", id)
		return
	}
	if action != DefaultAction {
		level.Error(s.logger).Log("msg", "unknown route action", "action", action, "table", table)
		return
	}
	if err := s.store.InsertEvent(ctx, table, device, id, s.now().Unix(), ev.Payload); err != nil {
		level.Error(s.logger).Log("msg", "insert failed", "table", table, "device", device, "err", err)
		return
	}

	s.mtx.Lock()
	s.eventCount++
	s.lastEventTime = eventTime
	count := s.eventCount
	s.mtx.Unlock()
	if count%50 == 0 {
		level.Info(s.logger).Log("msg", "events processed", "count", count)
	}
}

// resolveRoute finds the first route whose filters all match and returns the
// schema-qualified table and action, falling back to the configured defaults.
func (s *Service) resolveRoute(ce map[string]any) (string, string) {
	schema := s.cfg.PG.DefaultSchema
	table := s.cfg.PG.DefaultTable
	action := DefaultAction

	for i := range s.cfg.Routes {
		route := &s.cfg.Routes[i]
		if len(route.Filters) == 0 {
			continue
		}
		match := true
		for _, f := range route.Filters {
			if f.Attribute == "" || f.Value == nil || ce[f.Attribute] != f.Value {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if route.Schema != "" {
			schema = route.Schema
		}
		if route.Table != "" {
			table = route.Table
		}
		if route.Action != "" {
			action = route.Action
		}
		break
	}
	if schema == "" || table == "" {
		return "", ""
	}
	return fmt.Sprintf("%s.%s", schema, table), action
}

func (s *Service) checkpoint(ctx context.Context) {
	s.mtx.Lock()
	last := s.lastEventTime
	s.mtx.Unlock()
	if last.IsZero() {
		last = s.now()
	}
	epoch := last.Unix() - BacklogIntervalSec
	if err := s.store.SaveCheckpoint(ctx, s.cfg.PG.ConfigTable, s.cfg.PG.ConfigKey, epoch); err != nil {
		level.Error(s.logger).Log("msg", "saving checkpoint failed", "err", err)
		return
	}
	s.mtx.Lock()
	s.lastCheckpoint = s.now()
	s.mtx.Unlock()
}

// Stats reports the processed event count and the last event time for the
// status page.
func (s *Service) Stats() (uint64, time.Time) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.eventCount, s.lastEventTime
}
