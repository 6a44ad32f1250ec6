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

// Package hub consumes device-to-cloud events from an IoT hub's built-in
// event endpoint.
package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	connectMaxRetry = 10
	connectInterval = 5 * time.Second
)

// Event is one device-to-cloud message.
type Event struct {
	DeviceID     string
	EnqueuedTime time.Time
	Payload      []byte
	Properties   map[string]string
}

// Handler consumes one event. A handler error is logged, not fatal: the
// subscription keeps running.
type Handler func(Event)

// eventSource is the hub client surface the listener needs. The SDK-backed
// implementation lives in hub_sdk.go.
type eventSource interface {
	Subscribe(ctx context.Context, fn func(Event)) error
	Close() error
}

// Listener maintains a subscription to the hub's event endpoint and invokes
// the handler for every event.
type Listener struct {
	logger  log.Logger
	source  eventSource
	handler Handler
}

// newSource is swapped by tests.
var newSource = func(connString string) (eventSource, error) {
	return newSDKEventSource(connString)
}

// NewListener connects to the hub, retrying with a bounded backoff like the
// edge transports do.
func NewListener(logger log.Logger, connString string, handler Handler) (*Listener, error) {
	if connString == "" {
		return nil, fmt.Errorf("hub connection string is empty")
	}
	var (
		source eventSource
		err    error
	)
	for i := 0; i < connectMaxRetry; i++ {
		source, err = newSource(connString)
		if err == nil {
			break
		}
		level.Warn(logger).Log("msg", "hub connection failed, retrying", "attempt", i+1, "err", err)
		time.Sleep(connectInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to hub: %w", err)
	}
	return &Listener{logger: logger, source: source, handler: handler}, nil
}

// Run blocks consuming events until the context is canceled or the
// subscription fails.
func (l *Listener) Run(ctx context.Context) error {
	level.Info(l.logger).Log("msg", "subscribing to hub events")
	err := l.source.Subscribe(ctx, func(ev Event) {
		l.handler(ev)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close releases the hub connection.
func (l *Listener) Close() error {
	return l.source.Close()
}
