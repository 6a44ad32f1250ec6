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

// Package pipeline wires one source transport, one processor and one
// destination transport together and drives messages between them.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/processor"
	"github.com/edgewatt/zeppelin/pkg/queue"
	"github.com/edgewatt/zeppelin/pkg/transport"
)

// Runner owns the resources of a single configured pipeline.
type Runner struct {
	logger log.Logger
	cfg    *config.PipelineConfig

	source transport.Transport
	dest   transport.Transport
	proc   processor.Processor
	queue  *queue.Queue

	interval time.Duration

	mtx     sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// New builds a runner from its pipeline configuration. Transport and
// processor construction failures are returned, not retried: a pipeline
// that cannot be built fails service startup.
func New(logger log.Logger, global *config.Config, cfg *config.PipelineConfig, m *metrics.Metrics) (*Runner, error) {
	logger = log.With(logger, "pipeline", cfg.Name)

	source := transport.New(logger, &cfg.SourceBroker)
	if source == nil {
		return nil, fmt.Errorf("pipeline %q: cannot build source transport %q", cfg.Name, cfg.SourceBroker.Class)
	}
	dest := transport.New(logger, &cfg.DestinationBroker)
	if dest == nil {
		return nil, fmt.Errorf("pipeline %q: cannot build destination transport %q", cfg.Name, cfg.DestinationBroker.Class)
	}
	source.SetMetrics(m)
	dest.SetMetrics(m)

	proc, err := processor.New(logger, global, cfg, m, dest, source.DeviceID())
	if err != nil {
		return nil, err
	}

	interval := time.Duration(cfg.ThreadIntervalSec * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}
	return &Runner{
		logger:   logger,
		cfg:      cfg,
		source:   source,
		dest:     dest,
		proc:     proc,
		queue:    queue.New(),
		interval: interval,
	}, nil
}

// Name returns the configured pipeline name.
func (r *Runner) Name() string { return r.cfg.Name }

// Start subscribes the source transport and launches the processing loop.
// It returns false when the subscription fails.
func (r *Runner) Start() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.started {
		return true
	}
	if !r.source.StartListening(r.cfg.SourceBroker.Topics(), r.queue) {
		level.Error(r.logger).Log("msg", "source transport failed to start listening")
		return false
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.started = true
	go r.loop(r.stopCh, r.doneCh)
	level.Info(r.logger).Log("msg", "pipeline started", "class", r.cfg.Class)
	return true
}

// loop drains the inbound queue completely on each tick.
func (r *Runner) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			r.drain()
			return
		case <-ticker.C:
			r.drain()
		}
	}
}

func (r *Runner) drain() {
	for {
		msg, ok := r.queue.Pop()
		if !ok {
			return
		}
		r.proc.Process(msg)
	}
}

// Stop terminates the processing loop and disconnects both transports. It is
// idempotent and waits for the loop to finish draining.
func (r *Runner) Stop() {
	r.mtx.Lock()
	if !r.started {
		r.mtx.Unlock()
		return
	}
	r.started = false
	close(r.stopCh)
	doneCh := r.doneCh
	r.mtx.Unlock()

	<-doneCh
	r.source.Disconnect()
	r.dest.Disconnect()
	level.Info(r.logger).Log("msg", "pipeline stopped")
}

// Manager builds and supervises the runner set for one loaded configuration.
// On configuration change the caller stops the manager and builds a new one.
type Manager struct {
	logger  log.Logger
	metrics *metrics.Metrics
	runners []*Runner
}

// NewManager constructs all runners for the configuration. Any pipeline that
// cannot be built fails the whole set.
func NewManager(logger log.Logger, cfg *config.Config, m *metrics.Metrics) (*Manager, error) {
	mgr := &Manager{logger: logger, metrics: m}
	for i := range cfg.Pipelines {
		r, err := New(logger, cfg, &cfg.Pipelines[i], m)
		if err != nil {
			return nil, err
		}
		mgr.runners = append(mgr.runners, r)
	}
	return mgr, nil
}

// Start starts every runner. The first failure stops the already started
// runners and reports the failing pipeline.
func (m *Manager) Start() error {
	for i, r := range m.runners {
		if !r.Start() {
			for _, started := range m.runners[:i] {
				started.Stop()
			}
			return fmt.Errorf("pipeline %q failed to start", r.Name())
		}
	}
	return nil
}

// Stop stops every runner.
func (m *Manager) Stop() {
	for _, r := range m.runners {
		r.Stop()
	}
}

// Runners exposes the managed runner set.
func (m *Manager) Runners() []*Runner { return m.runners }
