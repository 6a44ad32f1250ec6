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

// Package throttle rate-limits inbound message handling. The limiter keeps
// one bucket per wall-clock second and sleeps the calling goroutine when the
// bucket reaches its cap, so backpressure lands on the broker receive path.
package throttle

import (
	"sync"
	"time"

	"github.com/edgewatt/zeppelin/pkg/metrics"
)

const (
	DefaultMaxMsgSec = 10
	DefaultSleepSec  = 1.0
)

type Throttle struct {
	mtx       sync.Mutex
	maxMsgSec int
	sleepSec  float64
	second    int64
	count     int
	metrics   *metrics.Metrics

	// Injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

func New() *Throttle {
	return &Throttle{
		maxMsgSec: DefaultMaxMsgSec,
		sleepSec:  DefaultSleepSec,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Admit accounts one message against the current second's bucket. When the
// bucket has reached the cap, Admit sleeps the configured duration before
// returning and reports true so callers can observe that they were paused.
func (t *Throttle) Admit() bool {
	t.mtx.Lock()

	sec := t.now().Unix()
	if sec != t.second {
		t.second = sec
		t.count = 0
	}
	t.count++
	if t.count <= t.maxMsgSec {
		t.mtx.Unlock()
		return false
	}
	sleepSec := t.sleepSec
	m := t.metrics
	// Release the lock before sleeping so concurrent setters don't stall.
	t.mtx.Unlock()

	m.IncCounter(metrics.ThrottleTotal)
	t.sleep(time.Duration(sleepSec * float64(time.Second)))
	return true
}

func (t *Throttle) SetMaxMsgSec(n int) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.maxMsgSec = n
}

func (t *Throttle) SetSleepSec(s float64) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.sleepSec = s
}

func (t *Throttle) SetMetrics(m *metrics.Metrics) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.metrics = m
}
