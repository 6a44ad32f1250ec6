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

// Package queue provides the unbounded FIFO that connects transports to
// pipeline runners. Transports push from their receive goroutines, the
// runner drains from its own.
package queue

import (
	"sync"
	"time"
)

// Message is one inbound broker message. Payload holds the JSON-decoded
// value when decoding succeeded, otherwise the raw payload string.
type Message struct {
	Topic    string
	Payload  any
	Size     int
	Received time.Time
	Props    map[string]string
}

const initialCapacity = 64

// Queue is a growable ring buffer guarded by a mutex. Pop is non-blocking;
// the consumer polls.
type Queue struct {
	mtx  sync.Mutex
	buf  []Message
	head int
	tail int
	len  int
}

func New() *Queue {
	return &Queue{buf: make([]Message, initialCapacity)}
}

func (q *Queue) Push(m Message) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.len == len(q.buf) {
		q.grow()
	}
	q.buf[q.tail] = m
	q.tail = (q.tail + 1) % len(q.buf)
	q.len++
}

// Pop removes and returns the oldest message. The second return value is
// false when the queue is empty.
func (q *Queue) Pop() (Message, bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.len == 0 {
		return Message{}, false
	}
	m := q.buf[q.head]
	q.buf[q.head] = Message{} // resetting makes debugging easier
	q.head = (q.head + 1) % len(q.buf)
	q.len--

	return m, true
}

func (q *Queue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.len
}

func (q *Queue) grow() {
	buf := make([]Message, 2*len(q.buf))
	for i := 0; i < q.len; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
	q.tail = q.len
}
