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

package photo

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout is how long an incomplete photo is kept after its init
// frame before the sweeper discards it.
const DefaultTimeout = 2 * time.Minute

// windowOffsets is the search order for the minute window a block belongs
// to: its own minute first, then outward.
var windowOffsets = []int{0, -1, 1, -2, 2}

type blockData struct {
	size int
	data []byte
}

// PhotoState accumulates the blocks of one in-flight photo.
type PhotoState struct {
	Key         string
	DeviceID    string
	Camera      string
	TotalBlocks int
	FirstSeen   time.Time

	blocks map[int]blockData
}

// Complete reports whether every declared block has arrived.
func (s *PhotoState) Complete() bool {
	return len(s.blocks) == s.TotalBlocks
}

// SortedData concatenates the block payloads in ascending block number.
func (s *PhotoState) SortedData() []byte {
	nums := make([]int, 0, len(s.blocks))
	size := 0
	for n, b := range s.blocks {
		nums = append(nums, n)
		size += len(b.data)
	}
	sort.Ints(nums)
	out := make([]byte, 0, size)
	for _, n := range nums {
		out = append(out, s.blocks[n].data...)
	}
	return out
}

// StateManager holds all in-flight photos, keyed by device, camera and
// minute window. One mutex guards the whole map.
type StateManager struct {
	mtx     sync.Mutex
	states  map[string]*PhotoState
	timeout time.Duration

	now func() time.Time
}

func NewStateManager(timeout time.Duration) *StateManager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &StateManager{
		states:  make(map[string]*PhotoState),
		timeout: timeout,
		now:     time.Now,
	}
}

func stateKey(device, camera string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%s", device, camera, ts.UTC().Format("2006-01-02T15:04:00"))
}

// Init creates the state for a new photo. A state already present under the
// same key wins: re-sent init frames are no-ops.
func (m *StateManager) Init(device, camera string, totalBlocks int, ts time.Time) {
	key := stateKey(device, camera, ts)
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if _, ok := m.states[key]; ok {
		return
	}
	m.states[key] = &PhotoState{
		Key:         key,
		DeviceID:    device,
		Camera:      camera,
		TotalBlocks: totalBlocks,
		FirstSeen:   ts,
		blocks:      make(map[int]blockData),
	}
}

// AddBlock stores one block in the matching state, searching the two-minute
// window on either side of the block's timestamp. Duplicate block numbers
// overwrite. It returns the state and whether the photo is now complete;
// a block with no matching state returns nil.
func (m *StateManager) AddBlock(device, camera string, ts time.Time, number, size int, data []byte) (*PhotoState, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for _, off := range windowOffsets {
		key := stateKey(device, camera, ts.Add(time.Duration(off)*time.Minute))
		s, ok := m.states[key]
		if !ok {
			continue
		}
		s.blocks[number] = blockData{size: size, data: data}
		return s, s.Complete()
	}
	return nil, false
}

// Remove deletes a state, typically after its photo has been persisted.
func (m *StateManager) Remove(key string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.states, key)
}

// Len reports the number of in-flight photos.
func (m *StateManager) Len() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.states)
}

// Sweep discards states older than the timeout and returns the discarded
// keys.
func (m *StateManager) Sweep() []string {
	now := m.now()
	m.mtx.Lock()
	defer m.mtx.Unlock()
	var expired []string
	for key, s := range m.states {
		if now.Sub(s.FirstSeen) > m.timeout {
			expired = append(expired, key)
			delete(m.states, key)
		}
	}
	return expired
}
