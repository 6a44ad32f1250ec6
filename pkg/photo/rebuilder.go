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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/hub"
	"github.com/edgewatt/zeppelin/pkg/storage"
)

// Rebuilder consumes block messages, assembles complete photos and persists
// them.
type Rebuilder struct {
	logger    log.Logger
	states    *StateManager
	objects   storage.ObjectStore
	analytics storage.AnalyticsStore

	now func() time.Time
}

func NewRebuilder(logger log.Logger, states *StateManager, objects storage.ObjectStore, analytics storage.AnalyticsStore) *Rebuilder {
	return &Rebuilder{
		logger:    logger,
		states:    states,
		objects:   objects,
		analytics: analytics,
		now:       time.Now,
	}
}

// HandleEvent processes one device-to-cloud event. Expired photos are swept
// on every event; non-block messages are ignored.
func (r *Rebuilder) HandleEvent(ctx context.Context, ev hub.Event) {
	for _, key := range r.states.Sweep() {
		level.Warn(r.logger).Log("msg", "discarding incomplete photo", "key", key)
	}

	block, err := Parse(ev.Payload)
	if err != nil {
		if !errors.Is(err, ErrNotBlockMessage) {
			level.Warn(r.logger).Log("msg", "unparseable block message", "device", ev.DeviceID, "err", err)
		}
		return
	}

	if block.Init {
		r.states.Init(ev.DeviceID, block.Camera, block.TotalBlocks, ev.EnqueuedTime)
		level.Debug(r.logger).Log("msg", "photo started", "device", ev.DeviceID, "camera", block.Camera, "total_blocks", block.TotalBlocks)
		return
	}

	state, complete := r.states.AddBlock(ev.DeviceID, block.Camera, ev.EnqueuedTime, block.Number, block.Size, block.Data)
	if state == nil {
		level.Warn(r.logger).Log("msg", "block without matching photo", "device", ev.DeviceID, "camera", block.Camera, "block", block.Number)
		return
	}
	if !complete {
		return
	}
	// The state stays in place until both stores succeed; a persistence
	// failure leaves it for the sweeper.
	if err := r.persist(ctx, state); err != nil {
		level.Error(r.logger).Log("msg", "persisting photo failed", "key", state.Key, "err", err)
		return
	}
	r.states.Remove(state.Key)
}

func (r *Rebuilder) persist(ctx context.Context, state *PhotoState) error {
	data := state.SortedData()
	name := blobName(state)
	url, err := r.objects.Put(ctx, name, data, map[string]string{
		"device_id":   state.DeviceID,
		"camera_type": state.Camera,
		"timestamp":   state.FirstSeen.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	row := storage.PhotoRow{
		DeviceID:      state.DeviceID,
		CameraType:    state.Camera,
		Timestamp:     state.FirstSeen.UTC(),
		BlobURL:       url,
		TotalBlocks:   state.TotalBlocks,
		FileSize:      len(data),
		IngestionTime: r.now().UTC(),
	}
	if err := r.analytics.InsertRow(ctx, row); err != nil {
		return err
	}
	level.Info(r.logger).Log("msg", "photo persisted", "key", state.Key, "blob", name, "bytes", len(data))
	return nil
}

// blobName lays photos out by device and date:
// {device}/{YYYY}/{MM}/{DD}/{camera}_{HHMMSS}_{epoch-ms}.jpg
func blobName(state *PhotoState) string {
	ts := state.FirstSeen.UTC()
	return fmt.Sprintf("%s/%s/%s_%s_%d.jpg",
		state.DeviceID,
		ts.Format("2006/01/02"),
		state.Camera,
		ts.Format("150405"),
		ts.UnixMilli(),
	)
}
