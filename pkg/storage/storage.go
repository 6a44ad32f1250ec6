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

// Package storage persists reassembled photos: the binary artifact goes to
// an object store and a metadata row to an analytics store.
package storage

import (
	"context"
	"time"
)

// ObjectStore stores a named binary object and returns its URL.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error)
}

// PhotoRow is the analytics record written for each persisted photo.
type PhotoRow struct {
	DeviceID      string    `json:"DeviceId"`
	CameraType    string    `json:"CameraType"`
	Timestamp     time.Time `json:"Timestamp"`
	BlobURL       string    `json:"BlobUrl"`
	TotalBlocks   int       `json:"TotalBlocks"`
	FileSize      int       `json:"FileSize"`
	IngestionTime time.Time `json:"IngestionTime"`
}

// AnalyticsStore records photo metadata rows.
type AnalyticsStore interface {
	InsertRow(ctx context.Context, row PhotoRow) error
}
