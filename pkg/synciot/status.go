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
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type statusResponse struct {
	EventCount    uint64 `json:"event_count"`
	LastEventTime string `json:"last_event_time"`
	Version       string `json:"version"`
}

// NewStatusHandler serves the service status as JSON on the root path.
func NewStatusHandler(svc *Service, version string) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		count, last := svc.Stats()
		resp := statusResponse{
			EventCount: count,
			Version:    version,
		}
		if last.IsZero() {
			resp.LastEventTime = "No events received yet"
		} else {
			resp.LastEventTime = last.UTC().Format(time.RFC3339)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}).Methods(http.MethodGet)
	return router
}
