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

package config

import (
	"os"
	"time"
)

type fileStat struct {
	exists bool
	size   int64
	mtime  time.Time
}

// Watcher detects changes to a fixed set of files by re-statting them and
// comparing (size, mtime). Deliberately poll-based: the config volume may be
// a bind mount where inotify events are unreliable.
type Watcher struct {
	files map[string]fileStat
}

// NewWatcher records the current stat of each path as the baseline.
func NewWatcher(paths ...string) *Watcher {
	w := &Watcher{files: make(map[string]fileStat, len(paths))}
	for _, p := range paths {
		w.files[p] = statFile(p)
	}
	return w
}

// IsModified re-stats all watched files and reports whether any changed
// since the last call. The new stats become the next baseline.
func (w *Watcher) IsModified() bool {
	modified := false
	for p, prev := range w.files {
		cur := statFile(p)
		if cur != prev {
			modified = true
			w.files[p] = cur
		}
	}
	return modified
}

func statFile(path string) fileStat {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStat{}
	}
	return fileStat{exists: true, size: fi.Size(), mtime: fi.ModTime()}
}
