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

package transport

import (
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/queue"
)

// Void accepts every publish and listens on nothing. Used to drain a
// pipeline without a real destination and as a test double.
type Void struct{}

func NewVoid() *Void { return &Void{} }

func (*Void) Publish(string, any) bool                   { return true }
func (*Void) PublishOpts(string, any, *PubOptions) bool  { return true }
func (*Void) StartListening([]string, *queue.Queue) bool { return true }
func (*Void) Disconnect()                                {}
func (*Void) DeviceID() string                           { return "void" }
func (*Void) SetMetrics(*metrics.Metrics)                {}
func (*Void) SetMaxMsgSec(int)                           {}
func (*Void) SetSleepSec(float64)                        {}
