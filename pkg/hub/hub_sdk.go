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

package hub

import (
	"context"
	"time"

	"github.com/dangeroushobo/iothub/iotservice"
)

// sdkEventSource adapts the iotservice client to the eventSource interface.
type sdkEventSource struct {
	client *iotservice.Client
}

func newSDKEventSource(connString string) (*sdkEventSource, error) {
	c, err := iotservice.NewFromConnectionString(connString)
	if err != nil {
		return nil, err
	}
	return &sdkEventSource{client: c}, nil
}

func (s *sdkEventSource) Subscribe(ctx context.Context, fn func(Event)) error {
	return s.client.SubscribeEvents(ctx, func(msg *iotservice.Event) error {
		ev := Event{
			DeviceID:   msg.ConnectionDeviceID,
			Payload:    msg.Payload,
			Properties: msg.Properties,
		}
		if msg.EnqueuedTime != nil {
			ev.EnqueuedTime = *msg.EnqueuedTime
		} else {
			ev.EnqueuedTime = time.Now().UTC()
		}
		fn(ev)
		return nil
	})
}

func (s *sdkEventSource) Close() error {
	return s.client.Close()
}
