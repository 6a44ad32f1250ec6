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
	"context"

	"github.com/dangeroushobo/iothub/iotdevice"
	iotdevicemqtt "github.com/dangeroushobo/iothub/iotdevice/transport/mqtt"
)

// sdkDeviceClient adapts the iothub device client to the deviceClient
// interface.
type sdkDeviceClient struct {
	c *iotdevice.Client
}

func newSDKDeviceClient(connString string) (deviceClient, error) {
	c, err := iotdevice.NewFromConnectionString(iotdevicemqtt.New(), connString)
	if err != nil {
		return nil, err
	}
	return &sdkDeviceClient{c: c}, nil
}

func (s *sdkDeviceClient) Connect(ctx context.Context) error {
	return s.c.Connect(ctx)
}

func (s *sdkDeviceClient) SendEvent(ctx context.Context, payload []byte, props map[string]string) error {
	if len(props) > 0 {
		return s.c.SendEvent(ctx, payload, iotdevice.WithSendProperties(props))
	}
	return s.c.SendEvent(ctx, payload)
}

func (s *sdkDeviceClient) SubscribeEvents(ctx context.Context) (<-chan InboundEvent, error) {
	sub, err := s.c.SubscribeEvents(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan InboundEvent)
	go func() {
		defer close(out)
		for msg := range sub.C() {
			out <- InboundEvent{
				Topic:   msg.To,
				Payload: msg.Payload,
				Props:   msg.Properties,
			}
		}
	}()
	return out, nil
}

func (s *sdkDeviceClient) DeviceID() string {
	return s.c.DeviceID()
}

func (s *sdkDeviceClient) Close() error {
	return s.c.Close()
}
