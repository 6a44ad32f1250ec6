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
	"encoding/json"
	"strings"

	"github.com/dangeroushobo/iothub/common"
	"github.com/dangeroushobo/iothub/iotmodule"
	iotmodulemqtt "github.com/dangeroushobo/iothub/iotmodule/transport/mqtt"
)

// sdkEdgeClient adapts the iothub module client to the edgeClient interface.
type sdkEdgeClient struct {
	c *iotmodule.Client
}

func newSDKEdgeClient() (edgeClient, error) {
	c, err := iotmodule.NewFromEnvironment(iotmodulemqtt.New(), true)
	if err != nil {
		return nil, err
	}
	return &sdkEdgeClient{c: c}, nil
}

func (s *sdkEdgeClient) Connect(ctx context.Context) error {
	return s.c.Connect(ctx)
}

func (s *sdkEdgeClient) SendEvent(ctx context.Context, output string, payload []byte, props map[string]string) error {
	opts := []iotmodule.SendOption{iotmodule.WithSendTo(output)}
	if len(props) > 0 {
		opts = append(opts, iotmodule.WithSendProperties(props))
	}
	return s.c.SendEvent(ctx, payload, opts...)
}

func (s *sdkEdgeClient) SubscribeEvents(ctx context.Context) (<-chan InboundEvent, error) {
	sub, err := s.c.SubscribeEvents(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan InboundEvent)
	go func() {
		defer close(out)
		for msg := range sub.C() {
			out <- InboundEvent{
				Topic:   inputName(msg),
				Payload: msg.Payload,
				Props:   msg.Properties,
			}
		}
	}()
	return out, nil
}

// inputName resolves the module input an inbound message was routed to.
func inputName(m *common.Message) string {
	if in, ok := m.Properties["input"]; ok && in != "" {
		return in
	}
	const marker = "/inputs/"
	if i := strings.Index(m.To, marker); i >= 0 {
		rest := m.To[i+len(marker):]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return rest[:j]
		}
		return rest
	}
	return m.To
}

func (s *sdkEdgeClient) RegisterMethod(ctx context.Context, name string, h MethodHandler) error {
	return s.c.RegisterMethod(ctx, name, func(p map[string]interface{}) (map[string]interface{}, error) {
		var payload []byte
		if p != nil {
			payload, _ = json.Marshal(p)
		}
		status, body := h(payload)
		return map[string]interface{}{"status": status, "payload": body}, nil
	})
}

func (s *sdkEdgeClient) Close() error {
	return s.c.Close()
}
