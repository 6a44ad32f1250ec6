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
	"fmt"
	"time"

	"github.com/dangeroushobo/iothub/iotservice"
)

// sdkServiceClient adapts the iothub service client to the serviceClient
// interface.
type sdkServiceClient struct {
	c *iotservice.Client
}

func newSDKServiceClient(connString string) (serviceClient, error) {
	c, err := iotservice.NewFromConnectionString(connString)
	if err != nil {
		return nil, err
	}
	return &sdkServiceClient{c: c}, nil
}

func (s *sdkServiceClient) CallMethod(ctx context.Context, deviceID, method string, payload any, connectTimeout, responseTimeout time.Duration) error {
	res, err := s.c.CallDeviceMethod(ctx, deviceID, &iotservice.MethodCall{
		MethodName:      method,
		ConnectTimeout:  uint(connectTimeout / time.Second),
		ResponseTimeout: uint(responseTimeout / time.Second),
		Payload:         payload,
	})
	if err != nil {
		return err
	}
	if res.Status >= 300 {
		return fmt.Errorf("method %q on %q returned status %d", method, deviceID, res.Status)
	}
	return nil
}

func (s *sdkServiceClient) Close() error {
	return s.c.Close()
}
