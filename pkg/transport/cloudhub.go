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
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/queue"
)

const (
	defaultDirectMethodName  = "publish"
	defaultConnectTimeoutSec = 15.0
	defaultRespTimeoutSec    = 30.0
)

// serviceClient abstracts the cloud-side IoT Hub service SDK.
type serviceClient interface {
	CallMethod(ctx context.Context, deviceID, method string, payload any, connectTimeout, responseTimeout time.Duration) error
	Close() error
}

// CloudHubService publishes from the cloud side by invoking a direct method
// on the target device: the publish topic is the device ID. It cannot
// listen.
type CloudHubService struct {
	logger          log.Logger
	client          serviceClient
	methodName      string
	connectTimeout  time.Duration
	responseTimeout time.Duration
}

func newCloudHubService(logger log.Logger, cfg *config.BrokerConfig) *CloudHubService {
	connString := os.Getenv("IOTHUB_CONNECTION_STRING")
	if connString == "" {
		level.Error(logger).Log("msg", "IOTHUB_CONNECTION_STRING not set")
		return nil
	}
	t := &CloudHubService{
		logger:          logger,
		methodName:      defaultDirectMethodName,
		connectTimeout:  time.Duration(defaultConnectTimeoutSec * float64(time.Second)),
		responseTimeout: time.Duration(defaultRespTimeoutSec * float64(time.Second)),
	}
	if hc := cfg.IoTHub; hc != nil {
		if hc.DirectMethodName != "" {
			t.methodName = hc.DirectMethodName
		}
		if hc.ConnectionTimeoutSec > 0 {
			t.connectTimeout = time.Duration(hc.ConnectionTimeoutSec * float64(time.Second))
		}
		if hc.ResponseTimeoutSec > 0 {
			t.responseTimeout = time.Duration(hc.ResponseTimeoutSec * float64(time.Second))
		}
	}

	var err error
	for attempt := 1; ; attempt++ {
		t.client, err = newSDKServiceClient(connString)
		if err == nil {
			break
		}
		level.Warn(logger).Log("msg", "service client setup failed", "attempt", attempt, "err", err)
		if attempt >= connectMaxRetry {
			return nil
		}
		time.Sleep(connectInterval)
	}
	return t
}

func (t *CloudHubService) Publish(topic string, payload any) bool {
	return t.PublishOpts(topic, payload, nil)
}

// PublishOpts invokes the configured direct method on the device named by
// topic. QoS/retain have no meaning here and are ignored.
func (t *CloudHubService) PublishOpts(topic string, payload any, _ *PubOptions) bool {
	ctx, cancel := context.WithTimeout(context.Background(), t.connectTimeout+t.responseTimeout)
	defer cancel()

	if err := t.client.CallMethod(ctx, topic, t.methodName, payload, t.connectTimeout, t.responseTimeout); err != nil {
		level.Error(t.logger).Log("msg", "direct method invocation failed", "device", topic, "method", t.methodName, "err", err)
		return false
	}
	return true
}

// StartListening is unsupported for the service-side binding.
func (t *CloudHubService) StartListening([]string, *queue.Queue) bool {
	level.Error(t.logger).Log("msg", "cloud hub service transport cannot listen")
	return false
}

func (t *CloudHubService) Disconnect() {
	if t.client != nil {
		if err := t.client.Close(); err != nil {
			level.Warn(t.logger).Log("msg", "service client close failed", "err", err)
		}
	}
}

func (t *CloudHubService) DeviceID() string { return "" }

func (t *CloudHubService) SetMetrics(*metrics.Metrics) {}
func (t *CloudHubService) SetMaxMsgSec(int)            {}
func (t *CloudHubService) SetSleepSec(float64)         {}
