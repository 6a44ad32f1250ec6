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
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/throttle"
)

// New builds the transport variant selected by cfg.Class and applies the
// broker's throttle settings. It returns nil on an unknown class or an
// invalid variant config; the caller treats that as a pipeline init failure.
func New(logger log.Logger, cfg *config.BrokerConfig) Transport {
	if cfg == nil {
		return nil
	}
	var tr Transport
	switch normalizeClass(cfg.Class) {
	case "MQTT":
		tr = newLocalMQTT(logger, cfg)
	case "IOTEDGE":
		tr = newEdgeHubModule(logger, cfg)
	case "IOTDEVICE":
		tr = newCloudDevice(logger, cfg)
	case "IOTHUB":
		tr = newCloudHubService(logger, cfg)
	case "VOID":
		tr = NewVoid()
	default:
		level.Warn(logger).Log("msg", "unknown broker class", "class", cfg.Class)
		return nil
	}
	if tr == nil {
		return nil
	}

	maxMsgSec := throttle.DefaultMaxMsgSec
	if cfg.ThrottleMaxMessageSec != nil {
		maxMsgSec = *cfg.ThrottleMaxMessageSec
	}
	sleepSec := throttle.DefaultSleepSec
	if cfg.ThrottleSleepSec != nil {
		sleepSec = *cfg.ThrottleSleepSec
	}
	tr.SetMaxMsgSec(maxMsgSec)
	tr.SetSleepSec(sleepSec)
	return tr
}

// normalizeClass folds the broker class spellings found in the wild:
// "IoT Edge", "iot-edge" and "IOT_EDGE" all select the same variant.
func normalizeClass(class string) string {
	r := strings.NewReplacer(" ", "", "-", "", "_", "")
	return strings.ToUpper(r.Replace(class))
}
