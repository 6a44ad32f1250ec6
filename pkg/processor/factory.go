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

package processor

import (
	"fmt"
	"strings"

	"github.com/go-kit/log"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/transport"
)

// New constructs the processor variant named by the pipeline class. The tag
// is lowercased and trimmed before lookup; unknown tags fail pipeline
// construction.
func New(logger log.Logger, global *config.Config, cfg *config.PipelineConfig, m *metrics.Metrics, dest transport.Transport, deviceID string) (Processor, error) {
	core, err := newCore(logger, global, cfg, m, dest, deviceID)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", cfg.Name, err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Class)) {
	case "generic":
		return newGeneric(core), nil
	case "egauge":
		return newEGauge(core), nil
	case "zigbee":
		return newZigbee(core)
	case "gdp":
		return newGDP(core), nil
	case "ibr":
		return newIBR(core), nil
	case "cloud2device":
		return newC2D(core), nil
	case "rci":
		return newRCI(core), nil
	case "rci_command":
		return newRCICommand(core), nil
	}
	return nil, fmt.Errorf("pipeline %q: unknown processor class %q", cfg.Name, cfg.Class)
}
