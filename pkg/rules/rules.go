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

// Package rules implements per-pipeline validation of measurement records.
package rules

import (
	"math"
	"strings"
)

// Engine validates value records against a merged rule set.
type Engine struct {
	units    map[string]struct{}
	hasUnits bool
}

// Merge combines the global rule set with a pipeline's own. When applyGlobal
// is set the pipeline rules take precedence over the full global set;
// otherwise only the global unit whitelist is adopted, and it replaces any
// unit list the pipeline declares.
func Merge(global, pipeline map[string]any, applyGlobal bool) map[string]any {
	merged := make(map[string]any, len(global)+len(pipeline))
	if applyGlobal {
		for k, v := range global {
			merged[k] = v
		}
	}
	for k, v := range pipeline {
		merged[k] = v
	}
	if !applyGlobal {
		if u, ok := global["units"]; ok {
			merged["units"] = u
		}
	}
	return merged
}

// NewEngine builds an engine from a merged rule set, typically the output of
// Merge. Unknown rule keys are ignored.
func NewEngine(ruleSet map[string]any) *Engine {
	e := &Engine{units: map[string]struct{}{}}
	raw, ok := ruleSet["units"]
	if !ok {
		return e
	}
	e.hasUnits = true
	switch units := raw.(type) {
	case []any:
		for _, u := range units {
			if s, ok := u.(string); ok {
				e.units[strings.ToLower(s)] = struct{}{}
			}
		}
	case []string:
		for _, s := range units {
			e.units[strings.ToLower(s)] = struct{}{}
		}
	}
	return e
}

// CheckValues validates a list of {value, value_type, unit} records. All
// records must pass for the list to pass; an empty list passes.
func (e *Engine) CheckValues(values []any) bool {
	for _, raw := range values {
		rec, ok := raw.(map[string]any)
		if !ok {
			return false
		}
		if !e.checkValue(rec) {
			return false
		}
	}
	return true
}

func (e *Engine) checkValue(rec map[string]any) bool {
	vt, _ := rec["value_type"].(string)
	if !checkType(rec["value"], vt) {
		return false
	}
	unit, ok := rec["unit"].(string)
	if !ok || unit == "" {
		return false
	}
	if e.hasUnits {
		if _, ok := e.units[strings.ToLower(unit)]; !ok {
			return false
		}
	}
	return true
}

// checkType classifies a JSON-decoded value. Integer checks are strict;
// float additionally accepts integral values.
func checkType(v any, valueType string) bool {
	switch valueType {
	case "string":
		_, ok := v.(string)
		return ok
	case "int":
		return isIntegral(v)
	case "uint":
		f, ok := v.(float64)
		return ok && isIntegral(v) && f >= 0
	case "float":
		_, ok := v.(float64)
		return ok
	}
	return false
}

func isIntegral(v any) bool {
	f, ok := v.(float64)
	return ok && f == math.Trunc(f)
}
