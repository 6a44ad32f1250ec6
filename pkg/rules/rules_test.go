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

package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCheckValues(t *testing.T) {
	cases := []struct {
		desc   string
		rules  map[string]any
		values []any
		want   bool
	}{
		{
			desc:   "float accepts float",
			rules:  map[string]any{"units": []any{"kw"}},
			values: []any{map[string]any{"value": 1.2, "value_type": "float", "unit": "kw"}},
			want:   true,
		},
		{
			desc:   "float accepts integer",
			rules:  map[string]any{"units": []any{"kw"}},
			values: []any{map[string]any{"value": float64(3), "value_type": "float", "unit": "kw"}},
			want:   true,
		},
		{
			desc:   "int rejects fractional",
			rules:  map[string]any{},
			values: []any{map[string]any{"value": 1.5, "value_type": "int", "unit": "c"}},
			want:   false,
		},
		{
			desc:   "int accepts integral",
			rules:  map[string]any{},
			values: []any{map[string]any{"value": float64(-7), "value_type": "int", "unit": "c"}},
			want:   true,
		},
		{
			desc:   "uint rejects negative",
			rules:  map[string]any{},
			values: []any{map[string]any{"value": float64(-2), "value_type": "uint", "unit": "c"}},
			want:   false,
		},
		{
			desc:   "string rejects number",
			rules:  map[string]any{},
			values: []any{map[string]any{"value": 1.0, "value_type": "string", "unit": "c"}},
			want:   false,
		},
		{
			desc:   "unit whitelist is case folded",
			rules:  map[string]any{"units": []any{"KW"}},
			values: []any{map[string]any{"value": 1.0, "value_type": "float", "unit": "kw"}},
			want:   true,
		},
		{
			desc:   "unit not in whitelist",
			rules:  map[string]any{"units": []any{"kw"}},
			values: []any{map[string]any{"value": 1.0, "value_type": "float", "unit": "wh"}},
			want:   false,
		},
		{
			desc:   "missing unit fails",
			rules:  map[string]any{},
			values: []any{map[string]any{"value": 1.0, "value_type": "float"}},
			want:   false,
		},
		{
			desc:   "unknown value_type fails",
			rules:  map[string]any{},
			values: []any{map[string]any{"value": 1.0, "value_type": "decimal", "unit": "c"}},
			want:   false,
		},
		{
			desc:  "one bad record fails the list",
			rules: map[string]any{"units": []any{"kw"}},
			values: []any{
				map[string]any{"value": 1.0, "value_type": "float", "unit": "kw"},
				map[string]any{"value": "x", "value_type": "float", "unit": "kw"},
			},
			want: false,
		},
		{
			desc:   "empty list passes",
			rules:  map[string]any{},
			values: nil,
			want:   true,
		},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			if got := NewEngine(c.rules).CheckValues(c.values); got != c.want {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	global := map[string]any{"units": []any{"kw"}, "extra": true}
	pipeline := map[string]any{"units": []any{"c"}}

	cases := []struct {
		desc        string
		pipeline    map[string]any
		applyGlobal bool
		want        map[string]any
	}{
		{
			desc:        "pipeline rules take precedence over global",
			pipeline:    pipeline,
			applyGlobal: true,
			want:        map[string]any{"units": []any{"c"}, "extra": true},
		},
		{
			desc:        "without applyGlobal only units are adopted",
			pipeline:    map[string]any{},
			applyGlobal: false,
			want:        map[string]any{"units": []any{"kw"}},
		},
		{
			desc:        "global units replace pipeline units without applyGlobal",
			pipeline:    pipeline,
			applyGlobal: false,
			want:        map[string]any{"units": []any{"kw"}},
		},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			got := Merge(global, c.pipeline, c.applyGlobal)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("unexpected merge (-want +got):\n%s", diff)
			}
		})
	}
}
