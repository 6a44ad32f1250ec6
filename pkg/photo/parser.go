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

// Package photo reassembles block-streamed camera images. Block messages
// carry raw JPEG bytes inside a JSON-shaped envelope, so the envelope must
// never be run through a JSON decoder: the val field is located and split
// byte-wise instead.
package photo

import (
	"bytes"
	"errors"
	"fmt"
)

// Camera types as reported in the analytics rows and blob names.
const (
	CameraAV = "CAMAV"
	CameraAR = "CAMAR"
)

// ErrNotBlockMessage marks payloads without a block type tag; callers ignore
// those messages.
var ErrNotBlockMessage = errors.New("not a block message")

var valMarker = []byte(`"val":"`)

// trailerLen is the fixed envelope tail after the raw bytes.
const trailerLen = 3

// Block is one parsed block message: either an init frame declaring the
// total block count, or a data frame carrying a fragment.
type Block struct {
	Camera string
	Init   bool

	TotalBlocks int // init frames only

	Number int // data frames only
	Size   int
	Data   []byte
}

var blockTags = []struct {
	tag    []byte
	camera string
	init   bool
}{
	{[]byte(`"type":"DCAV"`), CameraAV, true},
	{[]byte(`"type":"DCAR"`), CameraAR, true},
	{[]byte(`"type":"BCAV"`), CameraAV, false},
	{[]byte(`"type":"BCAR"`), CameraAR, false},
}

// Parse classifies and decodes one block message payload.
func Parse(raw []byte) (*Block, error) {
	var (
		camera string
		init   bool
		found  bool
	)
	for _, t := range blockTags {
		if bytes.Contains(raw, t.tag) {
			camera, init, found = t.camera, t.init, true
			break
		}
	}
	if !found {
		return nil, ErrNotBlockMessage
	}

	idx := bytes.Index(raw, valMarker)
	if idx < 0 {
		return nil, fmt.Errorf("block message has no val field")
	}
	pos := idx + len(valMarker)

	if init {
		total, _, err := asciiInt(raw, pos)
		if err != nil {
			return nil, fmt.Errorf("init frame: %w", err)
		}
		if total <= 0 {
			return nil, fmt.Errorf("init frame: non-positive total %d", total)
		}
		return &Block{Camera: camera, Init: true, TotalBlocks: total}, nil
	}

	num, pos, err := asciiInt(raw, pos)
	if err != nil {
		return nil, fmt.Errorf("data frame number: %w", err)
	}
	pos, err = expectSpace(raw, pos)
	if err != nil {
		return nil, err
	}
	size, pos, err := asciiInt(raw, pos)
	if err != nil {
		return nil, fmt.Errorf("data frame size: %w", err)
	}
	pos, err = expectSpace(raw, pos)
	if err != nil {
		return nil, err
	}
	if pos > len(raw)-trailerLen {
		return nil, fmt.Errorf("data frame truncated")
	}
	// The raw bytes run to the fixed envelope trailer. They may themselves
	// contain quotes and braces.
	return &Block{Camera: camera, Number: num, Size: size, Data: raw[pos : len(raw)-trailerLen]}, nil
}

// asciiInt reads a base-10 integer starting at pos and returns the value and
// the position after its last digit.
func asciiInt(raw []byte, pos int) (int, int, error) {
	start := pos
	n := 0
	for pos < len(raw) && raw[pos] >= '0' && raw[pos] <= '9' {
		n = n*10 + int(raw[pos]-'0')
		pos++
	}
	if pos == start {
		return 0, pos, fmt.Errorf("expected digits at offset %d", pos)
	}
	return n, pos, nil
}

func expectSpace(raw []byte, pos int) (int, error) {
	if pos >= len(raw) || raw[pos] != ' ' {
		return pos, fmt.Errorf("expected space at offset %d", pos)
	}
	return pos + 1, nil
}
