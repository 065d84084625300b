// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	// Map encoding must be byte-identical regardless of insertion
	// order; journal checksums depend on this.
	a := map[string]int{"amount": 50, "task": 1, "bid": 2}
	b := map[string]int{"bid": 2, "task": 1, "amount": 50}

	encodedA, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal(a): %v", err)
	}
	encodedB, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal(b): %v", err)
	}
	if !bytes.Equal(encodedA, encodedB) {
		t.Errorf("deterministic encoding violated: %x vs %x", encodedA, encodedB)
	}
}

func TestRoundTripStruct(t *testing.T) {
	type payload struct {
		TaskID uint64 `cbor:"task_id"`
		Amount int64  `cbor:"amount"`
		Actor  string `cbor:"actor,omitempty"`
	}
	original := payload{TaskID: 7, Amount: -25, Actor: "creator/alice"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded payload
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip: got %+v, want %+v", decoded, original)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"known": 1, "unknown": "extra"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var target struct {
		Known int `cbor:"known"`
	}
	if err := Unmarshal(data, &target); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if target.Known != 1 {
		t.Errorf("known: got %d, want 1", target.Known)
	}
}

func TestDecoderDefaultMapType(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"k": "v"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type: got %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested type: got %T, want map[string]any", outer["nested"])
	}
}
