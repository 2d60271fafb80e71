package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestFilterSetNormalized(t *testing.T) {
	f := FilterSet{
		RuntimeIDs:      []string{" runtime-b ", "runtime-a", "runtime-b", "", "runtime-a"},
		ProcessorFilter: " proc-1 ",
		MessageFilter:   " refused ",
	}
	n := f.Normalized()
	if !reflect.DeepEqual(n.RuntimeIDs, []string{"runtime-a", "runtime-b"}) {
		t.Fatalf("unexpected runtime IDs %v", n.RuntimeIDs)
	}
	if n.ProcessorFilter != "proc-1" || n.MessageFilter != "refused" {
		t.Fatalf("expected trimmed filters, got %+v", n)
	}

	// Normalization is deterministic regardless of input order.
	swapped := FilterSet{RuntimeIDs: []string{"runtime-b", "runtime-a"}}.Normalized()
	same := FilterSet{RuntimeIDs: []string{"runtime-a", "runtime-b"}}.Normalized()
	if !reflect.DeepEqual(swapped.RuntimeIDs, same.RuntimeIDs) {
		t.Fatalf("order must not matter: %v vs %v", swapped.RuntimeIDs, same.RuntimeIDs)
	}
}

func TestFilterSetMatchesRuntime(t *testing.T) {
	all := FilterSet{}
	if !all.MatchesRuntime("anything") {
		t.Fatal("empty selection must admit every runtime")
	}
	scoped := FilterSet{RuntimeIDs: []string{"runtime-a"}}
	if !scoped.MatchesRuntime("runtime-a") || scoped.MatchesRuntime("runtime-b") {
		t.Fatal("selection must admit only the listed runtimes")
	}
}

func TestThresholdConfigValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	cases := []ThresholdConfig{
		{ErrorCountThreshold: -1, InactivityHours: 24},
		{ErrorWindowMinutes: -1, InactivityHours: 24},
		{BackpressureMinMiB: -0.1, InactivityHours: 24},
		{QueueTimeMinMinutes: -1, InactivityHours: 24},
		{InactivityHours: 0},
	}
	for i, tc := range cases {
		if err := tc.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("case %d: expected rejection, got %v", i, err)
		}
	}
	zeroes := ThresholdConfig{InactivityHours: 1}
	if err := zeroes.Validate(); err != nil {
		t.Fatalf("zero thresholds are valid (any-nonzero semantics): %v", err)
	}
}
