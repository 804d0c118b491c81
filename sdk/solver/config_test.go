package solver

import (
	"strings"
	"testing"
)

func TestTrainingConfigRequiresExactlyOneHorizon(t *testing.T) {
	train := DefaultTrainingConfig()
	train.Iterations = 0
	train.TimeBudgetSeconds = 0
	if err := train.Validate(); err == nil {
		t.Fatalf("expected validation to reject a config with no horizon")
	}

	train.Iterations = 100
	train.TimeBudgetSeconds = 60
	err := train.Validate()
	if err == nil {
		t.Fatalf("expected validation to reject both horizons at once")
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("unexpected error: %v", err)
	}

	train.Iterations = 0
	train.TimeBudgetSeconds = 60
	if err := train.Validate(); err != nil {
		t.Fatalf("expected a time-budget-only horizon to validate, got %v", err)
	}
}

func TestEpsilonScheduleAtFollowsBreakpoints(t *testing.T) {
	s := EpsilonSchedule{Breakpoints: []EpsilonBreakpoint{
		{Iteration: 0, Value: 0.6},
		{Iteration: 100, Value: 0.4},
		{Iteration: 200, Value: 0.2},
	}}
	cases := []struct {
		iter int64
		want float64
	}{
		{0, 0.6}, {99, 0.6}, {100, 0.4}, {150, 0.4}, {200, 0.2}, {5000, 0.2},
	}
	for _, c := range cases {
		if got := s.At(c.iter); got != c.want {
			t.Fatalf("At(%d): want %v, got %v", c.iter, c.want, got)
		}
	}
}

func TestEpsilonScheduleIndexAtCountsPassedBreakpoints(t *testing.T) {
	s := EpsilonSchedule{Breakpoints: []EpsilonBreakpoint{
		{Iteration: 0, Value: 0.6},
		{Iteration: 100, Value: 0.4},
		{Iteration: 200, Value: 0.2},
	}}
	cases := []struct {
		iter int64
		want int
	}{
		{0, 1}, {99, 1}, {100, 2}, {199, 2}, {200, 3}, {10_000, 3},
	}
	for _, c := range cases {
		if got := s.IndexAt(c.iter); got != c.want {
			t.Fatalf("IndexAt(%d): want %d, got %d", c.iter, c.want, got)
		}
	}
}

func TestAdjustBreakpointStaysWithinEnvelope(t *testing.T) {
	cfg := AdaptiveEpsilonConfig{Enabled: true, TargetIPS: 100, MinInfosetGrowth: 0.01, WindowMerges: 4}

	// Both criteria exceeded: up to 30% early.
	if got := cfg.AdjustBreakpoint(1000, 200, 0.05); got != 700 {
		t.Fatalf("expected early breakpoint 700, got %d", got)
	}
	// Either criterion missed: delayed, capped at 130% of nominal.
	if got := cfg.AdjustBreakpoint(1000, 50, 0.05); got != 1300 {
		t.Fatalf("expected delayed breakpoint 1300, got %d", got)
	}
	// Disabled: nominal unchanged.
	cfg.Enabled = false
	if got := cfg.AdjustBreakpoint(1000, 200, 0.05); got != 1000 {
		t.Fatalf("expected nominal breakpoint with adaptive disabled, got %d", got)
	}
}
