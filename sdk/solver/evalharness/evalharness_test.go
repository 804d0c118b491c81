package evalharness

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/poker-ai/holdem-solver/internal/table"
	"github.com/poker-ai/holdem-solver/poker"
	"github.com/poker-ai/holdem-solver/sdk/solver"
	"github.com/poker-ai/holdem-solver/sdk/solver/runtime"
)

func testConfig() solver.AbstractionConfig {
	cfg := solver.DefaultAbstraction()
	cfg.MaxRaisesPerBucket = 1
	return cfg
}

func TestRunMatchZeroSumAndWellFormed(t *testing.T) {
	bp := &solver.Blueprint{
		Version:     1,
		Abstraction: testConfig(),
		Strategies:  map[string][]float64{},
	}
	bp.AbstractionHash = bp.Abstraction.Hash()

	pol, err := runtime.FromBlueprint(bp)
	if err != nil {
		t.Fatalf("runtime policy: %v", err)
	}
	hero, err := NewBlueprintPolicy("hero", pol)
	if err != nil {
		t.Fatalf("new blueprint policy: %v", err)
	}
	villain := &UniformPolicy{Label: "villain"}

	cfg := MatchConfig{
		Hands:         200,
		Seed:          7,
		SmallBlind:    5,
		BigBlind:      10,
		StartingStack: 500,
		Abstraction:   testConfig(),
	}

	result, err := RunMatch(cfg, []Policy{hero, villain}, zerolog.Nop())
	if err != nil {
		t.Fatalf("run match: %v", err)
	}
	if result.HandsPlayed != cfg.Hands {
		t.Fatalf("expected %d hands played, got %d", cfg.Hands, result.HandsPlayed)
	}
	if len(result.Seats) != 2 {
		t.Fatalf("expected 2 seats, got %d", len(result.Seats))
	}

	total := 0
	for _, seat := range result.Seats {
		total += seat.NetChips
		if seat.Hands != cfg.Hands {
			t.Fatalf("seat %s: expected %d hands, got %d", seat.Name, cfg.Hands, seat.Hands)
		}
	}
	if total != 0 {
		t.Fatalf("expected zero-sum net chips across seats, got total %d", total)
	}
}

func TestRunMatchRejectsTooFewPolicies(t *testing.T) {
	cfg := MatchConfig{Hands: 10, SmallBlind: 5, BigBlind: 10, StartingStack: 200, Abstraction: testConfig()}
	if _, err := RunMatch(cfg, []Policy{&UniformPolicy{Label: "solo"}}, zerolog.Nop()); err == nil {
		t.Fatal("expected error with fewer than 2 policies")
	}
}

func TestRunMatchRejectsZeroHands(t *testing.T) {
	cfg := MatchConfig{Hands: 0, SmallBlind: 5, BigBlind: 10, StartingStack: 200, Abstraction: testConfig()}
	policies := []Policy{&UniformPolicy{Label: "a"}, &UniformPolicy{Label: "b"}}
	if _, err := RunMatch(cfg, policies, zerolog.Nop()); err == nil {
		t.Fatal("expected error with zero hands")
	}
}

func TestUniformPolicySingleActionAlwaysChosen(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := &UniformPolicy{Label: "u"}
	actions := []table.Action{{Kind: table.Fold}}
	for i := 0; i < 100; i++ {
		idx := p.Choose(rng, nil, 0, actions, solver.InfoSetKey{})
		if idx != 0 {
			t.Fatalf("expected 0 for single-action slice, got %d", idx)
		}
	}
}

func TestUniformPolicySpreadsAcrossActions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := &UniformPolicy{Label: "u"}
	actions := []table.Action{{Kind: table.Fold}, {Kind: table.Check}, {Kind: table.Call}}
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		idx := p.Choose(rng, nil, 0, actions, solver.InfoSetKey{})
		if idx < 0 || idx >= len(actions) {
			t.Fatalf("index %d out of range for %d actions", idx, len(actions))
		}
		seen[idx] = true
	}
	if len(seen) != len(actions) {
		t.Fatalf("expected to see all %d actions sampled over 200 draws, saw %d", len(actions), len(seen))
	}
}

func mustHole(t *testing.T, c1, c2 string) poker.Hand {
	t.Helper()
	a, err := poker.ParseCard(c1)
	if err != nil {
		t.Fatalf("parse card %s: %v", c1, err)
	}
	b, err := poker.ParseCard(c2)
	if err != nil {
		t.Fatalf("parse card %s: %v", c2, err)
	}
	return poker.Hand(a) | poker.Hand(b)
}

func TestRangePolicyFoldsOutOfRangePreflop(t *testing.T) {
	p, err := NewRangePolicy("tight", "22+,ATs+,KQo")
	if err != nil {
		t.Fatalf("new range policy: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	st := table.NewHand(2, 1000, 5, 10, 0, rng)
	actions := []table.Action{
		{Kind: table.Fold},
		{Kind: table.Call, Amount: 10},
		{Kind: table.Raise, Amount: 20},
	}

	st.Players[st.ToAct].Hole = mustHole(t, "7h", "2c")
	if idx := p.Choose(rng, st, st.ToAct, actions, solver.InfoSetKey{}); actions[idx].Kind != table.Fold {
		t.Fatalf("expected 72o to fold preflop, chose %v", actions[idx].Kind)
	}

	st.Players[st.ToAct].Hole = mustHole(t, "As", "Ad")
	if idx := p.Choose(rng, st, st.ToAct, actions, solver.InfoSetKey{}); actions[idx].Kind != table.Call {
		t.Fatalf("expected AA to continue preflop, chose %v", actions[idx].Kind)
	}
}

func TestRangePolicyNeverFoldsPostflopOrWhenCheckIsFree(t *testing.T) {
	p, err := NewRangePolicy("tight", "22+")
	if err != nil {
		t.Fatalf("new range policy: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	st := table.NewHand(2, 1000, 5, 10, 0, rng)
	st.Players[st.ToAct].Hole = mustHole(t, "7h", "2c")

	// No fold on the menu (check is free): the policy checks.
	free := []table.Action{{Kind: table.Check}, {Kind: table.Bet, Amount: 10}}
	if idx := p.Choose(rng, st, st.ToAct, free, solver.InfoSetKey{}); free[idx].Kind != table.Check {
		t.Fatalf("expected check when free, chose %v", free[idx].Kind)
	}

	// Postflop the range gate no longer applies.
	st.Street = table.Flop
	facing := []table.Action{{Kind: table.Fold}, {Kind: table.Call, Amount: 20}}
	if idx := p.Choose(rng, st, st.ToAct, facing, solver.InfoSetKey{}); facing[idx].Kind != table.Call {
		t.Fatalf("expected call postflop, chose %v", facing[idx].Kind)
	}
}

func TestNewRangePolicyRejectsBadNotation(t *testing.T) {
	if _, err := NewRangePolicy("bad", "ZZ+"); err == nil {
		t.Fatal("expected error for invalid range notation")
	}
}

func TestRunMatchRangeVersusUniformIsZeroSum(t *testing.T) {
	tight, err := NewRangePolicy("tight", "55+,AJs+,KQs")
	if err != nil {
		t.Fatalf("new range policy: %v", err)
	}
	cfg := MatchConfig{
		Hands:         100,
		Seed:          3,
		SmallBlind:    5,
		BigBlind:      10,
		StartingStack: 500,
		Abstraction:   testConfig(),
	}
	result, err := RunMatch(cfg, []Policy{tight, &UniformPolicy{Label: "uniform"}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("run match: %v", err)
	}
	total := 0
	for _, seat := range result.Seats {
		total += seat.NetChips
	}
	if total != 0 {
		t.Fatalf("expected zero-sum chips, got %d", total)
	}
}
