// Package evalharness runs headless blueprint-vs-blueprint (or
// blueprint-vs-uniform) matches over internal/table and reports win rate
// in bb/100. Hands are played directly against the simulator — there is no
// table server or bot transport involved, so a match is deterministic
// given its seed.
package evalharness

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/poker-ai/holdem-solver/internal/table"
	"github.com/poker-ai/holdem-solver/sdk/analysis"
	"github.com/poker-ai/holdem-solver/sdk/solver"
	"github.com/poker-ai/holdem-solver/sdk/solver/runtime"
)

// Policy chooses an action index from the legal abstract action menu at a
// seat's decision point. Implementations must return an index within
// [0, len(actions)).
type Policy interface {
	Name() string
	Choose(rng *rand.Rand, st *table.TableState, seat int, actions []table.Action, key solver.InfoSetKey) int
}

// BlueprintPolicy samples from a trained blueprint's average strategy via
// runtime.Policy, which owns the lookup, width-reconciliation, and
// uniform-fallback rules a live seat needs.
type BlueprintPolicy struct {
	Label   string
	Policy  *runtime.Policy
	Buckets *solver.BucketMapper
}

// NewBlueprintPolicy builds a BlueprintPolicy around a runtime policy,
// constructing the BucketMapper its blueprint's AbstractionConfig describes
// so info-set keys line up with how the blueprint was trained.
func NewBlueprintPolicy(label string, pol *runtime.Policy) (*BlueprintPolicy, error) {
	bp := pol.Blueprint()
	if bp == nil {
		return nil, fmt.Errorf("evalharness: runtime policy has no blueprint")
	}
	mapper, err := solver.NewBucketMapper(bp.Abstraction)
	if err != nil {
		return nil, fmt.Errorf("build bucket mapper: %w", err)
	}
	return &BlueprintPolicy{Label: label, Policy: pol, Buckets: mapper}, nil
}

// Name implements Policy.
func (p *BlueprintPolicy) Name() string { return p.Label }

// Choose implements Policy.
func (p *BlueprintPolicy) Choose(rng *rand.Rand, st *table.TableState, seat int, actions []table.Action, key solver.InfoSetKey) int {
	idx, err := p.Policy.Sample(rng, key, len(actions))
	if err != nil {
		return uniformSample(rng, len(actions))
	}
	return idx
}

// RangePolicy is a tight-passive baseline: preflop it folds any hand
// outside its configured opening range (checking when the fold is free),
// and with an in-range hand — or on any later street — it check/calls.
// Useful as a tougher-than-uniform opponent whose preflop discipline is
// describable in ordinary range notation ("22+,ATs+,KQo+").
type RangePolicy struct {
	Label string
	Range *analysis.Range
}

// NewRangePolicy parses range notation into a RangePolicy.
func NewRangePolicy(label, notation string) (*RangePolicy, error) {
	r, err := analysis.ParseRange(notation)
	if err != nil {
		return nil, fmt.Errorf("evalharness: parse range: %w", err)
	}
	return &RangePolicy{Label: label, Range: r}, nil
}

// Name implements Policy.
func (p *RangePolicy) Name() string { return p.Label }

// Choose implements Policy.
func (p *RangePolicy) Choose(rng *rand.Rand, st *table.TableState, seat int, actions []table.Action, _ solver.InfoSetKey) int {
	checkCall := 0
	fold := -1
	for i, a := range actions {
		switch a.Kind {
		case table.Check, table.Call:
			checkCall = i
		case table.Fold:
			fold = i
		}
	}
	if st != nil && st.Street == table.Preflop && fold >= 0 &&
		!p.Range.ContainsHand(st.Players[seat].Hole) {
		return fold
	}
	return checkCall
}

// UniformPolicy samples an action uniformly at random from the legal menu,
// the weakest baseline a blueprint should beat decisively.
type UniformPolicy struct {
	Label string
}

// Name implements Policy.
func (p *UniformPolicy) Name() string { return p.Label }

// Choose implements Policy.
func (p *UniformPolicy) Choose(rng *rand.Rand, _ *table.TableState, _ int, actions []table.Action, _ solver.InfoSetKey) int {
	return uniformSample(rng, len(actions))
}

func uniformSample(rng *rand.Rand, n int) int {
	if n <= 1 {
		return 0
	}
	return rng.Intn(n)
}

// MatchConfig controls a headless evaluation match.
type MatchConfig struct {
	Hands         int
	Seed          int64
	SmallBlind    int
	BigBlind      int
	StartingStack int
	Abstraction   solver.AbstractionConfig
}

// SeatResult is one policy's outcome over a match.
type SeatResult struct {
	Name      string
	NetChips  int
	Hands     int
	BBPerHand float64
	BBPer100  float64
}

// MatchResult is the full outcome of RunMatch.
type MatchResult struct {
	HandsPlayed int
	Seats       []SeatResult
}

// RunMatch plays cfg.Hands independent hands between the supplied policies
// (one per seat, len(policies) players), rotating the button each hand, and
// reports each seat's net chip result as bb/100 (big blinds won per hundred
// hands), the standard poker win-rate unit.
func RunMatch(cfg MatchConfig, policies []Policy, logger zerolog.Logger) (*MatchResult, error) {
	if len(policies) < 2 {
		return nil, fmt.Errorf("evalharness: need at least 2 policies, got %d", len(policies))
	}
	if cfg.Hands <= 0 {
		return nil, fmt.Errorf("evalharness: hands must be > 0")
	}

	numPlayers := len(policies)
	mapper, err := solver.NewBucketMapper(cfg.Abstraction)
	if err != nil {
		return nil, fmt.Errorf("evalharness: build bucket mapper: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	sizing := solver.DefaultSizing()
	netChips := make([]int, numPlayers)

	for hand := 0; hand < cfg.Hands; hand++ {
		button := hand % numPlayers
		st := table.NewHand(numPlayers, cfg.StartingStack, cfg.SmallBlind, cfg.BigBlind, button, rng)
		raisesByStreet := make(map[table.Street]int)

		for !st.IsTerminal() {
			if err := st.CheckInvariants(); err != nil {
				logger.Warn().Err(err).Int("hand", hand).Msg("evalharness: invariant violation, abandoning hand")
				break
			}
			seat := st.ToAct
			actions := solver.LegalAbstractActions(st, cfg.Abstraction, raisesByStreet[st.Street], sizing)
			if len(actions) == 0 {
				break
			}
			key := solver.InfoSetKeyFor(mapper, rng, cfg.StartingStack, st, seat)
			idx := policies[seat%len(policies)].Choose(rng, st, seat, actions, key)
			if idx < 0 || idx >= len(actions) {
				idx = 0
			}
			raisesByStreet = solver.AdvanceRaiseCount(raisesByStreet, st.Street, actions[idx].Kind)
			if err := st.Apply(actions[idx]); err != nil {
				logger.Warn().Err(err).Int("hand", hand).Msg("evalharness: illegal action chosen, folding instead")
				_ = st.Apply(table.Action{Kind: table.Fold})
			}
		}

		payoffs := st.Payoffs()
		for seat := 0; seat < numPlayers; seat++ {
			netChips[seat] += int(payoffs[seat])
		}
	}

	result := &MatchResult{HandsPlayed: cfg.Hands, Seats: make([]SeatResult, numPlayers)}
	for seat := 0; seat < numPlayers; seat++ {
		bbPerHand := float64(netChips[seat]) / float64(cfg.Hands) / float64(cfg.BigBlind)
		result.Seats[seat] = SeatResult{
			Name:      policies[seat].Name(),
			NetChips:  netChips[seat],
			Hands:     cfg.Hands,
			BBPerHand: bbPerHand,
			BBPer100:  bbPerHand * 100,
		}
	}
	return result, nil
}
