package solver

import (
	"math/rand"

	"github.com/poker-ai/holdem-solver/internal/table"
	"github.com/poker-ai/holdem-solver/sdk/solver/action"
)

// actionLabel produces the single-character history tag appended to an
// info-set key for the abstract action taken, mirroring the compact
// fold/call/bet/raise-index encoding described by the regret store's
// versioned key format.
func actionLabel(kind table.ActionKind, idx int) string {
	switch kind {
	case table.Fold:
		return "f"
	case table.Check, table.Call:
		return "c"
	case table.AllIn:
		return "a"
	default:
		return string(rune('r' + idx))
	}
}

func tableStreetToSolverStreet(s table.Street) Street {
	switch s {
	case table.Preflop:
		return StreetPreflop
	case table.Flop:
		return StreetFlop
	case table.Turn:
		return StreetTurn
	default:
		return StreetRiver
	}
}

// potBucket coarsens the current pot size relative to the starting stack
// into a small number of buckets, so the info-set key stays stable across
// stacks of roughly the same depth rather than keying on raw chip counts.
func potBucket(pot, startingStack int) int {
	if startingStack <= 0 {
		return 0
	}
	ratio := float64(pot) / float64(startingStack)
	switch {
	case ratio < 0.1:
		return 0
	case ratio < 0.25:
		return 1
	case ratio < 0.5:
		return 2
	case ratio < 1.0:
		return 3
	default:
		return 4
	}
}

func toCallBucket(toCall, pot int) int {
	if pot <= 0 {
		if toCall > 0 {
			return 3
		}
		return 0
	}
	ratio := float64(toCall) / float64(pot)
	switch {
	case ratio <= 0:
		return 0
	case ratio < 0.33:
		return 1
	case ratio < 1.0:
		return 2
	default:
		return 3
	}
}

// legalAbstractActions builds the concrete table.Action menu available at
// the current decision point by combining the simulator's primitive legal
// actions with the action abstraction's sizing catalogue. expandRaises
// governs the adaptive raise-action expansion gate: an info set not yet
// visited AdaptiveRaiseVisits
// times sees only the single largest (most pot-committing) raise size;
// once expanded it sees the full street-appropriate catalogue, still
// subject to the existing numRaisesThisStreet escalation collapse.
func legalAbstractActions(st *table.TableState, cfg AbstractionConfig, numRaisesThisStreet int, sizing map[table.Street]Sizing, expandRaises bool) []table.Action {
	kinds, minRaiseTo, maxRaiseTo := st.LegalActions()
	out := make([]table.Action, 0, cfg.MaxActionsPerNode)
	facingBet := false
	for _, k := range kinds {
		switch k {
		case table.Fold:
			out = append(out, table.Action{Kind: table.Fold})
			facingBet = true
		case table.Check:
			out = append(out, table.Action{Kind: table.Check})
		case table.Call:
			out = append(out, table.Action{Kind: table.Call, Amount: st.CurrentBet})
		}
	}
	if !cfg.EnableRaises {
		return out
	}
	for _, k := range kinds {
		if k != table.Bet && k != table.Raise {
			continue
		}
		street := st.Street
		menu := action.Catalogue(street, facingBet, numRaisesThisStreet, cfg.MaxRaisesPerBucket, sizing)
		if !expandRaises && len(menu) > 1 {
			menu = menu[len(menu)-1:]
		}
		seen := make(map[int]bool, len(menu))
		for _, abs := range menu {
			concrete := action.BackMap(abs, st.Pot(), minRaiseTo, maxRaiseTo)
			if seen[concrete.Amount] {
				continue
			}
			seen[concrete.Amount] = true
			out = append(out, concrete)
			if len(out) >= cfg.MaxActionsPerNode {
				return out
			}
		}
	}
	return out
}

// Sizing is re-exported here so callers building an abstraction config do
// not need to import sdk/solver/action directly for the catalogue type.
type Sizing = action.Sizing

// DefaultSizing exposes action.DefaultCatalogue so callers outside the
// training loop (the evaluation harness) build the same per-street
// bet-sizing menu the blueprint was trained against without importing
// sdk/solver/action directly.
func DefaultSizing() map[table.Street]Sizing {
	return action.DefaultCatalogue()
}

// TraversalStats accumulates lightweight counters over an MCCFR run,
// reported by the coordinator for progress logging.
type TraversalStats struct {
	Iterations          int64
	NodesVisited        int64
	NodesPruned         int64
	TerminalsSeen       int64
	InvariantViolations int64
}

// Add accumulates another batch's stats into the receiver.
func (s *TraversalStats) Add(o TraversalStats) {
	s.Iterations += o.Iterations
	s.NodesVisited += o.NodesVisited
	s.NodesPruned += o.NodesPruned
	s.TerminalsSeen += o.TerminalsSeen
	s.InvariantViolations += o.InvariantViolations
}

// Iterator runs outcome-sampling MCCFR over internal/table hands, updating
// a private RegretStore. One Iterator belongs to exactly one goroutine; the
// coordinator is responsible for merging each worker's store back into the
// authoritative one via RegretStore.DeltaSince/MergeDelta.
type Iterator struct {
	Abstraction AbstractionConfig
	Training    TrainingConfig
	Regrets     *RegretStore
	Buckets     *BucketMapper
	Sizing      map[table.Street]Sizing
	Rng         *rand.Rand

	// Adaptive gates raise-action expansion by per-info-set visit count.
	// Shared across every worker's Iterator for a run via the coordinator
	// so visits accumulate across batches instead of resetting each one;
	// nil (or a zero threshold) always expands.
	Adaptive *AdaptiveRaiseTracker

	// EpsilonOverride, when non-negative, replaces the schedule-derived
	// exploration rate for every iteration this Iterator runs; the
	// coordinator sets it per batch when adaptive epsilon is enabled.
	EpsilonOverride float64

	Stats TraversalStats
}

// NewIterator builds a per-worker traversal engine sharing no mutable state
// with any other Iterator besides the RegretStore (which the caller has
// already primed, typically via RestoreRegretStore applied to a
// coordinator broadcast snapshot) and the AdaptiveRaiseTracker, which is
// deliberately shared so visit counts accumulate across every worker's
// batches over the life of the run.
func NewIterator(abs AbstractionConfig, train TrainingConfig, regrets *RegretStore, rng *rand.Rand, adaptive *AdaptiveRaiseTracker) (*Iterator, error) {
	mapper, err := NewBucketMapper(abs)
	if err != nil {
		return nil, err
	}
	return &Iterator{
		Abstraction:     abs,
		Training:        train,
		Regrets:         regrets,
		Buckets:         mapper,
		Sizing:          action.DefaultCatalogue(),
		Rng:             rng,
		Adaptive:        adaptive,
		EpsilonOverride: -1,
	}, nil
}

// RunIteration plays one outcome-sampled hand per seat for the given
// iteration number, with each player as the traverser in turn, so a
// single call advances every seat's regrets by one sample.
func (it *Iterator) RunIteration(iteration int64, button int) {
	it.Stats.Iterations++
	for traverser := 0; traverser < it.Training.Players; traverser++ {
		st := table.NewHand(it.Training.Players, it.Training.StartingStack, it.Training.SmallBlind, it.Training.BigBlind, button, it.Rng)
		raisesByStreet := make(map[table.Street]int)
		it.traverse(st, traverser, iteration, 1.0, 1.0, raisesByStreet)
	}
}

// traverse performs one outcome-sampling recursion. reachTraverser and
// reachOthers are the product of action probabilities taken so far by the
// traverser and by everyone else (including chance), respectively, used for
// the importance-sampling correction on the traverser's own regret update.
func (it *Iterator) traverse(st *table.TableState, traverser int, iteration int64, reachTraverser, reachOthers float64, raisesByStreet map[table.Street]int) float64 {
	it.Stats.NodesVisited++
	if err := st.CheckInvariants(); err != nil {
		// A bug in Apply or a caller broke a structural guarantee. Abort
		// just this traversal branch (treated as a folded-equivalent dead end) rather
		// than letting corrupted state propagate into a regret update; the
		// coordinator surfaces the count for diagnosis.
		it.Stats.InvariantViolations++
		return 0
	}
	if st.IsTerminal() {
		it.Stats.TerminalsSeen++
		return st.Payoffs()[traverser]
	}

	seat := st.ToAct
	key := it.infoSetKey(st, seat)
	keyStr := key.String()
	expandRaises := it.Adaptive.ShouldExpand(keyStr)
	actions := legalAbstractActions(st, it.Abstraction, raisesByStreet[st.Street], it.Sizing, expandRaises)
	if len(actions) == 0 {
		// No legal action (should not happen outside terminal states); treat
		// as a fold-equivalent dead end rather than panicking mid-traversal.
		return st.Payoffs()[traverser]
	}

	solverStreet := tableStreetToSolverStreet(st.Street)
	strategy := it.Regrets.CurrentStrategy(keyStr, len(actions))

	if seat != traverser {
		idx := sampleIndex(it.Rng, strategy)
		nextSt := st.Clone()
		raises := advanceRaiseCount(raisesByStreet, st.Street, actions[idx].Kind)
		if err := nextSt.Apply(actions[idx]); err != nil {
			return st.Payoffs()[traverser]
		}
		nextSt.History = st.History + actionLabel(actions[idx].Kind, idx)
		return it.traverse(nextSt, traverser, iteration, reachTraverser, reachOthers*strategy[idx], raises)
	}

	pruning := it.Training.Pruning
	if pruning.Enabled && iteration >= pruning.MinIteration {
		if it.Regrets.ShouldPrune(keyStr, len(actions), solverStreet, pruning.Threshold) && it.Rng.Float64() < pruning.Probability {
			it.Stats.NodesPruned++
			return 0
		}
	}

	epsilon := it.Training.Epsilon.At(iteration)
	if it.EpsilonOverride >= 0 {
		epsilon = it.EpsilonOverride
	}
	idx, sampleProb := epsilonGreedySample(it.Rng, strategy, epsilon)

	nextSt := st.Clone()
	raises := advanceRaiseCount(raisesByStreet, st.Street, actions[idx].Kind)
	var sampledUtility float64
	if err := nextSt.Apply(actions[idx]); err != nil {
		sampledUtility = st.Payoffs()[traverser]
	} else {
		nextSt.History = st.History + actionLabel(actions[idx].Kind, idx)
		sampledUtility = it.traverse(nextSt, traverser, iteration, reachTraverser*sampleProb, reachOthers, raises)
	}

	// Outcome sampling only touches the sampled branch this visit: its
	// importance-weighted utility feeds back as the node's counterfactual
	// value, and every other action's regret contribution is the negative of
	// that value scaled by reach - regret-matching still drives unsampled
	// actions toward their true share as they get sampled on later visits.
	// Dividing by the sample probability keeps the estimate unbiased:
	// E[sigma(a)*u(a)/q(a)] over the sampling distribution q recovers
	// sum_a sigma(a)*u(a), the node's true value under sigma.
	nodeUtility := (sampledUtility / sampleProb) * strategy[idx]
	regret := make([]float64, len(actions))
	for i := range actions {
		if i == idx {
			regret[i] = (sampledUtility/sampleProb - nodeUtility) * reachOthers
		} else {
			regret[i] = -nodeUtility * reachOthers
		}
	}

	// Linear MCCFR weights the regret update by the iteration index and the
	// strategy accumulation by iteration*reach; a run with linear weighting
	// disabled falls back to uniform weight 1 on both.
	weight := 1.0
	if it.Training.UseLinearWeighting {
		weight = float64(iteration)
	}
	it.Regrets.UpdateRegretVector(keyStr, regret, weight)
	it.Regrets.AccumulateStrategy(keyStr, strategy, weight*reachTraverser)
	it.Adaptive.RecordVisit(keyStr)

	return nodeUtility
}

func advanceRaiseCount(raisesByStreet map[table.Street]int, street table.Street, kind table.ActionKind) map[table.Street]int {
	if kind != table.Bet && kind != table.Raise {
		return raisesByStreet
	}
	next := make(map[table.Street]int, len(raisesByStreet)+1)
	for k, v := range raisesByStreet {
		next[k] = v
	}
	next[street]++
	return next
}

func (it *Iterator) infoSetKey(st *table.TableState, seat int) InfoSetKey {
	return InfoSetKeyFor(it.Buckets, it.Rng, it.Training.StartingStack, st, seat)
}

// InfoSetKeyFor builds the info-set key a decision point maps to, exported
// so callers outside the training loop (the depth-limited resolver, the
// evaluation harness) key their blueprint lookups identically to how the
// blueprint itself was trained.
func InfoSetKeyFor(buckets *BucketMapper, rng *rand.Rand, startingStack int, st *table.TableState, seat int) InfoSetKey {
	p := st.Players[seat]
	var holeBucket int
	if st.Street == table.Preflop {
		holeBucket = buckets.HoleBucket(p.Hole)
	} else {
		holeBucket = buckets.PostflopBucket(p.Hole, st.Board, rng)
	}
	toCall := st.CurrentBet - p.StreetCommitted
	return InfoSetKey{
		Street:       tableStreetToSolverStreet(st.Street),
		Player:       seat,
		HoleBucket:   holeBucket,
		BoardBucket:  buckets.BoardBucket(st.Board),
		PotBucket:    potBucket(st.Pot(), startingStack),
		ToCallBucket: toCallBucket(toCall, st.Pot()),
		History:      st.History,
	}
}

// LegalAbstractActions exposes legalAbstractActions to other solver
// sub-packages (the depth-limited resolver) that need the exact action menu
// blueprint training used, so a resolved subgame's action set lines up with
// the blueprint strategies it warm-starts from.
func LegalAbstractActions(st *table.TableState, cfg AbstractionConfig, numRaisesThisStreet int, sizing map[table.Street]Sizing) []table.Action {
	return legalAbstractActions(st, cfg, numRaisesThisStreet, sizing, true)
}

// TableStreetToSolverStreet exposes tableStreetToSolverStreet for the
// resolver package.
func TableStreetToSolverStreet(s table.Street) Street {
	return tableStreetToSolverStreet(s)
}

// PotBucket exposes potBucket for the resolver package.
func PotBucket(pot, startingStack int) int {
	return potBucket(pot, startingStack)
}

// ToCallBucket exposes toCallBucket for the resolver package.
func ToCallBucket(toCall, pot int) int {
	return toCallBucket(toCall, pot)
}

// ActionLabel exposes actionLabel for the resolver package.
func ActionLabel(kind table.ActionKind, idx int) string {
	return actionLabel(kind, idx)
}

// AdvanceRaiseCount exposes advanceRaiseCount for the resolver package.
func AdvanceRaiseCount(raisesByStreet map[table.Street]int, street table.Street, kind table.ActionKind) map[table.Street]int {
	return advanceRaiseCount(raisesByStreet, street, kind)
}

// SampleIndex exposes sampleIndex for the resolver package's leaf rollouts.
func SampleIndex(rng *rand.Rand, dist []float64) int {
	return sampleIndex(rng, dist)
}

// sampleIndex draws an action index from a probability distribution.
func sampleIndex(rng *rand.Rand, dist []float64) int {
	r := rng.Float64()
	cum := 0.0
	for i, p := range dist {
		cum += p
		if r <= cum {
			return i
		}
	}
	return len(dist) - 1
}

// epsilonGreedySample draws the traverser's own action under an
// epsilon-greedy exploration policy, returning both the chosen index and
// the probability it was actually sampled with (needed for the
// importance-sampling correction).
func epsilonGreedySample(rng *rand.Rand, strategy []float64, epsilon float64) (int, float64) {
	n := len(strategy)
	if rng.Float64() < epsilon {
		idx := rng.Intn(n)
		prob := epsilon/float64(n) + (1-epsilon)*strategy[idx]
		return idx, prob
	}
	idx := sampleIndex(rng, strategy)
	prob := epsilon/float64(n) + (1-epsilon)*strategy[idx]
	return idx, prob
}
