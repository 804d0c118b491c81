// Package resolve implements depth-limited subgame resolving: a short,
// full-width counterfactual-regret search rooted at the actual current game
// state, warm-started from a blueprint's average strategy so a bot's
// real-time decisions stay anchored to blueprint play while adapting to
// bet sizes and board textures the blueprint's coarser abstraction
// collapsed together.
package resolve

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/poker-ai/holdem-solver/internal/table"
	"github.com/poker-ai/holdem-solver/sdk/solver"
	"github.com/poker-ai/holdem-solver/sdk/solver/action"
)

// LeafPolicy selects how every remaining decision is played during the
// rollouts that estimate a depth-limited leaf's value: sampled from the
// blueprint's average strategy, or biased toward one continuation family
// (always-fold, always-call, always-raise).
type LeafPolicy string

const (
	LeafPolicyBlueprint LeafPolicy = "blueprint"
	LeafPolicyFold      LeafPolicy = "fold"
	LeafPolicyCall      LeafPolicy = "call"
	LeafPolicyRaise     LeafPolicy = "raise"
)

// SearchConfig parameterizes one resolve call. It is cheap to construct per
// decision; callers typically hold one long-lived copy and tweak Deadline
// per hand based on the table's clock.
type SearchConfig struct {
	// MaxDepth bounds how many plies of the subgame are expanded with full
	// CFR before falling back to a blueprint-guided rollout leaf estimate.
	MaxDepth int
	// MaxIterations caps the number of full CFR passes over the subgame;
	// the search also stops early if Deadline elapses first.
	MaxIterations int
	// MinIterations is the convergence floor: a solve that the deadline
	// cuts off before completing this many passes is discarded and the
	// blueprint's own strategy returned instead (FALLBACK).
	MinIterations int
	// Deadline is the wall-clock budget for the whole Resolve call.
	Deadline time.Duration
	// LeafRollouts is how many independent blueprint-guided rollouts are
	// averaged to estimate the value of a node beyond MaxDepth.
	LeafRollouts int
	// SentinelFloor is the minimum probability mass every legal action
	// retains in the returned strategy after solving, bounding how far a
	// resolve with too little time to converge can stray from playing
	// every option at least occasionally.
	SentinelFloor float64
	// Seed drives every RNG this resolve spins up; two calls with the same
	// root state, config and seed produce the same strategy.
	Seed int64

	// KLWeightFlop/Turn/River is lambda_street, the weight of the
	// KL-to-blueprint penalty folded into each node's instantaneous regret
	// on that street. Zero disables the penalty on that street.
	KLWeightFlop  float64
	KLWeightTurn  float64
	KLWeightRiver float64
	// KLWeightOOPBonus is added to the street's lambda when the acting
	// player is out of position, keeping the resolver closer to blueprint
	// play in the spot where its coarser abstraction is least trustworthy.
	KLWeightOOPBonus float64

	// PublicCardSamples, when > 1, solves the subgame independently over
	// that many sampled future public-card completions and returns the
	// arithmetic mean strategy; the time budget is divided equally across
	// samples. 0 or 1 solves the single board already on the table.
	PublicCardSamples int

	// Leaf selects the continuation policy rollouts beyond MaxDepth play
	// with; empty defaults to LeafPolicyBlueprint.
	Leaf LeafPolicy
}

// DefaultSearchConfig returns conservative parameters suitable for a
// real-time per-decision resolve against a 200ms-class deadline.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		MaxDepth:          2,
		MaxIterations:     1000,
		MinIterations:     10,
		Deadline:          150 * time.Millisecond,
		LeafRollouts:      4,
		SentinelFloor:     0.02,
		Seed:              1,
		KLWeightFlop:      0.01,
		KLWeightTurn:      0.02,
		KLWeightRiver:     0.03,
		KLWeightOOPBonus:  0.01,
		PublicCardSamples: 1,
		Leaf:              LeafPolicyBlueprint,
	}
}

// klWeight returns lambda_street for the given street and acting seat,
// adding KLWeightOOPBonus when seat is out of position. Heads-up and
// multi-way alike, the button is in position postflop; everyone else is
// out of position.
func (cfg SearchConfig) klWeight(street table.Street, seat, button int) float64 {
	var lambda float64
	switch street {
	case table.Flop:
		lambda = cfg.KLWeightFlop
	case table.Turn:
		lambda = cfg.KLWeightTurn
	case table.River:
		lambda = cfg.KLWeightRiver
	default:
		return 0
	}
	if seat != button {
		lambda += cfg.KLWeightOOPBonus
	}
	return lambda
}

// ResolveTelemetry reports what actually happened during a Resolve call, for
// logging and for the caller to decide whether to trust the result.
type ResolveTelemetry struct {
	State        string
	Iterations   int
	ElapsedMs    int64
	InfoSetCount int
	// Samples is the number of public-card completions averaged together;
	// 0 or 1 means public-card sampling was not used.
	Samples int
	// Variance is the mean per-action squared deviation from the averaged
	// strategy across samples, 0 when Samples <= 1.
	Variance float64
	// KLToBlueprint is KL(returned strategy || blueprint strategy) at the
	// root infoset, 0 on fallback by construction.
	KLToBlueprint float64
}

// Result is the outcome of one Resolve call: a probability distribution over
// the concrete table.Action menu available at the root, plus telemetry.
type Result struct {
	Actions   []table.Action
	Strategy  []float64
	Telemetry ResolveTelemetry
}

// Resolver holds the blueprint and abstraction a subgame search is anchored
// to. One Resolver is safe for concurrent Resolve calls: each call builds
// its own private RegretStore.
type Resolver struct {
	Blueprint   *solver.Blueprint
	Abstraction solver.AbstractionConfig
	Sizing      map[table.Street]action.Sizing

	buckets *solver.BucketMapper
	clock   quartz.Clock
	logger  zerolog.Logger
}

// NewResolver builds a Resolver bound to a loaded blueprint. clock defaults
// to the real wall clock; pass a quartz.Mock in tests for deterministic
// deadline behavior.
func NewResolver(bp *solver.Blueprint, clock quartz.Clock, logger zerolog.Logger) (*Resolver, error) {
	if bp == nil {
		return nil, fmt.Errorf("%w: blueprint is nil", solver.ErrConfiguration)
	}
	mapper, err := solver.NewBucketMapper(bp.Abstraction)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Resolver{
		Blueprint:   bp,
		Abstraction: bp.Abstraction,
		Sizing:      action.DefaultCatalogue(),
		buckets:     mapper,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Resolve runs the INIT -> BUILD_SUBGAME -> WARM_START -> SOLVE_LOOP ->
// RETURN state machine rooted at root for the acting seat, falling back
// straight to the blueprint's own strategy (FALLBACK) whenever the subgame
// cannot be built or the deadline leaves no time to run even one pass. When
// cfg.PublicCardSamples > 1, it instead solves that many independently
// sampled future board completions in parallel and returns their arithmetic
// mean strategy.
func (r *Resolver) Resolve(ctx context.Context, root *table.TableState, seat int, cfg SearchConfig) (*Result, error) {
	start := r.clock.Now()

	samples := cfg.PublicCardSamples
	if samples <= 1 {
		result, err := r.resolveSingleBoard(ctx, root, root, nil, seat, cfg, start, cfg.Deadline)
		return result, err
	}

	perSample := cfg
	perSample.PublicCardSamples = 1
	perSample.Deadline = cfg.Deadline / time.Duration(samples)

	boardRng := rand.New(rand.NewSource(cfg.Seed))
	g, gctx := errgroup.WithContext(ctx)
	results := make([]*Result, samples)
	for i := 0; i < samples; i++ {
		i := i
		sampleCfg := perSample
		sampleCfg.Seed = boardRng.Int63()
		reshuffleSeed := boardRng.Int63()
		sampledRoot := root.Clone()
		sampledRoot.Deck.ReshuffleRemaining(rand.New(rand.NewSource(reshuffleSeed)))
		g.Go(func() error {
			res, err := r.resolveSingleBoard(gctx, sampledRoot, sampledRoot, nil, seat, sampleCfg, start, sampleCfg.Deadline)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return averageResolveResults(results, r.clock.Now().Sub(start)), nil
}

// resolveSingleBoard runs the resolve state machine against exactly one
// board (the one already dealt on root), the single-sample case Resolve
// falls back to when public-card sampling is disabled. query is the state
// whose infoset the returned strategy answers for — the same as root except
// in street-start rewind mode, where root is the street's first decision
// and query is the hero's actual current one, reached by replaying the
// frozen hero actions.
func (r *Resolver) resolveSingleBoard(ctx context.Context, root, query *table.TableState, frozen []table.Action, seat int, cfg SearchConfig, start time.Time, budget time.Duration) (*Result, error) {
	deadline := start.Add(budget)

	queryRaises := frozenRaiseCount(frozen)
	actions := solver.LegalAbstractActions(query, r.Abstraction, queryRaises, r.Sizing)
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: no legal actions at resolve root", solver.ErrConfiguration)
	}

	key := r.infoSetKey(query, seat)
	blueprintStrategy := r.blueprintStrategyOrUniform(key, len(actions))

	fallback := func() *Result {
		return &Result{
			Actions:  actions,
			Strategy: blueprintStrategy,
			Telemetry: ResolveTelemetry{
				State:     "FALLBACK",
				ElapsedMs: r.clock.Now().Sub(start).Milliseconds(),
			},
		}
	}

	if budget <= 0 || cfg.MaxIterations <= 0 || r.clock.Now().After(deadline) {
		return fallback(), nil
	}

	store := solver.NewRegretStore()
	seeded := make(map[string]bool)

	rng := rand.New(rand.NewSource(cfg.Seed))
	iterations := 0
	cancelled := false
	for ; iterations < cfg.MaxIterations; iterations++ {
		if r.clock.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			iterations = 0
			break
		}
		r.cfrIteration(ctx, store, root, seat, 0, rng, cfg, deadline, make(map[table.Street]int), seeded, frozen)
	}

	// A solve the deadline cut off before MinIterations has not converged
	// enough to trust over the blueprint; discard it.
	if iterations == 0 || iterations < cfg.MinIterations {
		res := fallback()
		res.Telemetry.Iterations = iterations
		return res, nil
	}

	strategy := store.AverageStrategy(key.String(), len(actions))
	applySentinelFloor(strategy, cfg.SentinelFloor)

	return &Result{
		Actions:  actions,
		Strategy: strategy,
		Telemetry: ResolveTelemetry{
			State:         "SOLVED",
			Iterations:    iterations,
			ElapsedMs:     r.clock.Now().Sub(start).Milliseconds(),
			InfoSetCount:  store.Size(),
			KLToBlueprint: klDivergence(strategy, blueprintStrategy),
		},
	}, nil
}

// klDivergence computes KL(p || q) over two distributions of equal width,
// skipping zero-probability terms; actions q gives zero mass are ignored
// rather than producing an infinite divergence, since the sentinel floor
// already guarantees p stays proper.
func klDivergence(p, q []float64) float64 {
	total := 0.0
	for i := range p {
		if p[i] > 0 && i < len(q) && q[i] > 0 {
			total += p[i] * math.Log(p[i]/q[i])
		}
	}
	return total
}

// frozenRaiseCount counts the aggressive actions among the hero's frozen
// in-street history, the lower bound on this street's raise count the
// query node's sizing menu is built against.
func frozenRaiseCount(frozen []table.Action) int {
	count := 0
	for _, a := range frozen {
		if a.Kind == table.Bet || a.Kind == table.Raise {
			count++
		}
	}
	return count
}

// ResolveFromStreetStart rebuilds the subgame at the current street's first
// decision point rather than mid-street: streetStart is the state as the
// street opened, current is the hero's actual decision point, and
// frozenHero is the sequence of in-street actions the hero already took,
// replayed deterministically at the hero's decision nodes during the solve.
// Opponent in-street actions are deliberately NOT frozen — the solve lets
// opponents re-choose freely at every node, the documented unsafe-search
// semantics — so the returned strategy at current's infoset prices in
// opponent lines that did not happen. Construction is refused (FALLBACK on
// the blueprint at current) when the two states disagree on street or
// board, since replaying frozen actions against a different public state
// would violate the subgame's invariants.
func (r *Resolver) ResolveFromStreetStart(ctx context.Context, streetStart, current *table.TableState, frozenHero []table.Action, seat int, cfg SearchConfig) (*Result, error) {
	start := r.clock.Now()

	if streetStart.Street != current.Street || streetStart.Board != current.Board {
		actions := solver.LegalAbstractActions(current, r.Abstraction, frozenRaiseCount(frozenHero), r.Sizing)
		if len(actions) == 0 {
			return nil, fmt.Errorf("%w: no legal actions at resolve root", solver.ErrConfiguration)
		}
		key := r.infoSetKey(current, seat)
		return &Result{
			Actions:  actions,
			Strategy: r.blueprintStrategyOrUniform(key, len(actions)),
			Telemetry: ResolveTelemetry{
				State:     "FALLBACK",
				ElapsedMs: r.clock.Now().Sub(start).Milliseconds(),
			},
		}, nil
	}

	return r.resolveSingleBoard(ctx, streetStart, current, frozenHero, seat, cfg, start, cfg.Deadline)
}

// averageResolveResults combines independent per-sample resolves into one
// arithmetic-mean strategy, tracking the per-action variance across
// samples so callers can judge how much the board completion changed the
// answer.
func averageResolveResults(results []*Result, elapsed time.Duration) *Result {
	n := len(results)
	width := len(results[0].Strategy)
	mean := make([]float64, width)
	totalIterations := 0
	totalInfoSets := 0
	fellBack := 0
	for _, res := range results {
		for i, p := range res.Strategy {
			mean[i] += p
		}
		totalIterations += res.Telemetry.Iterations
		totalInfoSets += res.Telemetry.InfoSetCount
		if res.Telemetry.State == "FALLBACK" {
			fellBack++
		}
	}
	meanKL := 0.0
	for _, res := range results {
		meanKL += res.Telemetry.KLToBlueprint
	}
	meanKL /= float64(n)
	for i := range mean {
		mean[i] /= float64(n)
	}

	variance := 0.0
	for _, res := range results {
		for i, p := range res.Strategy {
			d := p - mean[i]
			variance += d * d
		}
	}
	variance /= float64(n * width)

	state := "SOLVED"
	if fellBack == n {
		state = "FALLBACK"
	}

	return &Result{
		Actions:  results[0].Actions,
		Strategy: mean,
		Telemetry: ResolveTelemetry{
			State:         state,
			Iterations:    totalIterations,
			ElapsedMs:     elapsed.Milliseconds(),
			InfoSetCount:  totalInfoSets,
			Samples:       n,
			Variance:      variance,
			KLToBlueprint: meanKL,
		},
	}
}

// cfrIteration runs one full-width (non-sampled) CFR pass over the subgame
// rooted at st, returning the acting-seat's counterfactual value. Vanilla
// (not outcome-sampled) CFR is tractable here because MaxDepth keeps the
// subgame small, and full enumeration converges in far fewer iterations
// than sampling would within a real-time deadline. seeded tracks which
// info sets this call has already warm-started from the blueprint so a
// later visit regret-matches off the accumulated regret instead of
// re-seeding over it.
func (r *Resolver) cfrIteration(ctx context.Context, store *solver.RegretStore, st *table.TableState, seat, depth int, rng *rand.Rand, cfg SearchConfig, deadline time.Time, raisesByStreet map[table.Street]int, seeded map[string]bool, frozen []table.Action) float64 {
	if st.IsTerminal() {
		return st.Payoffs()[seat]
	}
	if depth >= cfg.MaxDepth || r.clock.Now().After(deadline) {
		return r.leafValue(ctx, st, seat, rng, cfg)
	}

	acting := st.ToAct
	actions := solver.LegalAbstractActions(st, r.Abstraction, raisesByStreet[st.Street], r.Sizing)
	if len(actions) == 0 {
		return st.Payoffs()[seat]
	}

	// Street-start rewind: the hero's already-taken in-street actions are
	// frozen — replayed with probability one and no regret update, since the
	// hero cannot revise the past — while opponent nodes branch freely.
	// Frozen plies do not consume search depth; they are history, not
	// lookahead.
	if acting == seat && len(frozen) > 0 {
		idx := matchFrozenAction(actions, frozen[0])
		next := st.Clone()
		nextRaises := solver.AdvanceRaiseCount(raisesByStreet, st.Street, actions[idx].Kind)
		if err := next.Apply(actions[idx]); err != nil {
			return st.Payoffs()[seat]
		}
		next.History = st.History + solver.ActionLabel(actions[idx].Kind, idx)
		return r.cfrIteration(ctx, store, next, seat, depth, rng, cfg, deadline, nextRaises, seeded, frozen[1:])
	}

	key := r.infoSetKey(st, acting)
	keyStr := key.String()
	blueprintAtNode := r.blueprintStrategyOrUniform(key, len(actions))
	if !seeded[keyStr] {
		// Warm start: every infoset the subgame
		// touches starts with regrets proportional to the blueprint's own
		// average strategy, so its initial regret-matching strategy matches
		// blueprint play exactly, before this solve's own evidence nudges it.
		store.SeedStrategy(keyStr, blueprintAtNode, 1.0)
		seeded[keyStr] = true
	}
	strategy := store.CurrentStrategy(keyStr, len(actions))

	utilities := make([]float64, len(actions))
	nodeUtility := 0.0
	for i, a := range actions {
		next := st.Clone()
		nextRaises := solver.AdvanceRaiseCount(raisesByStreet, st.Street, a.Kind)
		if err := next.Apply(a); err != nil {
			utilities[i] = st.Payoffs()[seat]
		} else {
			next.History = st.History + solver.ActionLabel(a.Kind, i)
			utilities[i] = r.cfrIteration(ctx, store, next, seat, depth+1, rng, cfg, deadline, nextRaises, seeded, frozen)
		}
		nodeUtility += strategy[i] * utilities[i]
	}

	// Every decision point updates its own regrets, not just the hero's:
	// this is full CFR over the subgame, and both seats' average
	// strategies need to converge for the hero's warm-started regrets to
	// mean anything against a responsive opponent. In two-player zero-sum
	// play the non-hero seat's counterfactual value is simply the negation
	// of the hero's, since utilities[] is always computed with respect to
	// `seat`; with more than two players only the hero's own node updates,
	// since a third seat's counterfactual value is not a simple negation.
	if acting == seat || len(st.Players) == 2 {
		regret := make([]float64, len(actions))
		for i := range actions {
			regret[i] = utilities[i] - nodeUtility
		}
		if acting != seat {
			for i := range regret {
				regret[i] = -regret[i]
			}
		}
		if lambda := cfg.klWeight(st.Street, acting, st.Button); lambda > 0 {
			for i, p := range strategy {
				if p > 0 && blueprintAtNode[i] > 0 {
					regret[i] -= lambda * p * math.Log(p/blueprintAtNode[i])
				}
			}
		}
		store.UpdateRegretVector(keyStr, regret, 1.0)
		store.AccumulateStrategy(keyStr, strategy, 1.0)
	}

	return nodeUtility
}

// blueprintStrategyOrUniform looks up the blueprint's average strategy at
// key, falling back to uniform when the blueprint never visited this exact
// info set (common for subgame-only histories the blueprint's coarser
// abstraction collapsed away) or its action count disagrees with the live
// menu.
func (r *Resolver) blueprintStrategyOrUniform(key solver.InfoSetKey, actions int) []float64 {
	strategy, ok := r.Blueprint.Strategy(key)
	if !ok || len(strategy) != actions {
		return uniform(actions)
	}
	return strategy
}

// leafValue estimates the value of a subgame node beyond MaxDepth by
// averaging LeafRollouts independent playouts, each playing every
// remaining decision (both seats) under cfg.Leaf: sampled from the
// blueprint's average strategy by default, or a fixed fold, call or raise
// continuation.
// The rollouts run concurrently via errgroup since they share no state.
func (r *Resolver) leafValue(ctx context.Context, st *table.TableState, seat int, rng *rand.Rand, cfg SearchConfig) float64 {
	rollouts := cfg.LeafRollouts
	if rollouts <= 0 {
		rollouts = 1
	}

	g, _ := errgroup.WithContext(ctx)
	values := make([]float64, rollouts)
	for i := 0; i < rollouts; i++ {
		i := i
		seed := rng.Int63()
		g.Go(func() error {
			values[i] = r.rollout(st.Clone(), seat, rand.New(rand.NewSource(seed)), cfg.Leaf)
			return nil
		})
	}
	_ = g.Wait()

	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(rollouts)
}

func (r *Resolver) rollout(st *table.TableState, seat int, rng *rand.Rand, policy LeafPolicy) float64 {
	raisesByStreet := make(map[table.Street]int)
	for !st.IsTerminal() {
		actions := solver.LegalAbstractActions(st, r.Abstraction, raisesByStreet[st.Street], r.Sizing)
		if len(actions) == 0 {
			return st.Payoffs()[seat]
		}
		var idx int
		if policy == "" || policy == LeafPolicyBlueprint {
			key := r.infoSetKey(st, st.ToAct)
			strategy, ok := r.Blueprint.Strategy(key)
			if !ok || len(strategy) != len(actions) {
				strategy = uniform(len(actions))
			}
			idx = solver.SampleIndex(rng, strategy)
		} else {
			idx = leafPolicyIndex(policy, actions)
		}
		raisesByStreet = solver.AdvanceRaiseCount(raisesByStreet, st.Street, actions[idx].Kind)
		if err := st.Apply(actions[idx]); err != nil {
			return st.Payoffs()[seat]
		}
		st.History = st.History + solver.ActionLabel(actions[idx].Kind, idx)
	}
	return st.Payoffs()[seat]
}

// leafPolicyIndex picks the action a biased continuation policy plays:
// fold when legal (falling back to check/call), always check/call, or the
// largest aggressive size on the menu. Blueprint sampling is handled by
// the caller since it needs the infoset lookup.
func leafPolicyIndex(policy LeafPolicy, actions []table.Action) int {
	checkCall := 0
	for i, a := range actions {
		if a.Kind == table.Check || a.Kind == table.Call {
			checkCall = i
			break
		}
	}
	switch policy {
	case LeafPolicyFold:
		for i, a := range actions {
			if a.Kind == table.Fold {
				return i
			}
		}
		return checkCall
	case LeafPolicyRaise:
		for i := len(actions) - 1; i >= 0; i-- {
			switch actions[i].Kind {
			case table.Bet, table.Raise, table.AllIn:
				return i
			}
		}
		return checkCall
	default:
		return checkCall
	}
}

// matchFrozenAction locates the menu entry closest to a recorded hero
// action: exact kind plus nearest amount for sized actions, the matching
// kind otherwise, check/call as the last resort (a frozen action can fail
// to match exactly when the adaptive sizing menu differs between play time
// and resolve time).
func matchFrozenAction(actions []table.Action, want table.Action) int {
	best := -1
	bestDist := 0
	for i, a := range actions {
		if a.Kind != want.Kind {
			continue
		}
		dist := a.Amount - want.Amount
		if dist < 0 {
			dist = -dist
		}
		if best == -1 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best >= 0 {
		return best
	}
	for i, a := range actions {
		if a.Kind == table.Check || a.Kind == table.Call {
			return i
		}
	}
	return 0
}

func (r *Resolver) infoSetKey(st *table.TableState, seat int) solver.InfoSetKey {
	p := st.Players[seat]
	var holeBucket int
	if st.Street == table.Preflop {
		holeBucket = r.buckets.HoleBucket(p.Hole)
	} else {
		holeBucket = r.buckets.PostflopBucket(p.Hole, st.Board, rand.New(rand.NewSource(int64(seat)+1)))
	}
	toCall := st.CurrentBet - p.StreetCommitted
	return solver.InfoSetKey{
		Street:       solver.TableStreetToSolverStreet(st.Street),
		Player:       seat,
		HoleBucket:   holeBucket,
		BoardBucket:  r.buckets.BoardBucket(st.Board),
		PotBucket:    solver.PotBucket(st.Pot(), startingStackOf(st)),
		ToCallBucket: solver.ToCallBucket(toCall, st.Pot()),
		History:      st.History,
	}
}

// startingStackOf approximates the starting stack from the largest stack
// still at the table, used only to bucket the pot ratio consistently with
// how training computed the same bucket.
func startingStackOf(st *table.TableState) int {
	max := 0
	for _, p := range st.Players {
		if p.Stack+p.StreetCommitted > max {
			max = p.Stack + p.StreetCommitted
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	v := 1.0 / float64(n)
	for i := range out {
		out[i] = v
	}
	return out
}

// applySentinelFloor gives every action a probability of at least floor,
// sharing the remaining 1-n*floor mass in proportion to the original
// probabilities, so a resolve that barely converged never fully zeroes out
// a legal action.
func applySentinelFloor(strategy []float64, floor float64) {
	if floor <= 0 || len(strategy) == 0 {
		return
	}
	n := float64(len(strategy))
	if floor*n >= 1 {
		floor = 1.0 / n
	}
	total := 0.0
	for _, p := range strategy {
		total += p
	}
	spare := 1 - floor*n
	for i, p := range strategy {
		if total <= 0 {
			strategy[i] = 1.0 / n
			continue
		}
		strategy[i] = floor + spare*p/total
	}
}
