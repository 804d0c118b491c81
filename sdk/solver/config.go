package solver

import (
	"errors"
	"fmt"
	"time"
)

// SamplingMode controls how opponent actions are handled during traversal.
type SamplingMode uint8

const (
	SamplingModeExternal SamplingMode = iota
	SamplingModeFullTraversal
)

func (m SamplingMode) String() string {
	switch m {
	case SamplingModeExternal:
		return "external"
	case SamplingModeFullTraversal:
		return "full"
	default:
		return "unknown"
	}
}

// DiscountMode selects how the coordinator's periodic ApplyDiscount factors
// are computed: "off", "static", or "dcfr".
type DiscountMode uint8

const (
	// DiscountNone disables periodic discounting ("off").
	DiscountNone DiscountMode = iota
	// DiscountStatic applies a constant (alpha, beta) pair every tick.
	DiscountStatic
	// DiscountDCFR applies the adaptive discounted-CFR alpha/beta schedule,
	// optionally resetting negative regrets to zero each tick (CFR+).
	DiscountDCFR
)

func (m DiscountMode) String() string {
	switch m {
	case DiscountNone:
		return "off"
	case DiscountStatic:
		return "static"
	case DiscountDCFR:
		return "dcfr"
	default:
		return "unknown"
	}
}

// PruningConfig controls regret-based pruning of clearly-dominated actions
// during traversal, per-entry.
type PruningConfig struct {
	// Enabled turns pruning on. DefaultTrainingConfig enables it.
	Enabled bool
	// Threshold is the regret floor (e.g. -3e8) below which an action
	// becomes eligible for pruning.
	Threshold float64
	// Probability is the chance, per visit, that an eligible action is
	// actually skipped (e.g. 0.95) rather than still explored.
	Probability float64
	// MinIteration is the iteration number pruning may start at; it is
	// never applied on the river regardless of this value.
	MinIteration int64
}

// Validate checks the pruning parameters for sanity.
func (p PruningConfig) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.Probability < 0 || p.Probability > 1 {
		return errors.New("pruning probability must be within [0,1]")
	}
	if p.MinIteration < 0 {
		return errors.New("pruning min iteration cannot be negative")
	}
	return nil
}

// EpsilonBreakpoint is one (iteration, epsilon) pair in a piecewise-constant
// exploration schedule: epsilon holds at Value from Iteration onward, until
// the next breakpoint is reached.
type EpsilonBreakpoint struct {
	Iteration int64
	Value     float64
}

// EpsilonSchedule controls the exploration rate used by outcome-sampling
// MCCFR when choosing the traverser's own action. When Breakpoints is
// non-empty it takes precedence (piecewise-constant); otherwise the
// schedule linearly decays from Initial to Final over DecayIterations.
type EpsilonSchedule struct {
	// Initial is the exploration probability used at iteration 0.
	Initial float64
	// Final is the exploration probability the schedule decays toward.
	Final float64
	// DecayIterations is the number of iterations over which Initial
	// linearly decays to Final. Zero means constant at Initial.
	DecayIterations int64
	// Breakpoints, sorted ascending by Iteration, overrides the linear
	// decay with a piecewise-constant schedule when non-empty.
	Breakpoints []EpsilonBreakpoint
}

// IndexAt returns how many breakpoints the schedule has passed by the
// given iteration, recorded in checkpoint metadata so a resumed run picks
// the schedule back up at the same position.
func (s EpsilonSchedule) IndexAt(iteration int64) int {
	index := 0
	for _, bp := range s.Breakpoints {
		if iteration < bp.Iteration {
			break
		}
		index++
	}
	return index
}

// At returns the exploration probability for the given iteration.
func (s EpsilonSchedule) At(iteration int64) float64 {
	if len(s.Breakpoints) > 0 {
		value := s.Breakpoints[0].Value
		for _, bp := range s.Breakpoints {
			if iteration < bp.Iteration {
				break
			}
			value = bp.Value
		}
		return value
	}
	if s.DecayIterations <= 0 {
		return s.Initial
	}
	if iteration >= s.DecayIterations {
		return s.Final
	}
	frac := float64(iteration) / float64(s.DecayIterations)
	return s.Initial + frac*(s.Final-s.Initial)
}

// DefaultEpsilonBreakpoints is the stock piecewise exploration schedule:
// 0.60 -> 0.50 -> 0.40 -> 0.30 -> 0.20 -> 0.12 -> 0.08.
func DefaultEpsilonBreakpoints() []EpsilonBreakpoint {
	return []EpsilonBreakpoint{
		{Iteration: 0, Value: 0.60},
		{Iteration: 200_000, Value: 0.50},
		{Iteration: 500_000, Value: 0.40},
		{Iteration: 1_000_000, Value: 0.30},
		{Iteration: 2_000_000, Value: 0.20},
		{Iteration: 5_000_000, Value: 0.12},
		{Iteration: 10_000_000, Value: 0.08},
	}
}

// AdaptiveEpsilonConfig lets the coordinator advance the epsilon schedule's
// breakpoint ahead of or behind its nominal iteration: up to 30% early
// when both throughput and infoset-growth criteria are exceeded, up to
// 130% of nominal before the next breakpoint is forced regardless.
type AdaptiveEpsilonConfig struct {
	Enabled            bool
	TargetIPS          float64
	MinInfosetGrowth   float64
	WindowMerges       int
}

// AdjustBreakpoint returns the breakpoint iteration to actually use given
// the schedule's nominal value, clamped to the documented +/-30%/130%
// envelope. observedIPS and infosetGrowth are the coordinator's rolling
// measurements over the last WindowMerges merge cycles.
func (a AdaptiveEpsilonConfig) AdjustBreakpoint(nominal int64, observedIPS, infosetGrowth float64) int64 {
	if !a.Enabled || nominal <= 0 {
		return nominal
	}
	switch {
	case observedIPS > a.TargetIPS && infosetGrowth >= a.MinInfosetGrowth:
		early := int64(float64(nominal) * 0.7)
		if early < 0 {
			early = 0
		}
		return early
	case observedIPS < a.TargetIPS || infosetGrowth < a.MinInfosetGrowth:
		return int64(float64(nominal) * 1.3)
	default:
		return nominal
	}
}

// ChunkConfig bounds a single coordinator run to a fixed slice of total
// iterations, so a long training job can be restarted in chunks without
// losing progress.
type ChunkConfig struct {
	// Enabled turns chunked-restart mode on.
	Enabled bool
	// IterationsPerChunk is how many iterations a single process run
	// executes before exiting cleanly (after a final checkpoint).
	IterationsPerChunk int64
}

// MultiInstanceConfig partitions a single blueprint run across N
// independently-launched processes, each owning a disjoint shard of the
// traversal workload and its own checkpoint path; shards are merged offline.
type MultiInstanceConfig struct {
	// Enabled turns multi-instance mode on.
	Enabled bool
	// InstanceIndex is this process's 0-based shard index.
	InstanceIndex int
	// InstanceCount is the total number of cooperating instances.
	InstanceCount int
}

// Validate checks the multi-instance parameters for sanity.
func (m MultiInstanceConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.InstanceCount <= 0 {
		return errors.New("instance count must be > 0")
	}
	if m.InstanceIndex < 0 || m.InstanceIndex >= m.InstanceCount {
		return errors.New("instance index out of range")
	}
	return nil
}

// AbstractionConfig captures the coarse representation used by the solver when
// clustering hands and actions. Values here should align with the abstraction
// used during blueprint generation and runtime consumption.
type AbstractionConfig struct {
	// PreflopBucketCount controls how many distinct holes-card classes the solver
	// will maintain before shared cards are exposed.
	PreflopBucketCount int

	// PostflopBucketCount controls how many buckets community-card textures map into.
	PostflopBucketCount int

	// BetSizing lists bet size fractions relative to the current pot. Values
	// should be monotonic increasing. It is validated and folded into the
	// abstraction hash; the traversal's raise menus come from the fixed
	// per-street catalogue (DefaultSizing) and do not read it.
	BetSizing []float64

	// MaxActionsPerNode caps the number of actions the solver will expand for any
	// decision node (fold/call counted separately from raises).
	MaxActionsPerNode int

	// EnableRaises toggles whether the abstraction exposes raise actions.
	EnableRaises bool

	// MaxRaisesPerBucket is the number of bets/raises on a street after which
	// the raise menu collapses to its single largest size. Zero disables the
	// collapse.
	MaxRaisesPerBucket int
}

// Validate ensures the abstraction is well-formed before training begins.
func (c AbstractionConfig) Validate() error {
	if c.PreflopBucketCount <= 0 {
		return errors.New("preflop bucket count must be > 0")
	}
	if c.PostflopBucketCount <= 0 {
		return errors.New("postflop bucket count must be > 0")
	}
	if c.EnableRaises {
		if len(c.BetSizing) == 0 {
			return errors.New("at least one bet sizing fraction is required")
		}
		last := 0.0
		for i, v := range c.BetSizing {
			if v <= 0 {
				return fmt.Errorf("bet sizing[%d] must be > 0", i)
			}
			if v <= last {
				return fmt.Errorf("bet sizing[%d] must be strictly increasing", i)
			}
			last = v
		}
		if c.MaxActionsPerNode < 3 {
			return errors.New("max actions per node must allow at least fold/call/raise")
		}
		if c.MaxRaisesPerBucket < 0 {
			return errors.New("max raises per bucket cannot be negative")
		}
	} else {
		if len(c.BetSizing) > 0 {
			return errors.New("bet sizing must be empty when raises are disabled")
		}
		if c.MaxActionsPerNode < 2 {
			return errors.New("max actions per node must allow at least fold/call when raises disabled")
		}
	}
	return nil
}

// DiscountConfig parameterizes the coordinator's periodic ApplyDiscount
// calls: Static uses a constant (Alpha, Beta) every Interval iterations;
// DCFR computes alpha/beta as a function of t_global each tick and may
// additionally reset negative regrets to zero (CFR+).
type DiscountConfig struct {
	Mode                   DiscountMode
	Interval               int64
	Alpha                  float64
	Beta                   float64
	ResetNegativeRegrets   bool
}

// TrainingConfig aggregates parameters that control MCCFR execution.
// Exactly one of Iterations and TimeBudgetSeconds sets the training
// horizon.
type TrainingConfig struct {
	Iterations          int
	Players             int
	Seed                int64
	ParallelTables      int
	CheckpointEvery     time.Duration
	ProgressEvery       int
	SmallBlind          int
	BigBlind            int
	StartingStack       int
	EnableRaises        bool
	MaxRaisesPerBucket  int
	AdaptiveRaiseVisits int
	UseCFRPlus          bool
	Sampling            SamplingMode
	UseDCFR             bool
	Discount            DiscountMode
	Pruning             PruningConfig
	Epsilon             EpsilonSchedule
	AdaptiveEpsilon     AdaptiveEpsilonConfig
	Chunking            ChunkConfig
	MultiInstance       MultiInstanceConfig

	// TimeBudgetSeconds bounds the run by wall time instead of an iteration
	// count; mutually exclusive with Iterations. In multi-instance mode
	// every instance runs for the full budget rather than a partitioned
	// iteration shard.
	TimeBudgetSeconds int64

	// UseLinearWeighting selects w=t regret/strategy weighting (linear
	// MCCFR, default true). Disabling it falls back to uniform weight 1 on
	// every update.
	UseLinearWeighting bool

	// NumWorkers is how many goroutine workers the coordinator fans a batch
	// out across; 0 means auto-detect (runtime.NumCPU()).
	NumWorkers int
	// BatchSize is the number of iterations merged per coordinator cycle,
	// the minimum merge period.
	BatchSize int64

	// DiscountConfig drives the coordinator's periodic apply_discount calls.
	DiscountConfig DiscountConfig

	// CheckpointIntervalIterations triggers a checkpoint write whenever
	// t_global crosses a multiple of this many iterations; 0 disables the
	// iteration-based trigger (wall-clock based snapshots may still fire).
	CheckpointIntervalIterations int64
	// SnapshotIntervalSeconds triggers a checkpoint write whenever this much
	// wall time has elapsed since the last one; 0 disables the wall-clock
	// trigger.
	SnapshotIntervalSeconds int64
}

// Validate ensures the training parameters are safe to use.
func (c TrainingConfig) Validate() error {
	if c.Iterations <= 0 && c.TimeBudgetSeconds <= 0 {
		return errors.New("either iterations or time budget seconds must be set")
	}
	if c.Iterations > 0 && c.TimeBudgetSeconds > 0 {
		return errors.New("iterations and time budget seconds are mutually exclusive")
	}
	if c.Players < 2 {
		return errors.New("players must be >= 2")
	}
	if c.ParallelTables <= 0 {
		return errors.New("parallel tables must be > 0")
	}
	if c.CheckpointEvery < 0 {
		return errors.New("checkpoint interval cannot be negative")
	}
	if c.ProgressEvery < 0 {
		return errors.New("progress interval cannot be negative")
	}
	if c.SmallBlind <= 0 {
		return errors.New("small blind must be > 0")
	}
	if c.BigBlind <= c.SmallBlind {
		return errors.New("big blind must be greater than small blind")
	}
	if c.StartingStack <= 0 {
		return errors.New("starting stack must be > 0")
	}
	if c.EnableRaises && c.MaxRaisesPerBucket < 0 {
		return errors.New("max raises per bucket cannot be negative")
	}
	if c.AdaptiveRaiseVisits < 0 {
		return errors.New("adaptive raise visits cannot be negative")
	}
	if c.Sampling > SamplingModeFullTraversal {
		return errors.New("invalid sampling mode")
	}
	if err := c.Pruning.Validate(); err != nil {
		return fmt.Errorf("pruning: %w", err)
	}
	if err := c.MultiInstance.Validate(); err != nil {
		return fmt.Errorf("multi-instance: %w", err)
	}
	if c.Chunking.Enabled && c.Chunking.IterationsPerChunk <= 0 {
		return errors.New("chunk iterations must be > 0 when chunking is enabled")
	}
	if c.Epsilon.Initial < 0 || c.Epsilon.Initial > 1 || c.Epsilon.Final < 0 || c.Epsilon.Final > 1 {
		return errors.New("epsilon schedule values must be within [0,1]")
	}
	for i, bp := range c.Epsilon.Breakpoints {
		if bp.Value < 0 || bp.Value > 1 {
			return fmt.Errorf("epsilon breakpoint[%d] value must be within [0,1]", i)
		}
		if i > 0 && bp.Iteration <= c.Epsilon.Breakpoints[i-1].Iteration {
			return errors.New("epsilon breakpoints must be strictly increasing by iteration")
		}
	}
	if c.NumWorkers < 0 {
		return errors.New("num workers cannot be negative")
	}
	if c.MultiInstance.Enabled && c.NumWorkers > 1 {
		return errors.New("multi-instance mode is incompatible with num workers > 1")
	}
	if c.BatchSize < 0 {
		return errors.New("batch size cannot be negative")
	}
	if c.DiscountConfig.Mode != DiscountNone && c.DiscountConfig.Interval <= 0 {
		return errors.New("discount interval must be > 0 when discounting is enabled")
	}
	if c.CheckpointIntervalIterations < 0 {
		return errors.New("checkpoint interval iterations cannot be negative")
	}
	if c.SnapshotIntervalSeconds < 0 {
		return errors.New("snapshot interval seconds cannot be negative")
	}
	return nil
}

// DefaultAbstraction returns a conservative abstraction suitable for smoke tests.
func DefaultAbstraction() AbstractionConfig {
	return AbstractionConfig{
		PreflopBucketCount:  10,
		PostflopBucketCount: 20,
		BetSizing:           []float64{0.33, 0.5, 0.75, 1.0, 1.5},
		MaxActionsPerNode:   8,
		EnableRaises:        true,
		MaxRaisesPerBucket:  3,
	}
}

// DefaultTrainingConfig returns a minimal configuration for local experimentation.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Iterations:          1000,
		Players:             2,
		Seed:                1,
		ParallelTables:      1,
		CheckpointEvery:     5 * time.Minute,
		ProgressEvery:       0,
		SmallBlind:          5,
		BigBlind:            10,
		StartingStack:       1000,
		EnableRaises:        true,
		MaxRaisesPerBucket:  3,
		AdaptiveRaiseVisits: 500,
		UseCFRPlus:          false,
		Sampling:            SamplingModeExternal,
		UseDCFR:             true,
		Discount:            DiscountDCFR,
		Pruning: PruningConfig{
			Enabled:     true,
			Threshold:   -3e8,
			Probability: 0.95,
		},
		Epsilon: EpsilonSchedule{
			Initial:         0.6,
			Final:           0.05,
			DecayIterations: 1_000_000,
		},
		UseLinearWeighting: true,
		NumWorkers:         0,
		BatchSize:          100,
		DiscountConfig: DiscountConfig{
			Mode:     DiscountDCFR,
			Interval: 1000,
		},
		CheckpointIntervalIterations: 10_000,
		SnapshotIntervalSeconds:      300,
	}
}
