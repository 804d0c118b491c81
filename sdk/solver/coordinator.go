package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/poker-ai/holdem-solver/internal/fileutil"
)

// ProgressRecord is the JSON shape the coordinator writes to its progress
// file every merge cycle, so an outer supervisor can watch a run without
// attaching to its logs.
type ProgressRecord struct {
	// Status is one of "starting", "running", "completed", "failed",
	// "interrupted".
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"last_update"`
	Iteration       int64     `json:"current_iter"`
	InfoSets        int       `json:"info_sets"`
	IterationsPerSec float64  `json:"iterations_per_sec"`
	Epsilon         float64   `json:"epsilon"`
	DiscountGammaR  float64   `json:"discount_gamma_r"`
	DiscountGammaS  float64   `json:"discount_gamma_s"`
	WorkerFailures  int       `json:"worker_failures"`

	// InstanceID, StartIter, EndIter, and ProgressPct are only populated in
	// multi-instance mode; they stay zero-valued and are omitted from JSON
	// in single-instance runs, except that every "completed" record reports
	// ProgressPct 100.
	InstanceID  int     `json:"instance_id,omitempty"`
	StartIter   int64   `json:"start_iter,omitempty"`
	EndIter     int64   `json:"end_iter,omitempty"`
	ProgressPct float64 `json:"progress_pct,omitempty"`
}

// Coordinator fans a blueprint-training run out across goroutine workers,
// merging their regret deltas into a single authoritative RegretStore and
// periodically checkpointing it to disk. Workers are a persistent pool fed
// over task/result channels, so a worker failure costs one discarded batch
// rather than the whole run.
type Coordinator struct {
	Abstraction AbstractionConfig
	Training    TrainingConfig
	Store       *RegretStore
	Logger      zerolog.Logger
	Clock       quartz.Clock

	// Adaptive is shared across every worker goroutine's Iterator so
	// per-info-set visit counts accumulate over the whole run rather than
	// resetting every batch; gated by TrainingConfig.AdaptiveRaiseVisits.
	Adaptive *AdaptiveRaiseTracker

	// CheckpointDir is where SaveCheckpoint writes the .policy/.meta/.regrets
	// triple; empty disables checkpointing entirely.
	CheckpointDir string
	// RunID names the checkpoint triple (e.g. "blueprint"); merge cycles
	// overwrite the same id, so a crash never leaves more than one run's
	// worth of partially-superseded files around.
	RunID string

	// ProgressPath, when non-empty, is a JSON file the coordinator rewrites
	// atomically with its latest ProgressRecord every merge cycle and on
	// every status transition (starting/running/completed/failed/
	// interrupted).
	ProgressPath string

	startIteration int64
	button         int

	// instanceStart/instanceEnd bound the half-open iteration range this
	// process owns in multi-instance mode; in single-instance mode they
	// default to [0, Training.Iterations).
	instanceStart int64
	instanceEnd   int64

	lastCheckpointWall time.Time
	lastCheckpointIter int64

	completedIterations int64

	// OnProgress, when set, is invoked once per merge cycle instead of (or in
	// addition to) writing to Logger; tests use this to observe cycles
	// without touching disk.
	OnProgress func(ProgressRecord)
}

// NewCoordinator builds a fresh coordinator starting from iteration 0.
func NewCoordinator(abs AbstractionConfig, train TrainingConfig, logger zerolog.Logger, clock quartz.Clock) (*Coordinator, error) {
	if err := abs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := train.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	start, end := instanceIterationRange(int64(train.Iterations), train.MultiInstance)
	if train.TimeBudgetSeconds > 0 {
		// Time-budget mode: no iteration horizon; every instance runs for
		// the full wall-clock budget rather than a partitioned shard.
		start, end = 0, math.MaxInt64
	}
	return &Coordinator{
		Abstraction:    abs,
		Training:       train,
		Store:          NewRegretStore(),
		Logger:         logger,
		Clock:          clock,
		Adaptive:       NewAdaptiveRaiseTracker(int64(train.AdaptiveRaiseVisits)),
		startIteration: start,
		instanceStart:  start,
		instanceEnd:    end,
	}, nil
}

// instanceIterationRange computes the half-open [start, end) iteration range
// a given instance owns, splitting total as evenly as possible across
// InstanceCount instances the same way partitionBatch splits a batch across
// workers (first r instances get one extra iteration). Single-instance mode
// (the default) owns the whole [0, total) range.
func instanceIterationRange(total int64, cfg MultiInstanceConfig) (start, end int64) {
	if !cfg.Enabled || cfg.InstanceCount <= 1 {
		return 0, total
	}
	parts := partitionBatch(total, cfg.InstanceCount)
	for i := 0; i < cfg.InstanceIndex; i++ {
		start += parts[i]
	}
	end = start + parts[cfg.InstanceIndex]
	return start, end
}

// ResumeCoordinator rebuilds a coordinator from a previously saved checkpoint
// triple, refusing to resume (ErrAbstractionMismatch) if the checkpoint's
// bucket hash does not describe abs.
func ResumeCoordinator(dir, id string, abs AbstractionConfig, train TrainingConfig, logger zerolog.Logger, clock quartz.Clock) (*Coordinator, error) {
	c, err := NewCoordinator(abs, train, logger, clock)
	if err != nil {
		return nil, err
	}
	loaded, err := LoadCheckpoint(dir, id, abs)
	if err != nil {
		return nil, err
	}
	c.Store = loaded.Store
	c.startIteration = loaded.Meta.Iteration
	if c.startIteration < c.instanceStart {
		c.startIteration = c.instanceStart
	}
	c.CheckpointDir = dir
	c.RunID = id
	return c, nil
}

type workerTask struct {
	baseline  map[string]CellSnapshot
	startIter int64
	count     int64
	button    int
	rngSeed   int64
	// epsilon overrides the schedule-derived exploration rate for this
	// batch when >= 0 (adaptive epsilon mode); -1 uses the schedule.
	epsilon float64
}

type workerResult struct {
	workerIdx int
	count     int64
	delta     map[string]CellSnapshot
	stats     TraversalStats
	err       error
}

// workerLoop is a persistent goroutine that pulls batches off tasks and
// pushes merge deltas onto results until tasks is closed; workers and the
// coordinator share no mutable state besides these channels.
func (c *Coordinator) workerLoop(idx int, tasks <-chan workerTask, results chan<- workerResult) {
	for task := range tasks {
		results <- c.runBatch(idx, task)
	}
}

func (c *Coordinator) runBatch(idx int, task workerTask) (result workerResult) {
	defer func() {
		if r := recover(); r != nil {
			result = workerResult{workerIdx: idx, err: fmt.Errorf("%w: worker %d panic: %v", ErrWorkerFailure, idx, r)}
		}
	}()

	local := RestoreRegretStore(task.baseline)
	rng := rand.New(rand.NewSource(task.rngSeed))
	it, err := NewIterator(c.Abstraction, c.Training, local, rng, c.Adaptive)
	if err != nil {
		return workerResult{workerIdx: idx, err: fmt.Errorf("%w: %v", ErrWorkerFailure, err)}
	}
	it.EpsilonOverride = task.epsilon

	for i := int64(0); i < task.count; i++ {
		it.RunIteration(task.startIter+i+1, (task.button+int(i))%c.Training.Players)
	}

	return workerResult{
		workerIdx: idx,
		count:     task.count,
		delta:     local.DeltaSince(task.baseline),
		stats:     it.Stats,
	}
}

// partitionBatch splits total iterations as evenly as possible across
// workers workers: with total = q*workers + r, the first r workers get
// q+1 iterations, the rest get q, so nothing is lost to rounding.
func partitionBatch(total int64, workers int) []int64 {
	parts := make([]int64, workers)
	if workers <= 0 {
		return parts
	}
	q := total / int64(workers)
	r := total % int64(workers)
	for i := range parts {
		parts[i] = q
		if int64(i) < r {
			parts[i]++
		}
	}
	return parts
}

// Run drives the coordinator to completion (or until ctx is cancelled),
// fanning each batch out across NumWorkers goroutines, merging their
// deltas, applying the configured periodic discount, and checkpointing on
// both the iteration- and wall-clock-based triggers.
func (c *Coordinator) Run(ctx context.Context) error {
	workers := c.Training.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}

	tasks := make(chan workerTask, workers)
	results := make(chan workerResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c.workerLoop(idx, tasks, results)
		}(i)
	}
	defer func() {
		close(tasks)
		wg.Wait()
	}()

	tGlobal := c.startIteration
	total := c.instanceEnd
	instanceSalt := int64(c.Training.MultiInstance.InstanceIndex) * 0x9E3779B9
	trainStart := c.Clock.Now()
	c.lastCheckpointWall = trainStart
	c.lastCheckpointIter = tGlobal
	adaptive := newAdaptiveEpsilonState(c.Training.AdaptiveEpsilon, c.Training.Epsilon, c.Store.Size())
	c.reportProgress("starting", tGlobal, TraversalStats{}, 0, 0, c.Training.Epsilon.At(tGlobal))

	for tGlobal < total {
		if budget := c.Training.TimeBudgetSeconds; budget > 0 {
			if c.Clock.Now().Sub(trainStart) >= time.Duration(budget)*time.Second {
				break
			}
		}
		select {
		case <-ctx.Done():
			c.Logger.Warn().Int64("iteration", tGlobal).Msg("training interrupted, writing final checkpoint")
			if err := c.checkpointNow(tGlobal); err != nil {
				c.Logger.Error().Err(err).Msg("final checkpoint failed")
			}
			c.reportProgress("interrupted", tGlobal, TraversalStats{}, 0, 0, c.Training.Epsilon.At(tGlobal))
			return ctx.Err()
		default:
		}

		remaining := total - tGlobal
		batch := c.Training.BatchSize
		if batch <= 0 {
			batch = remaining
			if c.Training.TimeBudgetSeconds > 0 {
				batch = defaultTimeBudgetBatch
			}
		}
		if batch > remaining {
			batch = remaining
		}

		epsilon := -1.0
		if c.Training.AdaptiveEpsilon.Enabled {
			epsilon = adaptive.epsilonAt(tGlobal)
		}

		// Reseeded per batch from (Seed, instance, tGlobal) so a resumed run
		// hands out the same worker seeds as an uninterrupted one.
		seedRng := rand.New(rand.NewSource(c.Training.Seed ^ instanceSalt ^ (tGlobal + 1)))
		cycleStart := c.Clock.Now()
		parts := partitionBatch(batch, workers)
		baseline := c.Store.Snapshot()
		pending := 0
		for _, n := range parts {
			if n == 0 {
				continue
			}
			pending++
			tasks <- workerTask{
				baseline:  baseline,
				startIter: tGlobal,
				count:     n,
				button:    c.button,
				rngSeed:   seedRng.Int63(),
				epsilon:   epsilon,
			}
		}

		var advanced int64
		var mergedStats TraversalStats
		failures := 0
		for i := 0; i < pending; i++ {
			res := <-results
			if res.err != nil {
				failures++
				c.Logger.Warn().Err(res.err).Msg("discarding failed worker batch")
				continue
			}
			c.Store.MergeDelta(res.delta)
			advanced += res.count
			mergedStats.Add(res.stats)
		}
		cycleElapsed := c.Clock.Now().Sub(cycleStart)
		adaptive.observe(advanced, cycleElapsed, c.Store.Size())

		if failures == pending && pending > 0 {
			c.Logger.Error().Msg("entire batch failed across all workers, aborting run")
			if err := c.checkpointNow(tGlobal); err != nil {
				c.Logger.Error().Err(err).Msg("final checkpoint failed")
			}
			c.reportProgress("failed", tGlobal, mergedStats, failures, cycleElapsed, scheduleEpsilon(epsilon, c.Training.Epsilon, tGlobal))
			return fmt.Errorf("%w: all %d workers failed this batch", ErrWorkerFailure, pending)
		}

		if mergedStats.InvariantViolations > 0 {
			c.Logger.Warn().
				Int64("iteration", tGlobal).
				Int64("invariant_violations", mergedStats.InvariantViolations).
				Msg("traversal invariant violation detected, affected branches aborted")
		}

		tGlobal += advanced
		c.button = (c.button + 1) % c.Training.Players

		if c.Training.DiscountConfig.Mode != DiscountNone {
			interval := c.Training.DiscountConfig.Interval
			if interval > 0 && (tGlobal-advanced)/interval != tGlobal/interval {
				alpha, beta := c.discountFactors(tGlobal)
				c.Store.ApplyDiscount(alpha, beta)
				if c.Training.DiscountConfig.ResetNegativeRegrets {
					c.Store.ResetNegativeRegrets()
				}
			}
		}

		c.reportProgress("running", tGlobal, mergedStats, failures, cycleElapsed, scheduleEpsilon(epsilon, c.Training.Epsilon, tGlobal))

		if c.shouldCheckpoint(tGlobal) {
			if err := c.checkpointNow(tGlobal); err != nil {
				c.Logger.Error().Err(err).Msg("periodic checkpoint failed")
			}
		}

		if c.Training.Chunking.Enabled && tGlobal-c.startIteration >= c.Training.Chunking.IterationsPerChunk {
			c.Logger.Info().Int64("iteration", tGlobal).Msg("chunk boundary reached, exiting cleanly")
			err := c.checkpointNow(tGlobal)
			c.completedIterations = tGlobal
			c.reportProgress("completed", tGlobal, TraversalStats{}, 0, 0, scheduleEpsilon(epsilon, c.Training.Epsilon, tGlobal))
			return err
		}
	}

	err := c.checkpointNow(tGlobal)
	c.completedIterations = tGlobal
	c.reportProgress("completed", tGlobal, TraversalStats{}, 0, 0, c.Training.Epsilon.At(tGlobal))
	return err
}

// defaultTimeBudgetBatch bounds a merge cycle when the run has a wall-time
// horizon and no explicit BatchSize (there is no iteration remainder to
// clamp against in that mode).
const defaultTimeBudgetBatch = 1024

// scheduleEpsilon picks the epsilon to report: the adaptive override when
// one was in force this cycle, the schedule's value otherwise.
func scheduleEpsilon(override float64, schedule EpsilonSchedule, tGlobal int64) float64 {
	if override >= 0 {
		return override
	}
	return schedule.At(tGlobal)
}

// CompletedIterations reports t_global at the end of the last Run call,
// which callers building a blueprint need in time-budget mode where the
// config carries no iteration count.
func (c *Coordinator) CompletedIterations() int64 {
	return c.completedIterations
}

// discountFactors computes the (alpha, beta) pair ApplyDiscount should use
// this tick. Static mode uses the fixed configured values; DCFR mode follows
// the standard discounted-CFR schedule, alpha = t/(t+1), beta = (t-1)/t,
// clamped so the very first tick never divides by zero.
func (c *Coordinator) discountFactors(tGlobal int64) (float64, float64) {
	cfg := c.Training.DiscountConfig
	if cfg.Mode == DiscountStatic {
		return cfg.Alpha, cfg.Beta
	}
	t := float64(tGlobal)
	if t < 1 {
		t = 1
	}
	alpha := t / (t + 1)
	beta := (t - 1) / t
	if beta < 0 {
		beta = 0
	}
	return alpha, beta
}

func (c *Coordinator) shouldCheckpoint(tGlobal int64) bool {
	if c.CheckpointDir == "" {
		return false
	}
	interval := c.Training.CheckpointIntervalIterations
	if interval > 0 && tGlobal/interval != c.lastCheckpointIter/interval {
		return true
	}
	if c.Training.SnapshotIntervalSeconds > 0 {
		elapsed := c.Clock.Now().Sub(c.lastCheckpointWall)
		if elapsed >= time.Duration(c.Training.SnapshotIntervalSeconds)*time.Second {
			return true
		}
	}
	return false
}

// checkpointRunID returns the id checkpointNow writes under, scoping it to
// this instance's own subdirectory-free but disjoint filename when
// multi-instance mode is enabled so independently-launched processes never
// race on the same checkpoint triple.
func (c *Coordinator) checkpointRunID() string {
	id := c.RunID
	if id == "" {
		id = "blueprint"
	}
	if c.Training.MultiInstance.Enabled {
		id = fmt.Sprintf("%s-instance%d", id, c.Training.MultiInstance.InstanceIndex)
	}
	return id
}

func (c *Coordinator) checkpointNow(tGlobal int64) error {
	if c.CheckpointDir == "" {
		return nil
	}
	id := c.checkpointRunID()
	meta := CheckpointMeta{
		Iteration:            tGlobal,
		RNGSeed:              c.Training.Seed,
		Epsilon:              c.Training.Epsilon.At(tGlobal),
		EpsilonScheduleIndex: c.Training.Epsilon.IndexAt(tGlobal),
		DiscountMode:         c.Training.DiscountConfig.Mode.String(),
		Timestamp:            c.Clock.Now().UTC(),
	}
	meta.DiscountGammaR, meta.DiscountGammaS = c.Store.gammas()
	if err := SaveCheckpoint(c.CheckpointDir, id, c.Store, meta, c.Abstraction); err != nil {
		return err
	}
	c.lastCheckpointWall = c.Clock.Now()
	c.lastCheckpointIter = tGlobal
	return nil
}

func (c *Coordinator) reportProgress(status string, tGlobal int64, stats TraversalStats, failures int, elapsed time.Duration, epsilon float64) {
	gammaR, gammaS := c.Store.gammas()
	record := ProgressRecord{
		Status:         status,
		Timestamp:      c.Clock.Now().UTC(),
		Iteration:      tGlobal,
		InfoSets:       c.Store.Size(),
		Epsilon:        epsilon,
		DiscountGammaR: gammaR,
		DiscountGammaS: gammaS,
		WorkerFailures: failures,
	}
	if stats.Iterations > 0 {
		record.IterationsPerSec = float64(stats.Iterations)
		if elapsed > 0 {
			record.IterationsPerSec = float64(stats.Iterations) / elapsed.Seconds()
		}
	}
	if c.Training.MultiInstance.Enabled {
		record.InstanceID = c.Training.MultiInstance.InstanceIndex
		record.StartIter = c.instanceStart
		record.EndIter = c.instanceEnd
		if span := c.instanceEnd - c.instanceStart; span > 0 {
			record.ProgressPct = 100 * float64(tGlobal-c.instanceStart) / float64(span)
		}
	}
	if status == "completed" {
		record.ProgressPct = 100
	}

	if c.ProgressPath != "" {
		if data, err := json.MarshalIndent(record, "", "  "); err == nil {
			if err := fileutil.WriteFileAtomic(c.ProgressPath, data, 0o644); err != nil {
				c.Logger.Warn().Err(err).Msg("progress record write failed")
			}
		}
	}

	if c.OnProgress != nil {
		c.OnProgress(record)
		return
	}
	c.Logger.Info().
		Str("status", record.Status).
		Int64("iteration", record.Iteration).
		Int("info_sets", record.InfoSets).
		Float64("epsilon", record.Epsilon).
		Int("worker_failures", record.WorkerFailures).
		Msg("training progress")
}

// adaptiveEpsilonState tracks the rolling iterations-per-second and
// infoset-growth measurements adaptive epsilon mode feeds into
// AdaptiveEpsilonConfig.AdjustBreakpoint, advancing through the schedule's
// breakpoints as their (possibly shifted) iterations are crossed.
type adaptiveEpsilonState struct {
	cfg      AdaptiveEpsilonConfig
	schedule EpsilonSchedule

	index        int
	lastInfoSets int
	samples      []adaptiveSample
}

type adaptiveSample struct {
	iterations int64
	elapsed    time.Duration
	growth     float64
}

func newAdaptiveEpsilonState(cfg AdaptiveEpsilonConfig, schedule EpsilonSchedule, infoSets int) *adaptiveEpsilonState {
	return &adaptiveEpsilonState{cfg: cfg, schedule: schedule, lastInfoSets: infoSets}
}

// observe records one merge cycle's throughput and store growth, keeping
// the last WindowMerges cycles.
func (a *adaptiveEpsilonState) observe(iterations int64, elapsed time.Duration, infoSets int) {
	if !a.cfg.Enabled {
		return
	}
	growth := 0.0
	if a.lastInfoSets > 0 {
		growth = float64(infoSets-a.lastInfoSets) / float64(a.lastInfoSets)
	} else if infoSets > 0 {
		growth = 1
	}
	a.lastInfoSets = infoSets
	a.samples = append(a.samples, adaptiveSample{iterations: iterations, elapsed: elapsed, growth: growth})
	window := a.cfg.WindowMerges
	if window <= 0 {
		window = 1
	}
	if len(a.samples) > window {
		a.samples = a.samples[len(a.samples)-window:]
	}
}

// measurements returns the windowed iterations-per-second and mean
// infoset growth.
func (a *adaptiveEpsilonState) measurements() (ips, growth float64) {
	var iters int64
	var elapsed time.Duration
	for _, s := range a.samples {
		iters += s.iterations
		elapsed += s.elapsed
		growth += s.growth
	}
	if elapsed > 0 {
		ips = float64(iters) / elapsed.Seconds()
	}
	if len(a.samples) > 0 {
		growth /= float64(len(a.samples))
	}
	return ips, growth
}

// epsilonAt returns the exploration rate for tGlobal, advancing past any
// breakpoint whose adjusted iteration (shifted up to 30% early or late by
// the observed throughput and growth) has been crossed.
func (a *adaptiveEpsilonState) epsilonAt(tGlobal int64) float64 {
	bps := a.schedule.Breakpoints
	if len(bps) == 0 {
		return a.schedule.At(tGlobal)
	}
	ips, growth := a.measurements()
	for a.index < len(bps) {
		adjusted := a.cfg.AdjustBreakpoint(bps[a.index].Iteration, ips, growth)
		if tGlobal < adjusted {
			break
		}
		a.index++
	}
	if a.index == 0 {
		return bps[0].Value
	}
	return bps[a.index-1].Value
}
