// Command blueprint trains a Texas Hold'em No-Limit blueprint strategy via
// MCCFR and runs depth-limited subgame resolving against it.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/poker-ai/holdem-solver/internal/table"
	"github.com/poker-ai/holdem-solver/sdk/solver"
	"github.com/poker-ai/holdem-solver/sdk/solver/evalharness"
	"github.com/poker-ai/holdem-solver/sdk/solver/resolve"
	"github.com/poker-ai/holdem-solver/sdk/solver/runtime"
)

var cli struct {
	Debug bool `help:"enable debug logging"`

	Train   TrainCmd   `cmd:"" help:"run MCCFR training and emit a blueprint"`
	Resolve ResolveCmd `cmd:"" help:"depth-limited resolve a single decision against a blueprint"`
	Eval    EvalCmd    `cmd:"" help:"play a headless blueprint-vs-baseline match and report bb/100"`
}

type TrainCmd struct {
	Out                string `help:"path to write the final blueprint" required:""`
	CheckpointDir      string `help:"directory to write periodic checkpoint triples" required:""`
	RunID              string `help:"checkpoint id (checkpoint files are <dir>/<id>.{policy,meta,regrets})" default:"blueprint"`
	Iterations         int64  `help:"total MCCFR iterations (ignored when TimeBudgetSeconds is set)" default:"1000000"`
	TimeBudgetSeconds  int64  `help:"train for this much wall time instead of an iteration count" default:"0"`
	ChunkIterations    int64  `help:"exit cleanly after this many iterations so an outer supervisor can relaunch with --resume (0 disables chunked mode)" default:"0"`
	ProgressFile       string `help:"JSON file rewritten atomically with the latest progress record"`
	DisablePruning     bool   `help:"disable regret-based pruning"`
	DisableLinear      bool   `help:"disable linear (w=t) regret/strategy weighting"`
	Players            int    `help:"number of players in self-play" default:"2"`
	Seed               int64  `help:"random seed" default:"1"`
	NumWorkers         int    `help:"goroutine workers (0 autodetects GOMAXPROCS)" default:"0"`
	BatchSize          int64  `help:"iterations merged per coordinator cycle" default:"1000"`
	CheckpointEvery    int64  `help:"checkpoint every N iterations (0 disables)" default:"50000"`
	SnapshotSeconds    int64  `help:"checkpoint every N wall-clock seconds (0 disables)" default:"300"`
	SmallBlind         int    `help:"small blind size" default:"5"`
	BigBlind           int    `help:"big blind size" default:"10"`
	Stack              int    `help:"starting stack size" default:"1000"`
	DisableRaises      bool   `help:"disable raise actions for minimal smoke testing"`
	MaxRaises          int    `help:"limit raises per node (0 keeps abstraction default)" default:"0"`
	Discount           string `help:"discount mode (off|static|dcfr)" enum:"off,static,dcfr" default:"dcfr"`
	ResetNegative      bool   `help:"reset negative regrets to zero each discount tick (CFR+)"`
	Resume             bool   `help:"resume from CheckpointDir/RunID if a checkpoint exists"`
	CPUProfile         string `help:"write a CPU profile to this path"`

	MultiInstance bool `help:"enable multi-instance mode (incompatible with NumWorkers > 1)"`
	InstanceIndex int  `help:"this process's 0-based shard index, only used with MultiInstance" default:"0"`
	InstanceCount int  `help:"total number of cooperating instances, only used with MultiInstance" default:"1"`
}

type ResolveCmd struct {
	Blueprint  string  `help:"path to a saved blueprint" required:""`
	Seed       int64   `help:"deterministic RNG seed for the root deal and the resolve itself" default:"1"`
	Players    int     `help:"number of players at the resolved table" default:"2"`
	SmallBlind int     `help:"small blind size" default:"5"`
	BigBlind   int     `help:"big blind size" default:"10"`
	Stack      int     `help:"starting stack size" default:"1000"`
	MaxDepth      int     `help:"subgame lookahead depth in plies" default:"2"`
	Iterations    int     `help:"maximum full-width CFR iterations" default:"1000"`
	MinIterations int     `help:"discard the solve and fall back to the blueprint below this many iterations" default:"10"`
	DeadlineMs    int     `help:"wall-clock deadline for the resolve, in milliseconds" default:"150"`
	Rollouts      int     `help:"leaf rollouts averaged beyond MaxDepth" default:"4"`
	Floor         float64 `help:"sentinel probability floor retained per action" default:"0.02"`
	LeafPolicy    string  `help:"continuation policy for leaf rollouts" enum:"blueprint,fold,call,raise" default:"blueprint"`

	KLWeightFlop    float64 `help:"KL-to-blueprint regularization weight on the flop" default:"0.01"`
	KLWeightTurn    float64 `help:"KL-to-blueprint regularization weight on the turn" default:"0.02"`
	KLWeightRiver   float64 `help:"KL-to-blueprint regularization weight on the river" default:"0.03"`
	KLWeightOOPBonus float64 `help:"extra KL weight added when resolving out of position" default:"0.01"`
	PublicCardSamples int   `help:"number of independent board completions to solve and average (1 disables sampling)" default:"1"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("blueprint"),
		kong.Description("Texas Hold'em No-Limit blueprint training and subgame resolving"),
		kong.UsageOnError(),
	)

	setupLogger(cli.Debug)

	var err error
	switch ctx.Command() {
	case "train":
		// SIGINT/SIGTERM cancel the coordinator's context; it drains
		// in-flight worker batches, writes a final checkpoint and exits.
		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err = cli.Train.Run(runCtx)
		stop()
	case "resolve":
		err = cli.Resolve.Run(context.Background())
	case "eval":
		err = cli.Eval.Run(context.Background())
	default:
		log.Fatal().Msgf("unknown command: %s", ctx.Command())
	}
	if err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func setupLogger(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
}

func (cmd *TrainCmd) Run(ctx context.Context) error {
	if cmd.CPUProfile != "" {
		f, err := os.Create(cmd.CPUProfile)
		if err != nil {
			return fmt.Errorf("create cpu profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", cmd.CPUProfile).Msg("CPU profiling enabled")
	}

	abs := solver.DefaultAbstraction()
	train := solver.DefaultTrainingConfig()

	train.Iterations = int(cmd.Iterations)
	if cmd.TimeBudgetSeconds > 0 {
		train.Iterations = 0
		train.TimeBudgetSeconds = cmd.TimeBudgetSeconds
	}
	if cmd.ChunkIterations > 0 {
		train.Chunking = solver.ChunkConfig{Enabled: true, IterationsPerChunk: cmd.ChunkIterations}
	}
	train.Pruning.Enabled = train.Pruning.Enabled && !cmd.DisablePruning
	train.UseLinearWeighting = !cmd.DisableLinear
	train.Players = cmd.Players
	train.Seed = cmd.Seed
	train.NumWorkers = cmd.NumWorkers
	train.BatchSize = cmd.BatchSize
	train.CheckpointIntervalIterations = cmd.CheckpointEvery
	train.SnapshotIntervalSeconds = cmd.SnapshotSeconds
	train.SmallBlind = cmd.SmallBlind
	train.BigBlind = cmd.BigBlind
	train.StartingStack = cmd.Stack

	if cmd.MultiInstance {
		train.MultiInstance = solver.MultiInstanceConfig{
			Enabled:       true,
			InstanceIndex: cmd.InstanceIndex,
			InstanceCount: cmd.InstanceCount,
		}
	}

	if cmd.DisableRaises {
		train.EnableRaises = false
		abs.EnableRaises = false
		abs.BetSizing = nil
		abs.MaxActionsPerNode = 2
		abs.MaxRaisesPerBucket = 0
		train.MaxRaisesPerBucket = 0
	} else if cmd.MaxRaises > 0 {
		abs.MaxRaisesPerBucket = cmd.MaxRaises
		train.MaxRaisesPerBucket = cmd.MaxRaises
	}

	switch cmd.Discount {
	case "off":
		train.DiscountConfig = solver.DiscountConfig{Mode: solver.DiscountNone}
	case "static":
		train.DiscountConfig = solver.DiscountConfig{Mode: solver.DiscountStatic, Interval: 1000, Alpha: 1, Beta: 1, ResetNegativeRegrets: cmd.ResetNegative}
	default:
		train.DiscountConfig = solver.DiscountConfig{Mode: solver.DiscountDCFR, Interval: 1000, ResetNegativeRegrets: cmd.ResetNegative}
	}

	if err := os.MkdirAll(cmd.CheckpointDir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	var coord *solver.Coordinator
	var err error
	if cmd.Resume {
		coord, err = solver.ResumeCoordinator(cmd.CheckpointDir, cmd.RunID, abs, train, log.Logger, quartz.NewReal())
		if err != nil {
			log.Warn().Err(err).Msg("could not resume from checkpoint, starting fresh")
			coord, err = solver.NewCoordinator(abs, train, log.Logger, quartz.NewReal())
		}
	} else {
		coord, err = solver.NewCoordinator(abs, train, log.Logger, quartz.NewReal())
	}
	if err != nil {
		return err
	}
	coord.CheckpointDir = cmd.CheckpointDir
	coord.RunID = cmd.RunID
	coord.ProgressPath = cmd.ProgressFile

	start := time.Now()
	if err := coord.Run(ctx); err != nil {
		return fmt.Errorf("training run: %w", err)
	}
	duration := time.Since(start)

	bp := solver.BuildBlueprint(coord.Store, abs, coord.CompletedIterations())
	bp.Version = 1
	if err := os.MkdirAll(filepath.Dir(cmd.Out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := bp.Save(cmd.Out); err != nil {
		return fmt.Errorf("save blueprint: %w", err)
	}

	log.Info().
		Dur("duration", duration).
		Int("info_sets", len(bp.Strategies)).
		Str("path", cmd.Out).
		Msg("training completed")
	return nil
}

func (cmd *ResolveCmd) Run(ctx context.Context) error {
	bp, err := solver.LoadBlueprint(cmd.Blueprint)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}

	resolver, err := resolve.NewResolver(bp, quartz.NewReal(), log.Logger)
	if err != nil {
		return fmt.Errorf("new resolver: %w", err)
	}

	rng := rand.New(rand.NewSource(cmd.Seed))
	root := table.NewHand(cmd.Players, cmd.Stack, cmd.SmallBlind, cmd.BigBlind, 0, rng)

	cfg := resolve.DefaultSearchConfig()
	cfg.MaxDepth = cmd.MaxDepth
	cfg.MaxIterations = cmd.Iterations
	cfg.MinIterations = cmd.MinIterations
	cfg.Deadline = time.Duration(cmd.DeadlineMs) * time.Millisecond
	cfg.LeafRollouts = cmd.Rollouts
	cfg.SentinelFloor = cmd.Floor
	cfg.Leaf = resolve.LeafPolicy(cmd.LeafPolicy)
	cfg.Seed = cmd.Seed
	cfg.KLWeightFlop = cmd.KLWeightFlop
	cfg.KLWeightTurn = cmd.KLWeightTurn
	cfg.KLWeightRiver = cmd.KLWeightRiver
	cfg.KLWeightOOPBonus = cmd.KLWeightOOPBonus
	cfg.PublicCardSamples = cmd.PublicCardSamples

	result, err := resolver.Resolve(ctx, root, root.ToAct, cfg)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	log.Info().
		Str("state", result.Telemetry.State).
		Int("iterations", result.Telemetry.Iterations).
		Int64("elapsed_ms", result.Telemetry.ElapsedMs).
		Int("info_sets", result.Telemetry.InfoSetCount).
		Int("samples", result.Telemetry.Samples).
		Float64("variance", result.Telemetry.Variance).
		Float64("kl_to_blueprint", result.Telemetry.KLToBlueprint).
		Msg("resolve completed")

	for i, a := range result.Actions {
		log.Info().
			Str("action", a.Kind.String()).
			Int("amount", a.Amount).
			Float64("probability", result.Strategy[i]).
			Msg("root action")
	}
	return nil
}

// EvalCmd plays a headless match between a trained blueprint and a uniform
// baseline (or two blueprints, when Opponent is set) and reports bb/100
// per seat.
type EvalCmd struct {
	Blueprint     string `help:"path to the blueprint under evaluation" required:""`
	Opponent      string `help:"path to an opponent blueprint (omit to play against a baseline)"`
	OpponentRange string `help:"preflop opening range for a tight-passive baseline opponent (e.g. \"22+,ATs+,KQo\"); ignored when Opponent is set"`
	Hands         int    `help:"number of independent hands to play" default:"10000"`
	Seed          int64  `help:"deterministic RNG seed" default:"1"`
	Players       int    `help:"number of seats (2 when Opponent is a single blueprint)" default:"2"`
	SmallBlind    int    `help:"small blind size" default:"5"`
	BigBlind      int    `help:"big blind size" default:"10"`
	Stack         int    `help:"starting stack size" default:"1000"`
}

func (cmd *EvalCmd) Run(ctx context.Context) error {
	heroPolicy, err := runtime.Load(cmd.Blueprint)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}
	hero, err := evalharness.NewBlueprintPolicy("hero", heroPolicy)
	if err != nil {
		return fmt.Errorf("build hero policy: %w", err)
	}

	policies := make([]evalharness.Policy, cmd.Players)
	policies[0] = hero
	var opponent evalharness.Policy
	switch {
	case cmd.Opponent != "":
		oppPolicy, err := runtime.Load(cmd.Opponent)
		if err != nil {
			return fmt.Errorf("load opponent blueprint: %w", err)
		}
		opponent, err = evalharness.NewBlueprintPolicy("opponent", oppPolicy)
		if err != nil {
			return fmt.Errorf("build opponent policy: %w", err)
		}
	case cmd.OpponentRange != "":
		opponent, err = evalharness.NewRangePolicy("range", cmd.OpponentRange)
		if err != nil {
			return fmt.Errorf("build range opponent: %w", err)
		}
	default:
		opponent = &evalharness.UniformPolicy{Label: "uniform"}
	}
	for i := 1; i < cmd.Players; i++ {
		policies[i] = opponent
	}

	cfg := evalharness.MatchConfig{
		Hands:         cmd.Hands,
		Seed:          cmd.Seed,
		SmallBlind:    cmd.SmallBlind,
		BigBlind:      cmd.BigBlind,
		StartingStack: cmd.Stack,
		Abstraction:   heroPolicy.Blueprint().Abstraction,
	}

	result, err := evalharness.RunMatch(cfg, policies, log.Logger)
	if err != nil {
		return fmt.Errorf("run match: %w", err)
	}

	for _, seat := range result.Seats {
		log.Info().
			Str("seat", seat.Name).
			Int("net_chips", seat.NetChips).
			Int("hands", seat.Hands).
			Float64("bb_per_100", seat.BBPer100).
			Msg("eval result")
	}
	return nil
}
