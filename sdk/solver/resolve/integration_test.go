package resolve

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/poker-ai/holdem-solver/internal/table"
	"github.com/poker-ai/holdem-solver/sdk/solver"
)

// TestTrainCheckpointResolveEndToEnd walks the full pipeline: train a small
// blueprint through the coordinator, checkpoint it, reload the checkpoint in
// a fresh store, extract a blueprint from it, and resolve a live decision
// against that blueprint.
func TestTrainCheckpointResolveEndToEnd(t *testing.T) {
	abs := solver.DefaultAbstraction()
	train := solver.DefaultTrainingConfig()
	train.Iterations = 40
	train.Players = 2
	train.NumWorkers = 2
	train.BatchSize = 10
	train.Pruning.Enabled = false
	train.DiscountConfig = solver.DiscountConfig{Mode: solver.DiscountNone}
	train.CheckpointIntervalIterations = 0
	train.SnapshotIntervalSeconds = 0

	dir := t.TempDir()
	coord, err := solver.NewCoordinator(abs, train, zerolog.Nop(), quartz.NewMock(t))
	require.NoError(t, err)
	coord.CheckpointDir = dir
	coord.RunID = "e2e"
	coord.ProgressPath = filepath.Join(dir, "progress.json")

	require.NoError(t, coord.Run(context.Background()))
	require.EqualValues(t, train.Iterations, coord.CompletedIterations())

	loaded, err := solver.LoadCheckpoint(dir, "e2e", abs)
	require.NoError(t, err)
	require.EqualValues(t, train.Iterations, loaded.Meta.Iteration)

	bp := solver.BuildBlueprint(loaded.Store, abs, loaded.Meta.Iteration)
	require.NotEmpty(t, bp.Strategies)

	resolver, err := NewResolver(bp, quartz.NewMock(t), zerolog.Nop())
	require.NoError(t, err)

	root := table.NewHand(2, 1000, 5, 10, 0, rand.New(rand.NewSource(21)))
	cfg := DefaultSearchConfig()
	cfg.MaxIterations = 50
	cfg.MinIterations = 1
	cfg.LeafRollouts = 1
	cfg.Deadline = 100 * time.Millisecond

	result, err := resolver.Resolve(context.Background(), root, root.ToAct, cfg)
	require.NoError(t, err)
	require.Equal(t, "SOLVED", result.Telemetry.State)
	require.Len(t, result.Strategy, len(result.Actions))

	sum := 0.0
	for _, p := range result.Strategy {
		require.GreaterOrEqual(t, p, 0.0)
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-9)
	require.False(t, math.IsNaN(result.Telemetry.KLToBlueprint))
}
