package solver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poker-ai/holdem-solver/internal/fileutil"
)

const checkpointFormatVersion = 2

// CheckpointMeta is the ".meta" component of a checkpoint triple: enough
// bookkeeping to resume a coordinator run and detect an incompatible
// abstraction before doing so, without paying to decode the (potentially
// large) regret payload just to inspect it.
type CheckpointMeta struct {
	FormatVersion       int       `json:"format_version"`
	Iteration           int64     `json:"iteration"`
	RNGSeed             int64     `json:"rng_seed"`
	Epsilon             float64   `json:"epsilon"`
	EpsilonScheduleIndex int      `json:"epsilon_schedule_index"`
	DiscountMode        string    `json:"discount_mode"`
	DiscountGammaR      float64   `json:"discount_gamma_r"`
	DiscountGammaS      float64   `json:"discount_gamma_s"`
	BucketHash          string    `json:"bucket_hash"`
	Timestamp           time.Time `json:"timestamp"`
	ModelHash           string    `json:"model_hash,omitempty"`
}

// CheckpointPolicy is the ".policy" component: a compact summary (average
// strategy per info set) distinct from the full regret+strategy-sum
// accumulators in ".regrets". A checkpoint is only loadable when all three
// components of the triple are present.
type CheckpointPolicy struct {
	FormatVersion int                  `json:"format_version"`
	Iteration     int64                `json:"iteration"`
	Strategies    map[string][]float64 `json:"strategies"`
}

// CheckpointRegrets is the ".regrets" component: the full regret store
// payload, logical values already materialized (gamma applied) so a fresh
// process can Restore it with gamma reset to 1, per the store's own
// snapshot/restore contract.
type CheckpointRegrets struct {
	FormatVersion int                     `json:"format_version"`
	Cells         map[string]CellSnapshot `json:"cells"`
}

// checkpointPaths returns the triple of file paths for a checkpoint id
// rooted at dir.
func checkpointPaths(dir, id string) (policy, meta, regrets string) {
	return filepath.Join(dir, id+".policy"),
		filepath.Join(dir, id+".meta"),
		filepath.Join(dir, id+".regrets")
}

// SaveCheckpoint atomically writes all three components of a checkpoint
// (policy, meta, regrets) under dir/id.*, each via write-temp-then-rename
// so a reader never observes a partially written file. The meta file is
// written last so "all three present" implies none is mid-write.
func SaveCheckpoint(dir, id string, store *RegretStore, meta CheckpointMeta, abstraction AbstractionConfig) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	policyPath, metaPath, regretsPath := checkpointPaths(dir, id)

	meta.FormatVersion = checkpointFormatVersion
	if meta.BucketHash == "" {
		hash := abstraction.Hash()
		meta.BucketHash = fmt.Sprintf("%x", hash)
	}
	meta.Timestamp = meta.Timestamp.UTC()

	cells := store.Snapshot()

	strategies := make(map[string][]float64, len(cells))
	for key, cs := range cells {
		strat := make([]float64, len(cs.Strategy))
		total := 0.0
		for _, v := range cs.Strategy {
			total += v
		}
		if total <= 0 {
			v := 1.0 / float64(len(strat))
			for i := range strat {
				strat[i] = v
			}
		} else {
			for i, v := range cs.Strategy {
				strat[i] = v / total
			}
		}
		strategies[key] = strat
	}

	policy := CheckpointPolicy{FormatVersion: checkpointFormatVersion, Iteration: meta.Iteration, Strategies: strategies}
	regrets := CheckpointRegrets{FormatVersion: checkpointFormatVersion, Cells: cells}

	if err := writeJSONAtomic(policyPath, policy); err != nil {
		return fmt.Errorf("write checkpoint policy: %w", err)
	}
	if err := writeJSONAtomic(regretsPath, regrets); err != nil {
		return fmt.Errorf("write checkpoint regrets: %w", err)
	}
	if err := writeJSONAtomic(metaPath, meta); err != nil {
		return fmt.Errorf("write checkpoint meta: %w", err)
	}
	return nil
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

// LoadedCheckpoint is the fully decoded result of LoadCheckpoint: the
// restored regret store plus its metadata, ready for a coordinator to
// resume from t_global = Meta.Iteration + 1.
type LoadedCheckpoint struct {
	Meta   CheckpointMeta
	Policy CheckpointPolicy
	Store  *RegretStore
}

// LoadCheckpoint reads a checkpoint triple previously written by
// SaveCheckpoint, validating that all three components are present and
// that the checkpoint's recorded bucket hash matches expect's. A mismatch
// is ErrAbstractionMismatch (fatal, refuse to resume); a missing or
// unreadable component is ErrCheckpointIncomplete (skip this id, caller
// may fall back to an older one).
func LoadCheckpoint(dir, id string, expect AbstractionConfig) (*LoadedCheckpoint, error) {
	policyPath, metaPath, regretsPath := checkpointPaths(dir, id)

	var meta CheckpointMeta
	if err := readJSON(metaPath, &meta); err != nil {
		return nil, fmt.Errorf("%w: meta: %v", ErrCheckpointIncomplete, err)
	}
	if meta.FormatVersion != checkpointFormatVersion {
		return nil, fmt.Errorf("%w: unsupported checkpoint format version %d", ErrCheckpointIncomplete, meta.FormatVersion)
	}

	expectHash := fmt.Sprintf("%x", expect.Hash())
	if meta.BucketHash != expectHash {
		return nil, fmt.Errorf("%w: checkpoint bucket hash %s does not match requested abstraction %s", ErrAbstractionMismatch, meta.BucketHash, expectHash)
	}

	var policy CheckpointPolicy
	if err := readJSON(policyPath, &policy); err != nil {
		return nil, fmt.Errorf("%w: policy: %v", ErrCheckpointIncomplete, err)
	}

	var regrets CheckpointRegrets
	if err := readJSON(regretsPath, &regrets); err != nil {
		return nil, fmt.Errorf("%w: regrets: %v", ErrCheckpointIncomplete, err)
	}

	return &LoadedCheckpoint{
		Meta:   meta,
		Policy: policy,
		Store:  RestoreRegretStore(regrets.Cells),
	}, nil
}

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}
