package solver

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const blueprintFileVersion = 1

// Blueprint captures the averaged strategies produced by a solver run so that
// runtime bots can sample actions without rerunning CFR.
type Blueprint struct {
	Version         int                  `json:"version"`
	GeneratedAt     time.Time            `json:"generated_at"`
	Iterations      int                  `json:"iterations"`
	Abstraction     AbstractionConfig    `json:"abstraction"`
	AbstractionHash [32]byte             `json:"abstraction_hash"`
	Strategies      map[string][]float64 `json:"strategies"`
}

// Save writes the blueprint to disk in JSON format.
func (b *Blueprint) Save(path string) error {
	if b == nil {
		return errors.New("nil blueprint")
	}
	if path == "" {
		return errors.New("destination path is required")
	}

	if b.AbstractionHash == ([32]byte{}) {
		b.AbstractionHash = b.Abstraction.Hash()
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// LoadBlueprint reads a blueprint from disk and ensures the abstraction metadata
// is present for runtime compatibility checks.
func LoadBlueprint(path string) (*Blueprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bp Blueprint
	if err := json.NewDecoder(f).Decode(&bp); err != nil {
		return nil, err
	}
	if err := bp.Abstraction.Validate(); err != nil {
		return nil, err
	}
	if bp.Version != blueprintFileVersion {
		return nil, errors.New("unsupported blueprint version")
	}
	if bp.AbstractionHash != ([32]byte{}) && bp.AbstractionHash != bp.Abstraction.Hash() {
		return nil, fmt.Errorf("%w: stored hash does not match stored abstraction config", ErrAbstractionMismatch)
	}
	return &bp, nil
}

// Strategy returns the stored average strategy for the provided info-set key.
func (b *Blueprint) Strategy(key InfoSetKey) ([]float64, bool) {
	if b == nil {
		return nil, false
	}
	strat, ok := b.Strategies[key.String()]
	return strat, ok
}

// BuildBlueprint extracts a deployable Blueprint (the average strategy for
// every visited info set) from a live training store, the form a completed
// or checkpointed run hands off to runtime.Policy.
func BuildBlueprint(store *RegretStore, abs AbstractionConfig, iteration int64) *Blueprint {
	keys := store.Keys()
	strategies := make(map[string][]float64, len(keys))
	for _, key := range keys {
		actions := store.ActionCount(key)
		strategies[key] = store.AverageStrategy(key, actions)
	}
	return &Blueprint{
		Version:         blueprintFileVersion,
		GeneratedAt:     time.Now().UTC(),
		Iterations:      int(iteration),
		Abstraction:     abs,
		AbstractionHash: abs.Hash(),
		Strategies:      strategies,
	}
}
