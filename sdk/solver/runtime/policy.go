// Package runtime adapts a trained blueprint into the lookup-and-sample
// surface live play consumes: load a blueprint once, then ask it for a
// normalized distribution (or a sampled action) at any info-set key. The
// evaluation harness's blueprint-driven seats route their decisions
// through this type rather than reading Blueprint.Strategies directly.
package runtime

import (
	"errors"
	"math/rand"

	"github.com/poker-ai/holdem-solver/sdk/solver"
)

// Policy exposes read-only access to a solver blueprint for sampling
// actions during live play. The zero value is unusable; construct via
// Load or FromBlueprint.
type Policy struct {
	blueprint *solver.Blueprint
}

// Load reads a blueprint file and wraps it in a Policy.
func Load(path string) (*Policy, error) {
	bp, err := solver.LoadBlueprint(path)
	if err != nil {
		return nil, err
	}
	return FromBlueprint(bp)
}

// FromBlueprint wraps an already-loaded blueprint.
func FromBlueprint(bp *solver.Blueprint) (*Policy, error) {
	if bp == nil {
		return nil, errors.New("runtime: nil blueprint")
	}
	return &Policy{blueprint: bp}, nil
}

// Blueprint returns the underlying blueprint (read-only), for callers that
// need its abstraction config or metadata.
func (p *Policy) Blueprint() *solver.Blueprint {
	if p == nil {
		return nil
	}
	return p.blueprint
}

// ActionWeights returns a normalized distribution over actionCount legal
// actions at the given info-set key. An info set the blueprint never
// visited yields the uniform distribution. A stored strategy whose width
// disagrees with the live menu (the action abstraction can collapse or
// expand sizes between training and play) is truncated or padded to fit,
// then renormalized, so the result always sums to one.
func (p *Policy) ActionWeights(key solver.InfoSetKey, actionCount int) ([]float64, error) {
	if p == nil || p.blueprint == nil {
		return nil, errors.New("runtime: nil policy")
	}
	if actionCount <= 0 {
		return nil, errors.New("runtime: action count must be positive")
	}

	stored, ok := p.blueprint.Strategy(key)
	if !ok {
		return uniform(actionCount), nil
	}

	out := make([]float64, actionCount)
	pad := 1.0 / float64(actionCount)
	total := 0.0
	for i := range out {
		if i < len(stored) {
			out[i] = stored[i]
		} else {
			out[i] = pad
		}
		total += out[i]
	}
	if total <= 0 {
		return uniform(actionCount), nil
	}
	for i := range out {
		out[i] /= total
	}
	return out, nil
}

// Sample draws an action index from ActionWeights at the given key.
func (p *Policy) Sample(rng *rand.Rand, key solver.InfoSetKey, actionCount int) (int, error) {
	weights, err := p.ActionWeights(key, actionCount)
	if err != nil {
		return 0, err
	}
	r := rng.Float64()
	cum := 0.0
	for i, w := range weights {
		cum += w
		if r <= cum {
			return i, nil
		}
	}
	return actionCount - 1, nil
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	v := 1.0 / float64(n)
	for i := range out {
		out[i] = v
	}
	return out
}
