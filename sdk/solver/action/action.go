// Package action implements the action abstraction: a small, fixed
// catalogue of abstract bet/raise sizes (expressed as pot fractions) per
// street and facing-bet context, plus the back-mapping from an abstract
// action to the concrete chip amount a table.TableState can apply.
package action

import (
	"math"

	"github.com/poker-ai/holdem-solver/internal/table"
)

// Abstract is one entry in the action catalogue exposed to the solver.
// Kind is Fold/Check/Call/AllIn directly, or Bet/Raise sized by Fraction
// (a multiple of the current pot).
type Abstract struct {
	Kind     table.ActionKind
	Fraction float64
}

// Sizing configures the pot-fraction catalogue per street. OpenSizes are
// offered when no bet is yet live this street; RaiseSizes are offered when
// facing a bet (re-raises), which is conventionally a sparser menu.
type Sizing struct {
	OpenSizes  []float64
	RaiseSizes []float64
}

// DefaultCatalogue returns the pot-fraction menu used when no caller
// override is supplied, one entry per street. Open sizes thin out on later
// streets where pots are deeper and re-raise menus stay sparse throughout.
func DefaultCatalogue() map[table.Street]Sizing {
	return map[table.Street]Sizing{
		table.Preflop: {OpenSizes: []float64{0.5, 1.0, 2.0}, RaiseSizes: []float64{1.0, 2.5}},
		table.Flop:    {OpenSizes: []float64{0.33, 0.5, 1.0}, RaiseSizes: []float64{0.75, 1.5}},
		table.Turn:    {OpenSizes: []float64{0.5, 0.75, 1.0}, RaiseSizes: []float64{1.0}},
		table.River:   {OpenSizes: []float64{0.5, 1.0}, RaiseSizes: []float64{1.0}},
	}
}

// Catalogue returns the abstract actions legal at a decision point: Fold
// and Call/Check always derive from the simulator's own LegalActions, so
// this only enumerates the sizing menu for Bet/Raise. Once the street's
// raise count reaches maxRaisesPerBucket, the menu collapses to its single
// largest size so escalation wars terminate.
func Catalogue(street table.Street, facingBet bool, numRaisesThisStreet, maxRaisesPerBucket int, sizing map[table.Street]Sizing) []Abstract {
	menu, ok := sizing[street]
	if !ok {
		menu = DefaultCatalogue()[table.Preflop]
	}
	fractions := menu.OpenSizes
	if facingBet {
		fractions = menu.RaiseSizes
	}
	if maxRaisesPerBucket > 0 && numRaisesThisStreet >= maxRaisesPerBucket {
		// Only the largest (effectively shove-leaning) size remains once the
		// per-node raise budget for this bucket is exhausted.
		if len(fractions) == 0 {
			return nil
		}
		return []Abstract{{Kind: raiseKind(facingBet), Fraction: fractions[len(fractions)-1]}}
	}

	out := make([]Abstract, 0, len(fractions))
	for _, f := range fractions {
		out = append(out, Abstract{Kind: raiseKind(facingBet), Fraction: f})
	}
	return out
}

func raiseKind(facingBet bool) table.ActionKind {
	if facingBet {
		return table.Raise
	}
	return table.Bet
}

// BackMap converts an abstract bet/raise action into a concrete table.Action
// against the current state's legal chip range, rounding to the nearest
// whole chip and collapsing into an all-in when the sized amount reaches or
// exceeds the player's remaining stack.
func BackMap(a Abstract, pot, minRaiseTo, maxRaiseTo int) table.Action {
	raiseTo := int(math.Round(float64(pot) * a.Fraction))
	if raiseTo < minRaiseTo {
		raiseTo = minRaiseTo
	}
	if raiseTo >= maxRaiseTo {
		return table.Action{Kind: table.AllIn, Amount: maxRaiseTo}
	}
	return table.Action{Kind: a.Kind, Amount: raiseTo}
}
