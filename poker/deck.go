package poker

import (
	"math/rand"
)

// Deck represents a standard 52-card deck
type Deck struct {
	cards [52]Card // Fixed size array
	next  int
	rng   *rand.Rand // Random source for deterministic shuffling
}

// NewDeck creates a new shuffled deck with explicit RNG
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{
		next: 0,
		rng:  rng,
	}

	// Create all 52 cards
	i := 0
	for suit := range uint8(4) {
		for rank := range uint8(13) {
			d.cards[i] = NewCard(rank, suit)
			i++
		}
	}

	// Shuffle
	d.Shuffle()
	return d
}

// Shuffle shuffles the deck using Fisher-Yates
func (d *Deck) Shuffle() {
	d.next = 0
	for i := len(d.cards) - 1; i > 0; i-- {
		var j int
		if d.rng != nil {
			j = d.rng.Intn(i + 1)
		} else {
			j = rand.Intn(i + 1)
		}
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal deals n cards from the deck
func (d *Deck) Deal(n int) []Card {
	if d.next+n > len(d.cards) {
		return nil
	}
	cards := d.cards[d.next : d.next+n]
	d.next += n
	return cards
}

// DealOne deals a single card from the deck
func (d *Deck) DealOne() Card {
	if d.next >= len(d.cards) {
		return 0
	}
	card := d.cards[d.next]
	d.next++
	return card
}

// Reset resets and reshuffles the deck
func (d *Deck) Reset() {
	d.Shuffle()
}

// Clone returns an independent copy of the deck at its current deal
// position. Branches that fork from a common state (CFR exploring sibling
// actions, concurrent leaf rollouts) must each deal from their own Clone
// rather than sharing the source deck's mutable cursor, or one branch's
// deal would silently steal cards from another's.
func (d *Deck) Clone() *Deck {
	clone := *d
	return &clone
}

// ReshuffleRemaining re-shuffles only the undealt tail of the deck (the
// cards from the current deal position onward) using rng, leaving every
// already-dealt card and its order untouched. This samples an independent
// completion of the remaining, not-yet-public cards from a fixed known
// prefix — used by the resolver's public-card sampling to solve the same
// subgame against several different future board run-outs.
func (d *Deck) ReshuffleRemaining(rng *rand.Rand) {
	tail := d.cards[d.next:]
	for i := len(tail) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		tail[i], tail[j] = tail[j], tail[i]
	}
}

// CardsRemaining returns the number of cards left in the deck
func (d *Deck) CardsRemaining() int {
	return len(d.cards) - d.next
}
