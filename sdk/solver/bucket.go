package solver

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/poker-ai/holdem-solver/poker"
	"github.com/poker-ai/holdem-solver/sdk/analysis"
	"github.com/poker-ai/holdem-solver/sdk/classification"
)

// equitySimulations bounds the Monte-Carlo rollout used by the postflop
// bucketing feature; bucketing runs far more often than a single equity
// query so this stays small relative to analysis.QuickEquity's default.
const equitySimulations = 200

// Hash returns a content hash over the abstraction's tunables and a
// feature-version tag, recorded in checkpoints and blueprints so a resume
// or a resolver invocation can detect a mismatched abstraction instead of
// silently averaging incompatible strategies.
func (c AbstractionConfig) Hash() [32]byte {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	writeInt(c.PreflopBucketCount)
	writeInt(c.PostflopBucketCount)
	writeInt(c.MaxActionsPerNode)
	writeInt(c.MaxRaisesPerBucket)
	if c.EnableRaises {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	for _, frac := range c.BetSizing {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(frac))
		h.Write(buf[:])
	}
	h.Write([]byte("abstraction-v2"))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// BucketMapper converts raw poker states into coarse abstractions that CFR can
// operate on. The default implementation is intentionally simple yet deterministic
// so we can iterate quickly while refining the abstraction in later milestones.
type BucketMapper struct {
	config AbstractionConfig
}

// NewBucketMapper returns a mapper backed by the provided abstraction config.
func NewBucketMapper(cfg AbstractionConfig) (*BucketMapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BucketMapper{config: cfg}, nil
}

// HoleBucket deterministically maps a two-card hand into a preflop bucket.
func (m *BucketMapper) HoleBucket(hand poker.Hand) int {
	if hand.CountCards() != 2 {
		return 0
	}

	c0 := hand.GetCard(0)
	c1 := hand.GetCard(1)

	r0 := int(c0.Rank())
	r1 := int(c1.Rank())
	if r0 < r1 {
		r0, r1 = r1, r0
	}
	pair := 0
	if r0 == r1 {
		pair = 1
	}
	suited := 0
	if c0.Suit() == c1.Suit() {
		suited = 1
	}

	// Map the 169 combos into a continuous space by combining rank strength,
	// pair bonus, and suitedness. The constants are chosen to keep values within
	// a comfortable range before bucketing.
	score := float64(r0*13 + r1)
	if pair == 1 {
		score += 200
	}
	if suited == 1 {
		score += 13
	}
	if poker.CategorizeHoleCards(c0, c1) == poker.CategoryPremium {
		score += 50
	}

	bucket := int(score / (312.0 / float64(m.config.PreflopBucketCount)))
	if bucket >= m.config.PreflopBucketCount {
		bucket = m.config.PreflopBucketCount - 1
	}
	if bucket < 0 {
		bucket = 0
	}
	return bucket
}

// BoardBucket maps a board texture (3-5 cards) into a coarse bucket.
func (m *BucketMapper) BoardBucket(board poker.Hand) int {
	if board == 0 {
		return 0
	}

	texture := classification.AnalyzeBoardTexture(board)
	paired := float64(countBoardPairs(board))
	highCards := float64(countHighCards(board))

	score := float64(texture)*2 + paired + highCards*0.5
	bucket := int(math.Round(score / (8.0 / float64(m.config.PostflopBucketCount))))
	if bucket >= m.config.PostflopBucketCount {
		bucket = m.config.PostflopBucketCount - 1
	}
	if bucket < 0 {
		bucket = 0
	}
	return bucket
}

// PostflopBucket maps a player's hole cards together with the board into a
// postflop bucket, combining board texture, draw potential and equity
// against a random hand — the full feature set a depth-limited resolver or
// a training worker needs once hole cards are known, as opposed to
// BoardBucket's board-only texture signal.
func (m *BucketMapper) PostflopBucket(hole, board poker.Hand, rng *rand.Rand) int {
	if board.CountCards() < 3 || hole.CountCards() != 2 {
		return m.BoardBucket(board)
	}

	texture := float64(classification.AnalyzeBoardTexture(board))
	draws := classification.DetectDraws(hole, board)
	equity := analysis.CalculateEquity(cardStrings(hole), cardStrings(board), 1, equitySimulations, rng).Equity()

	score := texture*2 + float64(draws.Outs)*0.3 + equity*10
	bucket := int(math.Round(score / (16.0 / float64(m.config.PostflopBucketCount))))
	if bucket >= m.config.PostflopBucketCount {
		bucket = m.config.PostflopBucketCount - 1
	}
	if bucket < 0 {
		bucket = 0
	}
	return bucket
}

func cardStrings(h poker.Hand) []string {
	cards := h.Cards()
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}

// countBoardPairs is copied locally to avoid exporting from classification.
func countBoardPairs(board poker.Hand) int {
	counts := make(map[uint8]int, 5)
	for i := 0; i < board.CountCards(); i++ {
		c := board.GetCard(i)
		counts[c.Rank()]++
	}
	pairs := 0
	for _, c := range counts {
		if c >= 2 {
			pairs++
		}
	}
	return pairs
}

func countHighCards(board poker.Hand) int {
	high := 0
	for i := 0; i < board.CountCards(); i++ {
		if board.GetCard(i).Rank() >= poker.Ten {
			high++
		}
	}
	return high
}
