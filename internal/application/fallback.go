package application

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/ahrav/go-riddler/internal/domain"
)

// FallbackWordRiddle is used when a setter cannot produce a word riddle.
var FallbackWordRiddle = domain.Riddle{
	Category: domain.CategoryWord,
	Prompt:   "What has keys but can't open locks?",
	Answer:   "A piano",
}

// fallbackWordRiddles are tried in order; the first not yet posed wins.
var fallbackWordRiddles = []domain.Riddle{
	FallbackWordRiddle,
	{Category: domain.CategoryWord, Prompt: "What gets wetter the more it dries?", Answer: "A towel"},
	{Category: domain.CategoryWord, Prompt: "What has a neck but no head?", Answer: "A bottle"},
	{Category: domain.CategoryWord, Prompt: "What travels around the world while staying in a corner?", Answer: "A stamp"},
	{Category: domain.CategoryWord, Prompt: "The more you take, the more you leave behind. What are they?", Answer: "Footsteps"},
}

const (
	fallbackMinOperand = 2
	fallbackMaxOperand = 12
)

// FallbackGenerator produces the riddle a round uses when acquisition fails.
// Arithmetic riddles are a product of two operands in [2, 12].
type FallbackGenerator struct {
	rng *rand.Rand
}

// NewFallbackGenerator returns a generator seeded with seed. A zero seed
// draws one at random.
func NewFallbackGenerator(seed uint64) *FallbackGenerator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &FallbackGenerator{rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

// Riddle returns a fallback riddle of category c. Word riddles already in
// used are skipped; once every one has been posed FallbackWordRiddle repeats.
// Unknown categories get a word riddle.
func (g *FallbackGenerator) Riddle(c domain.Category, used []string) domain.Riddle {
	if c != domain.CategoryArithmetic {
		for _, r := range fallbackWordRiddles {
			if !slices.Contains(used, r.Prompt) {
				return r
			}
		}
		return FallbackWordRiddle
	}

	a := fallbackMinOperand + g.rng.IntN(fallbackMaxOperand-fallbackMinOperand+1)
	b := fallbackMinOperand + g.rng.IntN(fallbackMaxOperand-fallbackMinOperand+1)
	return domain.Riddle{
		Category:    domain.CategoryArithmetic,
		Prompt:      fmt.Sprintf("What is %d × %d?", a, b),
		Answer:      strconv.Itoa(a * b),
		Explanation: fmt.Sprintf("%d × %d = %d", a, b, a*b),
	}
}
