// Package captcha generates single-question arithmetic challenges.
package captcha

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"strconv"
	"sync"
)

const (
	// NumOptions is the number of answer buttons per challenge.
	NumOptions = 3

	operandMin = 1
	operandMax = 10
	offsetMin  = 1
	offsetMax  = 5
)

// Challenge is one generated question.
type Challenge struct {
	A, B    int
	Answer  int
	Options []int // NumOptions distinct values, Answer included once, shuffled
}

// Prompt renders the question, e.g. "3 + 4 = ?".
func (c Challenge) Prompt() string {
	return strconv.Itoa(c.A) + " + " + strconv.Itoa(c.B) + " = ?"
}

// Generator is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a Generator seeded from crypto/rand.
func NewGenerator() *Generator {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("captcha: crypto/rand unavailable: " + err.Error())
	}
	return NewSeeded(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed1, seed2 uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (g *Generator) intn(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// Generate draws two operands in [1, 10] and builds the option set from the
// sum and two offsets in [1, 5], one above and one below.
func (g *Generator) Generate() Challenge {
	g.mu.Lock()
	defer g.mu.Unlock()

	a := g.intn(operandMin, operandMax)
	b := g.intn(operandMin, operandMax)
	ans := a + b

	// Offsets are non-zero and on opposite sides of the answer, so the three
	// values are always distinct.
	opts := []int{
		ans,
		ans + g.intn(offsetMin, offsetMax),
		ans - g.intn(offsetMin, offsetMax),
	}
	g.rng.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })

	return Challenge{A: a, B: b, Answer: ans, Options: opts}
}
