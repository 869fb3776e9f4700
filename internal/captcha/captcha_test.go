package captcha

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func TestGenerateOptions(t *testing.T) {
	t.Parallel()

	g := NewSeeded(1, 2)
	for i := 0; i < 5000; i++ {
		c := g.Generate()
		if c.A < operandMin || c.A > operandMax || c.B < operandMin || c.B > operandMax {
			t.Fatalf("operands %d, %d out of range", c.A, c.B)
		}
		if c.Answer != c.A+c.B {
			t.Fatalf("Answer = %d, want %d", c.Answer, c.A+c.B)
		}
		if len(c.Options) != NumOptions {
			t.Fatalf("len(Options) = %d, want %d", len(c.Options), NumOptions)
		}
		seen := map[int]int{}
		for _, o := range c.Options {
			seen[o]++
		}
		if len(seen) != NumOptions {
			t.Fatalf("Options %v are not distinct", c.Options)
		}
		if seen[c.Answer] != 1 {
			t.Fatalf("Options %v contain answer %d %d times, want 1", c.Options, c.Answer, seen[c.Answer])
		}
		for _, o := range c.Options {
			if d := o - c.Answer; d != 0 && (abs(d) < offsetMin || abs(d) > offsetMax) {
				t.Fatalf("option %d is %d away from answer, want within [%d, %d]", o, d, offsetMin, offsetMax)
			}
		}
	}
}

func TestGenerateAnswerPositionVaries(t *testing.T) {
	t.Parallel()

	g := NewSeeded(7, 7)
	var pos [NumOptions]int
	for i := 0; i < 900; i++ {
		c := g.Generate()
		pos[slices.Index(c.Options, c.Answer)]++
	}
	for i, n := range pos {
		if n == 0 {
			t.Fatalf("answer never placed at position %d: %v", i, pos)
		}
	}
}

func TestGenerateConcurrent(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = g.Generate()
			}
		}()
	}
	wg.Wait()
}

func TestPrompt(t *testing.T) {
	t.Parallel()

	if got, want := (Challenge{A: 3, B: 9}).Prompt(), "3 + 9 = ?"; got != want {
		t.Fatalf("Prompt() = %q, want %q", got, want)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	for _, p := range []Payload{
		{Value: 12, UserID: 42},
		{Value: -3, UserID: 7},
		{Value: 0, UserID: 9007199254740993},
		{Value: 5, UserID: -7},
		{Value: -1, UserID: 0},
	} {
		got, err := ParsePayload(p.String())
		if err != nil {
			t.Fatalf("ParsePayload(%q): %v", p.String(), err)
		}
		if got != p {
			t.Fatalf("ParsePayload(%q) = %+v, want %+v", p.String(), got, p)
		}
		if len(p.String()) > 64 {
			t.Fatalf("payload %q longer than 64 bytes", p.String())
		}
	}
}

func TestParsePayloadMalformed(t *testing.T) {
	t.Parallel()

	for _, data := range []string{
		"",
		"cap",
		"cap_",
		"cap_12",
		"cap_12_",
		"cap__42",
		"cap_x_42",
		"cap_12_abc",
		"nope_12_42",
		"cap_1.5_42",
	} {
		t.Run(data, func(t *testing.T) {
			if _, err := ParsePayload(data); !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("ParsePayload(%q) error = %v, want ErrMalformedPayload", data, err)
			}
		})
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
