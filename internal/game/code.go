package game

import "math/rand/v2"

const (
	CodeLength = 6
	// CodeAlphabet leaves out I, O, 0 and 1.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Rand is the randomness the engine needs; *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// NewCode draws a room code from CodeAlphabet.
func NewCode(rng Rand) string {
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = CodeAlphabet[rng.IntN(len(CodeAlphabet))]
	}
	return string(b)
}

// ValidCode reports whether s could have been produced by NewCode.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !containsByte(CodeAlphabet, s[i]) {
			return false
		}
	}
	return true
}

func containsByte(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}

// PickSongs shuffles a copy of the catalog with Fisher-Yates and returns the
// first n tracks.
func PickSongs(catalog []Track, n int, rng Rand) ([]Track, error) {
	if n > len(catalog) {
		return nil, validationf("catalog has %d tracks, need %d", len(catalog), n)
	}
	deck := append([]Track(nil), catalog...)
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck[:n], nil
}

// DefaultRand uses the runtime-seeded top-level source, which is safe for
// concurrent use by many room actors.
func DefaultRand() Rand {
	return globalRand{}
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }
