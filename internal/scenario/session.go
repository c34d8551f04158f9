package scenario

import (
	"math/rand"

	"github.com/google/uuid"
)

// Session is the state one simulated user carries between iterations
type Session struct {
	ID     string
	CartID string // Last cart this user created; empty when none

	rng *rand.Rand
}

// NewSession creates a session with its own random source
func NewSession(seed int64) *Session {
	return &Session{
		ID:  uuid.NewString(),
		rng: rand.New(rand.NewSource(seed)),
	}
}

// HasCart reports whether the user currently owns a cart
func (s *Session) HasCart() bool {
	return s.CartID != ""
}

// ForgetCart clears the user's cart if it is id
func (s *Session) ForgetCart(id string) {
	if s.CartID == id {
		s.CartID = ""
	}
}

// Rand returns the session's random source. It is not safe for concurrent use.
func (s *Session) Rand() *rand.Rand {
	return s.rng
}

// intBetween returns a uniform integer in [lo, hi]
func (s *Session) intBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Intn(hi-lo+1)
}
