package stream

import (
	"errors"
	"sync"
)

// ErrTokenConsumed reports a local reuse of an attach token. The server
// enforces single use at its boundary; the guard fails fast client-side
// instead of waiting for that rejection.
var ErrTokenConsumed = errors.New("attach token already consumed")

// TokenGuard remembers which attach tokens have already opened a channel.
type TokenGuard struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func NewTokenGuard() *TokenGuard {
	return &TokenGuard{used: make(map[string]struct{})}
}

// Claim marks token as consumed. The second claim of the same token fails.
func (g *TokenGuard) Claim(token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, taken := g.used[token]; taken {
		return ErrTokenConsumed
	}
	g.used[token] = struct{}{}
	return nil
}
