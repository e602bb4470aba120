package web

import (
	"sync"
	"time"

	"github.com/soundeck/go-spotify-rewind/internal/account"
)

// pendingTTL is how long a signup may wait for its OAuth callback.
const pendingTTL = 10 * time.Minute

// pendingSignups holds validated signups between the signup request and
// the OAuth callback, keyed by the OAuth state value.
type pendingSignups struct {
	mu      sync.Mutex
	entries map[string]*account.PendingSignup
}

func newPendingSignups() *pendingSignups {
	return &pendingSignups{entries: make(map[string]*account.PendingSignup)}
}

// put stashes a pending signup under the state value and prunes stale
// entries from abandoned signups.
func (p *pendingSignups) put(state string, pending *account.PendingSignup) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-pendingTTL)
	for k, v := range p.entries {
		if v.CreatedAt.Before(cutoff) {
			delete(p.entries, k)
		}
	}
	p.entries[state] = pending
}

// take removes and returns the pending signup for the state, if any.
func (p *pendingSignups) take(state string) (*account.PendingSignup, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, ok := p.entries[state]
	if !ok {
		return nil, false
	}
	delete(p.entries, state)

	if time.Since(pending.CreatedAt) > pendingTTL {
		return nil, false
	}
	return pending, true
}
