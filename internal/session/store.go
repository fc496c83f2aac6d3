// Package session owns the session-token lifecycle: exchange of a provider
// access token for a backend session, resumption from the durable slot, and
// the reset back to the anonymous sentinel on logout.
package session

import (
	"context"
	"log"
	"sync"

	"github.com/retrogpt/client/internal/model/chat"
)

// Authenticator exchanges a provider access token for a backend session.
// Satisfied by the api client.
type Authenticator interface {
	Auth(ctx context.Context, accessToken string) (chat.Session, error)
}

// Store holds the current session. Every component reads through Current;
// only Authenticate and Logout replace the value.
type Store struct {
	auth Authenticator
	slot Slot

	mu   sync.RWMutex
	sess chat.Session
}

// NewStore resumes the session from the slot. An absent slot value resolves
// to the anonymous sentinel, never an error.
func NewStore(auth Authenticator, slot Slot) *Store {
	s := &Store{auth: auth, slot: slot, sess: chat.Anonymous()}
	if token, ok := slot.Read(); ok && token != chat.AnonymousToken {
		s.sess = chat.Session{Token: token}
	}
	return s
}

// Current returns the session in effect right now.
func (s *Store) Current() chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess
}

// Authenticate exchanges the access token, replaces the session wholesale
// and persists the new token to the slot.
func (s *Store) Authenticate(ctx context.Context, accessToken string) (chat.Session, error) {
	sess, err := s.auth.Auth(ctx, accessToken)
	if err != nil {
		return chat.Session{}, err
	}

	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()

	if err := s.slot.Write(sess.Token); err != nil {
		// The session is live in memory; losing the slot only costs
		// resumption after restart.
		log.Printf("[session] failed to persist token: %v", err)
	}
	return sess, nil
}

// SetUserID records the user identity resolved by a later call, keeping the
// token untouched.
func (s *Store) SetUserID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess.IsAnonymous() {
		return
	}
	s.sess.UserID = &id
}

// Logout resets to the anonymous sentinel and clears the slot. Cached chat
// and message state is the orchestrator's to flush.
func (s *Store) Logout() {
	s.mu.Lock()
	s.sess = chat.Anonymous()
	s.mu.Unlock()

	if err := s.slot.Clear(); err != nil {
		log.Printf("[session] failed to clear token slot: %v", err)
	}
}
