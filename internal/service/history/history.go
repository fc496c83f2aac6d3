// Package history fetches the ordered transcript of the active chat. Every
// fetch result is tagged with the chat id it was issued for so a slow
// response for one chat can never be applied over another chat's messages.
package history

import (
	"context"

	"github.com/retrogpt/client/internal/model/chat"
)

// Backend is the single REST call the syncer issues.
type Backend interface {
	ChatMsgs(ctx context.Context, sess chat.Session, chatID int64) ([]chat.Message, error)
}

// Result carries a fetched transcript together with the identity it was
// keyed to. A nil ChatID marks a load for the "new chat" state, so no chat
// number can alias it. The caller compares ChatID and Token against the
// state in effect at resolution time and discards the result on any
// mismatch; that discard is a correctness requirement, not an optimization.
type Result struct {
	ChatID   *int64
	Token    string
	Messages []chat.Message
}

// Sync loads transcripts.
type Sync struct {
	backend Backend
}

func New(backend Backend) *Sync {
	return &Sync{backend: backend}
}

// Load fetches the transcript for chatID. A nil chatID is the "new chat"
// state and resolves to an empty transcript without any network call.
func (s *Sync) Load(ctx context.Context, sess chat.Session, chatID *int64) (Result, error) {
	if chatID == nil {
		return Result{Token: sess.Token}, nil
	}

	msgs, err := s.backend.ChatMsgs(ctx, sess, *chatID)
	if err != nil {
		return Result{}, err
	}
	id := *chatID
	return Result{ChatID: &id, Token: sess.Token, Messages: msgs}, nil
}

// Stale reports whether the result must be discarded because the active
// chat or the session token moved while the fetch was in flight.
func (r Result) Stale(activeID *int64, currentToken string) bool {
	if r.Token != currentToken {
		return true
	}
	if r.ChatID == nil || activeID == nil {
		return !(r.ChatID == nil && activeID == nil)
	}
	return *r.ChatID != *activeID
}
