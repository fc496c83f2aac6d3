// Package registry is the writer of record for which chats the current
// session owns and which one is active. Navigation code only reads from it.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/retrogpt/client/internal/model/chat"
)

// ErrStaleSession reports that a refresh resolved after the session token
// it was keyed to had been replaced; the fetched set was discarded.
var ErrStaleSession = errors.New("chat refresh keyed to superseded session")

// Backend covers the REST calls the registry issues. Satisfied by the api
// client.
type Backend interface {
	UserChats(ctx context.Context, sess chat.Session) ([]chat.Chat, int64, error)
	DeleteChat(ctx context.Context, sess chat.Session, chatID int64) error
}

// Registry holds the owned chat set and the active chat id. A nil active id
// means the next prompt creates a new chat.
type Registry struct {
	backend Backend
	current func() chat.Session

	mu     sync.RWMutex
	chats  map[int64]chat.Chat
	order  []int64
	active *int64
}

// New builds a registry. current reports the session in effect, used to
// discard refreshes that resolve after the token they were keyed to has
// been replaced.
func New(backend Backend, current func() chat.Session) *Registry {
	return &Registry{
		backend: backend,
		current: current,
		chats:   make(map[int64]chat.Chat),
	}
}

// Refresh replaces the chat set from the backend. An anonymous session
// fails soft: the set empties without any network call. The resolved user
// id is returned so the caller can record it on the session.
func (r *Registry) Refresh(ctx context.Context) ([]chat.Chat, int64, error) {
	sess := r.current()
	if sess.IsAnonymous() {
		r.mu.Lock()
		r.chats = make(map[int64]chat.Chat)
		r.order = nil
		r.mu.Unlock()
		return nil, 0, nil
	}

	chats, userID, err := r.backend.UserChats(ctx, sess)
	if err != nil {
		return nil, 0, err
	}
	if r.current().Token != sess.Token {
		return nil, 0, ErrStaleSession
	}

	r.mu.Lock()
	r.chats = make(map[int64]chat.Chat, len(chats))
	r.order = make([]int64, 0, len(chats))
	for _, c := range chats {
		if _, seen := r.chats[c.ID]; seen {
			continue
		}
		r.chats[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	if r.active != nil {
		if _, ok := r.chats[*r.active]; !ok {
			r.active = nil
		}
	}
	r.mu.Unlock()

	return chats, userID, nil
}

// Remove deletes a chat on the backend and drops it locally. The active id
// falls back to none when it named the removed chat.
func (r *Registry) Remove(ctx context.Context, chatID int64) error {
	if err := r.backend.DeleteChat(ctx, r.current(), chatID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[chatID]; !ok {
		return nil
	}
	delete(r.chats, chatID)
	for i, id := range r.order {
		if id == chatID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active != nil && *r.active == chatID {
		r.active = nil
	}
	return nil
}

// Chats returns the owned set in server order.
func (r *Registry) Chats() []chat.Chat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chat.Chat, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.chats[id])
	}
	return out
}

// Contains reports whether the owned set carries id.
func (r *Registry) Contains(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chats[id]
	return ok
}

// ActiveID returns the active chat id, nil meaning "new chat on next send".
func (r *Registry) ActiveID() *int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return nil
	}
	id := *r.active
	return &id
}

// SetActive points the registry at a chat, or at none when id is nil.
func (r *Registry) SetActive(id *int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == nil {
		r.active = nil
		return
	}
	v := *id
	r.active = &v
}

// Clear drops all local chat state, used on login and logout.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = make(map[int64]chat.Chat)
	r.order = nil
	r.active = nil
}
