// Package dispatch submits user prompts. It mutates no local chat or
// message state; stranded placeholders after a failed dispatch are exactly
// the bug this separation prevents.
package dispatch

import (
	"context"
	"strings"

	"github.com/retrogpt/client/internal/api"
	"github.com/retrogpt/client/internal/model/chat"
)

// Backend is the prompt call. Satisfied by the api client.
type Backend interface {
	Prompt(ctx context.Context, sess chat.Session, text string, chatID *int64) (chat.PromptAck, error)
}

// Dispatcher validates and submits prompts.
type Dispatcher struct {
	backend Backend
}

func New(backend Backend) *Dispatcher {
	return &Dispatcher{backend: backend}
}

// Submit sends text as a prompt against chatID, nil meaning "create a new
// chat". Text must be non-empty after trimming; a whitespace-only prompt is
// rejected before any network traffic.
func (d *Dispatcher) Submit(ctx context.Context, sess chat.Session, text string, chatID *int64) (chat.PromptAck, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chat.PromptAck{}, &api.ValidationError{Reason: "prompt text is empty"}
	}

	return d.backend.Prompt(ctx, sess, trimmed, chatID)
}
