// Package orchestrator ties the session, registry, history, dispatch and
// stream components into the send pipeline: a prompt goes out, an attach
// token comes back, fragments accumulate into a placeholder message with a
// stable identity, and a graceful close reconciles the answer into durable
// chat history.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/retrogpt/client/internal/api"
	"github.com/retrogpt/client/internal/model/chat"
	"github.com/retrogpt/client/internal/service/dispatch"
	"github.com/retrogpt/client/internal/service/history"
	"github.com/retrogpt/client/internal/service/registry"
	"github.com/retrogpt/client/internal/service/stream"
	"github.com/retrogpt/client/internal/session"
)

// Backend is the full surface the orchestrator needs from the api client.
type Backend interface {
	Auth(ctx context.Context, accessToken string) (chat.Session, error)
	UserChats(ctx context.Context, sess chat.Session) ([]chat.Chat, int64, error)
	ChatMsgs(ctx context.Context, sess chat.Session, chatID int64) ([]chat.Message, error)
	Prompt(ctx context.Context, sess chat.Session, text string, chatID *int64) (chat.PromptAck, error)
	AppendToChat(ctx context.Context, sess chat.Session, sender, body string, chatID int64) error
	DeleteChat(ctx context.Context, sess chat.Session, chatID int64) error
	AttachURL(attachToken, sessionToken string) string
}

// ErrFlowSuperseded reports that a flow resolved after the session token it
// was keyed to had been replaced; its write-back was discarded.
var ErrFlowSuperseded = errors.New("flow keyed to superseded session")

// EventKind names a state change. Each change emits exactly one event,
// consumed once by the front-end; there is no recomputed effect graph.
type EventKind int

const (
	// EventSession: the session was replaced by login or logout.
	EventSession EventKind = iota
	// EventChats: the owned chat set or the active chat id changed.
	EventChats
	// EventTranscript: the display message sequence changed.
	EventTranscript
	// EventFlowDone: a flow streamed to completion and reconciled.
	EventFlowDone
	// EventFlowFailed: a flow failed at dispatch, streaming or persist.
	EventFlowFailed
)

// Event is one orchestrator state change.
type Event struct {
	Kind   EventKind
	FlowID string
	Err    error
}

// Orchestrator owns the display transcript and the in-flight prompt flows.
// Flows share no mutable state with each other beyond the transcript and
// the active chat id, both written only under the orchestrator's lock.
type Orchestrator struct {
	backend    Backend
	store      *session.Store
	registry   *registry.Registry
	history    *history.Sync
	dispatcher *dispatch.Dispatcher
	guard      *stream.TokenGuard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	messages []chat.Message

	events chan Event
}

// New wires an orchestrator around backend and store.
func New(backend Backend, store *session.Store) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		backend:    backend,
		store:      store,
		history:    history.New(backend),
		dispatcher: dispatch.New(backend),
		guard:      stream.NewTokenGuard(),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan Event, 64),
	}
	o.registry = registry.New(backend, store.Current)
	return o
}

// Events exposes the orchestrator's state-change feed.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Session returns the session in effect.
func (o *Orchestrator) Session() chat.Session {
	return o.store.Current()
}

// Chats returns the owned chat set in server order.
func (o *Orchestrator) Chats() []chat.Chat {
	return o.registry.Chats()
}

// ActiveChatID returns the active chat id, nil meaning "new chat".
func (o *Orchestrator) ActiveChatID() *int64 {
	return o.registry.ActiveID()
}

// Messages returns a snapshot of the display transcript.
func (o *Orchestrator) Messages() []chat.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]chat.Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Login exchanges the provider access token for a session, flushes all
// cached chat state and loads the new user's chat list.
func (o *Orchestrator) Login(ctx context.Context, accessToken string) error {
	if _, err := o.store.Authenticate(ctx, accessToken); err != nil {
		return err
	}

	o.registry.Clear()
	o.setMessages(nil)
	o.emit(Event{Kind: EventSession})
	o.emit(Event{Kind: EventTranscript})

	if err := o.RefreshChats(ctx); err != nil {
		log.Printf("[orchestrator] chat refresh after login failed: %v", err)
	}
	return nil
}

// Logout resets to the anonymous sentinel and flushes cached state.
func (o *Orchestrator) Logout() {
	o.store.Logout()
	o.registry.Clear()
	o.setMessages(nil)
	o.emit(Event{Kind: EventSession})
	o.emit(Event{Kind: EventChats})
	o.emit(Event{Kind: EventTranscript})
}

// RefreshChats re-syncs the owned chat set. A refresh that resolves after
// the session token moved is discarded silently.
func (o *Orchestrator) RefreshChats(ctx context.Context) error {
	_, userID, err := o.registry.Refresh(ctx)
	if errors.Is(err, registry.ErrStaleSession) {
		return nil
	}
	if err != nil {
		return err
	}
	if userID != 0 {
		o.store.SetUserID(userID)
	}
	o.emit(Event{Kind: EventChats})
	return nil
}

// OpenChat makes id the active chat and syncs its transcript. A nil id
// enters the "new chat" state without any network call. A transcript that
// resolves after the user has navigated elsewhere is discarded, never
// applied over the newer chat's messages.
func (o *Orchestrator) OpenChat(ctx context.Context, id *int64) error {
	o.registry.SetActive(id)
	o.emit(Event{Kind: EventChats})

	sess := o.store.Current()
	res, err := o.history.Load(ctx, sess, id)
	if err != nil {
		return err
	}
	if res.Stale(o.registry.ActiveID(), o.store.Current().Token) {
		return nil
	}

	msgs := make([]chat.Message, len(res.Messages))
	for i, m := range res.Messages {
		m.ID = uuid.NewString()
		msgs[i] = m
	}
	o.setMessages(msgs)
	o.emit(Event{Kind: EventTranscript})
	return nil
}

// RemoveChat deletes a chat. When it was active, the transcript empties and
// the next send starts a new chat.
func (o *Orchestrator) RemoveChat(ctx context.Context, id int64) error {
	wasActive := false
	if active := o.registry.ActiveID(); active != nil && *active == id {
		wasActive = true
	}
	if err := o.registry.Remove(ctx, id); err != nil {
		return err
	}
	if wasActive {
		o.setMessages(nil)
		o.emit(Event{Kind: EventTranscript})
	}
	o.emit(Event{Kind: EventChats})
	return nil
}

// Send submits text as a prompt against the active chat and starts the
// answer flow. The returned flow id names the streaming placeholder for the
// whole life of the flow, so concurrent sends cannot misaddress it. A
// failed dispatch removes the placeholder instead of stranding it.
func (o *Orchestrator) Send(ctx context.Context, text string) (string, error) {
	sess := o.store.Current()
	chatID := o.registry.ActiveID()
	flowID := uuid.NewString()
	userMsgID := uuid.NewString()

	o.mu.Lock()
	o.messages = append(o.messages,
		chat.Message{ID: userMsgID, Text: text, Sender: chat.SenderUser},
		chat.Message{ID: flowID, Text: "...", Sender: chat.SenderAI},
	)
	o.mu.Unlock()
	o.emit(Event{Kind: EventTranscript})

	ack, err := o.dispatcher.Submit(ctx, sess, text, chatID)
	if err != nil {
		o.removeMessage(flowID)
		var verr *api.ValidationError
		if errors.As(err, &verr) {
			// The prompt never left the client; drop its echo too.
			o.removeMessage(userMsgID)
		}
		o.emit(Event{Kind: EventTranscript})
		o.emit(Event{Kind: EventFlowFailed, FlowID: flowID, Err: err})
		return "", err
	}

	if err := o.guard.Claim(ack.AttachToken); err != nil {
		o.removeMessage(flowID)
		o.emit(Event{Kind: EventTranscript})
		o.emit(Event{Kind: EventFlowFailed, FlowID: flowID, Err: err})
		return "", err
	}

	o.wg.Add(1)
	go o.runFlow(flowID, sess, ack)
	return flowID, nil
}

// runFlow owns one streaming session end to end. It runs under the
// orchestrator's teardown scope, not the caller's request context, because
// the stream outlives the Send call.
func (o *Orchestrator) runFlow(flowID string, sess chat.Session, ack chat.PromptAck) {
	defer o.wg.Done()

	consumer := stream.NewConsumer()
	url := o.backend.AttachURL(ack.AttachToken, sess.Token)

	final, err := consumer.Run(o.ctx, url, func(accum string) {
		o.updateMessage(flowID, accum)
		o.emit(Event{Kind: EventTranscript, FlowID: flowID})
	})
	if err != nil {
		// The partial text stays visible as a failure indicator but is
		// never persisted.
		o.markFailed(flowID)
		o.emit(Event{Kind: EventTranscript, FlowID: flowID})
		o.emit(Event{Kind: EventFlowFailed, FlowID: flowID, Err: err})
		log.Printf("[orchestrator] flow %s stream failed: %v", flowID, err)
		return
	}

	o.reconcile(flowID, sess, ack, final)
}

// reconcile persists the finished answer, re-syncs the chat list and
// promotes the resolved chat id to active — in that order. When the persist
// step fails nothing else runs: an unsynchronized answer must never look
// durably saved. A flow keyed to a session token that has since been
// replaced is discarded instead of written back, and the chat id is only
// promoted when the refreshed registry actually carries it.
func (o *Orchestrator) reconcile(flowID string, sess chat.Session, ack chat.PromptAck, final string) {
	if o.store.Current().Token != sess.Token {
		o.discardFlow(flowID)
		return
	}

	if err := o.backend.AppendToChat(o.ctx, sess, chat.SenderAI, final, ack.ChatID); err != nil {
		o.markFailed(flowID)
		o.emit(Event{Kind: EventTranscript, FlowID: flowID})
		o.emit(Event{Kind: EventFlowFailed, FlowID: flowID, Err: err})
		log.Printf("[orchestrator] flow %s persist failed: %v", flowID, err)
		return
	}

	o.updateMessage(flowID, final)
	o.emit(Event{Kind: EventTranscript, FlowID: flowID})

	if err := o.RefreshChats(o.ctx); err != nil {
		log.Printf("[orchestrator] chat refresh after flow %s failed: %v", flowID, err)
	}

	if o.store.Current().Token != sess.Token {
		o.discardFlow(flowID)
		return
	}
	if !o.registry.Contains(ack.ChatID) {
		// The refresh never learned of the chat; promoting its id would
		// point the active marker at a chat the registry cannot name.
		o.emit(Event{Kind: EventFlowDone, FlowID: flowID})
		return
	}

	o.registry.SetActive(&ack.ChatID)
	o.emit(Event{Kind: EventChats})
	o.emit(Event{Kind: EventFlowDone, FlowID: flowID})
}

// discardFlow drops a flow whose session was superseded mid-stream. The
// transcript it fed has already been flushed by the session change.
func (o *Orchestrator) discardFlow(flowID string) {
	o.emit(Event{Kind: EventFlowFailed, FlowID: flowID, Err: ErrFlowSuperseded})
	log.Printf("[orchestrator] flow %s discarded: session superseded", flowID)
}

// Close tears the orchestrator down: every open channel is closed and every
// flow goroutine has exited by the time it returns.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) setMessages(msgs []chat.Message) {
	o.mu.Lock()
	o.messages = msgs
	o.mu.Unlock()
}

func (o *Orchestrator) updateMessage(id, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.messages {
		if o.messages[i].ID == id {
			o.messages[i].Text = text
			return
		}
	}
}

func (o *Orchestrator) markFailed(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.messages {
		if o.messages[i].ID == id {
			o.messages[i].Failed = true
			return
		}
	}
}

func (o *Orchestrator) removeMessage(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.messages {
		if o.messages[i].ID == id {
			o.messages = append(o.messages[:i], o.messages[i+1:]...)
			return
		}
	}
}

// emit never blocks a flow on a slow consumer: a full feed drops the event,
// and the front-end re-reads state on the next one it receives. Terminal
// flow events are the exception — nothing follows them, so losing one would
// leave the final state unrendered. Those wait for room, bounded by the
// orchestrator's teardown scope.
func (o *Orchestrator) emit(ev Event) {
	if ev.Kind == EventFlowDone || ev.Kind == EventFlowFailed {
		select {
		case o.events <- ev:
		case <-o.ctx.Done():
		}
		return
	}
	select {
	case o.events <- ev:
	default:
		log.Printf("[orchestrator] event feed full, dropped %v", ev.Kind)
	}
}
