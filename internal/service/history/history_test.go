package history

import (
	"context"
	"testing"

	"github.com/retrogpt/client/internal/model/chat"
)

type fakeBackend struct {
	msgs  []chat.Message
	calls int
}

func (f *fakeBackend) ChatMsgs(_ context.Context, _ chat.Session, _ int64) ([]chat.Message, error) {
	f.calls++
	return f.msgs, nil
}

func TestLoadNilChatSkipsNetwork(t *testing.T) {
	backend := &fakeBackend{msgs: []chat.Message{{Text: "x", Sender: chat.SenderUser}}}
	sync := New(backend)

	res, err := sync.Load(context.Background(), chat.Session{Token: "tok"}, nil)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if len(res.Messages) != 0 {
		t.Fatalf("expected empty transcript, got %d messages", len(res.Messages))
	}
	if backend.calls != 0 {
		t.Fatalf("expected no network call, got %d", backend.calls)
	}
}

func TestLoadTagsResult(t *testing.T) {
	backend := &fakeBackend{msgs: []chat.Message{{Text: "hi", Sender: chat.SenderUser}}}
	sync := New(backend)

	id := int64(3)
	res, err := sync.Load(context.Background(), chat.Session{Token: "tok"}, &id)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if res.ChatID == nil || *res.ChatID != 3 || res.Token != "tok" {
		t.Fatalf("result not tagged with its identity: %+v", res)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(res.Messages))
	}
}

func TestStale(t *testing.T) {
	three := int64(3)
	four := int64(4)

	res := Result{ChatID: &three, Token: "tok"}

	if res.Stale(&three, "tok") {
		t.Fatal("matching chat and token must not be stale")
	}
	if !res.Stale(&four, "tok") {
		t.Fatal("response for chat 3 must be discarded once chat 4 is active")
	}
	if !res.Stale(nil, "tok") {
		t.Fatal("response for chat 3 must be discarded once no chat is active")
	}
	if !res.Stale(&three, "other") {
		t.Fatal("response keyed to a superseded token must be discarded")
	}

	empty := Result{Token: "tok"}
	if empty.Stale(nil, "tok") {
		t.Fatal("new-chat result must apply while no chat is active")
	}
	if !empty.Stale(&three, "tok") {
		t.Fatal("new-chat result must be discarded once a chat is active")
	}
}

func TestStaleChatZeroIsNotTheNewChatState(t *testing.T) {
	zero := int64(0)

	res := Result{ChatID: &zero, Token: "tok"}
	if !res.Stale(nil, "tok") {
		t.Fatal("response for chat 0 must not pass as the new-chat state")
	}
	if res.Stale(&zero, "tok") {
		t.Fatal("response for chat 0 must apply while chat 0 is active")
	}
}
