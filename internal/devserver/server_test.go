package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/retrogpt/client/internal/api"
	"github.com/retrogpt/client/internal/model/chat"
)

func postJSON(t *testing.T, handler http.Handler, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, api.PathPrefix+path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(api.HeaderSessionToken, token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func authenticate(t *testing.T, handler http.Handler) (token string, userID int64) {
	t.Helper()
	resp := postJSON(t, handler, "/auth", "", map[string]string{"user_access_token": "provider-tok"})
	if resp.Code != http.StatusOK {
		t.Fatalf("auth status %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		SessionToken string `json:"session_token"`
		UserID       int64  `json:"user_id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	return out.SessionToken, out.UserID
}

func TestAuthRequiresAccessToken(t *testing.T) {
	handler := New().Handler()

	resp := postJSON(t, handler, "/auth", "", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUserChatsRejectsUnknownToken(t *testing.T) {
	handler := New().Handler()

	resp := postJSON(t, handler, "/user_chats", "bogus", map[string]interface{}{"user_id": nil})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAnonymousTokenOwnsNoChats(t *testing.T) {
	handler := New().Handler()

	resp := postJSON(t, handler, "/user_chats", chat.AnonymousToken, map[string]interface{}{"user_id": nil})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var out struct {
		Chats []chat.Chat `json:"chats"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(out.Chats) != 0 {
		t.Fatalf("expected no chats for the default user, got %d", len(out.Chats))
	}
}

func TestPromptCreatesChatNamedFromText(t *testing.T) {
	handler := New().Handler()
	token, userID := authenticate(t, handler)

	resp := postJSON(t, handler, "/prompt", token, map[string]interface{}{
		"text":    "what is the meaning of life exactly",
		"chat_id": nil,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("prompt status %d: %s", resp.Code, resp.Body.String())
	}
	var ack chat.PromptAck
	if err := json.Unmarshal(resp.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if ack.ChatID == 0 || ack.AttachToken == "" {
		t.Fatalf("incomplete ack %+v", ack)
	}

	chatsResp := postJSON(t, handler, "/user_chats", token, map[string]interface{}{"user_id": userID})
	var out struct {
		Chats []chat.Chat `json:"chats"`
	}
	if err := json.Unmarshal(chatsResp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(out.Chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(out.Chats))
	}
	if out.Chats[0].Name != "what is the meaning" {
		t.Fatalf("unexpected chat name %q", out.Chats[0].Name)
	}
}

func TestPromptAgainstUnknownChat(t *testing.T) {
	handler := New().Handler()
	token, _ := authenticate(t, handler)

	resp := postJSON(t, handler, "/prompt", token, map[string]interface{}{
		"text":    "hi",
		"chat_id": 99,
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestAppendAndReadBack(t *testing.T) {
	handler := New().Handler()
	token, _ := authenticate(t, handler)

	var ack chat.PromptAck
	resp := postJSON(t, handler, "/prompt", token, map[string]interface{}{"text": "hello", "chat_id": nil})
	if err := json.Unmarshal(resp.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode err: %v", err)
	}

	appendResp := postJSON(t, handler, "/append_to_chat", token, map[string]interface{}{
		"sender":  chat.SenderAI,
		"body":    "hi there",
		"chat_id": ack.ChatID,
	})
	if appendResp.Code != http.StatusAccepted {
		t.Fatalf("append status %d: %s", appendResp.Code, appendResp.Body.String())
	}

	msgsResp := postJSON(t, handler, "/chat_msgs", token, map[string]interface{}{"chat_id": ack.ChatID})
	var msgs []map[string]string
	if err := json.Unmarshal(msgsResp.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	// The prompt itself is persisted server-side as the user turn.
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0]["sender"] != chat.SenderUser || msgs[0]["text"] != "hello" {
		t.Fatalf("unexpected first message %v", msgs[0])
	}
	if msgs[1]["sender"] != chat.SenderAI || msgs[1]["text"] != "hi there" {
		t.Fatalf("unexpected second message %v", msgs[1])
	}
}

func TestAppendRejectsUnknownSender(t *testing.T) {
	handler := New().Handler()
	token, _ := authenticate(t, handler)

	resp := postJSON(t, handler, "/append_to_chat", token, map[string]interface{}{
		"sender":  "robot",
		"body":    "x",
		"chat_id": 1,
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestDeleteChatRemovesIt(t *testing.T) {
	handler := New().Handler()
	token, _ := authenticate(t, handler)

	var ack chat.PromptAck
	resp := postJSON(t, handler, "/prompt", token, map[string]interface{}{"text": "hello", "chat_id": nil})
	if err := json.Unmarshal(resp.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode err: %v", err)
	}

	delResp := postJSON(t, handler, "/delete_chat", token, map[string]interface{}{"chat_id": ack.ChatID})
	if delResp.Code != http.StatusOK {
		t.Fatalf("delete status %d", delResp.Code)
	}

	msgsResp := postJSON(t, handler, "/chat_msgs", token, map[string]interface{}{"chat_id": ack.ChatID})
	if msgsResp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", msgsResp.Code)
	}
}

func TestAttachStreamsAndIsSingleUse(t *testing.T) {
	server := New(WithResponder(func(prompt string) []string {
		return []string{"Hel", "lo wo", "rld"}
	}))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	token, _ := authenticate(t, server.Handler())

	resp := postJSON(t, server.Handler(), "/prompt", token, map[string]interface{}{"text": "hi", "chat_id": nil})
	var ack chat.PromptAck
	if err := json.Unmarshal(resp.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode err: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + api.PathPrefix + "/attach/" + ack.AttachToken + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()

	var got string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("unexpected read err: %v", err)
			}
			break
		}
		got += string(data)
	}
	if got != "Hello world" {
		t.Fatalf("unexpected streamed text %q", got)
	}

	// The same attach token must not open a second channel.
	if _, resp2, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("expected second dial to fail")
	} else if resp2 == nil || resp2.StatusCode != http.StatusConflict {
		code := 0
		if resp2 != nil {
			code = resp2.StatusCode
		}
		t.Fatalf("expected 409 on reuse, got %d", code)
	}
}
