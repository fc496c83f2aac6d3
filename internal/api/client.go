package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/retrogpt/client/internal/model/chat"
)

// PathPrefix is the versioned prefix every backend route lives under.
const PathPrefix = "/api/v0.0.1"

// HeaderSessionToken carries the session credential on REST calls.
const HeaderSessionToken = "X-Session-Token"

// Client talks to the RetroGPT backend. The base URL is injected at
// construction so the client is testable against any host.
type Client struct {
	http    *resty.Client
	baseURL string
}

// New builds a client rooted at baseURL, e.g. "http://localhost:4002".
func New(baseURL string, timeout time.Duration) *Client {
	trimmed := strings.TrimRight(baseURL, "/")
	httpClient := resty.New().
		SetBaseURL(trimmed + PathPrefix).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient, baseURL: trimmed}
}

type authRequest struct {
	UserAccessToken string `json:"user_access_token"`
}

type authResponse struct {
	SessionToken string `json:"session_token"`
	UserID       int64  `json:"user_id"`
}

// Auth exchanges an identity-provider access token for a backend session.
func (c *Client) Auth(ctx context.Context, accessToken string) (chat.Session, error) {
	var out authResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(authRequest{UserAccessToken: accessToken}).
		SetResult(&out).
		Post("/auth")
	if err != nil {
		return chat.Session{}, &NetworkError{Op: "auth", Err: err}
	}
	if resp.IsError() {
		return chat.Session{}, &AuthError{Reason: errorBody(resp)}
	}
	if out.SessionToken == "" {
		return chat.Session{}, &ValidationError{Reason: "auth response missing session_token"}
	}

	userID := out.UserID
	return chat.Session{Token: out.SessionToken, UserID: &userID}, nil
}

type userChatsRequest struct {
	UserID *int64 `json:"user_id"`
}

type userChatsResponse struct {
	Chats  []chat.Chat `json:"chats"`
	UserID int64       `json:"user_id"`
}

// UserChats lists the chats owned by the session's user. The backend
// resolves the user from the session token; the body's user_id is a hint
// and may be null.
func (c *Client) UserChats(ctx context.Context, sess chat.Session) ([]chat.Chat, int64, error) {
	var out userChatsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderSessionToken, sess.Token).
		SetBody(userChatsRequest{UserID: sess.UserID}).
		SetResult(&out).
		Post("/user_chats")
	if err != nil {
		return nil, 0, &NetworkError{Op: "user_chats", Err: err}
	}
	if err := restError(resp, "user_chats"); err != nil {
		return nil, 0, err
	}
	return out.Chats, out.UserID, nil
}

type chatMsgsRequest struct {
	ChatID int64 `json:"chat_id"`
}

type wireMessage struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// ChatMsgs fetches the ordered transcript of one chat.
func (c *Client) ChatMsgs(ctx context.Context, sess chat.Session, chatID int64) ([]chat.Message, error) {
	var out []wireMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderSessionToken, sess.Token).
		SetBody(chatMsgsRequest{ChatID: chatID}).
		SetResult(&out).
		Post("/chat_msgs")
	if err != nil {
		return nil, &NetworkError{Op: "chat_msgs", Err: err}
	}
	if err := restError(resp, "chat_msgs"); err != nil {
		return nil, err
	}

	msgs := make([]chat.Message, 0, len(out))
	for _, m := range out {
		if m.Sender != chat.SenderUser && m.Sender != chat.SenderAI {
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown sender %q in chat_msgs response", m.Sender)}
		}
		msgs = append(msgs, chat.Message{Text: m.Text, Sender: m.Sender})
	}
	return msgs, nil
}

type promptRequest struct {
	Text   string `json:"text"`
	ChatID *int64 `json:"chat_id"`
}

// Prompt submits a user prompt. A nil chatID asks the backend to create a
// new chat. The ack's attach token is valid for exactly one stream.
func (c *Client) Prompt(ctx context.Context, sess chat.Session, text string, chatID *int64) (chat.PromptAck, error) {
	var out chat.PromptAck
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderSessionToken, sess.Token).
		SetBody(promptRequest{Text: text, ChatID: chatID}).
		SetResult(&out).
		Post("/prompt")
	if err != nil {
		return chat.PromptAck{}, &NetworkError{Op: "prompt", Err: err}
	}
	if err := restError(resp, "prompt"); err != nil {
		return chat.PromptAck{}, err
	}
	if out.AttachToken == "" {
		return chat.PromptAck{}, &ValidationError{Reason: "prompt response missing attach_token"}
	}
	return out, nil
}

type appendRequest struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
	ChatID int64  `json:"chat_id"`
}

// AppendToChat persists one message onto an existing chat.
func (c *Client) AppendToChat(ctx context.Context, sess chat.Session, sender, body string, chatID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderSessionToken, sess.Token).
		SetBody(appendRequest{Sender: sender, Body: body, ChatID: chatID}).
		Post("/append_to_chat")
	if err != nil {
		return &NetworkError{Op: "append_to_chat", Err: err}
	}
	return restError(resp, "append_to_chat")
}

type deleteChatRequest struct {
	ChatID int64 `json:"chat_id"`
}

// DeleteChat removes a chat and its history.
func (c *Client) DeleteChat(ctx context.Context, sess chat.Session, chatID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderSessionToken, sess.Token).
		SetBody(deleteChatRequest{ChatID: chatID}).
		Post("/delete_chat")
	if err != nil {
		return &NetworkError{Op: "delete_chat", Err: err}
	}
	return restError(resp, "delete_chat")
}

// AttachURL builds the websocket address for a one-shot answer stream. The
// session token rides in the query, never the body, mirroring the channel
// credential the backend expects.
func (c *Client) AttachURL(attachToken, sessionToken string) string {
	wsBase := c.baseURL
	switch {
	case strings.HasPrefix(wsBase, "https://"):
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	case strings.HasPrefix(wsBase, "http://"):
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}
	return fmt.Sprintf("%s%s/attach/%s?token=%s", wsBase, PathPrefix, attachToken, url.QueryEscape(sessionToken))
}

// restError maps a non-2xx REST response onto the error taxonomy.
func restError(resp *resty.Response, op string) error {
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() == 401 {
		return ErrSessionInvalid
	}
	return fmt.Errorf("%s failed: %s (%s)", op, resp.Status(), errorBody(resp))
}

func errorBody(resp *resty.Response) string {
	body := strings.TrimSpace(resp.String())
	if body == "" {
		return resp.Status()
	}
	return body
}
