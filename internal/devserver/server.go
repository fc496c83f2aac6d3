// Package devserver is an in-memory stand-in for the RetroGPT backend. It
// implements the whole client-facing protocol — auth, chat listing,
// transcripts, prompt dispatch with single-use attach tokens, and the
// websocket answer stream — against process-local state, for local
// development and integration tests.
package devserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/retrogpt/client/internal/api"
	"github.com/retrogpt/client/internal/model/chat"
	"github.com/retrogpt/client/pkg/utils"
)

// Responder produces the fragments streamed back for a prompt. Fragments
// may split mid-word; the client must not assume any boundary semantics,
// and the default responder deliberately splits unevenly.
type Responder func(prompt string) []string

// Option customizes a Server.
type Option func(*Server)

// WithResponder replaces the canned answer generator.
func WithResponder(fn Responder) Option {
	return func(s *Server) { s.respond = fn }
}

// WithFragmentDelay inserts a pause between fragments, approximating a
// model generating tokens. Tests leave it at zero.
func WithFragmentDelay(d time.Duration) Option {
	return func(s *Server) { s.fragmentDelay = d }
}

// Server 提供本地开发用的 RetroGPT 后端。
type Server struct {
	store         *Store
	respond       Responder
	fragmentDelay time.Duration
	upgrader      websocket.Upgrader
}

// New builds a dev server with a fresh store.
func New(opts ...Option) *Server {
	s := &Server{
		store:   NewStore(),
		respond: defaultResponder,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler wires the protocol routes under the versioned prefix.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route(api.PathPrefix, func(v chi.Router) {
		v.Post("/auth", s.handleAuth)
		v.Post("/user_chats", s.handleUserChats)
		v.Post("/chat_msgs", s.handleChatMsgs)
		v.Post("/prompt", s.handlePrompt)
		v.Post("/append_to_chat", s.handleAppend)
		v.Post("/delete_chat", s.handleDeleteChat)
		v.Get("/attach/{attachToken}", s.handleAttach)
	})

	return r
}

// handleAuth 用第三方访问令牌换取会话令牌。
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserAccessToken string `json:"user_access_token"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.UserAccessToken == "" {
		utils.RespondError(w, http.StatusBadRequest, "user_access_token is required")
		return
	}

	token, userID := s.store.Authenticate(payload.UserAccessToken)
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"session_token": token,
		"user_id":       userID,
	})
}

// session resolves the X-Session-Token header, writing the 401 on failure.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (int64, bool) {
	token := r.Header.Get(api.HeaderSessionToken)
	if token == "" {
		utils.RespondError(w, http.StatusUnauthorized, "no session token provided")
		return 0, false
	}
	userID, err := s.store.ResolveSession(token)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid session token")
		return 0, false
	}
	return userID, true
}

func (s *Server) handleUserChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		UserID *int64 `json:"user_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.UserID != nil && *payload.UserID != userID {
		utils.RespondError(w, http.StatusBadRequest, "session token does not match requested user")
		return
	}

	chats := s.store.ChatsFor(userID)
	if chats == nil {
		chats = []chat.Chat{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"chats":   chats,
		"user_id": userID,
	})
}

func (s *Server) handleChatMsgs(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session(w, r); !ok {
		return
	}

	var payload struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msgs, err := s.store.Messages(payload.ChatID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "chat not found")
		return
	}

	out := make([]map[string]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]string{"text": m.Text, "sender": m.Sender})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

// handlePrompt 受理提示词：必要时创建新聊天，保存用户消息并签发附加令牌。
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text   string `json:"text"`
		ChatID *int64 `json:"chat_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	var chatID int64
	if payload.ChatID == nil {
		chatID = s.store.CreateChat(userID, payload.Text).ID
	} else {
		chatID = *payload.ChatID
		if _, err := s.store.Messages(chatID); err != nil {
			utils.RespondError(w, http.StatusNotFound, "chat not found")
			return
		}
	}

	if err := s.store.Append(chatID, chat.SenderUser, payload.Text); err != nil {
		utils.RespondError(w, http.StatusNotFound, "chat not found")
		return
	}

	attachToken := s.store.MintAttach(chatID, userID, payload.Text)
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"chat_id":      chatID,
		"attach_token": attachToken,
	})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session(w, r); !ok {
		return
	}

	var payload struct {
		Sender string `json:"sender"`
		Body   string `json:"body"`
		ChatID int64  `json:"chat_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Sender != chat.SenderUser && payload.Sender != chat.SenderAI {
		utils.RespondError(w, http.StatusBadRequest, "sender must be user or ai")
		return
	}

	if err := s.store.Append(payload.ChatID, payload.Sender, payload.Body); err != nil {
		utils.RespondError(w, http.StatusNotFound, "chat not found")
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session(w, r); !ok {
		return
	}

	var payload struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.DeleteChat(payload.ChatID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "chat not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
