package devserver

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gorilla/websocket"

	"github.com/retrogpt/client/pkg/utils"
)

// handleAttach 打开一次性的回答流。令牌在升级前消费，第二次使用同一令牌
// 在握手阶段即被拒绝。
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	sessionToken := r.URL.Query().Get("token")
	if sessionToken == "" {
		utils.RespondError(w, http.StatusUnauthorized, "no session token provided")
		return
	}
	if _, err := s.store.ResolveSession(sessionToken); err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid session token")
		return
	}

	attachToken := chi.URLParam(r, "attachToken")
	grant, err := s.store.ClaimAttach(attachToken)
	if err != nil {
		if errors.Is(err, ErrGrantConsumed) {
			utils.RespondError(w, http.StatusConflict, "attach token already consumed")
			return
		}
		utils.RespondError(w, http.StatusNotFound, "attach token not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[attach] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for _, fragment := range s.respond(grant.prompt) {
		if s.fragmentDelay > 0 {
			time.Sleep(s.fragmentDelay)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(fragment)); err != nil {
			log.Printf("[attach] write failed for chat=%d: %v", grant.chatID, err)
			return
		}
	}

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Printf("[attach] close failed for chat=%d: %v", grant.chatID, err)
	}
}

// defaultResponder 生成占位回答并按不规则边界切分。
func defaultResponder(prompt string) []string {
	reply := "You asked: " + strings.TrimSpace(prompt) + ". This is the RetroGPT dev backend; point RETROGPT_BASE_URL at a real deployment for live answers."

	// Uneven chunks on purpose: the client must tolerate mid-word splits.
	const chunk = 7
	fragments := make([]string, 0, len(reply)/chunk+1)
	for len(reply) > 0 {
		n := chunk
		if n > len(reply) {
			n = len(reply)
		}
		fragments = append(fragments, reply[:n])
		reply = reply[n:]
	}
	return fragments
}
