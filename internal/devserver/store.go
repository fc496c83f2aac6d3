package devserver

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/retrogpt/client/internal/model/chat"
)

var (
	ErrChatNotFound   = errors.New("chat not found")
	ErrGrantNotFound  = errors.New("attach token not found")
	ErrGrantConsumed  = errors.New("attach token already consumed")
	ErrSessionUnknown = errors.New("unknown session token")
)

// defaultUserID is the backing identity of the anonymous sentinel token.
const defaultUserID int64 = 1

type storedMessage struct {
	Text   string
	Sender string
}

type chatRecord struct {
	id    int64
	name  string
	owner int64
	msgs  []storedMessage
}

type attachGrant struct {
	chatID int64
	owner  int64
	prompt string
	used   bool
}

// Store 管理开发服务的全部内存状态：用户、会话、聊天与附加令牌。
type Store struct {
	mu            sync.RWMutex
	nextUserID    int64
	nextChatID    int64
	usersByAccess map[string]int64
	sessions      map[string]int64
	chats         map[int64]*chatRecord
	chatOrder     []int64
	grants        map[string]*attachGrant
}

// NewStore bootstraps the in-memory state with the default (anonymous)
// user already provisioned under the sentinel token.
func NewStore() *Store {
	return &Store{
		nextUserID:    defaultUserID + 1,
		nextChatID:    1,
		usersByAccess: make(map[string]int64),
		sessions:      map[string]int64{chat.AnonymousToken: defaultUserID},
		chats:         make(map[int64]*chatRecord),
		grants:        make(map[string]*attachGrant),
	}
}

// Authenticate provisions (or finds) the user behind accessToken and mints
// a fresh session token for it.
func (s *Store) Authenticate(accessToken string) (token string, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.usersByAccess[accessToken]
	if !ok {
		userID = s.nextUserID
		s.nextUserID++
		s.usersByAccess[accessToken] = userID
	}

	token = uuid.NewString()
	s.sessions[token] = userID
	return token, userID
}

// ResolveSession maps a session token to its user.
func (s *Store) ResolveSession(token string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.sessions[token]
	if !ok {
		return 0, ErrSessionUnknown
	}
	return userID, nil
}

// ChatsFor lists a user's chats in creation order. The default user owns
// nothing by definition.
func (s *Store) ChatsFor(userID int64) []chat.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if userID == defaultUserID {
		return nil
	}

	out := make([]chat.Chat, 0, 4)
	for _, id := range s.chatOrder {
		if rec := s.chats[id]; rec != nil && rec.owner == userID {
			out = append(out, chat.Chat{ID: rec.id, Name: rec.name})
		}
	}
	return out
}

// CreateChat provisions a chat named after the opening prompt.
func (s *Store) CreateChat(owner int64, prompt string) chat.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &chatRecord{
		id:    s.nextChatID,
		name:  deriveChatName(prompt),
		owner: owner,
	}
	s.nextChatID++
	s.chats[rec.id] = rec
	s.chatOrder = append(s.chatOrder, rec.id)
	return chat.Chat{ID: rec.id, Name: rec.name}
}

// Append stores one message onto a chat.
func (s *Store) Append(chatID int64, sender, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	rec.msgs = append(rec.msgs, storedMessage{Text: text, Sender: sender})
	return nil
}

// Messages returns a chat's transcript in append order.
func (s *Store) Messages(chatID int64) ([]storedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	out := make([]storedMessage, len(rec.msgs))
	copy(out, rec.msgs)
	return out, nil
}

// DeleteChat removes a chat and its history.
func (s *Store) DeleteChat(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return ErrChatNotFound
	}
	delete(s.chats, chatID)
	for i, id := range s.chatOrder {
		if id == chatID {
			s.chatOrder = append(s.chatOrder[:i], s.chatOrder[i+1:]...)
			break
		}
	}
	return nil
}

// MintAttach issues a single-use attach token for one answer stream.
func (s *Store) MintAttach(chatID, owner int64, prompt string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.grants[token] = &attachGrant{chatID: chatID, owner: owner, prompt: prompt}
	return token
}

// ClaimAttach consumes an attach token. The second claim of the same token
// fails; that is the server-boundary enforcement of single use.
func (s *Store) ClaimAttach(token string) (attachGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[token]
	if !ok {
		return attachGrant{}, ErrGrantNotFound
	}
	if grant.used {
		return attachGrant{}, ErrGrantConsumed
	}
	grant.used = true
	return *grant, nil
}

// deriveChatName 依据首条提示词生成聊天名称。
func deriveChatName(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 4 {
		words = words[:4]
	}
	name := strings.Join(words, " ")
	if len(name) > 32 {
		name = name[:32]
	}
	if name == "" {
		name = "New Chat"
	}
	return name
}
