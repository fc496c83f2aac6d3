package chat

// Chat is a named, server-persisted conversation owned by a user.
type Chat struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Sender values accepted by the backend.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message is one turn of the transcript as the client displays it. ID is a
// client-assigned identity that stays stable while the answer is still
// streaming, so in-place updates survive concurrent appends.
type Message struct {
	ID     string `json:"-"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
	Failed bool   `json:"-"`
}

// PromptAck names the chat the prompt was routed to and carries a
// single-use token authorizing exactly one answer stream.
type PromptAck struct {
	ChatID      int64  `json:"chat_id"`
	AttachToken string `json:"attach_token"`
}
