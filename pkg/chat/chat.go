package chat

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"
)

// ChatMessage represents a single chat message in a conversation
// sent to an LLM. Character memory is stored in the same shape.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse is the raw completion returned by an LLM service.
type ChatResponse struct {
	Message string `json:"message"`
}
