package domain

// Turn is one entry of a conversation history. Turns are never mutated after
// they are appended.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Sender  string    `json:"sender_name,omitempty"` // display only, never sent upstream
	At      Timestamp `json:"timestamp,omitempty"`
}

// ChatMessage is the role/content pair sent to the completion API.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastMessages returns at most the last n turns stripped down to role and content.
func LastMessages(turns []Turn, n int) []ChatMessage {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, ChatMessage{Role: t.Role, Content: t.Content})
	}
	return out
}
