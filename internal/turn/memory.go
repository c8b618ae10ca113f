package turn

import (
	"sync"

	"github.com/shashank8104/voxrelay/internal/llm"
)

// systemPrompt is fixed: short spoken replies, no markdown.
const systemPrompt = "You are a helpful voice assistant. Keep every response to 1-2 short sentences — you are speaking aloud, not writing. Never use bullet points, markdown, or lists. Be direct and natural."

// MemoryEntry is one committed turn's half: a user transcript or an
// assistant response.
type MemoryEntry struct {
	Role string // "user" or "assistant"
	Text string
}

// ConversationMemory is an append-only, ordered sequence of (role, text)
// pairs. A user entry is appended only after a non-empty transcript; an
// assistant entry only when the owning turn's committed flag is true.
// Interrupted assistant responses are never recorded.
type ConversationMemory struct {
	mu      sync.Mutex
	entries []MemoryEntry
}

// NewConversationMemory creates an empty memory.
func NewConversationMemory() *ConversationMemory {
	return &ConversationMemory{}
}

// CommitTurn appends the user transcript and assistant response together,
// atomically: both are appended, or (if either is empty) neither is.
func (m *ConversationMemory) CommitTurn(userText, assistantText string) {
	if userText == "" || assistantText == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries,
		MemoryEntry{Role: "user", Text: userText},
		MemoryEntry{Role: "assistant", Text: assistantText},
	)
}

// Messages snapshots the memory as an LLM request: a fixed system prompt
// followed by the ordered entries.
func (m *ConversationMemory) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]llm.Message, 0, len(m.entries)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	for _, e := range m.entries {
		msgs = append(msgs, llm.Message{Role: e.Role, Content: e.Text})
	}
	return msgs
}

// Entries returns a defensive copy of the accumulated entries.
func (m *ConversationMemory) Entries() []MemoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryEntry, len(m.entries))
	copy(out, m.entries)
	return out
}
