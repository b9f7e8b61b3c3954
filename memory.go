package main

import "sync"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	defaultMemoryLimit = 20
)

type Turn struct {
	Role string
	Name string
	Text string
}

// ConversationMemory keeps the most recent turns of every chat in process memory.
// Nothing is persisted; a restart starts every chat from scratch.
type ConversationMemory struct {
	limit int
	turns map[int64][]Turn
	mu    sync.Mutex
}

func NewConversationMemory(limit int) *ConversationMemory {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &ConversationMemory{
		limit: limit,
		turns: make(map[int64][]Turn),
	}
}

func (m *ConversationMemory) Append(chatID int64, turn Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.turns[chatID], turn)
	if over := len(turns) - m.limit; over > 0 {
		turns = append([]Turn(nil), turns[over:]...)
	}
	m.turns[chatID] = turns
}

// Recent returns up to n of the latest turns, oldest first.
func (m *ConversationMemory) Recent(chatID int64, n int) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := m.turns[chatID]
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	start := max(0, len(turns)-n)
	out := make([]Turn, len(turns)-start)
	copy(out, turns[start:])
	return out
}

func (m *ConversationMemory) Len(chatID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns[chatID])
}

func (m *ConversationMemory) Groups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}
