package emotion

import (
	"sync"

	"github.com/zhouzirui/rapport/backend/internal/model/chat"
)

// MemoryLimit is the number of states remembered per user.
const MemoryLimit = 5

// Memory is the short-term, per-user queue of recent emotional states.
type Memory struct {
	mu     sync.Mutex
	limit  int
	states map[string][]chat.EmotionalState
}

// NewMemory creates a memory holding at most limit states per user.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = MemoryLimit
	}
	return &Memory{limit: limit, states: make(map[string][]chat.EmotionalState)}
}

// Remember appends state to the user's queue, evicting the oldest entry
// when the queue is full.
func (m *Memory) Remember(userID string, state chat.EmotionalState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := append(m.states[userID], state)
	if over := len(queue) - m.limit; over > 0 {
		queue = append([]chat.EmotionalState(nil), queue[over:]...)
	}
	m.states[userID] = queue
}

// Recent returns up to n of the user's latest states, oldest first.
func (m *Memory) Recent(userID string, n int) []chat.EmotionalState {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.states[userID]
	if n < 0 {
		n = 0
	}
	if n > len(queue) {
		n = len(queue)
	}
	return append([]chat.EmotionalState(nil), queue[len(queue)-n:]...)
}

// Len reports how many states are remembered for the user.
func (m *Memory) Len(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states[userID])
}

// Forget drops everything remembered about the given users.
func (m *Memory) Forget(userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range userIDs {
		delete(m.states, id)
	}
}
