package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn represents a single chat message
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is a turn as sent to the model: identifier and timestamp stripped.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewTurn creates a turn with a fresh identifier.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserTurn creates a turn spoken by the user.
func NewUserTurn(content string) Turn {
	return NewTurn(RoleUser, content)
}

// NewAssistantTurn creates a turn spoken by the model.
func NewAssistantTurn(content string) Turn {
	return NewTurn(RoleAssistant, content)
}

// Log is the ordered conversation of one session. Turns are only ever
// appended; the log does not enforce that roles alternate.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds turn to the end of the log.
func (l *Log) Append(turn Turn) {
	l.mu.Lock()
	l.turns = append(l.turns, turn)
	l.mu.Unlock()
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Turns returns a copy of the log in conversation order.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	turns := make([]Turn, len(l.turns))
	copy(turns, l.turns)
	return turns
}

// OutboundHistory returns every turn, in order, as a request entry.
// The whole conversation is returned; nothing is windowed or summarized.
func (l *Log) OutboundHistory() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := make([]Entry, len(l.turns))
	for i, turn := range l.turns {
		entries[i] = Entry{Role: turn.Role, Content: turn.Content}
	}
	return entries
}
