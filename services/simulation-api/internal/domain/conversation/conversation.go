// Package conversation holds the turn model, the in-memory view of one
// persona's conversation and the MessageStore contract behind it.
package conversation

import (
	"sync"
)

// Conversation is the reader-facing, merged view of one persona's dialogue.
// It holds at most one loading placeholder, always at the end.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// New returns a conversation initialised with already committed turns.
func New(turns []Turn) *Conversation {
	c := &Conversation{}
	c.turns = append(c.turns, turns...)
	return c
}

// Turns returns a snapshot of the turns, including any placeholder.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of committed turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.turns)
	if n > 0 && c.turns[n-1].IsLoading {
		n--
	}
	return n
}

// Last returns the last committed turn.
func (c *Conversation) Last() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.turns) - 1; i >= 0; i-- {
		if !c.turns[i].IsLoading {
			return c.turns[i], true
		}
	}
	return Turn{}, false
}

// Begin appends a loading placeholder for role and returns its index.
func (c *Conversation) Begin(role Role) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropPlaceholder()
	c.turns = append(c.turns, Turn{Role: role, IsLoading: true})
	return len(c.turns) - 1
}

// Update replaces the placeholder's partial content.
func (c *Conversation) Update(index int, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < len(c.turns) && c.turns[index].IsLoading {
		c.turns[index].Content = content
	}
}

// Commit replaces the placeholder at index with the final turn.
func (c *Conversation) Commit(index int, turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	turn.IsLoading = false
	if index < len(c.turns) && c.turns[index].IsLoading {
		c.turns[index] = turn
		return
	}
	c.turns = append(c.turns, turn)
}

// Append adds a committed turn, discarding any placeholder.
func (c *Conversation) Append(turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropPlaceholder()
	turn.IsLoading = false
	c.turns = append(c.turns, turn)
}

// Truncate keeps the first n turns.
func (c *Conversation) Truncate(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < len(c.turns) {
		c.turns = c.turns[:n]
	}
}

// Reset removes every turn.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

func (c *Conversation) dropPlaceholder() {
	if n := len(c.turns); n > 0 && c.turns[n-1].IsLoading {
		c.turns = c.turns[:n-1]
	}
}
