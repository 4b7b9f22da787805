package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a MessageStore kept in process memory. It applies the same
// timestamp rule as the database repository.
type MemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	seq   int
	logs  map[Ref][]Turn
	last  map[string]time.Time
	fault func(op string, ref Ref) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:  time.Now,
		logs: make(map[Ref][]Turn),
		last: make(map[string]time.Time),
	}
}

// WithClock overrides the clock used for CreatedAt.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// FailWith makes every subsequent call for which fn returns an error fail.
// Passing nil clears it.
func (s *MemoryStore) FailWith(fn func(op string, ref Ref) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *MemoryStore) check(op string, ref Ref) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, ref)
}

func (s *MemoryStore) Append(ctx context.Context, ref Ref, role Role, content string, isError bool) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("append", ref); err != nil {
		return Turn{}, err
	}

	s.seq++
	turn := Turn{
		ID:        fmt.Sprintf("msg_%d", s.seq),
		Role:      role,
		Content:   content,
		CreatedAt: NextTimestamp(s.last[ref.ConversationID], s.now()),
		IsError:   isError,
	}
	s.last[ref.ConversationID] = turn.CreatedAt
	s.logs[ref] = append(s.logs[ref], turn)
	return turn, nil
}

func (s *MemoryStore) DeleteFrom(ctx context.Context, ref Ref, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("delete_from", ref); err != nil {
		return 0, err
	}

	kept := s.logs[ref][:0]
	var removed int64
	for _, t := range s.logs[ref] {
		if t.CreatedAt.Before(cutoff) {
			kept = append(kept, t)
			continue
		}
		removed++
	}
	s.logs[ref] = kept
	return removed, nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context, ref Ref) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("delete_all", ref); err != nil {
		return 0, err
	}

	removed := int64(len(s.logs[ref]))
	delete(s.logs, ref)
	return removed, nil
}

func (s *MemoryStore) List(ctx context.Context, ref Ref) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("list", ref); err != nil {
		return nil, err
	}

	out := make([]Turn, len(s.logs[ref]))
	copy(out, s.logs[ref])
	return out, nil
}

var _ MessageStore = (*MemoryStore)(nil)
