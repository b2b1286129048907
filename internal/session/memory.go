package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/themobileprof/lambdachat/pkg/llm"
)

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	sessions map[string]*Session
	ttl      time.Duration
	mu       sync.RWMutex
	done     chan struct{}
	once     sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store. Sessions idle for longer than ttl
// are removed; a ttl of zero keeps them until Delete.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		done:     make(chan struct{}),
	}

	if ttl > 0 {
		go s.cleanupStale()
	}

	return s
}

// Create implements Store.Create
func (s *MemoryStore) Create(ctx context.Context, greeting string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		Messages:     []llm.Message{{Role: llm.RoleAssistant, Content: greeting}},
		InputEnabled: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess.clone(), nil
}

// Get implements Store.Get
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sess.clone(), nil
}

// Append implements Store.Append
func (s *MemoryStore) Append(ctx context.Context, id string, msg llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return ErrNotFound
	}

	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
	return nil
}

// SetInputEnabled implements Store.SetInputEnabled
func (s *MemoryStore) SetInputEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return ErrNotFound
	}

	sess.InputEnabled = enabled
	sess.UpdatedAt = time.Now()
	return nil
}

// DisableInput implements Store.DisableInput
func (s *MemoryStore) DisableInput(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return false, ErrNotFound
	}
	if !sess.InputEnabled {
		return false, nil
	}

	sess.InputEnabled = false
	sess.UpdatedAt = time.Now()
	return true, nil
}

// Delete implements Store.Delete
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Close stops the cleanup goroutine
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// live returns the session if it exists and has not expired. Caller holds mu.
func (s *MemoryStore) live(id string) (*Session, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && time.Since(sess.UpdatedAt) > s.ttl {
		return nil, false
	}
	return sess, true
}

// cleanupStale removes expired sessions
func (s *MemoryStore) cleanupStale() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for id, sess := range s.sessions {
				if time.Since(sess.UpdatedAt) > s.ttl {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

// clone returns a copy that shares no memory with the stored session
func (sess *Session) clone() *Session {
	out := *sess
	out.Messages = make([]llm.Message, len(sess.Messages))
	copy(out.Messages, sess.Messages)
	return &out
}
