package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.SessionStore = (*sessionStore)(nil)

type sessionStore struct {
	store *Store
}

// CreateSession stores a new session.
func (ss *sessionStore) CreateSession(_ context.Context, session *domain.Session) error {
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("%w: session %s", domain.ErrAlreadyExists, session.ID)
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	stored := *session
	stored.Config.Tags = slices.Clone(session.Config.Tags)
	s.sessions[session.ID] = stored
	return nil
}

// GetSession returns a session by ID.
func (ss *sessionStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	session.Config.Tags = slices.Clone(session.Config.Tags)
	return &session, nil
}

// ListSessions returns sessions, most recent first.
func (ss *sessionStore) ListSessions(_ context.Context, limit int) ([]domain.Session, error) {
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}

	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateSummary replaces a session's summary.
func (ss *sessionStore) UpdateSummary(_ context.Context, id, summary string) error {
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	session.Summary = summary
	s.sessions[id] = session
	return nil
}

// DeleteSession removes a session with its messages.
func (ss *sessionStore) DeleteSession(_ context.Context, id string) error {
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	for _, m := range s.messages[id] {
		delete(s.messageIDs, m.ID)
	}
	delete(s.messages, id)
	delete(s.sessions, id)
	return nil
}

// AppendMessages stores all messages or none.
func (ss *sessionStore) AppendMessages(_ context.Context, sessionID string, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	s := ss.store
	seen := make(map[string]bool, len(messages))
	for i := range messages {
		m := &messages[i]
		if !m.Role.IsValid() {
			return fmt.Errorf("%w: role %q cannot be stored", domain.ErrInvalidInput, m.Role)
		}
		if m.Embedding != nil {
			if err := s.checkDimensions(m.Embedding); err != nil {
				return err
			}
		}
		if seen[m.ID] {
			return fmt.Errorf("%w: message %s", domain.ErrAlreadyExists, m.ID)
		}
		seen[m.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	for _, m := range messages {
		if _, dup := s.messageIDs[m.ID]; dup {
			return fmt.Errorf("%w: message %s", domain.ErrAlreadyExists, m.ID)
		}
	}

	now := time.Now()
	for i := range messages {
		m := &messages[i]
		m.SessionID = sessionID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		s.messages[sessionID] = append(s.messages[sessionID], cloneMessage(*m))
		s.messageIDs[m.ID] = sessionID
	}
	return nil
}

// Messages returns the most recent messages in chronological order.
func (ss *sessionStore) Messages(_ context.Context, sessionID string, limit int) ([]domain.Message, error) {
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}

	all := s.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.Message, len(all))
	for i, m := range all {
		out[i] = cloneMessage(m)
	}
	return out, nil
}

// QuerySimilarMessages scans a session's embedded messages.
func (ss *sessionStore) QuerySimilarMessages(_ context.Context, sessionID string, query []float32, k int) ([]domain.ScoredMessage, error) {
	if k <= 0 {
		return nil, nil
	}
	s := ss.store
	if err := s.checkDimensions(query); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}

	var out []domain.ScoredMessage
	for _, m := range s.messages[sessionID] {
		if m.Embedding == nil {
			continue
		}
		out = append(out, domain.ScoredMessage{Message: cloneMessage(m), Distance: s.dist(query, m.Embedding)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Message.ID < out[j].Message.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
