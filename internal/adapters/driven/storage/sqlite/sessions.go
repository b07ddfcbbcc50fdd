package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// sessionStore implements driven.SessionStore.
type sessionStore struct {
	store *Store
}

var _ driven.SessionStore = (*sessionStore)(nil)

// messagePayload is the JSON column holding everything but the role and
// embedding of a message.
type messagePayload struct {
	Content    string            `json:"content"`
	ToolCalls  []domain.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolName   string            `json:"tool_name,omitempty"`
}

const messageColumns = `id, session_id, role, payload, embedding, created_at`

// CreateSession persists a new session.
func (s *sessionStore) CreateSession(ctx context.Context, session *domain.Session) error {
	cfg, err := json.Marshal(session.Config)
	if err != nil {
		return fmt.Errorf("encoding session config: %w", err)
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, config, summary) VALUES (?, ?, ?, ?)
	`, session.ID, formatTime(session.StartedAt), string(cfg), nullString(session.Summary))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session %s", domain.ErrAlreadyExists, session.ID)
		}
		return unavailable("saving session", err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *sessionStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT id, started_at, config, summary FROM sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable("loading session", err)
	}
	return session, nil
}

// ListSessions returns sessions, newest first.
func (s *sessionStore) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	q := "SELECT id, started_at, config, summary FROM sessions ORDER BY started_at DESC, id"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating sessions", err)
	}
	return sessions, nil
}

// UpdateSummary replaces a session's rolling summary.
func (s *sessionStore) UpdateSummary(ctx context.Context, id, summary string) error {
	res, err := s.store.db.ExecContext(ctx, "UPDATE sessions SET summary = ? WHERE id = ?", summary, id)
	if err != nil {
		return unavailable("updating summary", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return nil
}

// DeleteSession removes a session and its messages.
func (s *sessionStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids, err := selectIDs(ctx, tx, "SELECT id FROM messages WHERE session_id = ?", id)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return unavailable("deleting session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("committing transaction", err)
	}

	s.store.messages.remove(ids)
	return nil
}

// AppendMessages appends messages to a session in order. Either all of
// them are stored or none are.
func (s *sessionStore) AppendMessages(ctx context.Context, sessionID string, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	for i := range messages {
		m := &messages[i]
		if !m.Role.IsValid() {
			return fmt.Errorf("%w: role %q cannot be stored", domain.ErrInvalidInput, m.Role)
		}
		if m.Embedding != nil {
			if err := s.store.checkDimensions(m.Embedding); err != nil {
				return err
			}
		}
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	staged := s.store.messages.stage()
	defer staged.discard()

	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT MAX(seq) FROM messages WHERE session_id = s.id), 0)
		FROM sessions s WHERE s.id = ?
	`, sessionID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	if err != nil {
		return unavailable("reading message sequence", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, session_id, seq, role, payload, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return unavailable("preparing statement", err)
	}
	defer stmt.Close()

	for i := range messages {
		m := &messages[i]
		m.SessionID = sessionID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		payload, err := json.Marshal(messagePayload{
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		})
		if err != nil {
			return fmt.Errorf("encoding message: %w", err)
		}
		seq++
		if _, err := stmt.ExecContext(ctx, m.ID, sessionID, seq, string(m.Role), string(payload),
			float32SliceToBytes(m.Embedding), formatTime(m.CreatedAt)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: message %s", domain.ErrAlreadyExists, m.ID)
			}
			return unavailable("saving message", err)
		}
		if m.Embedding != nil {
			staged.add(m.ID, m.Embedding)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("committing transaction", err)
	}
	staged.keep()
	return nil
}

// Messages returns a session's messages in chronological order. A positive
// limit keeps only the most recent ones.
func (s *sessionStore) Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	q := "SELECT " + messageColumns + " FROM messages WHERE session_id = ? ORDER BY seq DESC"
	args := []any{sessionID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	messages, err := s.queryMessages(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// QuerySimilarMessages returns the k messages of a session closest to query.
func (s *sessionStore) QuerySimilarMessages(ctx context.Context, sessionID string, query []float32, k int) ([]domain.ScoredMessage, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := s.store.checkDimensions(query); err != nil {
		return nil, err
	}

	candidates, err := s.store.messages.search(query, k*s.store.oversample)
	if err != nil {
		return nil, fmt.Errorf("searching message index: %w", err)
	}

	var results []domain.ScoredMessage
	missing := 0
	if len(candidates) > 0 {
		ids := make([]any, 0, len(candidates))
		for id := range candidates {
			ids = append(ids, id)
		}
		loaded, err := s.queryMessages(ctx, "SELECT "+messageColumns+
			" FROM messages WHERE id IN ("+placeholders(len(candidates))+")", ids...)
		if err != nil {
			return nil, err
		}
		missing = len(candidates) - len(loaded)
		for i := range loaded {
			if loaded[i].SessionID != sessionID {
				continue
			}
			results = append(results, domain.ScoredMessage{Message: loaded[i], Distance: candidates[loaded[i].ID]})
		}
	}

	// Unknown ids belong to writes still in flight; scan exactly.
	if len(results) < k || missing > 0 {
		loaded, err := s.queryMessages(ctx, "SELECT "+messageColumns+
			" FROM messages WHERE session_id = ? AND embedding IS NOT NULL", sessionID)
		if err != nil {
			return nil, err
		}
		results = results[:0]
		for i := range loaded {
			results = append(results, domain.ScoredMessage{
				Message:  loaded[i],
				Distance: s.store.messages.dist(query, loaded[i].Embedding),
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Message.ID < results[j].Message.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *sessionStore) queryMessages(ctx context.Context, q string, args ...any) ([]domain.Message, error) {
	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("querying messages", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var role, payload, created string
		var blob []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &payload, &blob, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		var p messagePayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decoding message %s: %w", m.ID, err)
		}
		m.Role = domain.Role(role)
		m.Content = p.Content
		m.ToolCalls = p.ToolCalls
		m.ToolCallID = p.ToolCallID
		m.ToolName = p.ToolName
		m.Embedding = bytesToFloat32Slice(blob)
		m.CreatedAt = parseTime(created)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating messages", err)
	}
	return messages, nil
}

func scanSession(row scanner) (*domain.Session, error) {
	var session domain.Session
	var started, cfg string
	var summary sql.NullString
	if err := row.Scan(&session.ID, &started, &cfg, &summary); err != nil {
		return nil, err
	}
	session.StartedAt = parseTime(started)
	session.Summary = summary.String
	if err := json.Unmarshal([]byte(cfg), &session.Config); err != nil {
		return nil, fmt.Errorf("decoding session config: %w", err)
	}
	return &session, nil
}

func selectIDs(ctx context.Context, tx *sql.Tx, q string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("selecting ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating ids", err)
	}
	return ids, nil
}
