package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

var _ driven.SessionStore = (*sessionStore)(nil)

type sessionStore struct {
	store *Store
}

// messagePayload is the JSONB column holding everything but the role and
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
	var summary *string
	if session.Summary != "" {
		summary = &session.Summary
	}

	_, err = s.store.pool.Exec(ctx, `
		INSERT INTO sessions (id, started_at, config, summary) VALUES ($1, $2, $3, $4)
	`, session.ID, session.StartedAt, string(cfg), summary)
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
	row := s.store.pool.QueryRow(ctx,
		"SELECT id, started_at, config, summary FROM sessions WHERE id = $1", id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
		q += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.store.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Session, error) {
		session, err := scanSession(row)
		if err != nil {
			return domain.Session{}, err
		}
		return *session, nil
	})
	if err != nil {
		return nil, unavailable("reading sessions", err)
	}
	return sessions, nil
}

// UpdateSummary replaces a session's rolling summary.
func (s *sessionStore) UpdateSummary(ctx context.Context, id, summary string) error {
	tag, err := s.store.pool.Exec(ctx, "UPDATE sessions SET summary = $1 WHERE id = $2", summary, id)
	if err != nil {
		return unavailable("updating summary", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return nil
}

// DeleteSession removes a session; its messages go by cascade.
func (s *sessionStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.store.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return unavailable("deleting session", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return nil
}

// AppendMessages appends messages in order, all or none. The session row
// is locked so that concurrent appends get distinct sequence numbers.
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

	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return unavailable("beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var locked string
	err = tx.QueryRow(ctx, "SELECT id FROM sessions WHERE id = $1 FOR UPDATE", sessionID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	if err != nil {
		return unavailable("locking session", err)
	}

	var seq int
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = $1", sessionID).Scan(&seq); err != nil {
		return unavailable("reading message sequence", err)
	}

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
		var emb *pgvector.Vector
		if m.Embedding != nil {
			v := pgvector.NewVector(m.Embedding)
			emb = &v
		}
		seq++
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, session_id, seq, role, payload, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, m.ID, sessionID, seq, string(m.Role), string(payload), emb, m.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: message %s", domain.ErrAlreadyExists, m.ID)
			}
			return unavailable("saving message", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("committing transaction", err)
	}
	return nil
}

// Messages returns a session's messages in chronological order. A positive
// limit keeps only the most recent ones.
func (s *sessionStore) Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	q := "SELECT " + messageColumns + ", 0::float8 FROM messages WHERE session_id = $1 ORDER BY seq DESC"
	args := []any{sessionID}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}

	scored, err := queryMessages(ctx, s.store.pool, q, args...)
	if err != nil {
		return nil, err
	}
	messages := make([]domain.Message, len(scored))
	for i := range scored {
		messages[len(scored)-1-i] = scored[i].Message
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

	q := "SELECT " + messageColumns + ", " + s.store.distance + " FROM messages" +
		" WHERE session_id = $2 AND embedding IS NOT NULL" +
		" ORDER BY embedding " + operator(s.store.metric) + " $1, id LIMIT " + strconv.Itoa(k)
	args := []any{pgvector.NewVector(query), sessionID}

	results, err := queryMessages(ctx, s.store.pool, q, args...)
	if err != nil || len(results) >= k {
		return results, err
	}

	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return nil, unavailable("beginning exact scan", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if _, err := tx.Exec(ctx, "SET LOCAL enable_indexscan = off"); err != nil {
		return nil, unavailable("disabling index scan", err)
	}
	return queryMessages(ctx, tx, q, args...)
}

func queryMessages(ctx context.Context, q querier, sql string, args ...any) ([]domain.ScoredMessage, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable("querying messages", err)
	}
	defer rows.Close()

	var out []domain.ScoredMessage
	for rows.Next() {
		var sm domain.ScoredMessage
		m := &sm.Message
		var role string
		var payload []byte
		var emb *pgvector.Vector
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &payload, &emb, &m.CreatedAt, &sm.Distance); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		var p messagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decoding message %s: %w", m.ID, err)
		}
		m.Role = domain.Role(role)
		m.Content = p.Content
		m.ToolCalls = p.ToolCalls
		m.ToolCallID = p.ToolCallID
		m.ToolName = p.ToolName
		if emb != nil {
			m.Embedding = emb.Slice()
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating messages", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	var cfg []byte
	var summary *string
	if err := row.Scan(&session.ID, &session.StartedAt, &cfg, &summary); err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &session.Config); err != nil {
			return nil, fmt.Errorf("decoding session config: %w", err)
		}
	}
	if summary != nil {
		session.Summary = *summary
	}
	return &session, nil
}
