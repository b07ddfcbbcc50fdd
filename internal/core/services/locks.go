package services

import (
	"context"
	"sync"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// SessionLocks grants at most one holder per session id. Different
// sessions never contend.
type SessionLocks struct {
	mu     sync.Mutex
	tokens map[string]*sessionToken
}

type sessionToken struct {
	ch   chan struct{}
	refs int
}

// NewSessionLocks creates an empty lock table.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{tokens: make(map[string]*sessionToken)}
}

// Acquire waits for the session token. The returned release func is
// idempotent. A cancelled ctx abandons the wait.
func (l *SessionLocks) Acquire(ctx context.Context, id string) (func(), error) {
	t := l.ref(id)
	select {
	case t.ch <- struct{}{}:
		return l.releaser(id, t), nil
	case <-ctx.Done():
		l.unref(id, t)
		return nil, ctx.Err()
	}
}

// TryAcquire takes the session token if it is free, otherwise it returns
// ErrSessionBusy.
func (l *SessionLocks) TryAcquire(id string) (func(), error) {
	t := l.ref(id)
	select {
	case t.ch <- struct{}{}:
		return l.releaser(id, t), nil
	default:
		l.unref(id, t)
		return nil, domain.ErrSessionBusy
	}
}

// Held reports whether a session token is currently taken.
func (l *SessionLocks) Held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[id]
	return ok && len(t.ch) > 0
}

func (l *SessionLocks) ref(id string) *sessionToken {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[id]
	if !ok {
		t = &sessionToken{ch: make(chan struct{}, 1)}
		l.tokens[id] = t
	}
	t.refs++
	return t
}

func (l *SessionLocks) unref(id string, t *sessionToken) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t.refs--
	if t.refs == 0 {
		delete(l.tokens, id)
	}
}

func (l *SessionLocks) releaser(id string, t *sessionToken) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-t.ch
			l.unref(id, t)
		})
	}
}
