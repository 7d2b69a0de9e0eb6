// session.go owns the open/close lifecycle of backend sessions.
package opencode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// closeTimeout bounds a best-effort session deletion or abort.
const closeTimeout = 5 * time.Second

// SessionManager creates sessions and guarantees each is deleted at most once.
type SessionManager struct {
	backend Backend
	logger  *zap.Logger

	mu     sync.Mutex
	closed map[string]bool
}

// NewSessionManager creates a SessionManager on top of backend.
func NewSessionManager(backend Backend, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		backend: backend,
		logger:  logger,
		closed:  make(map[string]bool),
	}
}

// Open creates a new session with the given title.
func (m *SessionManager) Open(ctx context.Context, title string) (Session, error) {
	sess, err := m.backend.CreateSession(ctx, title)
	if err != nil {
		return Session{}, fmt.Errorf("creating session: %w", err)
	}
	m.logger.Debug("session opened", zap.String("session", sess.ID), zap.String("title", sess.Title))
	return sess, nil
}

// Close deletes the session. It is idempotent and never fails: errors are
// logged. The deletion runs detached from ctx's cancellation so cleanup still
// happens after a timeout or interrupt.
func (m *SessionManager) Close(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}

	m.mu.Lock()
	if m.closed[sessionID] {
		m.mu.Unlock()
		return
	}
	m.closed[sessionID] = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	if err := m.backend.DeleteSession(ctx, sessionID); err != nil {
		m.logger.Warn("deleting session failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	m.logger.Debug("session closed", zap.String("session", sessionID))
}
