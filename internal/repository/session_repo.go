// internal/repository/session_repo.go
package repository

import (
	"context"

	"consult-core/internal/domain"
)

// SessionRepository defines the interface for session data operations.
type SessionRepository interface {
	// CreateSession adds a new session using the provided DBExecutor.
	CreateSession(ctx context.Context, q DBExecutor, session *domain.Session) error
	// GetSessionByID retrieves a session by its ID.
	GetSessionByID(ctx context.Context, q DBExecutor, sessionID string) (*domain.Session, error)
	// GetSessionByIDForUpdate retrieves a session and locks its row for the
	// duration of the surrounding transaction. Concurrent transitions against
	// the same session serialize on this lock.
	GetSessionByIDForUpdate(ctx context.Context, q DBExecutor, sessionID string) (*domain.Session, error)
	// UpdateSession persists the mutable lifecycle fields of a session.
	UpdateSession(ctx context.Context, q DBExecutor, session *domain.Session) error
	// GetNonTerminalSessions retrieves all sessions that have not reached a
	// terminal state, used by the startup recovery sweep.
	GetNonTerminalSessions(ctx context.Context, q DBExecutor) ([]domain.Session, error)
}
