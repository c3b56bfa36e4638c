package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-notifier/internal/models"
)

// SessionRepository stores the single live portal session per owner.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Replace drops any previous session of the owner and stores the new one.
func (r *SessionRepository) Replace(ctx context.Context, session *models.PortalSession) (err error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM portal_sessions WHERE owner_id = $1`, session.OwnerID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	const insert = `INSERT INTO portal_sessions (id, owner_id, cookies, access_token, refresh_token, created_at, expires_at)
VALUES (:id, :owner_id, :cookies, :access_token, :refresh_token, :created_at, :expires_at)`
	if _, err = tx.NamedExecContext(ctx, insert, session); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace session: %w", err)
	}
	return nil
}

// FindByOwner returns the owner's session or sql.ErrNoRows.
func (r *SessionRepository) FindByOwner(ctx context.Context, ownerID string) (*models.PortalSession, error) {
	const query = `SELECT id, owner_id, cookies, access_token, refresh_token, created_at, expires_at
FROM portal_sessions WHERE owner_id = $1`
	var session models.PortalSession
	if err := r.db.GetContext(ctx, &session, query, ownerID); err != nil {
		return nil, err
	}
	return &session, nil
}

// CredentialRepository stores sealed portal credentials.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository constructs the repository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert stores or refreshes the owner's credentials.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.PortalCredential) error {
	cred.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO portal_credentials (owner_id, username, secret, updated_at)
VALUES (:owner_id, :username, :secret, :updated_at)
ON CONFLICT (owner_id)
DO UPDATE SET username = EXCLUDED.username, secret = EXCLUDED.secret, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, cred); err != nil {
		return fmt.Errorf("upsert portal credential: %w", err)
	}
	return nil
}

// FindByOwner returns the owner's credentials or sql.ErrNoRows.
func (r *CredentialRepository) FindByOwner(ctx context.Context, ownerID string) (*models.PortalCredential, error) {
	const query = `SELECT owner_id, username, secret, updated_at FROM portal_credentials WHERE owner_id = $1`
	var cred models.PortalCredential
	if err := r.db.GetContext(ctx, &cred, query, ownerID); err != nil {
		return nil, err
	}
	return &cred, nil
}
