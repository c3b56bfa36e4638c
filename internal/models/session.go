package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// PortalSession is the single live portal login for an owner.
type PortalSession struct {
	ID           string         `db:"id" json:"id"`
	OwnerID      string         `db:"owner_id" json:"owner_id"`
	Cookies      types.JSONText `db:"cookies" json:"-"`
	AccessToken  *string        `db:"access_token" json:"-"`
	RefreshToken *string        `db:"refresh_token" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt    *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
}

// Expired reports whether the session carries an expiry that has passed.
func (s *PortalSession) Expired(now time.Time) bool {
	return s != nil && s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// PortalCredential stores the portal username and the sealed password used to
// re-establish an expired session.
type PortalCredential struct {
	OwnerID   string    `db:"owner_id"`
	Username  string    `db:"username"`
	Secret    []byte    `db:"secret"`
	UpdatedAt time.Time `db:"updated_at"`
}
