package dto

import "time"

// PortalLoginRequest carries the owner's portal credentials.
type PortalLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionStatusResponse reports whether the stored portal session is live.
type SessionStatusResponse struct {
	OwnerID   string     `json:"ownerId"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
