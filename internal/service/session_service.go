package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
	"github.com/noah-isme/timetable-notifier/pkg/portal"
)

type portalAuthenticator interface {
	Login(ctx context.Context, creds portal.Credentials) (*portal.Session, bool)
	ProbeLiveness(ctx context.Context, cookies map[string]string) bool
}

type sessionStore interface {
	Replace(ctx context.Context, session *models.PortalSession) error
	FindByOwner(ctx context.Context, ownerID string) (*models.PortalSession, error)
}

type credentialStore interface {
	Upsert(ctx context.Context, cred *models.PortalCredential) error
	FindByOwner(ctx context.Context, ownerID string) (*models.PortalCredential, error)
}

type secretSealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// SessionConfig tunes portal session handling.
type SessionConfig struct {
	TTL time.Duration
}

// SessionService logs owners into the portal, stores their session and keeps
// it usable for timetable syncs.
type SessionService struct {
	portal      portalAuthenticator
	sessions    sessionStore
	credentials credentialStore
	vault       secretSealer
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         SessionConfig
	now         func() time.Time
}

// NewSessionService constructs a SessionService. credentials and vault may
// be nil, which disables automatic re-login.
func NewSessionService(client portalAuthenticator, sessions sessionStore, credentials credentialStore, vault secretSealer, validate *validator.Validate, logger *zap.Logger, cfg SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SessionService{
		portal:      client,
		sessions:    sessions,
		credentials: credentials,
		vault:       vault,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Login authenticates against the portal and replaces the owner's session.
// Rejected credentials yield ErrPortalLoginFailed.
func (s *SessionService) Login(ctx context.Context, ownerID string, req dto.PortalLoginRequest) (*models.PortalSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	session, err := s.login(ctx, ownerID, portal.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		return nil, err
	}
	s.rememberCredentials(ctx, ownerID, req.Username, req.Password)
	return session, nil
}

// Status probes the stored session.
func (s *SessionService) Status(ctx context.Context, ownerID string) (*dto.SessionStatusResponse, error) {
	session, err := s.find(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	status := &dto.SessionStatusResponse{OwnerID: ownerID, CreatedAt: session.CreatedAt, ExpiresAt: session.ExpiresAt}
	if session.Expired(s.now()) {
		return status, nil
	}
	cookies, err := decodeCookies(session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored session is unreadable")
	}
	status.Active = s.portal.ProbeLiveness(ctx, cookies)
	return status, nil
}

// ActiveCookies returns cookies of a live session, logging in again with the
// stored credentials when the current session is expired or inactive.
func (s *SessionService) ActiveCookies(ctx context.Context, ownerID string) (map[string]string, error) {
	session, err := s.find(ctx, ownerID)
	if err != nil && !errors.Is(err, appErrors.ErrSessionMissing) {
		return nil, err
	}
	if session != nil && !session.Expired(s.now()) {
		cookies, decodeErr := decodeCookies(session)
		if decodeErr == nil && s.portal.ProbeLiveness(ctx, cookies) {
			return cookies, nil
		}
		s.logger.Sugar().Infow("portal session inactive", "owner_id", ownerID)
	}

	creds, ok := s.storedCredentials(ctx, ownerID)
	if !ok {
		return nil, appErrors.ErrSessionMissing
	}
	fresh, err := s.login(ctx, ownerID, creds)
	if err != nil {
		return nil, err
	}
	s.logger.Sugar().Infow("portal session renewed", "owner_id", ownerID)
	return decodeCookies(fresh)
}

func (s *SessionService) login(ctx context.Context, ownerID string, creds portal.Credentials) (*models.PortalSession, error) {
	result, ok := s.portal.Login(ctx, creds)
	if !ok {
		s.logger.Sugar().Infow("portal login failed", "owner_id", ownerID, "username", creds.Username)
		return nil, appErrors.ErrPortalLoginFailed
	}

	raw, err := json.Marshal(result.Cookies)
	if err != nil {
		return nil, fmt.Errorf("encode cookies: %w", err)
	}
	session := &models.PortalSession{OwnerID: ownerID, Cookies: raw, CreatedAt: s.now().UTC()}
	if s.cfg.TTL > 0 {
		expires := session.CreatedAt.Add(s.cfg.TTL)
		session.ExpiresAt = &expires
	}
	if err := s.sessions.Replace(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) rememberCredentials(ctx context.Context, ownerID, username, password string) {
	if s.credentials == nil || s.vault == nil {
		return
	}
	sealed, err := s.vault.Seal([]byte(password))
	if err != nil {
		s.logger.Sugar().Warnw("seal portal password", "owner_id", ownerID, "error", err)
		return
	}
	if err := s.credentials.Upsert(ctx, &models.PortalCredential{OwnerID: ownerID, Username: username, Secret: sealed}); err != nil {
		s.logger.Sugar().Warnw("store portal credentials", "owner_id", ownerID, "error", err)
	}
}

func (s *SessionService) storedCredentials(ctx context.Context, ownerID string) (portal.Credentials, bool) {
	if s.credentials == nil || s.vault == nil {
		return portal.Credentials{}, false
	}
	cred, err := s.credentials.FindByOwner(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Warnw("load portal credentials", "owner_id", ownerID, "error", err)
		}
		return portal.Credentials{}, false
	}
	password, err := s.vault.Open(cred.Secret)
	if err != nil {
		s.logger.Sugar().Warnw("unseal portal password", "owner_id", ownerID, "error", err)
		return portal.Credentials{}, false
	}
	return portal.Credentials{Username: cred.Username, Password: string(password)}, true
}

func (s *SessionService) find(ctx context.Context, ownerID string) (*models.PortalSession, error) {
	session, err := s.sessions.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionMissing
		}
		return nil, err
	}
	return session, nil
}

func decodeCookies(session *models.PortalSession) (map[string]string, error) {
	cookies := make(map[string]string)
	if len(session.Cookies) == 0 {
		return cookies, nil
	}
	if err := session.Cookies.Unmarshal(&cookies); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	return cookies, nil
}
