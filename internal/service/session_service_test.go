package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
	"github.com/noah-isme/timetable-notifier/pkg/portal"
	"github.com/noah-isme/timetable-notifier/pkg/vault"
)

type portalStub struct {
	validPassword string
	liveCookie    string
	logins        int
	probes        int
}

func (p *portalStub) Login(_ context.Context, creds portal.Credentials) (*portal.Session, bool) {
	p.logins++
	if creds.Password != p.validPassword {
		return nil, false
	}
	return &portal.Session{Cookies: map[string]string{"PHPSESSID": p.liveCookie}}, true
}

func (p *portalStub) ProbeLiveness(_ context.Context, cookies map[string]string) bool {
	p.probes++
	return cookies["PHPSESSID"] == p.liveCookie
}

type sessionStoreStub struct {
	sessions map[string]*models.PortalSession
}

func newSessionStoreStub() *sessionStoreStub {
	return &sessionStoreStub{sessions: map[string]*models.PortalSession{}}
}

func (s *sessionStoreStub) Replace(_ context.Context, session *models.PortalSession) error {
	copied := *session
	s.sessions[session.OwnerID] = &copied
	return nil
}

func (s *sessionStoreStub) FindByOwner(_ context.Context, ownerID string) (*models.PortalSession, error) {
	session, ok := s.sessions[ownerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

type credentialStoreStub struct {
	creds map[string]*models.PortalCredential
}

func (c *credentialStoreStub) Upsert(_ context.Context, cred *models.PortalCredential) error {
	if c.creds == nil {
		c.creds = map[string]*models.PortalCredential{}
	}
	c.creds[cred.OwnerID] = cred
	return nil
}

func (c *credentialStoreStub) FindByOwner(_ context.Context, ownerID string) (*models.PortalCredential, error) {
	cred, ok := c.creds[ownerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cred, nil
}

func newSessionServiceForTest(t *testing.T) (*SessionService, *portalStub, *sessionStoreStub, *credentialStoreStub) {
	t.Helper()
	v, err := vault.New("test-secret")
	require.NoError(t, err)
	client := &portalStub{validPassword: "secret", liveCookie: "live"}
	sessions := newSessionStoreStub()
	creds := &credentialStoreStub{}
	svc := NewSessionService(client, sessions, creds, v, nil, nil, SessionConfig{TTL: 12 * time.Hour})
	return svc, client, sessions, creds
}

func TestSessionServiceLoginStoresSessionAndSealedPassword(t *testing.T) {
	svc, _, sessions, creds := newSessionServiceForTest(t)

	session, err := svc.Login(context.Background(), "42", dto.PortalLoginRequest{Username: "student", Password: "secret"})
	require.NoError(t, err)
	require.NotNil(t, session.ExpiresAt)

	stored := sessions.sessions["42"]
	require.NotNil(t, stored)
	var cookies map[string]string
	require.NoError(t, json.Unmarshal(stored.Cookies, &cookies))
	assert.Equal(t, "live", cookies["PHPSESSID"])

	require.Contains(t, creds.creds, "42")
	assert.Equal(t, "student", creds.creds["42"].Username)
	assert.NotContains(t, string(creds.creds["42"].Secret), "secret")
}

func TestSessionServiceLoginRejected(t *testing.T) {
	svc, _, sessions, creds := newSessionServiceForTest(t)

	_, err := svc.Login(context.Background(), "42", dto.PortalLoginRequest{Username: "student", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPortalLoginFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, sessions.sessions)
	assert.Empty(t, creds.creds)
}

func TestSessionServiceLoginValidation(t *testing.T) {
	svc, client, _, _ := newSessionServiceForTest(t)

	_, err := svc.Login(context.Background(), "42", dto.PortalLoginRequest{Username: "student"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, client.logins)
}

func TestSessionServiceStatus(t *testing.T) {
	svc, _, sessions, _ := newSessionServiceForTest(t)
	ctx := context.Background()

	_, err := svc.Status(ctx, "42")
	assert.True(t, errors.Is(err, appErrors.ErrSessionMissing))

	_, err = svc.Login(ctx, "42", dto.PortalLoginRequest{Username: "student", Password: "secret"})
	require.NoError(t, err)
	status, err := svc.Status(ctx, "42")
	require.NoError(t, err)
	assert.True(t, status.Active)

	sessions.sessions["42"].Cookies = []byte(`{"PHPSESSID":"stale"}`)
	status, err = svc.Status(ctx, "42")
	require.NoError(t, err)
	assert.False(t, status.Active)
}

func TestSessionServiceStatusExpiredSkipsProbe(t *testing.T) {
	svc, client, _, _ := newSessionServiceForTest(t)
	ctx := context.Background()
	_, err := svc.Login(ctx, "42", dto.PortalLoginRequest{Username: "student", Password: "secret"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	status, err := svc.Status(ctx, "42")
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Zero(t, client.probes)
}

func TestSessionServiceActiveCookiesRenewsWithStoredCredentials(t *testing.T) {
	svc, client, sessions, _ := newSessionServiceForTest(t)
	ctx := context.Background()
	_, err := svc.Login(ctx, "42", dto.PortalLoginRequest{Username: "student", Password: "secret"})
	require.NoError(t, err)

	cookies, err := svc.ActiveCookies(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "live", cookies["PHPSESSID"])
	assert.Equal(t, 1, client.logins)

	sessions.sessions["42"].Cookies = []byte(`{"PHPSESSID":"stale"}`)
	cookies, err = svc.ActiveCookies(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "live", cookies["PHPSESSID"])
	assert.Equal(t, 2, client.logins)
}

func TestSessionServiceActiveCookiesWithoutCredentials(t *testing.T) {
	client := &portalStub{validPassword: "secret", liveCookie: "live"}
	svc := NewSessionService(client, newSessionStoreStub(), nil, nil, nil, nil, SessionConfig{})

	_, err := svc.ActiveCookies(context.Background(), "42")
	assert.True(t, errors.Is(err, appErrors.ErrSessionMissing))
	assert.Zero(t, client.logins)
}
