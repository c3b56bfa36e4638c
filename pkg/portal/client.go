// Package portal talks to the university portal: login, session liveness and
// the timetable endpoint. Every remote failure is absorbed here and reported
// as a negative result, so callers never see transport errors.
package portal

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	maxBodyBytes     = 5 << 20
	loginFailureMark = "a.loginLink"
)

// Credentials are the portal username and password.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is an authenticated cookie set.
type Session struct {
	Cookies map[string]string
}

// Config points the client at the portal endpoints.
type Config struct {
	LoginURL        string
	ScheduleURL     string
	ProbeURL        string
	Origin          string
	UserAgent       string
	Timeout         time.Duration
	ScheduleType    string
	ScheduleDetails int
}

// RequestObserver receives one sample per portal round trip. status is 0
// when the request never produced a response.
type RequestObserver interface {
	ObservePortalRequest(operation string, status int, duration time.Duration)
}

// Client implements login, liveness probing and timetable fetching.
type Client struct {
	cfg       Config
	logger    *zap.Logger
	observer  RequestObserver
	transport http.RoundTripper
	now       func() time.Time
}

// NewClient constructs a portal client with defaults for unset fields.
func NewClient(cfg Config, logger *zap.Logger, observer RequestObserver) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ScheduleType == "" {
		cfg.ScheduleType = "I"
	}
	return &Client{
		cfg:      cfg,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

func (c *Client) httpClient(jar http.CookieJar, followRedirects bool) *http.Client {
	client := &http.Client{
		Timeout:   c.cfg.Timeout,
		Jar:       jar,
		Transport: c.transport,
	}
	if !followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func (c *Client) observe(op string, status int, started time.Time) {
	if c.observer != nil {
		c.observer.ObservePortalRequest(op, status, time.Since(started))
	}
}

// Login posts credentials to the login form. Success is decided by the
// absence of the login link in the returned page, not by status alone; a
// non-200 answer or transport failure is a failed login.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, bool) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		c.logger.Sugar().Errorw("create cookie jar", "error", err)
		return nil, false
	}

	form := url.Values{
		"username":  {creds.Username},
		"password":  {creds.Password},
		"modstring": {""},
		"LogIn":     {"Log in"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Sugar().Warnw("build login request", "error", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setBrowserHeaders(req)

	start := time.Now()
	resp, err := c.httpClient(jar, true).Do(req)
	if err != nil {
		c.observe("login", 0, start)
		c.logger.Sugar().Warnw("portal login request failed", "username", creds.Username, "error", err)
		return nil, false
	}
	defer resp.Body.Close()
	c.observe("login", resp.StatusCode, start)

	if resp.StatusCode != http.StatusOK {
		c.logger.Sugar().Infow("portal login rejected", "username", creds.Username, "status", resp.StatusCode)
		return nil, false
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Sugar().Warnw("read login response", "error", err)
		return nil, false
	}
	if doc.Find(loginFailureMark).Length() > 0 {
		c.logger.Sugar().Infow("portal login invalid credentials", "username", creds.Username)
		return nil, false
	}

	return &Session{Cookies: collectCookies(jar, c.cfg.LoginURL, c.cfg.ScheduleURL, c.cfg.ProbeURL)}, true
}

// ProbeLiveness issues a GET to a protected page without following
// redirects. 200 and 302 count as active; everything else, including a
// network error, counts as inactive.
func (c *Client) ProbeLiveness(ctx context.Context, cookies map[string]string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProbeURL, nil)
	if err != nil {
		c.logger.Sugar().Warnw("build probe request", "error", err)
		return false
	}
	addCookies(req, cookies)
	c.setBrowserHeaders(req)

	start := time.Now()
	resp, err := c.httpClient(nil, false).Do(req)
	if err != nil {
		c.observe("probe", 0, start)
		c.logger.Sugar().Debugw("portal probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	c.observe("probe", resp.StatusCode, start)

	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusFound
}

func (c *Client) setBrowserHeaders(req *http.Request) {
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}

func addCookies(req *http.Request, cookies map[string]string) {
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func collectCookies(jar http.CookieJar, rawURLs ...string) map[string]string {
	out := make(map[string]string)
	for _, raw := range rawURLs {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		for _, ck := range jar.Cookies(u) {
			out[ck.Name] = ck.Value
		}
	}
	return out
}
