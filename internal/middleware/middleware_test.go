package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
)

type validatorStub struct {
	claims *models.AccessClaims
}

func (v validatorStub) ValidateToken(token string) (*models.AccessClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func newProtectedRouter(claims *models.AccessClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/users/:ownerId", JWT(validatorStub{claims: claims}), OwnerAccess())
	group.GET("/lessons", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r http.Handler, path, auth string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWTRejectsMissingOrMalformedHeader(t *testing.T) {
	r := newProtectedRouter(&models.AccessClaims{Scope: models.ScopeService})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/users/42/lessons", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/users/42/lessons", "Token good"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/users/42/lessons", "Bearer bad"))
	assert.Equal(t, http.StatusOK, serve(r, "/users/42/lessons", "bearer good"))
}

func TestOwnerAccess(t *testing.T) {
	owner := &models.AccessClaims{Scope: models.ScopeOwner}
	owner.Subject = "42"
	r := newProtectedRouter(owner)

	assert.Equal(t, http.StatusOK, serve(r, "/users/42/lessons", "Bearer good"))
	assert.Equal(t, http.StatusForbidden, serve(r, "/users/43/lessons", "Bearer good"))
}

type observerStub struct {
	mu    sync.Mutex
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(_ string, path string, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, path)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/users/:ownerId/lessons", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, "/users/42/lessons", "")
	serve(r, "/nowhere", "")

	assert.Equal(t, []string{"/users/:ownerId/lessons", "unmatched"}, observer.paths)
}

func TestServiceOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	route := func(claims *models.AccessClaims) *gin.Engine {
		r := gin.New()
		r.GET("/scheduler/jobs", JWT(validatorStub{claims: claims}), ServiceOnly(), func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	owner := &models.AccessClaims{Scope: models.ScopeOwner}
	owner.Subject = "42"
	assert.Equal(t, http.StatusForbidden, serve(route(owner), "/scheduler/jobs", "Bearer good"))
	assert.Equal(t, http.StatusOK, serve(route(&models.AccessClaims{Scope: models.ScopeService}), "/scheduler/jobs", "Bearer good"))
	assert.Equal(t, http.StatusUnauthorized, serve(route(&models.AccessClaims{Scope: models.ScopeService}), "/scheduler/jobs", ""))
}
