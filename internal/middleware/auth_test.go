package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"nandu/api/internal/config"
	"nandu/api/internal/models"
	"nandu/api/internal/repository"
	"nandu/api/internal/security"
)

type fakeLoader struct {
	users map[string]models.User
}

func (l *fakeLoader) GetByID(ctx context.Context, id string) (models.User, error) {
	user, ok := l.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func newAuthTestRouter(t *testing.T, cfg *config.AppConfig, loader UserLoader) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", Auth(cfg, loader), func(c *gin.Context) {
		user := c.MustGet(ContextUserKey).(models.User)
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{JWTSecret: "test-secret", SessionTTL: time.Hour},
	}
	loader := &fakeLoader{users: map[string]models.User{
		"u1": {ID: "u1", Name: "Ada", Email: "ada@example.com", Role: models.UserRoleUser},
	}}
	router := newAuthTestRouter(t, cfg, loader)

	token, err := security.GenerateSessionToken("test-secret", "u1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}
	orphan, err := security.GenerateSessionToken("test-secret", "gone", time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}

	cases := []struct {
		name       string
		decorate   func(r *http.Request)
		wantStatus int
	}{
		{
			"bearer header",
			func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			http.StatusOK,
		},
		{
			"session cookie",
			func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: token}) },
			http.StatusOK,
		},
		{
			"no token",
			func(r *http.Request) {},
			http.StatusUnauthorized,
		},
		{
			"garbage token",
			func(r *http.Request) { r.Header.Set("Authorization", "Bearer not.a.token") },
			http.StatusUnauthorized,
		},
		{
			"valid token, deleted account",
			func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+orphan) },
			http.StatusUnauthorized,
		},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		tc.decorate(req)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.wantStatus {
			t.Errorf("%s: status %d, want %d", tc.name, rec.Code, tc.wantStatus)
		}
	}
}

func TestAuthMiddlewareHeaderBeatsCookie(t *testing.T) {
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{JWTSecret: "test-secret", SessionTTL: time.Hour},
	}
	loader := &fakeLoader{users: map[string]models.User{
		"u1": {ID: "u1"},
	}}
	router := newAuthTestRouter(t, cfg, loader)

	headerToken, err := security.GenerateSessionToken("test-secret", "u1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+headerToken)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale.cookie.token"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want %d", rec.Code, http.StatusOK)
	}
}
