package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/testutil"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/util/jwt"
)

func setupAuthDep(t *testing.T) *dependency.Dependency {
	t.Helper()
	cfg := testutil.NewTestConfig()
	cfg.JwtSecret = "test-secret-key"
	return testutil.NewTestDependency(cfg, nil, nil, nil)
}

type fakeEnsurer struct {
	seen []uint
	err  error
}

func (f *fakeEnsurer) EnsureUser(_ context.Context, userID uint) error {
	f.seen = append(f.seen, userID)
	return f.err
}

func newProtectedRouter(dep *dependency.Dependency, users middleware.UserEnsurer) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.Auth(dep, users))
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": middleware.CurrentUserID(c)})
	})
	return r
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newProtectedRouter(setupAuthDep(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "Invalid or expired token" {
		t.Fatalf("unexpected error message: %v", body)
	}
}

func TestAuthMiddlewareAllowsValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dep := setupAuthDep(t)
	ensurer := &fakeEnsurer{}
	r := newProtectedRouter(dep, ensurer)

	token, err := jwt.SignUserToken(dep, 99, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign user token: %v", err)
	}

	for _, req := range []*http.Request{
		func() *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", middleware.PrefixBearer+token)
			return req
		}(),
		httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil),
	} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", resp.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if val, ok := body["userId"].(float64); !ok || val != 99 {
			t.Fatalf("expected userId 99, got %v", body["userId"])
		}
	}

	if len(ensurer.seen) != 2 || ensurer.seen[0] != 99 {
		t.Fatalf("expected user mirror to be ensured, got %v", ensurer.seen)
	}
}

func TestAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dep := setupAuthDep(t)
	r := newProtectedRouter(dep, nil)

	expired, err := jwt.SignUserToken(dep, 10, -time.Minute)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", middleware.PrefixBearer+expired)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAuthMiddlewareSurfacesEnsureFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dep := setupAuthDep(t)
	r := newProtectedRouter(dep, &fakeEnsurer{err: errors.New("db down")})

	token, err := jwt.SignUserToken(dep, 5, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", middleware.PrefixBearer+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
}
