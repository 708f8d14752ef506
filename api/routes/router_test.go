package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/auth"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/config"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "digital-world",
			ExpirationMinutes: 15,
		},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Config: testConfig(),
		Logger: logger.New(logger.Options{ServiceName: "router-test"}),
	})
}

func TestRouterHealthLive(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-DigitalWorld-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
}

func TestRouterHealthReadyWithoutStores(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without backing stores, got %d", rec.Code)
	}
}

func TestRouterRejectsUnauthenticated(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/v1/cart", "/api/v1/orders", "/api/v1/notifications"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", path, rec.Code)
		}
	}
}

func TestRouterAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(Deps{
		Config: cfg,
		Logger: logger.New(logger.Options{ServiceName: "router-test"}),
	})

	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), uuid.New(), pkgauth.RoleCustomer)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/v1/orders/"+uuid.NewString()+"/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer on admin route, got %d", rec.Code)
	}
}
