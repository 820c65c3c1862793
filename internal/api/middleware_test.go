package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine, method, bearer string) int {
	req := httptest.NewRequest(method, "/resource", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAuthMiddleware_TokenClasses(t *testing.T) {
	t.Setenv("API_AUTH_TOKEN", "full-secret")
	t.Setenv("API_READONLY_TOKEN", "dash-secret")
	r := protectedRouter()

	if code := doRequest(r, http.MethodGet, ""); code != http.StatusUnauthorized {
		t.Errorf("Missing Authorization header must be 401, got %d", code)
	}
	if code := doRequest(r, http.MethodPost, "wrong"); code != http.StatusForbidden {
		t.Errorf("Unknown token must be 403, got %d", code)
	}
	if code := doRequest(r, http.MethodPost, "full-secret"); code != http.StatusOK {
		t.Errorf("Full token must pass writes, got %d", code)
	}
	if code := doRequest(r, http.MethodGet, "dash-secret"); code != http.StatusOK {
		t.Errorf("Read-only token must pass reads, got %d", code)
	}
	// Dashboards must never mutate investigation state.
	if code := doRequest(r, http.MethodPost, "dash-secret"); code != http.StatusForbidden {
		t.Errorf("Read-only token on a write must be 403, got %d", code)
	}
}

func TestAuthMiddleware_DevModeAllowsAll(t *testing.T) {
	t.Setenv("API_AUTH_TOKEN", "")
	r := protectedRouter()
	if code := doRequest(r, http.MethodPost, ""); code != http.StatusOK {
		t.Errorf("Unset token must allow requests in dev mode, got %d", code)
	}
}

func TestRateLimiter_ExhaustedBucketReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(60, 3)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if code := doRequest(r, http.MethodGet, ""); code != http.StatusOK {
			t.Fatalf("Request %d within the burst must pass, got %d", i+1, code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Exhausted bucket must return 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Throttled response must carry a Retry-After header")
	}
}
