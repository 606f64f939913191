package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/config"
	"medication-adherence-monitor/internal/domain/user"
	"medication-adherence-monitor/internal/metrics"
	"medication-adherence-monitor/pkg/utils"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		role, _ := GetRole(c)
		c.JSON(http.StatusOK, gin.H{"userId": userID.String(), "role": string(role)})
	})
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body utils.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	if body.Success {
		t.Fatalf("expected an error envelope, got %s", w.Body.String())
	}
	return body.Error
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()
	pair, err := utils.GenerateTokenPair(userID, "pat@example.com", string(user.RolePatient), testSecret, 1, 1)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header required"},
		{"wrong scheme", "Basic " + pair.AccessToken, http.StatusUnauthorized, "Authorization header required"},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, "Authorization header required"},
		{"garbage token", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"valid", "Bearer " + pair.AccessToken, http.StatusOK, ""},
	}

	r := newRouter(AuthMiddleware(testSecret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := do(r, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantError != "" {
				if got := decodeError(t, w); got != tt.wantError {
					t.Errorf("error = %q, want %q", got, tt.wantError)
				}
				return
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["userId"] != userID.String() || body["role"] != "patient" {
				t.Errorf("context = %v", body)
			}
		})
	}
}

func TestDeviceAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		header     string
		wantStatus int
	}{
		{"matching key", "device-key", "Bearer device-key", http.StatusOK},
		{"wrong key", "device-key", "Bearer other", http.StatusUnauthorized},
		{"prefix of key", "device-key", "Bearer device", http.StatusUnauthorized},
		{"missing header", "device-key", "", http.StatusUnauthorized},
		{"unset key rejects all", "", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(DeviceAuthMiddleware(tt.key))
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := do(r, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if got := decodeError(t, w); got != "Unauthorized device" {
					t.Errorf("error = %q", got)
				}
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	az, err := authz.New()
	if err != nil {
		t.Fatalf("authz.New: %v", err)
	}

	withRole := func(role user.Role) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(ContextRole, role)
			c.Next()
		}
	}

	tests := []struct {
		name       string
		role       *user.Role
		obj        authz.Resource
		act        authz.Action
		wantStatus int
	}{
		{"patient reads schedule", rolePtr(user.RolePatient), authz.ResourceSchedule, authz.ActionRead, http.StatusOK},
		{"caretaker cannot write medicines", rolePtr(user.RoleCaretaker), authz.ResourceMedicines, authz.ActionWrite, http.StatusForbidden},
		{"doctor reads own overview", rolePtr(user.RoleDoctor), authz.ResourceDoctorOverview, authz.ActionRead, http.StatusOK},
		{"patient cannot read admin overview", rolePtr(user.RolePatient), authz.ResourceAdminOverview, authz.ActionRead, http.StatusForbidden},
		{"admin reads anything", rolePtr(user.RoleAdmin), authz.ResourceCaretakerOverview, authz.ActionRead, http.StatusOK},
		{"no role in context", nil, authz.ResourceSchedule, authz.ActionRead, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var chain []gin.HandlerFunc
			if tt.role != nil {
				chain = append(chain, withRole(*tt.role))
			}
			chain = append(chain, Authorize(az, tt.obj, tt.act))

			w := do(newRouter(chain...), httptest.NewRequest(http.MethodGet, "/ping", nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func rolePtr(r user.Role) *user.Role { return &r }

func TestRequestIDMiddleware(t *testing.T) {
	r := newRouter(RequestIDMiddleware())

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"propagates caller id", "abc-123", true},
		{"mints when absent", "", false},
		{"replaces oversized id", strings.Repeat("x", maxRequestIDLength+1), false},
		{"replaces id with spaces", "bad id", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			got := do(r, req).Header().Get(RequestIDHeader)
			if tt.keep && got != tt.incoming {
				t.Errorf("id = %q, want %q", got, tt.incoming)
			}
			if !tt.keep {
				if _, err := uuid.Parse(got); err != nil {
					t.Errorf("expected a minted uuid, got %q", got)
				}
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.1.1.1") || !rl.Allow("1.1.1.1") {
		t.Fatal("burst of 2 should be allowed")
	}
	if rl.Allow("1.1.1.1") {
		t.Fatal("third request within the same instant should be limited")
	}
	if !rl.Allow("2.2.2.2") {
		t.Fatal("other clients have their own bucket")
	}

	now = now.Add(limiterIdleTTL + time.Second)
	rl.Allow("2.2.2.2")
	if removed := rl.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if !rl.Allow("1.1.1.1") {
		t.Fatal("evicted client starts with a full bucket")
	}
}

func TestRateLimitHandler_TooManyRequests(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	r := newRouter(rateLimitHandler(rl))

	if w := do(r, httptest.NewRequest(http.MethodGet, "/ping", nil)); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := do(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestSizeLimitMiddleware(8))
	r.POST("/echo", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("a", 9)))
	if w := do(r, req); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("small"))
	if w := do(r, req); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := do(newRouter(SecurityHeadersMiddleware()), httptest.NewRequest(http.MethodGet, "/ping", nil))
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           600,
	}
	r := newRouter(CORSMiddleware(cfg))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	w := do(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("credentials must be off for wildcard origins, got %q", got)
	}
}

func TestMetricsMiddleware_NilSafe(t *testing.T) {
	for _, m := range []*metrics.Metrics{nil, metrics.New()} {
		w := do(newRouter(MetricsMiddleware(m)), httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
}
