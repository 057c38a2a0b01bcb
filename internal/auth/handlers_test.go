package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fdg312/meal-calendar/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

func testConfig() *config.Config {
	return &config.Config{
		AuthPassword: "open-sesame",
		AuthRequired: true,
		JWTSecret:    "test-secret-key-for-testing-only",
		JWTIssuer:    "meal-calendar-test",
		JWTTTLHours:  2,
	}
}

func login(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.HandleLogin(w, req)
	return w
}

func TestHandleLogin(t *testing.T) {
	service := NewService(testConfig())
	handler := NewHandlers(service)

	t.Run("Success", func(t *testing.T) {
		w := login(t, handler, `{"password":"open-sesame"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}

		var resp LoginResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.AccessToken == "" {
			t.Error("expected access_token not empty")
		}
		if resp.TokenType != "Bearer" {
			t.Errorf("expected token_type Bearer, got %q", resp.TokenType)
		}
		if resp.ExpiresIn != int64((2 * time.Hour).Seconds()) {
			t.Errorf("expected expires_in 7200, got %d", resp.ExpiresIn)
		}

		sub, err := service.VerifyJWT(resp.AccessToken)
		if err != nil || sub != HouseholdSubject {
			t.Errorf("expected household subject, got %q (%v)", sub, err)
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		w := login(t, handler, `{"password":"guess"}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", w.Code)
		}
	})

	t.Run("MissingPassword", func(t *testing.T) {
		w := login(t, handler, `{}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		h := NewHandlers(NewService(&config.Config{JWTSecret: "x"}))
		w := login(t, h, `{"password":"anything"}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})
}

func TestVerifyJWT(t *testing.T) {
	cfg := testConfig()
	service := NewService(cfg)

	t.Run("Expired", func(t *testing.T) {
		token, err := service.generateJWT(HouseholdSubject, -time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := service.VerifyJWT(token); err != ErrInvalidToken {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewService(&config.Config{JWTSecret: "another-secret", JWTIssuer: cfg.JWTIssuer})
		token, _ := other.generateJWT(HouseholdSubject, time.Hour)
		if _, err := service.VerifyJWT(token); err != ErrInvalidToken {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other := NewService(&config.Config{JWTSecret: cfg.JWTSecret, JWTIssuer: "someone-else"})
		token, _ := other.generateJWT(HouseholdSubject, time.Hour)
		if _, err := service.VerifyJWT(token); err != ErrInvalidToken {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": HouseholdSubject,
			"iss": cfg.JWTIssuer,
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := service.VerifyJWT(s); err != ErrInvalidToken {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestMiddlewareAuth(t *testing.T) {
	cfg := testConfig()
	service := NewService(cfg)
	middleware := NewMiddleware(cfg, service)

	t.Run("ValidToken", func(t *testing.T) {
		token, err := service.generateJWT(HouseholdSubject, time.Hour)
		if err != nil {
			t.Fatal(err)
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/dishes", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		var calledNext bool
		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calledNext = true
			sub, ok := GetSubject(r.Context())
			if !ok || sub != HouseholdSubject {
				t.Errorf("expected subject in context, got %q", sub)
			}
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(w, req)

		if !calledNext {
			t.Error("expected next handler to be called")
		}
		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
	})

	rejected := []struct {
		name   string
		header string
	}{
		{"MissingToken", ""},
		{"InvalidToken", "Bearer invalid_token"},
		{"WrongScheme", "Basic b3Blbi1zZXNhbWU="},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/dishes", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("should not call next handler")
			}))
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", w.Code)
			}
		})
	}

	t.Run("PublicPaths", func(t *testing.T) {
		for _, path := range []string{"/healthz", "/metrics", "/v1/auth/login"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			var calledNext bool
			middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calledNext = true
			})).ServeHTTP(w, req)
			if !calledNext {
				t.Errorf("%s: expected public path to pass", path)
			}
		}
	})
}

func TestMiddlewareAuthDisabled(t *testing.T) {
	cfg := &config.Config{AuthRequired: false}
	middleware := NewMiddleware(cfg, NewService(cfg))

	req := httptest.NewRequest(http.MethodDelete, "/v1/dishes/x", nil)
	w := httptest.NewRecorder()
	var calledNext bool
	middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calledNext = true
	})).ServeHTTP(w, req)

	if !calledNext {
		t.Error("expected request to pass when auth is not required")
	}
}
