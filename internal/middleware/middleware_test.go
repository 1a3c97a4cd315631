package middleware

import (
	dctx "context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cradoe/fundsrail/internal/config"
	"github.com/cradoe/fundsrail/internal/context"
	"github.com/cradoe/fundsrail/internal/errHandler"
	"github.com/cradoe/fundsrail/internal/helper"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/pascaldekloe/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) GetOne(ctx dctx.Context, id string) (*models.User, bool, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Bool(1), args.Error(2)
}

func newMiddleware(users *mockUserRepo) *Middleware {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{BaseURL: "http://localhost:4444"}
	cfg.Jwt.SecretKey = "test-secret"
	cfg.Webhook.Secret = "whsec"

	return New(errHandler.New("", nil, logger, helper.New(cfg.BaseURL, nil, logger)), logger, users, cfg)
}

func token(t *testing.T, subject, issuer string, expires time.Time) string {
	t.Helper()

	var claims jwt.Claims
	claims.Subject = subject
	claims.Issuer = issuer
	claims.Audiences = []string{issuer}
	claims.Issued = jwt.NewNumericTime(time.Now())
	claims.NotBefore = jwt.NewNumericTime(time.Now().Add(-time.Minute))
	claims.Expires = jwt.NewNumericTime(expires)

	raw, err := claims.HMACSign(jwt.HS256, []byte("test-secret"))
	require.NoError(t, err)
	return string(raw)
}

func protected(mid *Middleware) http.Handler {
	return mid.Authenticate(mid.RequireAuthenticatedUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(context.ContextGetAuthenticatedUser(r).ID))
	})))
}

func TestAuthenticateLoadsUser(t *testing.T) {
	users := new(mockUserRepo)
	users.On("GetOne", mock.Anything, "user-1").Return(&models.User{ID: "user-1", Status: "active"}, true, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/deposits", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "user-1", "http://localhost:4444", time.Now().Add(time.Hour)))
	rr := httptest.NewRecorder()

	protected(newMiddleware(users)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-1", rr.Body.String())
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"expired", "Bearer " + token(t, "user-1", "http://localhost:4444", time.Now().Add(-time.Hour))},
		{"wrong issuer", "Bearer " + token(t, "user-1", "https://elsewhere", time.Now().Add(time.Hour))},
		{"garbage", "Bearer not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/deposits", nil)
			req.Header.Set("Authorization", tt.header)
			rr := httptest.NewRecorder()

			protected(newMiddleware(new(mockUserRepo))).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestRequireAuthenticatedUserRejectsLockedAccount(t *testing.T) {
	users := new(mockUserRepo)
	users.On("GetOne", mock.Anything, "user-1").Return(&models.User{ID: "user-1", Status: "locked"}, true, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/withdrawals", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "user-1", "http://localhost:4444", time.Now().Add(time.Hour)))
	rr := httptest.NewRecorder()

	protected(newMiddleware(users)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireAuthenticatedUserWithoutHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	protected(newMiddleware(new(mockUserRepo))).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/deposits", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := `{"reason":"document mismatch"}`

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
	})
	handler := newMiddleware(new(mockUserRepo)).VerifyWebhookSignature(next)

	tests := []struct {
		name      string
		signature string
		status    int
	}{
		{"valid", Sign("whsec", []byte(body)), http.StatusOK},
		{"prefixed", "sha256=" + Sign("whsec", []byte(body)), http.StatusOK},
		{"wrong secret", Sign("other", []byte(body)), http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"not hex", "zz", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/deposits/wtx-1/fail", strings.NewReader(body))
			req.Header.Set(SignatureHeader, tt.signature)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, body, seen)
			} else {
				assert.Empty(t, seen)
			}
		})
	}
}

func TestValidSignatureNeedsSecret(t *testing.T) {
	assert.False(t, ValidSignature("", []byte("x"), Sign("", []byte("x"))))
}

func TestRecoverPanic(t *testing.T) {
	handler := newMiddleware(new(mockUserRepo)).RecoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	var seen string
	handler := newMiddleware(new(mockUserRepo)).RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = context.ContextGetRequestID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "req-123", seen)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
}
