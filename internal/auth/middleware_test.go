package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	handler := wrapOK(secret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/process-readings", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthMiddleware_ViewerForbiddenProcessReadings(t *testing.T) {
	secret := []byte("test-secret")
	handler := wrapOK(secret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/process-readings", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "viewer", time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAuthMiddleware_OperatorForbiddenExport(t *testing.T) {
	secret := []byte("test-secret")
	handler := wrapOK(secret)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/staging/2024-08/export.xlsx", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "operator", time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAuthMiddleware_OperatorProcessesReadings(t *testing.T) {
	secret := []byte("test-secret")
	var gotRole Role
	var gotSubject string
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil), nil)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = RoleFromContext(r.Context())
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/process-readings", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "operator", time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, RoleOperator, gotRole)
	assert.Equal(t, "user-1", gotSubject)
}

func TestAuthMiddleware_ViewerReadsUnitHistory(t *testing.T) {
	secret := []byte("test-secret")
	handler := wrapOK(secret)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/units/12/history", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "viewer", time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	handler := wrapOK(secret)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/latest-readings", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "admin", -time.Minute))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthMiddleware_ExemptPath(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy([]string{"/healthz"}, []string{"/metrics"}), nil)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/healthz", "/metrics"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestParseJWT_RejectsUnknownRole(t *testing.T) {
	secret := []byte("test-secret")
	_, err := ParseJWT(mustToken(t, secret, "resident", time.Hour), secret)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func wrapOK(secret []byte) http.Handler {
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil), nil)
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func mustToken(t *testing.T, secret []byte, role string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}
