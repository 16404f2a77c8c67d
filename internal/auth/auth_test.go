package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/backend/internal/config"
	"contenthub/backend/internal/logging"
)

const (
	testIssuer   = "https://test-issuer.com"
	testClientID = "test-client"
)

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct{}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

func fakeToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header, err := json.Marshal(map[string]interface{}{"alg": "RS256", "typ": "JWT", "kid": "test-key"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
}

func validClaims() map[string]interface{} {
	return map[string]interface{}{
		"iss":   testIssuer,
		"aud":   testClientID,
		"sub":   "user-42",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-time.Minute).Unix(),
		"email": "user@acme.com",
	}
}

func testAuth() *Auth {
	verifier := oidc.NewVerifier(testIssuer, &MockKeySet{}, &oidc.Config{ClientID: testClientID})
	return &Auth{verifier: verifier, logger: logging.NewNop()}
}

func TestRequireAuth_BearerToken_SetsPrincipal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/generation/generate", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken(t, validClaims()))
	rec := httptest.NewRecorder()

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		p, ok := FromContext(r.Context())
		assert.True(t, ok, "principal should be in context")
		assert.Equal(t, "user-42", p.Subject)
		assert.Equal(t, "user@acme.com", p.Email)
		assert.False(t, p.Dev)
		w.WriteHeader(http.StatusOK)
	})

	testAuth().RequireAuth(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, called)
}

func TestRequireAuth_Rejects(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongAudience := validClaims()
	wrongAudience["aud"] = "someone-else"

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header"},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz"},
		{name: "malformed token", header: "Bearer not-a-jwt"},
		{name: "expired", header: "Bearer " + fakeToken(t, expired)},
		{name: "wrong audience", header: "Bearer " + fakeToken(t, wrongAudience)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/generation/generate", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("next handler must not run")
			})

			testAuth().RequireAuth(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRequireAuth_BypassMode(t *testing.T) {
	cfg := &config.Config{Environment: "development", DevModeBypass: true}
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/images/styles", nil)
	rec := httptest.NewRecorder()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		assert.True(t, ok)
		assert.True(t, p.Dev)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_RequiresIssuer(t *testing.T) {
	// bypass is never honoured in production
	cfg := &config.Config{Environment: "production", DevModeBypass: true}
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), &config.Config{Environment: "development"}, nil)
	assert.Error(t, err)
}

func TestFromContext_Empty(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
