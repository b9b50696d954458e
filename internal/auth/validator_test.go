package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestHMACValidator(t *testing.T) {
	t.Parallel()

	validator, err := NewHMACValidator(testSecret, "scm-idp", "scm-server")
	require.NoError(t, err)

	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			name:  "valid",
			token: sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "alice", "iss": "scm-idp", "aud": "scm-server", "exp": future}),
		},
		{
			name:    "expired",
			token:   sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "alice", "iss": "scm-idp", "aud": "scm-server", "exp": past}),
			wantErr: true,
		},
		{
			name:    "missing expiry",
			token:   sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "alice", "iss": "scm-idp", "aud": "scm-server"}),
			wantErr: true,
		},
		{
			name:    "wrong issuer",
			token:   sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "alice", "iss": "other", "aud": "scm-server", "exp": future}),
			wantErr: true,
		},
		{
			name:    "wrong audience",
			token:   sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "alice", "iss": "scm-idp", "aud": "other", "exp": future}),
			wantErr: true,
		},
		{
			name:    "wrong secret",
			token:   sign(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), jwt.MapClaims{"sub": "alice", "iss": "scm-idp", "aud": "scm-server", "exp": future}),
			wantErr: true,
		},
		{
			name:    "other algorithm",
			token:   sign(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": "alice", "iss": "scm-idp", "aud": "scm-server", "exp": future}),
			wantErr: true,
		},
		{
			name:    "missing subject",
			token:   sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"iss": "scm-idp", "aud": "scm-server", "exp": future}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not.a.token",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := validator.ValidateToken(context.Background(), tt.token)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			sub, err := claims.GetSubject()
			require.NoError(t, err)
			assert.Equal(t, "alice", sub)
		})
	}

	_, err = NewHMACValidator(nil, "", "")
	require.Error(t, err)
}

func TestIsPublicPath(t *testing.T) {
	t.Parallel()

	public := []string{"/health", "/version", "hook"}
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/", true},
		{"/hook/git/core/POST_RECEIVE", true},
		{"/healthcheck", false},
		{"/health/../api/v1/groups", false},
		{"/health%2F..%2Fapi", false},
		{"//version", true},
		{"/api/v1/users", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPublicPath(tt.path, public), tt.path)
	}
	assert.True(t, IsPublicPath("/anything", []string{"/"}))
}

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer abc", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer", "", true},
		{"Bearer   ", "", true},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, err := ExtractBearerToken(req)
		if tt.wantErr {
			assert.Error(t, err, tt.header)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
