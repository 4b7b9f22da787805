package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/persona-sim/services/simulation-api/internal/config"
)

const testIssuer = "https://issuer.example/realms/jan"

func newRouter(v *Validator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(v.Middleware())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, OwnerID(c))
	})
	return r
}

func do(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signedToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestMiddleware_DisabledUsesDefaultOwner(t *testing.T) {
	v, err := NewValidator(t.Context(), &config.Config{DefaultOwnerID: "local"}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, v.Ready())

	w := do(newRouter(v), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "local", w.Body.String())
}

func TestMiddleware_Enabled(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cfg := &config.Config{AuthEnabled: true, AuthIssuer: testIssuer, AuthAudience: "simulation-api"}
	v := NewValidatorWithKeyfunc(cfg, zerolog.Nop(), func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
	require.True(t, v.Ready())
	r := newRouter(v)

	valid := jwt.MapClaims{
		"iss": testIssuer,
		"aud": []string{"simulation-api"},
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + signedToken(t, key, valid), http.StatusOK, "user-42"},
		{"missing", "", http.StatusUnauthorized, "missing bearer token"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "missing bearer token"},
		{"wrong key", "Bearer " + signedToken(t, other, valid), http.StatusUnauthorized, "invalid token"},
		{"wrong issuer", "Bearer " + signedToken(t, key, jwt.MapClaims{
			"iss": "https://elsewhere", "aud": "simulation-api", "sub": "user-42",
			"exp": time.Now().Add(time.Hour).Unix(),
		}), http.StatusUnauthorized, "invalid token"},
		{"wrong audience", "Bearer " + signedToken(t, key, jwt.MapClaims{
			"iss": testIssuer, "aud": "other", "sub": "user-42",
			"exp": time.Now().Add(time.Hour).Unix(),
		}), http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + signedToken(t, key, jwt.MapClaims{
			"iss": testIssuer, "aud": "simulation-api", "sub": "user-42",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}), http.StatusUnauthorized, "invalid token"},
		{"no subject", "Bearer " + signedToken(t, key, jwt.MapClaims{
			"iss": testIssuer, "aud": "simulation-api",
			"exp": time.Now().Add(time.Hour).Unix(),
		}), http.StatusUnauthorized, "token has no subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.header)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Equal(t, "", bearerToken("Bearer"))
	assert.Equal(t, "", bearerToken(""))
}
