package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tally/pkg/contextkeys"
)

func echoAccount() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(contextkeys.GetAccountID(r.Context())))
	})
}

func TestStaticTokens_ResolveAccount(t *testing.T) {
	resolver := NewStaticTokens(map[string]string{
		"tok-acme":   "acme",
		"tok-globex": "globex",
	})
	assert.Equal(t, 2, resolver.Len())

	account, err := resolver.ResolveAccount(context.Background(), "tok-globex")
	require.NoError(t, err)
	assert.Equal(t, "globex", account)

	_, err = resolver.ResolveAccount(context.Background(), "tok-unknown")
	assert.ErrorIs(t, err, ErrUnknownToken)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = resolver.ResolveAccount(ctx, "tok-acme")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIdentityGate_Handler(t *testing.T) {
	gate := NewIdentityGate(NewStaticTokens(map[string]string{"secret": "acme"}), nil)
	handler := gate.Handler(echoAccount())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer secret", http.StatusOK, "acme"},
		{"lowercase scheme", "bearer secret", http.StatusOK, "acme"},
		{"missing header", "", http.StatusUnauthorized, "No token provided"},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized, "No token provided"},
		{"empty token", "Bearer  ", http.StatusUnauthorized, "No token provided"},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/analytics/dashboard", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestIdentityGate_ResolverFailure(t *testing.T) {
	resolver := ResolverFunc(func(ctx context.Context, token string) (string, error) {
		return "", errors.New("directory unreachable")
	})
	handler := NewIdentityGate(resolver, nil).Handler(echoAccount())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIdentityGate_EmptyAccountRejected(t *testing.T) {
	resolver := ResolverFunc(func(ctx context.Context, token string) (string, error) {
		return "", nil
	})
	handler := NewIdentityGate(resolver, nil).Handler(echoAccount())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
