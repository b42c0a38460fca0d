package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/tally/pkg/contextkeys"
	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/observability"
)

var (
	// ErrUnknownToken is returned by resolvers for tokens they do not recognize
	ErrUnknownToken = errors.New("unknown token")
)

// AccountResolver maps a bearer token to the account it acts for
type AccountResolver interface {
	ResolveAccount(ctx context.Context, token string) (string, error)
}

// ResolverFunc adapts a function to AccountResolver
type ResolverFunc func(ctx context.Context, token string) (string, error)

func (f ResolverFunc) ResolveAccount(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// StaticTokens resolves tokens from a fixed token -> account table.
// Only SHA-256 digests of the tokens are retained.
type StaticTokens struct {
	accounts map[string]string
}

// NewStaticTokens builds a resolver from a token -> account map
func NewStaticTokens(tokens map[string]string) *StaticTokens {
	accounts := make(map[string]string, len(tokens))
	for token, account := range tokens {
		accounts[hashToken(token)] = account
	}
	return &StaticTokens{accounts: accounts}
}

// ResolveAccount implements AccountResolver
func (s *StaticTokens) ResolveAccount(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	account, ok := s.accounts[hashToken(token)]
	if !ok {
		return "", ErrUnknownToken
	}
	return account, nil
}

// Len returns the number of configured tokens
func (s *StaticTokens) Len() int {
	return len(s.accounts)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IdentityGate authenticates requests and stores the resolved account ID in the
// request context. Handlers behind it trust contextkeys.GetAccountID.
type IdentityGate struct {
	resolver AccountResolver
	logger   *observability.Logger
}

// NewIdentityGate creates the gate. A nil logger discards resolver failures.
func NewIdentityGate(resolver AccountResolver, logger *observability.Logger) *IdentityGate {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &IdentityGate{resolver: resolver, logger: logger}
}

// Handler wraps an HTTP handler with authentication
func (g *IdentityGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "Access denied. No token provided.")
			return
		}

		accountID, err := g.resolver.ResolveAccount(r.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrUnknownToken) {
				g.logger.WithError(err).WithField("path", r.URL.Path).Warn("account resolution failed")
			}
			httputil.WriteUnauthorized(w, "Invalid token.")
			return
		}
		if accountID == "" {
			httputil.WriteUnauthorized(w, "Invalid token.")
			return
		}

		ctx := contextkeys.WithAccountID(r.Context(), accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
