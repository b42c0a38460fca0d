package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetAccountID(ctx))

	ctx = WithAccountID(ctx, "acct-1")
	assert.Equal(t, "acct-1", GetAccountID(ctx))
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
}

func TestWrongValueTypeIsIgnored(t *testing.T) {
	ctx := context.WithValue(context.Background(), AccountIDKey, 42)
	assert.Empty(t, GetAccountID(ctx))
}
