package idempotency

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	r := httptest.NewRequest("POST", "/orders", nil)
	k, err := Key(r)
	require.NoError(t, err)
	assert.Empty(t, k)

	r.Header.Set(Header, "  abc-123 ")
	k, err = Key(r)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", k)

	r.Header.Set(Header, strings.Repeat("x", MaxLength+1))
	_, err = Key(r)
	assert.ErrorIs(t, err, ErrTooLong)
}
