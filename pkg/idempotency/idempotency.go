package idempotency

import (
	"errors"
	"net/http"
	"strings"
)

const (
	Header    = "Idempotency-Key"
	MaxLength = 128
)

var ErrTooLong = errors.New("idempotency key exceeds 128 characters")

// Key returns the trimmed header value; an empty key disables replay.
func Key(r *http.Request) (string, error) {
	k := strings.TrimSpace(r.Header.Get(Header))
	if len(k) > MaxLength {
		return "", ErrTooLong
	}
	return k, nil
}
