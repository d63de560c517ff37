package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", fmt.Errorf("call: %w", NewTransientError(errors.New("limited"), 429)), true},
		{"plain", errors.New("invalid access token"), false},
		{"reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"pattern", errors.New("net/http: TLS handshake timeout"), true},
		{"pipe", errors.New("write: broken pipe"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestStatusError(t *testing.T) {
	err := StatusError("geocode", 503)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "status 503")

	var te *TransientError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 503, te.StatusCode)

	err = StatusError("geocode", 401)
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "geocode: returned status 401")
}
