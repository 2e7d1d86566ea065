package upstream

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       error
	}{
		{"throttle maps to rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"forbidden maps to quota exhausted", http.StatusForbidden, ErrQuotaExhausted},
		{"not found maps to not found", http.StatusNotFound, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStatus(tt.statusCode, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClassifyStatus_Unexpected(t *testing.T) {
	err := classifyStatus(http.StatusBadGateway, "bad gateway")

	var statusErr *StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(ErrRateLimited))
	assert.True(t, retryable(&StatusError{StatusCode: 503}))
	assert.True(t, retryable(errors.New("connection reset")))

	assert.False(t, retryable(ErrQuotaExhausted))
	assert.False(t, retryable(ErrNotFound))
	assert.False(t, retryable(&StatusError{StatusCode: 400}))
}
