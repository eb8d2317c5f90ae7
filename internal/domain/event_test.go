package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: 1 * time.Second},
		{attempts: 1, want: 1 * time.Second},
		{attempts: 2, want: 5 * time.Second},
		{attempts: 3, want: 15 * time.Second},
		{attempts: 4, want: 60 * time.Second},
		{attempts: 10, want: 60 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryBackoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}
