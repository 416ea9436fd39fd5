package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserLimiterBurst(t *testing.T) {
	l := newUserLimiter(1, 2, 10)

	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))
	assert.True(t, l.Allow(2), "buckets are per user")
}

func TestUserLimiterIsBounded(t *testing.T) {
	l := newUserLimiter(1, 1, 2)

	for userID := int32(1); userID <= 5; userID++ {
		l.Allow(userID)
	}
	assert.Equal(t, 2, l.Size())

	// The least recently used user was dropped and starts with a full bucket.
	assert.True(t, l.Allow(1))
	// Recently seen users keep their drained bucket.
	assert.False(t, l.Allow(5))
}

func TestUserLimiterDisabled(t *testing.T) {
	l := newUserLimiter(0, 1, 10)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(7))
	}
}
