package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBurstThenDeny(t *testing.T) {
	l := NewLimiter(60, 3)

	assert.True(t, l.Allow("tab-1"))
	assert.True(t, l.Allow("tab-1"))
	assert.True(t, l.Allow("tab-1"))
	assert.False(t, l.Allow("tab-1"), "burst exhausted")
}

func TestContextsAreIndependent(t *testing.T) {
	l := NewLimiter(60, 1)

	assert.True(t, l.Allow("tab-1"))
	assert.False(t, l.Allow("tab-1"))
	assert.True(t, l.Allow("tab-2"), "another context has its own budget")
}

func TestForgetResetsBudget(t *testing.T) {
	l := NewLimiter(60, 1)

	assert.True(t, l.Allow("tab-1"))
	assert.False(t, l.Allow("tab-1"))

	l.Forget("tab-1")
	assert.True(t, l.Allow("tab-1"), "a reopened context starts fresh")
}
