package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_Burst(t *testing.T) {
	krl := New(1, 2)

	assert.True(t, krl.Allow("embeddings"))
	assert.True(t, krl.Allow("embeddings"))
	// Burst exhausted.
	assert.False(t, krl.Allow("embeddings"))
}

func TestAllow_IndependentKeys(t *testing.T) {
	krl := New(1, 1)

	assert.True(t, krl.Allow("embeddings"))
	assert.False(t, krl.Allow("embeddings"))
	// A different key has its own bucket.
	assert.True(t, krl.Allow("reasoner"))
}

func TestWait_RespectsContext(t *testing.T) {
	krl := New(0.001, 1)
	require.True(t, krl.Allow("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := krl.Wait(ctx, "slow")
	assert.Error(t, err)
}

func TestGetLimiter_Reused(t *testing.T) {
	krl := New(10, 1)
	a := krl.getLimiter("k")
	b := krl.getLimiter("k")
	assert.Same(t, a, b)
}
