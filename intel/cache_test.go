package intel

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/core"
)

func sampleVerdict(indicator string) *core.IndicatorVerdict {
	return &core.IndicatorVerdict{
		Indicator:   indicator,
		Kind:        core.IndicatorIP,
		Malicious:   true,
		ThreatScore: 85,
		PerSource: map[string]map[string]interface{}{
			"abuseipdb": {"confidence_score": float64(85)},
		},
	}
}

func TestMemoryVerdictCache(t *testing.T) {
	cache := NewMemoryVerdictCache(16, time.Minute)
	defer cache.Close()
	ctx := context.Background()

	_, ok := cache.Get(ctx, "45.77.23.11")
	assert.False(t, ok)

	cache.Set(ctx, "45.77.23.11", sampleVerdict("45.77.23.11"))

	got, ok := cache.Get(ctx, "45.77.23.11")
	require.True(t, ok)
	assert.True(t, got.Malicious)
	assert.Equal(t, 85, got.ThreatScore)
}

func TestMemoryVerdictCacheExpiry(t *testing.T) {
	cache := NewMemoryVerdictCache(16, 20*time.Millisecond)
	defer cache.Close()
	ctx := context.Background()

	cache.Set(ctx, "45.77.23.11", sampleVerdict("45.77.23.11"))
	_, ok := cache.Get(ctx, "45.77.23.11")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok = cache.Get(ctx, "45.77.23.11")
	assert.False(t, ok, "entry should expire after the TTL")
}

func TestRedisVerdictCache(t *testing.T) {
	srv := miniredis.RunT(t)
	cache := NewRedisVerdictCache(srv.Addr(), "", 0, time.Hour, zap.NewNop().Sugar())
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Ping(ctx))

	_, ok := cache.Get(ctx, "45.77.23.11")
	assert.False(t, ok)

	cache.Set(ctx, "45.77.23.11", sampleVerdict("45.77.23.11"))

	got, ok := cache.Get(ctx, "45.77.23.11")
	require.True(t, ok)
	assert.Equal(t, "45.77.23.11", got.Indicator)
	assert.True(t, got.Malicious)
	assert.Equal(t, 85, got.ThreatScore)

	// Entries expire with the configured TTL.
	srv.FastForward(2 * time.Hour)
	_, ok = cache.Get(ctx, "45.77.23.11")
	assert.False(t, ok)
}

func TestRedisVerdictCacheDegradesToMiss(t *testing.T) {
	srv := miniredis.RunT(t)
	cache := NewRedisVerdictCache(srv.Addr(), "", 0, time.Hour, zap.NewNop().Sugar())
	defer cache.Close()
	ctx := context.Background()

	cache.Set(ctx, "45.77.23.11", sampleVerdict("45.77.23.11"))
	srv.Close()

	// A broken cache backend must never fail a lookup, only miss.
	_, ok := cache.Get(ctx, "45.77.23.11")
	assert.False(t, ok)
	cache.Set(ctx, "8.8.8.8", sampleVerdict("8.8.8.8"))
}
