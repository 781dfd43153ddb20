package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	alert := testAlert(true, 85, time.Now().UTC())
	require.NoError(t, sink.Store(ctx, alert))
	assert.Equal(t, 1, sink.Len())

	got, err := sink.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.ID, got.ID)

	assert.ErrorIs(t, sink.Store(ctx, alert), ErrDuplicateAlert)

	_, err = sink.GetByID(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestMemorySinkRecent(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	base := time.Now().UTC()
	oldest := testAlert(false, 0, base.Add(-time.Hour))
	newest := testAlert(true, 85, base)
	require.NoError(t, sink.Store(ctx, oldest))
	require.NoError(t, sink.Store(ctx, newest))

	recent, err := sink.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, newest.ID, recent[0].ID)
}
