package sensitive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/session"
)

func TestManager_StoreFailsClosedOnEmptyInputs(t *testing.T) {
	m := New(session.NewInMemoryStore())
	ctx := context.Background()

	_, err := m.Store(ctx, "", session.KindSecret, "aws", "api_key", "value")
	assert.Error(t, err)

	_, err = m.Store(ctx, "sess1", session.KindSecret, "aws", "api_key", "")
	assert.Error(t, err)
}

func TestManager_StoreAndGetOriginalRoundTrips(t *testing.T) {
	m := New(session.NewInMemoryStore())
	ctx := context.Background()

	ph, err := m.Store(ctx, "sess1", session.KindPII, "pii", "EMAIL_ADDRESS", "a@b.com")
	require.NoError(t, err)

	entry, ok, err := m.GetOriginal(ctx, "sess1", ph)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a@b.com", entry.Original)
	assert.Equal(t, "EMAIL_ADDRESS", entry.Type)

	require.NoError(t, m.CleanupSession(ctx, "sess1"))
	_, ok, err = m.GetOriginal(ctx, "sess1", ph)
	require.NoError(t, err)
	assert.False(t, ok)
}
