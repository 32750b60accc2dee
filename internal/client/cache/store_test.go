package cache

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

func messages(n int) []domain.ChatMessage {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]domain.ChatMessage, n)
	for i := range out {
		out[i] = domain.ChatMessage{
			ID:        fmt.Sprintf("%d", i),
			UserID:    "u1",
			Username:  "alice",
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := Open(path, 0)
	require.NoError(t, err)

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Save(messages(3)))
	require.NoError(t, store.Close())

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, messages(3), got)
}

func TestStore_KeepsMostRecent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), 5)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(messages(12)))

	got, err := store.Load()
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "7", got[0].ID)
	assert.Equal(t, "11", got[4].ID)

	// a shorter save replaces, it does not merge
	require.NoError(t, store.Save(messages(2)))
	got, err = store.Load()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ", 0)
	assert.Error(t, err)
}
