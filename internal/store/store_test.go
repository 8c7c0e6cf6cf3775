package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadInMemory(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.Load(ctx, 7)
	require.ErrorIs(t, err, ErrNotFound)

	snap := Snapshot{PuzzleID: 7, Slots: 3, Tokens: []string{"fox", "", "jumps"}, Tried: []string{"fox", "zzz"}, Round: 2}
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, snap.Tokens, got.Tokens)
	assert.Equal(t, snap.Tried, got.Tried)
	assert.Equal(t, 2, got.Round)
	assert.False(t, got.SavedAt.IsZero())

	// 覆盖写
	snap.Tokens[1] = "quick"
	require.NoError(t, s.Save(ctx, snap))
	got, err = s.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "quick", got.Tokens[1])

	require.NoError(t, s.Delete(ctx, 7))
	_, err = s.Load(ctx, 7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(Config{Dir: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, Snapshot{PuzzleID: 1, Slots: 1, Tokens: []string{"a"}}))
	require.NoError(t, s.Close())

	s, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Tokens)
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Save(ctx, Snapshot{PuzzleID: 1}), context.Canceled)
	_, err = s.Load(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}
