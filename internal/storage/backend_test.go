package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(t *testing.T, staging *Staging, content string) string {
	t.Helper()

	name, n, err := staging.Write(bytes.NewBufferString(content))
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), n)
	return staging.Path(name)
}

func read(t *testing.T, b Backend, key string) string {
	t.Helper()

	r, err := b.Reader(context.Background(), key)
	require.NoError(t, err)
	defer r.Close()

	payload, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(payload)
}

func testBackend(t *testing.T, b Backend, staging *Staging) {
	ctx := context.Background()

	t.Run("promote", func(t *testing.T) {
		ok, err := b.Exist(ctx, "abc-0")
		assert.NoError(t, err)
		assert.False(t, ok)

		filename := stage(t, staging, "AA")
		err = b.Promote(ctx, filename, "abc-0")
		assert.NoError(t, err)
		assert.NoFileExists(t, filename)

		ok, err = b.Exist(ctx, "abc-0")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "AA", read(t, b, "abc-0"))
	})

	t.Run("promote replaces", func(t *testing.T) {
		err := b.Promote(ctx, stage(t, staging, "old"), "abc-1")
		assert.NoError(t, err)
		err = b.Promote(ctx, stage(t, staging, "new"), "abc-1")
		assert.NoError(t, err)

		assert.Equal(t, "new", read(t, b, "abc-1"))

		keys, err := b.Keys(ctx, "abc-1")
		assert.NoError(t, err)
		assert.Equal(t, []string{"abc-1"}, keys)
	})

	t.Run("keys", func(t *testing.T) {
		err := b.Promote(ctx, stage(t, staging, "x"), "abd-0")
		assert.NoError(t, err)

		keys, err := b.Keys(ctx, "abc-")
		assert.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"abc-0", "abc-1"}, keys)
	})

	t.Run("reader not found", func(t *testing.T) {
		_, err := b.Reader(ctx, "abc-42")
		assert.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("remove", func(t *testing.T) {
		err := b.Remove(ctx, "abd-0")
		assert.NoError(t, err)

		ok, err := b.Exist(ctx, "abd-0")
		assert.NoError(t, err)
		assert.False(t, ok)

		// Idempotent
		err = b.Remove(ctx, "abd-0")
		assert.NoError(t, err)
	})
}
