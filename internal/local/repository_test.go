package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbolytics/historian/internal"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := New(dir)

	_, err := repo.Read(ctx, "state/checkpoint.json")
	assert.ErrorIs(t, err, internal.ErrNotFound)

	require.NoError(t, repo.Write(ctx, "state/checkpoint.json", strings.NewReader("v1")))
	require.NoError(t, repo.Write(ctx, "state/checkpoint.json", strings.NewReader("v2")))

	bs, err := repo.Read(ctx, "state/checkpoint.json")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(bs))

	entries, err := os.ReadDir(filepath.Join(dir, "state"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
