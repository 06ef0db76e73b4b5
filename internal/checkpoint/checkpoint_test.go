package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbolytics/historian/internal"
)

type memRepository struct {
	mu      sync.Mutex
	objects map[string][]byte
	writes  int
	readErr error
}

func newMemRepository() *memRepository {
	return &memRepository{objects: make(map[string][]byte)}
}

func (m *memRepository) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	bs, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", internal.ErrNotFound, key)
	}
	return bs, nil
}

func (m *memRepository) Write(ctx context.Context, key string, r io.Reader) error {
	bs, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = bs
	m.writes++
	return nil
}

func (m *memRepository) document(t *testing.T, key string) map[string]any {
	t.Helper()
	doc := make(map[string]any)
	require.NoError(t, json.Unmarshal(m.objects[key], &doc))
	return doc
}

func TestStoreLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object is an empty checkpoint", func(t *testing.T) {
		s := New(newMemRepository(), "state.json")
		c, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, c.WorkGroups)
		assert.Equal(t, "", c.LastSeen("primary"))
	})

	t.Run("nested schema", func(t *testing.T) {
		repo := newMemRepository()
		repo.objects["state.json"] = []byte(`{"workGroups":{"primary":{"lastQueryExecutionId":"q1"},"etl":{"lastQueryExecutionId":"q9"}}}`)

		c, err := New(repo, "state.json").Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "q1", c.LastSeen("primary"))
		assert.Equal(t, "q9", c.LastSeen("etl"))
		assert.Equal(t, "", c.LastSeen("adhoc"))
	})

	t.Run("legacy schema behaves like nested primary", func(t *testing.T) {
		legacy := newMemRepository()
		legacy.objects["state.json"] = []byte(`{"lastQueryExecutionId":"qX"}`)
		nested := newMemRepository()
		nested.objects["state.json"] = []byte(`{"workGroups":{"primary":{"lastQueryExecutionId":"qX"}}}`)

		fromLegacy, err := New(legacy, "state.json").Load(ctx)
		require.NoError(t, err)
		fromNested, err := New(nested, "state.json").Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, fromNested, fromLegacy)
	})

	t.Run("read errors propagate", func(t *testing.T) {
		repo := newMemRepository()
		repo.readErr = errors.New("access denied")

		_, err := New(repo, "state.json").Load(ctx)
		assert.Error(t, err)
	})

	t.Run("corrupt document", func(t *testing.T) {
		repo := newMemRepository()
		repo.objects["state.json"] = []byte(`{not json`)

		_, err := New(repo, "state.json").Load(ctx)
		assert.Error(t, err)
	})
}

func TestStoreSave(t *testing.T) {
	ctx := context.Background()

	t.Run("legacy document is rewritten nested", func(t *testing.T) {
		repo := newMemRepository()
		repo.objects["state.json"] = []byte(`{"lastQueryExecutionId":"qX","owner":"data-eng"}`)
		s := New(repo, "state.json")

		_, err := s.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, "etl", "q5"))

		assert.Equal(t, map[string]any{
			"owner": "data-eng",
			"workGroups": map[string]any{
				"primary": map[string]any{"lastQueryExecutionId": "qX"},
				"etl":     map[string]any{"lastQueryExecutionId": "q5"},
			},
		}, repo.document(t, "state.json"))
	})

	t.Run("unrelated fields are preserved", func(t *testing.T) {
		repo := newMemRepository()
		repo.objects["state.json"] = []byte(`{"version":2,"workGroups":{"primary":{"lastQueryExecutionId":"q1","note":"keep"},"etl":{"lastQueryExecutionId":"q9"}}}`)
		s := New(repo, "state.json")

		_, err := s.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, "primary", "q0"))

		assert.Equal(t, map[string]any{
			"version": float64(2),
			"workGroups": map[string]any{
				"primary": map[string]any{"lastQueryExecutionId": "q0", "note": "keep"},
				"etl":     map[string]any{"lastQueryExecutionId": "q9"},
			},
		}, repo.document(t, "state.json"))
	})

	t.Run("fresh store writes nested form", func(t *testing.T) {
		repo := newMemRepository()
		s := New(repo, "state.json")

		_, err := s.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, "primary", "q1"))
		require.NoError(t, s.Save(ctx, "primary", "q1"))

		assert.Equal(t, 2, repo.writes)
		assert.Equal(t, map[string]any{
			"workGroups": map[string]any{
				"primary": map[string]any{"lastQueryExecutionId": "q1"},
			},
		}, repo.document(t, "state.json"))

		reloaded, err := New(repo, "state.json").Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "q1", reloaded.LastSeen("primary"))
	})

	t.Run("concurrent saves keep every group", func(t *testing.T) {
		repo := newMemRepository()
		s := New(repo, "state.json")
		_, err := s.Load(ctx)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Save(ctx, fmt.Sprintf("wg-%d", i), fmt.Sprintf("q%d", i)))
			}(i)
		}
		wg.Wait()

		reloaded, err := New(repo, "state.json").Load(ctx)
		require.NoError(t, err)
		assert.Len(t, reloaded.WorkGroups, 20)
	})
}

func TestDisabledStore(t *testing.T) {
	ctx := context.Background()
	s := Disabled()

	assert.False(t, s.Enabled())
	c, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.WorkGroups)
	assert.NoError(t, s.Save(ctx, "primary", "q1"))
}
