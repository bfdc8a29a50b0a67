package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingly-dev/nodepack/internal/repo"
)

func collect(t *testing.T, w *Walker, ctx context.Context, root string, nodeOnly bool) ([]string, error) {
	t.Helper()
	var paths []string
	for n, err := range w.Walk(ctx, repo.NewNode(root), nodeOnly) {
		if err != nil {
			return paths, err
		}
		paths = append(paths, n.Path)
	}
	return paths, nil
}

func TestWalkPreOrder(t *testing.T) {
	store := pageStore(t)
	require.NoError(t, store.PutNode(context.Background(), "/content/page/jcr:content/par/text", nil))
	require.NoError(t, store.PutNode(context.Background(), "/content/page/child", nil))

	paths, err := collect(t, NewWalker(store, nil), context.Background(), "/content/page", false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/content/page",
		"/content/page/jcr:content",
		"/content/page/jcr:content/par",
		"/content/page/jcr:content/par/text",
		"/content/page/child",
	}, paths)
}

func TestWalkNodeOnly(t *testing.T) {
	store := &countingStore{MemoryStore: pageStore(t)}
	paths, err := collect(t, NewWalker(store, nil), context.Background(), "/content/page", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"/content/page"}, paths)
	assert.Zero(t, store.listed)
}

func TestWalkLeaf(t *testing.T) {
	paths, err := collect(t, NewWalker(pageStore(t), nil), context.Background(), "/content/page/jcr:content", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/content/page/jcr:content"}, paths)
}

func TestWalkStopsEarly(t *testing.T) {
	store := &countingStore{MemoryStore: pageStore(t)}
	for range NewWalker(store, nil).Walk(context.Background(), repo.NewNode("/content/page"), false) {
		break
	}
	assert.Zero(t, store.listed)
}

func TestWalkCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWalker(pageStore(t), nil)

	var seen []string
	var walkErr error
	for n, err := range w.Walk(ctx, repo.NewNode("/content/page"), false) {
		if err != nil {
			walkErr = err
			break
		}
		seen = append(seen, n.Path)
		cancel()
	}
	assert.ErrorIs(t, walkErr, context.Canceled)
	assert.Equal(t, []string{"/content/page"}, seen)
}

func TestWalkExcludeNeverDropsRoot(t *testing.T) {
	paths, err := collect(t, NewWalker(pageStore(t), []string{"/content/**"}), context.Background(), "/content/page", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/content/page"}, paths)
}
