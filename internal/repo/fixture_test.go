package repo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFixture = `
nodes:
  - path: /content/page
    properties:
      sling:resourceType: app/page
  - path: /content/page/jcr:content
    properties:
      title: Home
      count: 3
      ratio: 1.5
      published: true
      tags: [news, home]
      modified: {type: Date, value: "2024-02-03T04:05:06Z"}
      refs: {type: Path, values: [/a, /b]}
      body: {type: Binary, text: "hello"}
      logo: {type: Binary, file: logo.bin}
`

func TestLoadFixture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.bin"), []byte{9, 8, 7}, 0644))

	ctx := context.Background()
	store := NewMemoryStore()
	n, err := LoadFixture(ctx, store, strings.NewReader(testFixture), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	props, err := store.Properties(ctx, NewNode("/content/page/jcr:content"))
	require.NoError(t, err)
	assert.Equal(t, "Home", props["title"].Value())
	assert.Equal(t, int64(3), props["count"].Value())
	assert.Equal(t, 1.5, props["ratio"].Value())
	assert.Equal(t, true, props["published"].Value())
	assert.Equal(t, []any{"news", "home"}, props["tags"].Values)
	assert.Equal(t, TypeDate, props["modified"].Type)
	assert.Equal(t, TypePath, props["refs"].Type)
	assert.True(t, props["refs"].Multiple)
	assert.Equal(t, int64(5), props["body"].Size)

	rc, err := store.OpenBinary(ctx, NewNode("/content/page/jcr:content"), "logo")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, data)
}

func TestLoadFixtureMixedSequence(t *testing.T) {
	_, err := LoadFixture(context.Background(), NewMemoryStore(),
		strings.NewReader("nodes:\n  - path: /x\n    properties:\n      bad: [1, two]\n"), "")
	assert.ErrorIs(t, err, ErrInvalidValue)
}
