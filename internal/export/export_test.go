package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tingly-dev/nodepack/internal/archive"
	"github.com/tingly-dev/nodepack/internal/repo"
)

func pageStore(t *testing.T) *repo.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := repo.NewMemoryStore()
	require.NoError(t, store.PutNode(ctx, "/content/page", repo.Properties{
		"sling:resourceType": repo.StringProperty("app/page"),
	}))
	require.NoError(t, store.PutNode(ctx, "/content/page/jcr:content", repo.Properties{
		"title": repo.StringProperty("Home"),
	}))
	return store
}

func fixedID() string { return "test-export" }

func exportAll(t *testing.T, e *Exporter, p string, opts Options) (*archive.Manifest, []*archive.Entry) {
	t.Helper()
	var buf bytes.Buffer
	_, err := e.Export(context.Background(), p, opts, &buf)
	require.NoError(t, err)
	m, entries, err := archive.ReadAll(&buf)
	require.NoError(t, err)
	return m, entries
}

func entryPaths(entries []*archive.Entry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths
}

func TestExportPageScenario(t *testing.T) {
	e := NewExporter(pageStore(t), WithIDFunc(fixedID))

	m, entries := exportAll(t, e, "/content/page", Options{})
	assert.Equal(t, "/content/page", m.RootPath)
	assert.Equal(t, "/content/page", m.MountPath)
	assert.False(t, m.NodeOnly)
	assert.Equal(t, "", m.Group)
	assert.Equal(t, "", m.Name)
	assert.Equal(t, "test-export", m.ID)

	require.Len(t, entries, 2)
	assert.Equal(t, "/content/page", entries[0].Path)
	assert.Equal(t, "/content/page/jcr:content", entries[1].Path)
	assert.Equal(t, "Home", entries[1].Properties["title"].Value())
}

func TestExportPageNodeOnly(t *testing.T) {
	e := NewExporter(pageStore(t))

	var buf bytes.Buffer
	res, err := e.Export(context.Background(), "/content/page", Options{NodeOnly: true}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Entries)
	assert.Equal(t, int64(buf.Len()), res.Bytes)

	m, entries, err := archive.ReadAll(&buf)
	require.NoError(t, err)
	assert.True(t, m.NodeOnly)
	require.Len(t, entries, 1)
	assert.Equal(t, "/content/page", entries[0].Path)
}

func TestExportEntryCount(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	paths := []string{"/r/a", "/r/a/1", "/r/a/2", "/r/b", "/r/b/1/x", "/r/c"}
	for _, p := range paths {
		require.NoError(t, store.PutNode(ctx, p, nil))
	}
	// /r has 7 descendants: a, a/1, a/2, b, b/1, b/1/x, c
	e := NewExporter(store)

	var buf bytes.Buffer
	res, err := e.Export(ctx, "/r", Options{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 7+1+1, res.Entries)

	_, entries, err := archive.ReadAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"/r", "/r/a", "/r/a/1", "/r/a/2", "/r/b", "/r/b/1", "/r/b/1/x", "/r/c"}, entryPaths(entries))

	buf.Reset()
	res, err = e.Export(ctx, "/r", Options{NodeOnly: true}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Entries)
}

func TestExportMountPathRewrite(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	require.NoError(t, store.PutNode(ctx, "/a/b/c", repo.Properties{"k": repo.LongProperty(1)}))
	e := NewExporter(store)

	m, entries := exportAll(t, e, "/a/b", Options{MountPath: "/x"})
	assert.Equal(t, "/a/b", m.RootPath)
	assert.Equal(t, "/x", m.MountPath)
	assert.Equal(t, []string{"/x", "/x/c"}, entryPaths(entries))

	_, entries = exportAll(t, e, "/", Options{MountPath: "/backup"})
	assert.Equal(t, []string{"/backup", "/backup/a", "/backup/a/b", "/backup/a/b/c"}, entryPaths(entries))
}

func TestRewritePath(t *testing.T) {
	tests := []struct {
		root, mount, p, want string
	}{
		{"/a/b", "/x", "/a/b/c", "/x/c"},
		{"/a/b", "/x", "/a/b", "/x"},
		{"/a/b", "/a/b", "/a/b/c/d", "/a/b/c/d"},
		{"/", "/x", "/a", "/x/a"},
		{"/", "/", "/", "/"},
		{"/a", "/", "/a/b", "/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RewritePath(tt.root, tt.mount, tt.p), "%+v", tt)
	}
}

func TestExportMissingWritesNothing(t *testing.T) {
	e := NewExporter(pageStore(t))

	for _, p := range []string{"/missing", "relative", ""} {
		var buf bytes.Buffer
		_, err := e.Export(context.Background(), p, Options{}, &buf)
		assert.ErrorIs(t, err, ErrNotFound, p)
		assert.Equal(t, 0, buf.Len(), p)
	}
}

// placeholderStore hands out the non-existing placeholder and counts listings
type placeholderStore struct {
	*repo.MemoryStore
	listed int
}

func (s *placeholderStore) Resolve(ctx context.Context, p string) (*repo.Node, error) {
	return repo.NonExisting(p), nil
}

func (s *placeholderStore) Children(ctx context.Context, n *repo.Node) ([]*repo.Node, error) {
	s.listed++
	return s.MemoryStore.Children(ctx, n)
}

func TestExportPlaceholderIsNotFound(t *testing.T) {
	store := &placeholderStore{MemoryStore: pageStore(t)}
	e := NewExporter(store)

	var buf bytes.Buffer
	_, err := e.Export(context.Background(), "/missing", Options{}, &buf)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.listed)
	assert.Zero(t, buf.Len())
	assert.Equal(t, 404, StatusCode(err))
}

func TestExportStableOrder(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	for _, p := range []string{"/s/z", "/s/a", "/s/m/2", "/s/m/1"} {
		require.NoError(t, store.PutNode(ctx, p, repo.Properties{"v": repo.StringProperty(p)}))
	}
	e := NewExporter(store, WithIDFunc(fixedID))

	_, first := exportAll(t, e, "/s", Options{})
	for i := 0; i < 3; i++ {
		_, again := exportAll(t, e, "/s", Options{})
		assert.Equal(t, entryPaths(first), entryPaths(again))
	}
	assert.Equal(t, []string{"/s", "/s/z", "/s/a", "/s/m", "/s/m/2", "/s/m/1"}, entryPaths(first))
}

func TestExportRoundTripProperties(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	props := repo.Properties{
		"s":     repo.StringProperty("text"),
		"n":     repo.LongProperty(9),
		"d":     repo.DoubleProperty(1.25),
		"b":     repo.BooleanProperty(true),
		"name":  repo.NameProperty("nt:file"),
		"path":  repo.PathProperty("/ref"),
		"multi": repo.MultiStringProperty("x", "y"),
		"blob":  repo.BinaryProperty(bytes.Repeat([]byte{0xff, 0x00}, 5000)),
	}
	require.NoError(t, store.PutNode(ctx, "/file", props))
	e := NewExporter(store, WithInlineLimit(1024))

	_, entries := exportAll(t, e, "/file", Options{})
	require.Len(t, entries, 1)
	got := entries[0]
	for name, want := range props {
		if want.Type == repo.TypeBinary {
			assert.Equal(t, want.Value(), got.Binaries[name])
			continue
		}
		assert.Equal(t, want, got.Properties[name], name)
	}
}

func TestExportExclude(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	for _, p := range []string{"/c/keep/a", "/c/skip/a", "/c/keep/rep:policy"} {
		require.NoError(t, store.PutNode(ctx, p, nil))
	}
	e := NewExporter(store)

	m, entries := exportAll(t, e, "/c", Options{Exclude: []string{"/c/skip", "/c/**/rep:policy"}})
	assert.Equal(t, []string{"/c/skip", "/c/**/rep:policy"}, m.Exclude)
	assert.Equal(t, []string{"/c", "/c/keep", "/c/keep/a"}, entryPaths(entries))

	_, err := e.Export(ctx, "/c", Options{Exclude: []string{"[bad"}}, io.Discard)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	// relative patterns can never match an absolute node path
	var buf bytes.Buffer
	_, err = e.Export(ctx, "/c", Options{Exclude: []string{"skip"}}, &buf)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Zero(t, buf.Len())
	_, err = e.Export(ctx, "/c", Options{Exclude: []string{"**/rep:policy"}}, io.Discard)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestExportInvalidOptions(t *testing.T) {
	e := NewExporter(pageStore(t))
	var buf bytes.Buffer

	_, err := e.Export(context.Background(), "/content/page", Options{MountPath: "relative"}, &buf)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Equal(t, 400, StatusCode(err))

	_, err = e.Export(context.Background(), "/content/page", Options{Format: "tar"}, &buf)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Zero(t, buf.Len())
}

func TestExportGroupAndName(t *testing.T) {
	e := NewExporter(pageStore(t))
	m, _ := exportAll(t, e, "/content/page", Options{Group: "my_packages", Name: "page"})
	assert.Equal(t, "my_packages", m.Group)
	assert.Equal(t, "page", m.Name)
	assert.True(t, m.Identified())
}

func TestExportFormats(t *testing.T) {
	e := NewExporter(pageStore(t))
	for _, f := range []archive.Format{archive.FormatJSONL, archive.FormatZstd, archive.FormatBase64} {
		var buf bytes.Buffer
		_, err := e.Export(context.Background(), "/content/page", Options{Format: f}, &buf)
		require.NoError(t, err)

		rd, err := archive.NewReader(&buf)
		require.NoError(t, err)
		assert.Equal(t, f, rd.Format())
		rd.Close()
	}
}

// cyclicStore lists an ancestor as a child
type cyclicStore struct {
	*repo.MemoryStore
	children map[string][]string
}

func (s *cyclicStore) Children(ctx context.Context, n *repo.Node) ([]*repo.Node, error) {
	var out []*repo.Node
	for _, c := range s.children[n.Path] {
		out = append(out, repo.NewNode(c))
	}
	return out, nil
}

func TestExportStructuralErrors(t *testing.T) {
	tests := []struct {
		name     string
		children map[string][]string
	}{
		{"ancestor as child", map[string][]string{"/a": {"/a/b"}, "/a/b": {"/a"}}},
		{"self as child", map[string][]string{"/a": {"/a"}}},
		{"grandchild skipped level", map[string][]string{"/a": {"/a/b/c"}}},
		{"duplicate sibling", map[string][]string{"/a": {"/a/b", "/a/b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := repo.NewMemoryStore()
			require.NoError(t, base.PutNode(context.Background(), "/a/b", nil))
			e := NewExporter(&cyclicStore{MemoryStore: base, children: tt.children})

			_, err := e.Export(context.Background(), "/a", Options{}, io.Discard)
			assert.ErrorIs(t, err, ErrStructural)
			assert.Equal(t, "structural", Kind(err))
		})
	}
}

// badTypeStore reports a property type the archive cannot hold
type badTypeStore struct {
	*repo.MemoryStore
}

func (s *badTypeStore) Properties(ctx context.Context, n *repo.Node) (repo.Properties, error) {
	if n.Path == "/a/b" {
		return repo.Properties{"ref": {Type: "Reference", Values: []any{"uuid"}}}, nil
	}
	return s.MemoryStore.Properties(ctx, n)
}

func TestExportSerializationError(t *testing.T) {
	base := repo.NewMemoryStore()
	require.NoError(t, base.PutNode(context.Background(), "/a/b", nil))
	e := NewExporter(&badTypeStore{MemoryStore: base})

	var buf bytes.Buffer
	_, err := e.Export(context.Background(), "/a", Options{}, &buf)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.Equal(t, 500, StatusCode(err))

	// manifest and the first entry were committed; the bad entry was not
	_, entries, err := archive.ReadAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a"}, entryPaths(entries))
}

// multiBinaryStore reports a multi-valued binary on /a/b
type multiBinaryStore struct {
	*repo.MemoryStore
}

func (s *multiBinaryStore) Properties(ctx context.Context, n *repo.Node) (repo.Properties, error) {
	if n.Path == "/a/b" {
		return repo.Properties{"data": {Type: repo.TypeBinary, Multiple: true, Size: 3}}, nil
	}
	return s.MemoryStore.Properties(ctx, n)
}

func TestExportMultiValuedBinaryUnsupported(t *testing.T) {
	base := repo.NewMemoryStore()
	require.NoError(t, base.PutNode(context.Background(), "/a/b", nil))

	_, err := NewExporter(&multiBinaryStore{MemoryStore: base}).Export(context.Background(), "/a", Options{}, io.Discard)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.Equal(t, "serialization", Kind(err))
}

func TestExportSQLStoreUnsupportedType(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "content.db")
	store, err := repo.NewSQLStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.PutNode(ctx, "/a/b", repo.Properties{"t": repo.StringProperty("x")}))

	// a row written by another tool with a type the archive has no form for
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec("UPDATE content_properties SET type = ? WHERE node_path = ? AND name = ?", "Reference", "/a/b", "t").Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	var buf bytes.Buffer
	_, err = NewExporter(store).Export(ctx, "/a", Options{}, &buf)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.ErrorIs(t, err, repo.ErrUnsupportedType)
	assert.Equal(t, "serialization", Kind(err))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))

	_, entries, err := archive.ReadAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a"}, entryPaths(entries))
}

// slowStore takes delay to list children unless the context ends first
type slowStore struct {
	*repo.MemoryStore
	delay time.Duration
}

func (s *slowStore) Children(ctx context.Context, n *repo.Node) ([]*repo.Node, error) {
	select {
	case <-time.After(s.delay):
		return s.MemoryStore.Children(ctx, n)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestExportTimeout(t *testing.T) {
	store := &slowStore{MemoryStore: pageStore(t), delay: time.Second}
	e := NewExporter(store, WithTimeout(10*time.Millisecond))

	start := time.Now()
	_, err := e.Export(context.Background(), "/content/page", Options{}, io.Discard)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "canceled", Kind(err))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// without a bound the same store completes
	store.delay = 5 * time.Millisecond
	_, err = NewExporter(store).Export(context.Background(), "/content/page", Options{}, io.Discard)
	require.NoError(t, err)
}

type brokenWriter struct {
	after int
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("broken pipe")
	}
	w.after--
	return len(p), nil
}

func TestExportIOError(t *testing.T) {
	e := NewExporter(pageStore(t))

	_, err := e.Export(context.Background(), "/content/page", Options{}, &brokenWriter{after: 1})
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, "io", Kind(err))
}

// countingStore counts how many child listings happen
type countingStore struct {
	*repo.MemoryStore
	mu     sync.Mutex
	listed int
}

func (s *countingStore) Children(ctx context.Context, n *repo.Node) ([]*repo.Node, error) {
	s.mu.Lock()
	s.listed++
	s.mu.Unlock()
	return s.MemoryStore.Children(ctx, n)
}

func TestExportAbortsOnDisconnect(t *testing.T) {
	ctx := context.Background()
	base := repo.NewMemoryStore()
	for i := 0; i < 50; i++ {
		require.NoError(t, base.PutNode(ctx, "/big/n"+string(rune('a'+i%26))+string(rune('a'+i/26)), nil))
	}
	store := &countingStore{MemoryStore: base}
	e := NewExporter(store)

	_, err := e.Export(ctx, "/big", Options{}, &brokenWriter{after: 2})
	assert.ErrorIs(t, err, ErrIO)
	// traversal stopped at the first failed write instead of listing every node
	assert.Less(t, store.listed, 5)
}

func TestExportCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExporter(pageStore(t))

	node := repo.NewNode("/content/page")
	_, err := e.ExportNode(ctx, node, Options{}, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", Kind(err))
}

type statsRecorder struct {
	stats []Stats
}

func (r *statsRecorder) RecordExport(_ context.Context, s Stats) {
	r.stats = append(r.stats, s)
}

func TestExportRecordsStats(t *testing.T) {
	rec := &statsRecorder{}
	e := NewExporter(pageStore(t), WithRecorder(rec))

	_, err := e.Export(context.Background(), "/content/page", Options{}, io.Discard)
	require.NoError(t, err)
	_, err = e.Export(context.Background(), "/missing", Options{}, io.Discard)
	require.Error(t, err)

	require.Len(t, rec.stats, 2)
	assert.Equal(t, "success", rec.stats[0].Kind)
	assert.Equal(t, 3, rec.stats[0].Entries)
	assert.Greater(t, rec.stats[0].Bytes, int64(0))
	assert.Equal(t, "not_found", rec.stats[1].Kind)
}
