package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), "/")
	require.NoError(t, err)
	return store
}

func testMeta() map[string]any {
	return map[string]any{
		"run":   "run-17",
		"epoch": float64(3),
		"state": "running",
	}
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "vault")

	store, err := Open(root, "")
	require.NoError(t, err)
	assert.Equal(t, root, store.Root())
	assert.Equal(t, "/", store.URIRoot())

	// Root directory is created on demand.
	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenRelativeRoot(t *testing.T) {
	_, err := Open("relative/path", "/")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOpenRootIsFile(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := Open(file, "/")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStoreCreateObject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	data := []byte("checkpoint bytes")
	dir, err := store.CreateObject(ctx, "/jobs/run-17", data, testMeta(), false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "jobs", "run-17"), dir)

	got, err := store.GetData(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	meta, err := store.GetMeta(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, testMeta(), meta)
}

func TestStoreCreateObjectAlreadyExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("v1"), testMeta(), false)
	require.NoError(t, err)

	_, err = store.CreateObject(ctx, "/jobs/run-17", []byte("v2"), testMeta(), false)
	assert.ErrorIs(t, err, ErrObjectExists)

	// The original payload is untouched.
	got, err := store.GetData(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestStoreCreateObjectOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("v1"), map[string]any{"rev": "1"}, false)
	require.NoError(t, err)

	_, err = store.CreateObject(ctx, "/jobs/run-17", []byte("v2"), map[string]any{"rev": "2"}, true)
	require.NoError(t, err)

	meta, data, err := store.GetDetail(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
	assert.Equal(t, map[string]any{"rev": "2"}, meta)
}

func TestStoreCreateObjectUnrelatedContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A directory that already holds foreign files must not be clobbered.
	dir := filepath.Join(store.Root(), "jobs", "run-17")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644))

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("x"), nil, false)
	assert.ErrorIs(t, err, ErrNonEmptyDirectory)

	// The foreign file survives the rejected create.
	_, statErr := os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, statErr)
}

func TestStoreCreateObjectEmptyDirOK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// An existing but empty directory is a valid target.
	dir := filepath.Join(store.Root(), "jobs", "run-17")
	require.NoError(t, os.MkdirAll(dir, 0755))

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("x"), nil, false)
	require.NoError(t, err)
	assert.True(t, store.Exists(ctx, "/jobs/run-17"))
}

func TestStoreCreateObjectReclaimsCrashLeftovers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Simulate a crash between the meta commit and the data rename: the
	// meta file is in place, the payload survives only under its staged
	// temporary name.
	dir := filepath.Join(store.Root(), "jobs", "run-17")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta"), []byte("{}"), 0644))
	staged := filepath.Join(dir, "data_"+uuid.NewString())
	require.NoError(t, os.WriteFile(staged, []byte("torn"), 0644))

	// The partial state reads as absent.
	assert.False(t, store.Exists(ctx, "/jobs/run-17"))
	_, err := store.GetData(ctx, "/jobs/run-17")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// The next create succeeds and sweeps the leftover temp.
	_, err = store.CreateObject(ctx, "/jobs/run-17", []byte("fresh"), nil, false)
	require.NoError(t, err)

	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err))

	got, err := store.GetData(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), got)
}

func TestStoreCreateObjectReclaimsDoubledTempSuffix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Earlier engines staged the payload through the atomic-write path,
	// so a crash inside it could leave a data_<uuid>_<uuid> file. Such
	// debris is engine-owned and must never block the URI.
	dir := filepath.Join(store.Root(), "jobs", "run-17")
	require.NoError(t, os.MkdirAll(dir, 0755))
	doubled := filepath.Join(dir, "data_"+uuid.NewString()+"_"+uuid.NewString())
	require.NoError(t, os.WriteFile(doubled, []byte("torn"), 0644))

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("fresh"), nil, false)
	require.NoError(t, err)

	_, err = os.Stat(doubled)
	assert.True(t, os.IsNotExist(err))

	got, err := store.GetData(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), got)
}

func TestStoreCreateObjectLeavesNoTemps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dir, err := store.CreateObject(ctx, "/jobs/run-17", []byte("payload"), testMeta(), false)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"data", "meta"}, names)
}

func TestStoreCreateObjectBadMeta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Values JSON cannot represent are rejected up front.
	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("x"), map[string]any{"ch": make(chan int)}, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Nothing was committed.
	assert.False(t, store.Exists(ctx, "/jobs/run-17"))
}

func TestStorePartialObjectNotVisible(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dir := filepath.Join(store.Root(), "jobs", "half")
	require.NoError(t, os.MkdirAll(dir, 0755))

	// Data without meta is not an object.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data"), []byte("x"), 0644))
	assert.False(t, store.Exists(ctx, "/jobs/half"))
	_, err := store.GetMeta(ctx, "/jobs/half")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Both files present makes it one.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta"), []byte("{}"), 0644))
	assert.True(t, store.Exists(ctx, "/jobs/half"))
}

func TestStoreUpdateMetaMerge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("x"), map[string]any{"state": "running", "epoch": float64(1)}, false)
	require.NoError(t, err)

	err = store.UpdateMeta(ctx, "/jobs/run-17", map[string]any{"state": "done", "score": float64(421)}, false)
	require.NoError(t, err)

	meta, err := store.GetMeta(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"state": "done",
		"epoch": float64(1),
		"score": float64(421),
	}, meta)
}

func TestStoreUpdateMetaReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("x"), testMeta(), false)
	require.NoError(t, err)

	err = store.UpdateMeta(ctx, "/jobs/run-17", map[string]any{"only": "this"}, true)
	require.NoError(t, err)

	meta, err := store.GetMeta(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"only": "this"}, meta)
}

func TestStoreUpdateMetaNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateMeta(context.Background(), "/jobs/missing", map[string]any{"a": "b"}, false)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestStoreUpdateData(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("v1"), testMeta(), false)
	require.NoError(t, err)

	err = store.UpdateData(ctx, "/jobs/run-17", []byte("v2"))
	require.NoError(t, err)

	got, err := store.GetData(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	// Meta is untouched by a data update.
	meta, err := store.GetMeta(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, testMeta(), meta)
}

func TestStoreUpdateDataNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateData(context.Background(), "/jobs/missing", []byte("x"))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestStoreGetDetail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("payload"), testMeta(), false)
	require.NoError(t, err)

	meta, data, err := store.GetDetail(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, testMeta(), meta)
	assert.Equal(t, []byte("payload"), data)
}

func TestStoreGetNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetData(ctx, "/jobs/missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.GetMeta(ctx, "/jobs/missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, _, err = store.GetDetail(ctx, "/jobs/missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.ObjectSize(ctx, "/jobs/missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestStoreDeleteObject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dir, err := store.CreateObject(ctx, "/jobs/run-17", []byte("x"), testMeta(), false)
	require.NoError(t, err)
	require.NoError(t, store.TagObject(ctx, "/jobs/run-17", "latest", nil))

	err = store.DeleteObject(ctx, "/jobs/run-17")
	require.NoError(t, err)

	// The whole subtree is gone, tag markers included.
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
	assert.False(t, store.Exists(ctx, "/jobs/run-17"))
}

func TestStoreDeleteObjectNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.DeleteObject(context.Background(), "/jobs/missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Deleting twice reports the same.
	ctx := context.Background()
	_, err = store.CreateObject(ctx, "/jobs/run-17", []byte("x"), nil, false)
	require.NoError(t, err)
	require.NoError(t, store.DeleteObject(ctx, "/jobs/run-17"))
	err = store.DeleteObject(ctx, "/jobs/run-17")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestStoreListObjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-1", []byte("a"), nil, false)
	require.NoError(t, err)
	_, err = store.CreateObject(ctx, "/jobs/run-2", []byte("b"), nil, false)
	require.NoError(t, err)

	// Incomplete children and plain files are skipped.
	half := filepath.Join(store.Root(), "jobs", "broken")
	require.NoError(t, os.MkdirAll(half, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(half, "data"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "jobs", "stray.txt"), []byte("x"), 0644))

	uris, err := store.ListObjects(ctx, "/jobs", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/jobs/run-1", "/jobs/run-2"}, uris)
}

func TestStoreListObjectsWithoutTag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-1", []byte("a"), nil, false)
	require.NoError(t, err)
	_, err = store.CreateObject(ctx, "/jobs/run-2", []byte("b"), nil, false)
	require.NoError(t, err)

	require.NoError(t, store.TagObject(ctx, "/jobs/run-1", "archived", []byte("2026-08-01")))

	uris, err := store.ListObjects(ctx, "/jobs", "archived")
	require.NoError(t, err)
	assert.Equal(t, []string{"/jobs/run-2"}, uris)

	// Without the filter both are visible.
	uris, err = store.ListObjects(ctx, "/jobs", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/jobs/run-1", "/jobs/run-2"}, uris)
}

func TestStoreListObjectsInvalidPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ListObjects(ctx, "/nope", "")
	assert.ErrorIs(t, err, ErrInvalidPath)

	// A URI resolving to a file is not listable either.
	_, err = store.CreateObject(ctx, "/jobs/run-1", []byte("a"), nil, false)
	require.NoError(t, err)
	_, err = store.ListObjects(ctx, "/jobs/run-1/data", "")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestStoreListChildren(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-1", []byte("a"), nil, false)
	require.NoError(t, err)
	_, err = store.CreateObject(ctx, "/models/global", []byte("m"), nil, false)
	require.NoError(t, err)

	objects, dirs, err := store.ListChildren(ctx, "/")
	require.NoError(t, err)
	assert.Empty(t, objects)
	assert.ElementsMatch(t, []string{"/jobs", "/models"}, dirs)

	objects, dirs, err = store.ListChildren(ctx, "/jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"/jobs/run-1"}, objects)
	assert.Empty(t, dirs)
}

func TestStoreTagObject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dir, err := store.CreateObject(ctx, "/jobs/run-17", []byte("x"), nil, false)
	require.NoError(t, err)

	require.NoError(t, store.TagObject(ctx, "/jobs/run-17", "latest", []byte("marker payload")))

	content, err := os.ReadFile(filepath.Join(dir, "latest"))
	require.NoError(t, err)
	assert.Equal(t, []byte("marker payload"), content)

	// Re-tagging overwrites the marker.
	require.NoError(t, store.TagObject(ctx, "/jobs/run-17", "latest", []byte("newer")))
	content, err = os.ReadFile(filepath.Join(dir, "latest"))
	require.NoError(t, err)
	assert.Equal(t, []byte("newer"), content)
}

func TestStoreTagObjectMissingPath(t *testing.T) {
	store := newTestStore(t)

	err := store.TagObject(context.Background(), "/jobs/missing", "latest", nil)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestStoreTagObjectReservedNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("x"), nil, false)
	require.NoError(t, err)

	for _, tag := range []string{"", "data", "meta", "a/b", "..", "data_" + uuid.NewString()} {
		err := store.TagObject(ctx, "/jobs/run-17", tag, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument, "tag %q", tag)
	}
}

func TestStoreURIRootStripping(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := Open(tmpDir, "/vault")
	require.NoError(t, err)
	ctx := context.Background()

	dir, err := store.CreateObject(ctx, "/vault/jobs/run-17", []byte("x"), nil, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "jobs", "run-17"), dir)

	// Listing still speaks the caller's URI dialect.
	uris, err := store.ListObjects(ctx, "/vault/jobs", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/vault/jobs/run-17"}, uris)
}

func TestStoreContextCancelled(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("x"), nil, false)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.GetData(ctx, "/jobs/run-17")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreEmptyURI(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "", []byte("x"), nil, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = store.GetData(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStoreObjectSize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("12345"), nil, false)
	require.NoError(t, err)

	size, err := store.ObjectSize(ctx, "/jobs/run-17")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func TestStoreEmptyDataAndMeta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Zero-byte payloads and empty metadata are legal objects.
	_, err := store.CreateObject(ctx, "/jobs/empty", nil, nil, false)
	require.NoError(t, err)

	data, err := store.GetData(ctx, "/jobs/empty")
	require.NoError(t, err)
	assert.Empty(t, data)

	meta, err := store.GetMeta(ctx, "/jobs/empty")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, meta)
}

func TestStoreLegacyMetaDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dir, err := store.CreateObject(ctx, "/jobs/old", []byte("x"), nil, false)
	require.NoError(t, err)

	// Documents written by older engines wrap the object in a JSON string.
	legacy := `"{\"state\": \"done\", \"epoch\": 9}"`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta"), []byte(legacy), 0644))

	meta, err := store.GetMeta(ctx, "/jobs/old")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"state": "done", "epoch": float64(9)}, meta)
}

func TestStoreCorruptMetaDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dir, err := store.CreateObject(ctx, "/jobs/bad", []byte("x"), nil, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta"), []byte("{not json"), 0644))

	_, err = store.GetMeta(ctx, "/jobs/bad")
	assert.ErrorIs(t, err, ErrMetaDecode)

	// Merging into a corrupt document is a hard failure too.
	err = store.UpdateMeta(ctx, "/jobs/bad", map[string]any{"a": "b"}, false)
	assert.ErrorIs(t, err, ErrMetaDecode)

	// A wholesale replace does not need to decode the old document.
	err = store.UpdateMeta(ctx, "/jobs/bad", map[string]any{"a": "b"}, true)
	require.NoError(t, err)
}

func TestStoreNestedObjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// An object URI may sit beneath another object's URI; each directory
	// stands on its own.
	_, err := store.CreateObject(ctx, "/jobs/run-17", []byte("parent"), nil, false)
	require.NoError(t, err)
	_, err = store.CreateObject(ctx, "/jobs/run-17/checkpoints/epoch-1", []byte("child"), nil, false)
	require.NoError(t, err)

	assert.True(t, store.Exists(ctx, "/jobs/run-17"))
	assert.True(t, store.Exists(ctx, "/jobs/run-17/checkpoints/epoch-1"))

	// Deleting the parent removes everything beneath it.
	require.NoError(t, store.DeleteObject(ctx, "/jobs/run-17"))
	assert.False(t, store.Exists(ctx, "/jobs/run-17/checkpoints/epoch-1"))
}
