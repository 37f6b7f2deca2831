package bbolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborlight/relief-offline/internal/storage"
	"github.com/harborlight/relief-offline/internal/storage/bbolt"
)

func openTestStore(t *testing.T) (*bbolt.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offline.db")
	store, err := bbolt.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, storage.CollectionWeather, "austin-tx", []byte(`{"condition":"clear"}`)))

	value, err := store.Get(ctx, storage.CollectionWeather, "austin-tx")
	require.NoError(t, err)
	assert.JSONEq(t, `{"condition":"clear"}`, string(value))
}

func TestPutOverwritesSameKey(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, storage.CollectionWeather, "austin-tx", []byte(`{"v":1}`)))
	require.NoError(t, store.Put(ctx, storage.CollectionWeather, "austin-tx", []byte(`{"v":2}`)))

	value, err := store.Get(ctx, storage.CollectionWeather, "austin-tx")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(value))

	n, err := store.Count(ctx, storage.CollectionWeather)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.Get(context.Background(), storage.CollectionDisasters, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetAllEmptyCollection(t *testing.T) {
	store, _ := openTestStore(t)

	values, err := store.GetAll(context.Background(), storage.CollectionFacilities)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestItemsReturnsKeyOrder(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, storage.CollectionDisasters, "b", []byte("2")))
	require.NoError(t, store.Put(ctx, storage.CollectionDisasters, "a", []byte("1")))
	require.NoError(t, store.Put(ctx, storage.CollectionDisasters, "c", []byte("3")))

	items, err := store.Items(ctx, storage.CollectionDisasters)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Key)
	assert.Equal(t, "b", items[1].Key)
	assert.Equal(t, "c", items[2].Key)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, storage.CollectionTiles, "tile-1", []byte("blob")))
	require.NoError(t, store.Delete(ctx, storage.CollectionTiles, "tile-1"))
	require.NoError(t, store.Delete(ctx, storage.CollectionTiles, "tile-1"))

	_, err := store.Get(ctx, storage.CollectionTiles, "tile-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNextIDIsMonotonic(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	first, err := store.NextID(ctx, storage.CollectionAlerts)
	require.NoError(t, err)
	second, err := store.NextID(ctx, storage.CollectionAlerts)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)
}

func TestDurabilityAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline.db")
	ctx := context.Background()

	store, err := bbolt.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, storage.CollectionGuidelines, "earthquake", []byte(`{"title":"Drop, Cover, Hold On"}`)))
	lastID, err := store.NextID(ctx, storage.CollectionAlerts)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := bbolt.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	value, err := reopened.Get(ctx, storage.CollectionGuidelines, "earthquake")
	require.NoError(t, err)
	assert.Contains(t, string(value), "Drop, Cover")

	// The auto-increment sequence must not restart after reopen.
	nextID, err := reopened.NextID(ctx, storage.CollectionAlerts)
	require.NoError(t, err)
	assert.Equal(t, lastID+1, nextID)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := bbolt.Open("   ")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestOpenUnwritablePathIsUnavailable(t *testing.T) {
	// A path whose parent is an existing file cannot be created.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	store, err := bbolt.Open(blocker)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = bbolt.Open(filepath.Join(blocker, "offline.db"))
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestOperationsHonorCanceledContext(t *testing.T) {
	store, _ := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Put(ctx, storage.CollectionWeather, "k", nil), context.Canceled)
	_, err := store.Get(ctx, storage.CollectionWeather, "k")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.Items(ctx, storage.CollectionWeather)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Delete(ctx, storage.CollectionWeather, "k"), context.Canceled)
	_, err = store.NextID(ctx, storage.CollectionAlerts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenReadOnlySeesExistingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline.db")
	ctx := context.Background()

	store, err := bbolt.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, storage.CollectionDisasters, "evt-1", []byte(`{"id":"evt-1"}`)))
	require.NoError(t, store.Close())

	ro, err := bbolt.OpenReadOnly(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ro.Close() })

	value, err := ro.Get(ctx, storage.CollectionDisasters, "evt-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"evt-1"}`, string(value))
}
