package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *Document {
	doc := New()
	doc.SetMarker("campaigns")
	doc.Bookmarks.Metrics = MetricsBookmark{
		CampaignsToResume: []string{"5"},
		MetricsToResume:   []string{"clicked"},
		DateToResume:      "2021-03-02",
	}
	return doc
}

// roundTrip checks the behavior every Store shares
func roundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", empty.Marker())

	require.NoError(t, store.Write(ctx, sampleDocument()))
	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleDocument(), got)

	done := New()
	done.Bookmarks.Metrics.LastMetricDate = "2021-03-05"
	require.NoError(t, store.Write(ctx, done))
	got, err = store.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.LastSyncedStream)
	assert.Empty(t, got.Bookmarks.Metrics.CampaignsToResume)
	assert.Equal(t, "2021-03-05", got.Bookmarks.Metrics.LastMetricDate)

	assert.NoError(t, store.Close())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	roundTrip(t, store)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Read(context.Background())
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr(), Key: "tap:test"})
	require.NoError(t, err)

	roundTrip(t, store)
	assert.True(t, mr.Exists("tap:test"))
}

func TestRedisStoreDefaultKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, "")

	require.NoError(t, store.Write(context.Background(), sampleDocument()))
	raw, err := mr.Get("emarsys-tap:state")
	require.NoError(t, err)
	assert.Contains(t, raw, `"date_to_resume":"2021-03-02"`)
}

func TestRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(nil)
	roundTrip(t, store)
	assert.Len(t, store.History(), 2)

	failing := NewMemoryStore(sampleDocument())
	failing.FailAfter = 1
	assert.Error(t, failing.Write(context.Background(), New()))
	got, err := failing.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "campaigns", got.Marker())
}

type recordingEmitter struct {
	docs []*Document
}

func (r *recordingEmitter) WriteState(_ context.Context, doc *Document) error {
	r.docs = append(r.docs, doc.Clone())
	return nil
}

func TestTee(t *testing.T) {
	primary := NewMemoryStore(nil)
	emitter := &recordingEmitter{}
	tee := NewTee(primary, emitter)

	roundTrip(t, tee)
	assert.Len(t, emitter.docs, 2)
	assert.Len(t, primary.History(), 2)

	t.Run("failed write is not emitted", func(t *testing.T) {
		primary := NewMemoryStore(nil)
		primary.FailAfter = 1
		emitter := &recordingEmitter{}
		tee := NewTee(primary, emitter)

		assert.Error(t, tee.Write(context.Background(), sampleDocument()))
		assert.Empty(t, emitter.docs)
	})
}
