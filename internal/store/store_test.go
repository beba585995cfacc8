package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
)

func newStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return NewRedisStoreFromClient(c, ttl), mr
}

func TestRecordLifecycle(t *testing.T) {
	s, mr := newStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, JobRecord{ID: "j1", UserID: "u1", JobType: "merge", InputFiles: []string{"a.pdf", "b.pdf"}}))
	assert.True(t, mr.Exists("job:j1:status"))
	members, err := mr.SMembers("user:u1:jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"j1"}, members)

	rec, ok, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, rec.InputFiles)
	assert.False(t, rec.CreatedAt.IsZero())

	require.NoError(t, s.SetProgress(ctx, "j1", 40))
	rec, _, _ = s.Get(ctx, "j1")
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.Equal(t, 40, rec.Progress)

	require.NoError(t, s.Complete(ctx, "j1", "u1/merge/merge_1.pdf", map[string]interface{}{"pages": 5}))
	rec, _, _ = s.Get(ctx, "j1")
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.True(t, rec.Status.Terminal())
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, "u1/merge/merge_1.pdf", rec.OutputFile)
	assert.Equal(t, 5.0, rec.Summary["pages"])
}

func TestFailAndNotice(t *testing.T) {
	s, _ := newStore(t, 0)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, JobRecord{ID: "j1", UserID: "u1", JobType: "crop"}))
	require.NoError(t, s.Fail(ctx, "j1", "crop: validation error: margins leave nothing of page 1"))
	require.NoError(t, s.SetNotice(ctx, "j1", "artifact not persisted"))

	rec, _, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "margins")
	assert.Equal(t, "artifact not persisted", rec.Notice)
}

func TestUpdateMissingRecordIsIOError(t *testing.T) {
	s, _ := newStore(t, 0)
	err := s.SetProgress(context.Background(), "ghost", 10)
	require.Error(t, err)
	assert.True(t, pdf.IsKind(err, pdf.KindIO))

	_, ok, err := s.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateValidates(t *testing.T) {
	s, _ := newStore(t, 0)
	err := s.Create(context.Background(), JobRecord{ID: "j1"})
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
}

func TestListByUserNewestFirstAndPrunesExpired(t *testing.T) {
	s, mr := newStore(t, time.Hour)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.Create(ctx, JobRecord{ID: id, UserID: "u1", JobType: "split", CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, s.Create(ctx, JobRecord{ID: "other", UserID: "u2", JobType: "split"}))
	mr.Del("job:mid:status")

	recs, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].ID)
	assert.Equal(t, "old", recs[1].ID)

	members, _ := mr.SMembers("user:u1:jobs")
	assert.ElementsMatch(t, []string{"new", "old"}, members)

	mr.FastForward(2 * time.Hour)
	_, ok, err := s.Get(ctx, "new")
	require.NoError(t, err)
	assert.False(t, ok, "records expire with the configured ttl")
}

func TestReporterScalesAndRecordsTerminal(t *testing.T) {
	s, _ := newStore(t, 0)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, JobRecord{ID: "j1", UserID: "u1", JobType: "rotate"}))

	rep := NewReporter(ctx, s, "j1", 80)
	rep.Progress(50)
	rec, _, _ := s.Get(ctx, "j1")
	assert.Equal(t, 40, rec.Progress)

	rep.Completed(progress.Summary{"output_file": "u1/rotate/rotate_9.pdf", "pages": 2})
	rec, _, _ = s.Get(ctx, "j1")
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "u1/rotate/rotate_9.pdf", rec.OutputFile)
	assert.NoError(t, rep.Err())
}

func TestReporterKeepsFirstError(t *testing.T) {
	s, _ := newStore(t, 0)
	rep := NewReporter(context.Background(), s, "missing", 0)
	rep.Progress(10)
	rep.Failed(errors.New("boom"))
	err := rep.Err()
	require.Error(t, err)
	assert.True(t, pdf.IsKind(err, pdf.KindIO))
}

func TestInspectCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewInspectCache(c, time.Minute)
	ctx := context.Background()

	d := Digest([]byte("%PDF-1.7"))
	assert.Len(t, d, 64)

	var got map[string]int
	ok, err := cache.Get(ctx, d, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, d, map[string]int{"page_count": 3}))
	ok, err = cache.Get(ctx, d, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got["page_count"])

	mr.FastForward(2 * time.Minute)
	ok, _ = cache.Get(ctx, d, &got)
	assert.False(t, ok)
}
