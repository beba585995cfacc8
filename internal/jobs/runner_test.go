package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfsuite/internal/limiter"
	"github.com/local/pdfsuite/internal/ops"
	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/pdfcheck"
	"github.com/local/pdfsuite/internal/queue"
	"github.com/local/pdfsuite/internal/storage"
	"github.com/local/pdfsuite/internal/store"
)

func makePDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := pdf.NewDocument()
	for i := 0; i < pages; i++ {
		p := doc.AddBlankPage(pdf.Letter)
		font := doc.AddStandardFont(p, pdf.Helvetica)
		var c pdf.Content
		c.Text(font, 12, 72, 720, fmt.Sprintf("page %d", i+1))
		doc.AppendContent(p, c.Bytes())
	}
	b, err := pdf.Serialize(doc, pdf.WriteOptions{})
	require.NoError(t, err)
	return b
}

type env struct {
	client  *redis.Client
	records *store.RedisStore
	cancels *queue.CancelSet
	files   *storage.LocalStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	files, err := storage.NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)
	return &env{
		client:  c,
		records: store.NewRedisStoreFromClient(c, time.Hour),
		cancels: queue.NewCancelSetFromClient(c),
		files:   files,
	}
}

func (e *env) runner(t *testing.T, mod func(*Dependencies)) *Runner {
	t.Helper()
	deps := Dependencies{
		Records:   e.records,
		Cancels:   e.cancels,
		Storage:   e.files,
		Validator: pdfcheck.New(),
	}
	if mod != nil {
		mod(&deps)
	}
	r, err := New(deps, Options{JobTimeout: time.Minute, ArtifactTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func wait(t *testing.T, r *Runner, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx, id))
}

// gatedRecords blocks progress writes until the gate is opened, holding the
// job inside its operation.
type gatedRecords struct {
	*store.RedisStore
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func gated(s *store.RedisStore) *gatedRecords {
	return &gatedRecords{RedisStore: s, gate: make(chan struct{}), entered: make(chan struct{})}
}

func (g *gatedRecords) SetProgress(ctx context.Context, id string, p int) error {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	return g.RedisStore.SetProgress(ctx, id, p)
}

type failingStorage struct{ storage.Store }

func (failingStorage) Put(context.Context, string, []byte, storage.Metadata) error {
	return errors.New("bucket unreachable")
}

type rejectAll struct{}

func (rejectAll) Check([]byte, int) error { return pdf.Parsef("output failed validation") }

func TestSubmitCompletesAndPersists(t *testing.T) {
	e := newEnv(t)
	r := e.runner(t, nil)
	ctx := context.Background()

	id, err := r.Submit(ctx, Submission{
		UserID:     "u1",
		InputNames: []string{"a.pdf"},
		Inputs:     [][]byte{makePDF(t, 2)},
		Params:     ops.RotateOptions{Degrees: 90},
	})
	require.NoError(t, err)
	wait(t, r, id)

	rec, ok, err := e.records.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, "rotate", rec.JobType)
	assert.Equal(t, []string{"a.pdf"}, rec.InputFiles)
	assert.Regexp(t, `^u1/rotate/rotate_\d+_`+id+`\.pdf$`, rec.OutputFile)
	assert.EqualValues(t, 2, rec.Summary["pages"])

	art, err := r.Artifact(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", art.ContentType)
	assert.Equal(t, rec.OutputFile, art.Key)
	assert.Empty(t, art.Notice)
	doc, err := pdf.Load(art.Data, pdf.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 90, doc.Pages[0].Rotate)

	stored, err := e.files.Get(ctx, art.Key)
	require.NoError(t, err)
	assert.Equal(t, art.Data, stored)

	// dropped from memory, reloaded from storage
	assert.Equal(t, 1, r.CleanupExpired(time.Now().Add(2*time.Hour)))
	again, err := r.Artifact(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, art.Data, again.Data)

	require.NoError(t, r.Release(ctx, id, "u1"))
	_, err = e.files.Get(ctx, art.Key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = r.Artifact(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSameSecondJobsKeepSeparateArtifacts(t *testing.T) {
	e := newEnv(t)
	r := e.runner(t, nil)
	frozen := time.Unix(1_800_000_000, 0)
	r.now = func() time.Time { return frozen }
	ctx := context.Background()
	in := makePDF(t, 3)

	submit := func(pages string) string {
		id, err := r.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{in}, Params: ops.SplitOptions{Pages: pages}})
		require.NoError(t, err)
		wait(t, r, id)
		return id
	}
	a, b := submit("1"), submit("2-3")

	recA, _, err := e.records.Get(ctx, a)
	require.NoError(t, err)
	recB, _, err := e.records.Get(ctx, b)
	require.NoError(t, err)
	assert.NotEqual(t, recA.OutputFile, recB.OutputFile)

	require.NoError(t, r.Release(ctx, a, "u1"))
	r.CleanupExpired(frozen.Add(2 * time.Hour))

	art, err := r.Artifact(ctx, b)
	require.NoError(t, err)
	doc, err := pdf.Load(art.Data, pdf.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount())
}

func TestReleaseAndCancelCheckOwner(t *testing.T) {
	e := newEnv(t)
	g := gated(e.records)
	r := e.runner(t, func(d *Dependencies) { d.Records = g })
	ctx := context.Background()

	running, err := r.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{makePDF(t, 2)}, Params: ops.RotateOptions{Degrees: 90}})
	require.NoError(t, err)
	<-g.entered
	assert.ErrorIs(t, r.Cancel(ctx, running, "mallory"), ErrNotFound)
	close(g.gate)
	wait(t, r, running)

	rec, _, err := e.records.Get(ctx, running)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status, "a foreign cancel leaves the job alone")

	assert.ErrorIs(t, r.Release(ctx, running, "mallory"), ErrNotFound)
	r.CleanupExpired(time.Now().Add(2 * time.Hour))
	assert.ErrorIs(t, r.Release(ctx, running, "mallory"), ErrNotFound)

	_, err = e.files.Get(ctx, rec.OutputFile)
	require.NoError(t, err, "stored copy survives")
	art, err := r.Artifact(ctx, running)
	require.NoError(t, err)
	assert.NotEmpty(t, art.Data)
	require.NoError(t, r.Release(ctx, running, "u1"))
}

func TestSubmitValidatesBeforeWork(t *testing.T) {
	e := newEnv(t)
	r := e.runner(t, nil)
	ctx := context.Background()

	_, err := r.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{makePDF(t, 1)}, Params: ops.SplitOptions{}})
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))

	_, err = r.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{makePDF(t, 1)}, Params: ops.MergeOptions{}})
	assert.True(t, pdf.IsKind(err, pdf.KindMinimumInput))

	_, err = r.Submit(ctx, Submission{Inputs: [][]byte{makePDF(t, 1)}, Params: ops.RepairOptions{}})
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))

	recs, err := e.records.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPerUserLimit(t *testing.T) {
	e := newEnv(t)
	g := gated(e.records)
	r := e.runner(t, func(d *Dependencies) {
		d.Records = g
		d.Limiter = limiter.New(1)
	})
	ctx := context.Background()
	sub := Submission{UserID: "u1", Inputs: [][]byte{makePDF(t, 1)}, Params: ops.RepairOptions{}}

	id, err := r.Submit(ctx, sub)
	require.NoError(t, err)
	<-g.entered
	_, err = r.Submit(ctx, sub)
	assert.ErrorIs(t, err, ErrTooManyJobs)

	other := sub
	other.UserID = "u2"
	id2, err := r.Submit(ctx, other)
	require.NoError(t, err)

	close(g.gate)
	wait(t, r, id)
	wait(t, r, id2)
	assert.Equal(t, 0, r.Running())

	id3, err := r.Submit(ctx, sub)
	require.NoError(t, err, "slot is released when the job ends")
	wait(t, r, id3)
}

func TestCancelLocalJob(t *testing.T) {
	e := newEnv(t)
	g := gated(e.records)
	r := e.runner(t, func(d *Dependencies) { d.Records = g })
	ctx := context.Background()

	id, err := r.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{makePDF(t, 3)}, Params: ops.RotateOptions{Degrees: 180}})
	require.NoError(t, err)
	<-g.entered
	require.NoError(t, r.Cancel(ctx, id, "u1"))
	close(g.gate)
	wait(t, r, id)

	rec, _, err := e.records.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Equal(t, "cancelled", rec.ErrorMessage)

	_, err = r.Artifact(ctx, id)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, r.Cancel(ctx, id, "u1"), ErrFinished)
	assert.ErrorIs(t, r.Cancel(ctx, "nope", ""), ErrNotFound)

	marked, err := e.cancels.IsCancelled(ctx, id)
	require.NoError(t, err)
	assert.False(t, marked, "marker is cleared once the job ends")
}

func TestCancelFromAnotherInstance(t *testing.T) {
	e := newEnv(t)
	g := gated(e.records)
	owner := e.runner(t, func(d *Dependencies) { d.Records = g })
	other := e.runner(t, nil)
	ctx := context.Background()

	id, err := owner.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{makePDF(t, 2)}, Params: ops.RotateOptions{Degrees: 90}})
	require.NoError(t, err)
	<-g.entered

	require.NoError(t, other.Cancel(ctx, id, "u1"))
	owner.pollCancels(ctx)
	close(g.gate)
	wait(t, owner, id)

	rec, _, err := e.records.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Equal(t, "cancelled", rec.ErrorMessage)
}

func TestCompareArtifactRebuiltFromRecord(t *testing.T) {
	e := newEnv(t)
	r := e.runner(t, nil)
	ctx := context.Background()
	in := makePDF(t, 2)

	id, err := r.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{in, in}, Params: ops.CompareOptions{}})
	require.NoError(t, err)
	wait(t, r, id)

	art, err := r.Artifact(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, art.Data)
	assert.Equal(t, []string{ops.NoDifferences}, art.Differences)

	r.CleanupExpired(time.Now().Add(2 * time.Hour))
	art, err = r.Artifact(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "application/json", art.ContentType)
	assert.Equal(t, []string{ops.NoDifferences}, art.Differences)
}

func TestStorageFailureBecomesNotice(t *testing.T) {
	e := newEnv(t)
	r := e.runner(t, func(d *Dependencies) { d.Storage = failingStorage{e.files} })
	ctx := context.Background()

	id, err := r.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{makePDF(t, 1)}, Params: ops.CompressOptions{Level: 50}})
	require.NoError(t, err)
	wait(t, r, id)

	art, err := r.Artifact(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, art.Data, "the document survives a storage failure")
	assert.Empty(t, art.Key)
	assert.Contains(t, art.Notice, "bucket unreachable")

	rec, _, err := e.records.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.Empty(t, rec.OutputFile)
	assert.Equal(t, art.Notice, rec.Notice)
}

func TestValidatorRejectionFailsJob(t *testing.T) {
	e := newEnv(t)
	r := e.runner(t, func(d *Dependencies) { d.Validator = rejectAll{} })
	ctx := context.Background()

	id, err := r.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{makePDF(t, 1)}, Params: ops.RepairOptions{}})
	require.NoError(t, err)
	wait(t, r, id)

	rec, _, err := e.records.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "output failed validation")
	_, err = r.Artifact(ctx, id)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestParseFailureFailsJob(t *testing.T) {
	e := newEnv(t)
	r := e.runner(t, nil)
	ctx := context.Background()

	id, err := r.Submit(ctx, Submission{UserID: "u1", Inputs: [][]byte{[]byte("not a pdf")}, Params: ops.RotateOptions{Degrees: 90}})
	require.NoError(t, err)
	wait(t, r, id)

	rec, _, err := e.records.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "rotate")
}

func TestShutdownRejectsNewJobs(t *testing.T) {
	e := newEnv(t)
	r := e.runner(t, nil)
	r.Start()
	require.NoError(t, r.Shutdown(context.Background()))

	_, err := r.Submit(context.Background(), Submission{UserID: "u1", Inputs: [][]byte{makePDF(t, 1)}, Params: ops.RepairOptions{}})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestParseType(t *testing.T) {
	for _, op := range ops.Operations() {
		typ, err := ParseType(op.String())
		require.NoError(t, err)
		got, err := typ.Operation()
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
	assert.Equal(t, TypeWatermark, TypeOf(ops.OpWatermark))
	_, err := ParseType("redact")
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
}
