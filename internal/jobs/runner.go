// Package jobs runs document operations asynchronously. Each job gets its own
// goroutine and context, mirrors its progress into a job record, persists the
// serialized result and keeps an in-memory artifact handle until it is
// released or expires.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsuite/internal/config"
	"github.com/local/pdfsuite/internal/limiter"
	"github.com/local/pdfsuite/internal/metrics"
	"github.com/local/pdfsuite/internal/ops"
	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
	"github.com/local/pdfsuite/internal/storage"
	"github.com/local/pdfsuite/internal/store"
)

// progressCeiling is where the operation's own progress tops out; the rest
// covers validation and persisting the artifact.
const progressCeiling = 95

// Records is the job record store.
type Records interface {
	store.RecordWriter
	Create(ctx context.Context, rec store.JobRecord) error
	SetNotice(ctx context.Context, jobID, notice string) error
	Get(ctx context.Context, jobID string) (store.JobRecord, bool, error)
}

// CancelSet shares cancellations between instances.
type CancelSet interface {
	CancelJob(ctx context.Context, jobID string) error
	Cancelled(ctx context.Context, ids []string) (map[string]bool, error)
	Forget(ctx context.Context, jobID string) error
}

// Validator re-checks serialized output before it is stored.
type Validator interface {
	Check(data []byte, wantPages int) error
}

// Dependencies of a Runner. Only Records is required.
type Dependencies struct {
	Records   Records
	Cancels   CancelSet
	Storage   storage.Store
	Validator Validator
	Limiter   *limiter.PerUser
}

type Options struct {
	JobTimeout      time.Duration
	ArtifactTTL     time.Duration
	CancelPoll      time.Duration
	CleanupInterval time.Duration
}

func OptionsFrom(cfg config.Config) Options {
	return Options{
		JobTimeout:      cfg.Jobs.JobTimeout,
		ArtifactTTL:     cfg.Jobs.ArtifactTTL,
		CancelPoll:      cfg.Redis.CancelPoll,
		CleanupInterval: cfg.Jobs.CleanupInterval,
	}
}

func (o *Options) defaults() {
	if o.JobTimeout <= 0 {
		o.JobTimeout = 5 * time.Minute
	}
	if o.ArtifactTTL <= 0 {
		o.ArtifactTTL = time.Hour
	}
	if o.CancelPoll <= 0 {
		o.CancelPoll = 2 * time.Second
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 5 * time.Minute
	}
}

type task struct {
	id     string
	user   string
	cancel context.CancelFunc
	done   chan struct{}
}

type Runner struct {
	deps Dependencies
	opts Options
	now  func() time.Time

	mu        sync.Mutex
	running   map[string]*task
	artifacts map[string]*Artifact
	closed    bool

	tasks    sync.WaitGroup
	loops    sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func New(deps Dependencies, opts Options) (*Runner, error) {
	if deps.Records == nil {
		return nil, errors.New("jobs: records store is required")
	}
	opts.defaults()
	return &Runner{
		deps:      deps,
		opts:      opts,
		now:       time.Now,
		running:   map[string]*task{},
		artifacts: map[string]*Artifact{},
		stop:      make(chan struct{}),
	}, nil
}

// Start launches the cancel monitor and the artifact janitor.
func (r *Runner) Start() {
	if r.deps.Cancels != nil {
		r.loops.Add(1)
		go r.loop(r.opts.CancelPoll, func() { r.pollCancels(context.Background()) })
	}
	r.loops.Add(1)
	go r.loop(r.opts.CleanupInterval, func() {
		if n := r.CleanupExpired(r.now()); n > 0 {
			log.Info().Int("artifacts", n).Msg("expired artifacts dropped")
		}
	})
}

func (r *Runner) loop(every time.Duration, f func()) {
	defer r.loops.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			f()
		}
	}
}

// Submit validates s, records a pending job and starts it. Validation errors
// come back before any work is done.
func (r *Runner) Submit(ctx context.Context, s Submission) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}
	typ := TypeOf(s.Params.Operation())

	release := func() {}
	if r.deps.Limiter != nil {
		var ok bool
		if release, ok = r.deps.Limiter.Allow(s.UserID); !ok {
			return "", ErrTooManyJobs
		}
	}

	id := uuid.NewString()
	now := r.now()
	rec := store.JobRecord{
		ID:         id,
		UserID:     s.UserID,
		JobType:    string(typ),
		Status:     store.StatusPending,
		InputFiles: s.InputNames,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.deps.Records.Create(ctx, rec); err != nil {
		release()
		metrics.IncStoreError("records")
		return "", err
	}

	jctx, cancel := context.WithTimeout(context.Background(), r.opts.JobTimeout)
	t := &task{id: id, user: s.UserID, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		release()
		_ = r.deps.Records.Fail(context.WithoutCancel(ctx), id, "service shutting down")
		return "", ErrClosed
	}
	r.running[id] = t
	r.tasks.Add(1)
	r.mu.Unlock()

	metrics.JobStarted()
	log.Info().
		Str("job_id", id).
		Str("user_id", s.UserID).
		Str("job_type", string(typ)).
		Int("inputs", len(s.Inputs)).
		Msg("job created")

	go r.execute(jctx, t, typ, s, release)
	return id, nil
}

func (r *Runner) execute(ctx context.Context, t *task, typ Type, s Submission, release func()) {
	defer r.tasks.Done()
	defer func() {
		t.cancel()
		release()
		metrics.JobFinished()
		r.mu.Lock()
		delete(r.running, t.id)
		r.mu.Unlock()
		close(t.done)
	}()

	start := time.Now()
	rec := store.NewReporter(ctx, r.deps.Records, t.id, progressCeiling)
	// only percentages go through; the terminal status is written below once
	// the artifact is persisted
	fwd := progress.Funcs{OnProgress: rec.Progress}

	out, err := ops.Run(ctx, ops.Request{Inputs: s.Inputs, Params: s.Params, Password: s.Password}, fwd)
	if err == nil && out.Doc != nil && r.deps.Validator != nil {
		err = r.deps.Validator.Check(out.PDF, out.Doc.PageCount())
	}
	if err != nil {
		r.fail(t, typ, rec, err, time.Since(start))
		return
	}

	// the result exists; cancelling from here on must not lose it
	pctx := context.WithoutCancel(ctx)
	now := r.now()
	art := &Artifact{
		JobID:     t.id,
		UserID:    t.user,
		Type:      typ,
		CreatedAt: now,
		ExpiresAt: now.Add(r.opts.ArtifactTTL),
	}
	var notices []string
	if out.PDF != nil {
		art.Data = out.PDF
		art.ContentType = "application/pdf"
		if key, err := r.persist(pctx, t, typ, out.PDF, now); err != nil {
			notices = append(notices, err.Error())
		} else {
			art.Key = key
		}
	} else {
		art.ContentType = "application/json"
		art.Differences = out.Differences
	}

	summary := out.Summary
	if art.Key != "" {
		summary["output_file"] = art.Key
	}
	rec.Completed(summary)
	if err := rec.Err(); err != nil {
		notices = append(notices, pdf.WrapIO("job store", err).Error())
	}
	if len(notices) > 0 {
		art.Notice = strings.Join(notices, "; ")
		_ = r.deps.Records.SetNotice(pctx, t.id, art.Notice)
	}

	r.mu.Lock()
	r.artifacts[t.id] = art
	r.mu.Unlock()

	if r.deps.Cancels != nil {
		_ = r.deps.Cancels.Forget(pctx, t.id)
	}

	dur := time.Since(start)
	op := string(typ)
	metrics.ObserveOperation(op, "completed", dur)
	if out.Doc != nil {
		metrics.AddPages(op, out.Doc.PageCount())
		metrics.ObserveOutput(op, len(out.PDF))
	}
	log.Info().
		Str("job_id", t.id).
		Str("job_type", op).
		Str("output_file", art.Key).
		Int("bytes", art.Size()).
		Str("notice", art.Notice).
		Dur("duration", dur).
		Msg("job completed")
}

func (r *Runner) persist(ctx context.Context, t *task, typ Type, data []byte, at time.Time) (string, error) {
	if r.deps.Storage == nil {
		return "", nil
	}
	key := storage.ArtifactKey(t.user, string(typ), t.id, at)
	meta := storage.Metadata{JobID: t.id, UserID: t.user, Operation: string(typ), ContentType: "application/pdf"}
	if err := r.deps.Storage.Put(ctx, key, data, meta); err != nil {
		metrics.IncStoreError("artifacts")
		log.Warn().Err(err).Str("job_id", t.id).Str("key", key).Str("store", r.deps.Storage.Name()).Msg("artifact upload failed")
		return "", pdf.WrapIO("artifact storage", err)
	}
	return key, nil
}

func (r *Runner) fail(t *task, typ Type, rec *store.Reporter, err error, dur time.Duration) {
	result := "failed"
	switch {
	case errors.Is(err, context.Canceled):
		result = "cancelled"
		err = errors.New("cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
		err = fmt.Errorf("timed out after %s", r.opts.JobTimeout)
	}
	rec.Failed(err)
	if r.deps.Cancels != nil {
		_ = r.deps.Cancels.Forget(context.Background(), t.id)
	}
	metrics.ObserveOperation(string(typ), result, dur)

	ev := log.Warn()
	if result == "failed" && pdf.KindOf(err) != pdf.KindValidation {
		ev = log.Error()
	}
	ev.Err(err).
		Str("job_id", t.id).
		Str("job_type", string(typ)).
		Str("result", result).
		Dur("duration", dur).
		Msg("job failed")
}

// Cancel stops a job. Jobs running here are cancelled at once; the id is
// also added to the shared cancel set so the instance running it stops it
// on its next poll. A non-empty user must own the job; other users get
// ErrNotFound.
func (r *Runner) Cancel(ctx context.Context, id, user string) error {
	r.mu.Lock()
	t, local := r.running[id]
	r.mu.Unlock()

	if local {
		if !ownedBy(t.user, user) {
			return ErrNotFound
		}
	} else {
		rec, ok, err := r.deps.Records.Get(ctx, id)
		if err != nil {
			return pdf.WrapIO("job store", err)
		}
		if !ok || !ownedBy(rec.UserID, user) {
			return ErrNotFound
		}
		if rec.Status.Terminal() {
			return ErrFinished
		}
	}
	if r.deps.Cancels != nil {
		if err := r.deps.Cancels.CancelJob(ctx, id); err != nil {
			metrics.IncStoreError("cancel")
			if !local {
				return pdf.WrapIO("cancel set", err)
			}
			log.Warn().Err(err).Str("job_id", id).Msg("cancel marker write failed")
		}
	}
	if local {
		t.cancel()
	}
	log.Info().Str("job_id", id).Bool("local", local).Msg("job cancel requested")
	return nil
}

// ownedBy reports whether user may act on a job of owner. An empty user is
// not filtered.
func ownedBy(owner, user string) bool { return user == "" || owner == user }

func (r *Runner) pollCancels(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	if len(ids) == 0 {
		return
	}

	cancelled, err := r.deps.Cancels.Cancelled(ctx, ids)
	if err != nil {
		log.Debug().Err(err).Msg("cancel poll failed")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range cancelled {
		if t, ok := r.running[id]; ok && c {
			t.cancel()
			log.Info().Str("job_id", id).Msg("job cancelled (detected via Redis)")
		}
	}
}

// Wait blocks until the job running here finishes or ctx is done. Unknown
// or already finished jobs return at once.
func (r *Runner) Wait(ctx context.Context, id string) error {
	r.mu.Lock()
	t, ok := r.running[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Artifact returns the result of a completed job. Handles dropped from
// memory are reloaded from storage; compare results are rebuilt from the
// record's summary.
func (r *Runner) Artifact(ctx context.Context, id string) (*Artifact, error) {
	now := r.now()
	r.mu.Lock()
	a, ok := r.artifacts[id]
	if ok && a.expired(now) {
		delete(r.artifacts, id)
		ok = false
	}
	r.mu.Unlock()
	if ok {
		return a, nil
	}

	rec, found, err := r.deps.Records.Get(ctx, id)
	if err != nil {
		return nil, pdf.WrapIO("job store", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	if rec.Status != store.StatusCompleted {
		return nil, ErrNotReady
	}

	a = &Artifact{
		JobID:     rec.ID,
		UserID:    rec.UserID,
		Type:      Type(rec.JobType),
		Key:       rec.OutputFile,
		Notice:    rec.Notice,
		CreatedAt: rec.UpdatedAt,
		ExpiresAt: now.Add(r.opts.ArtifactTTL),
	}
	switch {
	case a.Type == TypeCompare:
		a.ContentType = "application/json"
		a.Differences = differencesFrom(rec.Summary)
	case rec.OutputFile == "" || r.deps.Storage == nil:
		return nil, ErrNotFound
	default:
		data, err := r.deps.Storage.Get(ctx, rec.OutputFile)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, pdf.WrapIO("artifact storage", err)
		}
		a.Data = data
		a.ContentType = "application/pdf"
	}

	r.mu.Lock()
	r.artifacts[id] = a
	r.mu.Unlock()
	return a, nil
}

func differencesFrom(summary map[string]interface{}) []string {
	raw, _ := summary["differences"].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Release drops the artifact handle and deletes the stored copy. A
// non-empty user must own the job; other users get ErrNotFound and nothing
// is touched.
func (r *Runner) Release(ctx context.Context, id, user string) error {
	r.mu.Lock()
	a, ok := r.artifacts[id]
	if ok && !ownedBy(a.UserID, user) {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.artifacts, id)
	r.mu.Unlock()

	key := ""
	if ok {
		key = a.Key
	} else {
		rec, found, err := r.deps.Records.Get(ctx, id)
		if err != nil {
			return pdf.WrapIO("job store", err)
		}
		if !found || !ownedBy(rec.UserID, user) {
			return ErrNotFound
		}
		if rec.Status != store.StatusCompleted {
			return ErrNotReady
		}
		key = rec.OutputFile
	}
	if key != "" && r.deps.Storage != nil {
		if err := r.deps.Storage.Delete(ctx, key); err != nil {
			metrics.IncStoreError("artifacts")
			return pdf.WrapIO("artifact storage", err)
		}
	}
	log.Info().Str("job_id", id).Str("key", key).Msg("artifact released")
	return nil
}

// CleanupExpired drops in-memory handles whose TTL has passed and returns
// how many were dropped. Stored copies stay until released.
func (r *Runner) CleanupExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, a := range r.artifacts {
		if a.expired(now) {
			delete(r.artifacts, id)
			n++
		}
	}
	return n
}

// Running returns the number of jobs executing on this instance.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first the remaining jobs are cancelled and ctx's error is returned.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stopOnce.Do(func() { close(r.stop) })
	r.loops.Wait()

	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	r.mu.Lock()
	for _, t := range r.running {
		t.cancel()
	}
	r.mu.Unlock()
	<-done
	return ctx.Err()
}
