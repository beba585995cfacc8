package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfsuite/internal/metrics"
	"github.com/local/pdfsuite/internal/progress"
)

// Reporter mirrors a job's progress into its record. Percentages are scaled
// into [0, Ceiling] so that work done after the operation (persisting the
// artifact) still moves the bar; Completed always records 100.
//
// Write failures never interrupt the job: they are logged, counted and kept
// for Err.
type Reporter struct {
	ctx     context.Context
	store   RecordWriter
	jobID   string
	ceiling int

	mu  sync.Mutex
	err error
}

// RecordWriter is the subset of RedisStore a Reporter writes through.
type RecordWriter interface {
	SetProgress(ctx context.Context, jobID string, percent int) error
	Complete(ctx context.Context, jobID, outputFile string, summary map[string]interface{}) error
	Fail(ctx context.Context, jobID, message string) error
}

// NewReporter returns a Reporter for jobID. ceiling outside (0,100] means 100.
func NewReporter(ctx context.Context, s RecordWriter, jobID string, ceiling int) *Reporter {
	if ceiling <= 0 || ceiling > 100 {
		ceiling = 100
	}
	return &Reporter{ctx: context.WithoutCancel(ctx), store: s, jobID: jobID, ceiling: ceiling}
}

var _ progress.Reporter = (*Reporter)(nil)

func (r *Reporter) Progress(p int) {
	r.record(r.store.SetProgress(r.ctx, r.jobID, p*r.ceiling/100))
}

// Completed stores the summary. A string "output_file" entry becomes the
// record's output file.
func (r *Reporter) Completed(s progress.Summary) {
	out, _ := s["output_file"].(string)
	r.record(r.store.Complete(r.ctx, r.jobID, out, s))
}

func (r *Reporter) Failed(err error) {
	msg := "failed"
	if err != nil {
		msg = err.Error()
	}
	r.record(r.store.Fail(r.ctx, r.jobID, msg))
}

func (r *Reporter) record(err error) {
	if err == nil {
		return
	}
	metrics.IncStoreError("records")
	log.Warn().Err(err).Str("job_id", r.jobID).Msg("job record update failed")
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

// Err returns the first write failure, if any.
func (r *Reporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
