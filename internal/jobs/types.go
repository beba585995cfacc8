package jobs

import (
	"errors"
	"time"

	"github.com/local/pdfsuite/internal/ops"
	"github.com/local/pdfsuite/internal/pdf"
)

// Type is the job_type stored on a record. The set is closed and matches the
// operation names one to one.
type Type string

const (
	TypeMerge       Type = "merge"
	TypeSplit       Type = "split"
	TypeReorder     Type = "reorder"
	TypeRotate      Type = "rotate"
	TypeCrop        Type = "crop"
	TypeWatermark   Type = "add_watermark"
	TypePageNumbers Type = "add_page_numbers"
	TypeSign        Type = "sign"
	TypeEditText    Type = "edit_text"
	TypeCompress    Type = "compress"
	TypeRepair      Type = "repair"
	TypeCompare     Type = "compare"
	TypeDeletePages Type = "delete_pages"
	TypeSetMetadata Type = "set_metadata"
)

// ParseType rejects anything that is not a known operation.
func ParseType(s string) (Type, error) {
	op, err := ops.ParseOperation(s)
	if err != nil {
		return "", err
	}
	return TypeOf(op), nil
}

func TypeOf(op ops.Operation) Type { return Type(op.String()) }

// Operation returns the transform t runs.
func (t Type) Operation() (ops.Operation, error) { return ops.ParseOperation(string(t)) }

var (
	ErrNotFound    = errors.New("job not found")
	ErrNotReady    = errors.New("job has no artifact yet")
	ErrFinished    = errors.New("job already finished")
	ErrTooManyJobs = errors.New("too many jobs in flight for user")
	ErrClosed      = errors.New("runner is shut down")
)

// Submission is one job request.
type Submission struct {
	UserID     string
	InputNames []string
	Inputs     [][]byte
	Params     ops.Params
	Password   string
}

func (s Submission) validate() error {
	if s.UserID == "" {
		return pdf.Validationf("user id is required")
	}
	return ops.Validate(ops.Request{Inputs: s.Inputs, Params: s.Params, Password: s.Password})
}

// Artifact is the in-memory result handle of a finished job. Release it
// when done; otherwise the janitor drops it after its TTL. Data is nil for
// compare jobs, which only carry Differences.
type Artifact struct {
	JobID       string
	UserID      string
	Type        Type
	Key         string
	Data        []byte
	ContentType string
	Differences []string
	// Notice is set when a record or storage write failed after the
	// document itself was produced.
	Notice    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (a *Artifact) Size() int { return len(a.Data) }

func (a *Artifact) expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}
