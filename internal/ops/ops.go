// Package ops implements the document transform operations. Graph-level
// functions (Merge, Split, Rotate, ...) work on loaded documents and report
// progress; Run wraps one of them with loading, serialization and the
// terminal completed/failed event.
package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
)

// Operation identifies a transform.
type Operation int

const (
	OpMerge Operation = iota + 1
	OpSplit
	OpReorder
	OpRotate
	OpCrop
	OpWatermark
	OpPageNumbers
	OpSign
	OpEditText
	OpCompress
	OpRepair
	OpCompare
	OpDeletePages
	OpSetMetadata
)

var opNames = map[Operation]string{
	OpMerge:       "merge",
	OpSplit:       "split",
	OpReorder:     "reorder",
	OpRotate:      "rotate",
	OpCrop:        "crop",
	OpWatermark:   "add_watermark",
	OpPageNumbers: "add_page_numbers",
	OpSign:        "sign",
	OpEditText:    "edit_text",
	OpCompress:    "compress",
	OpRepair:      "repair",
	OpCompare:     "compare",
	OpDeletePages: "delete_pages",
	OpSetMetadata: "set_metadata",
}

func (o Operation) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// ParseOperation maps a job type name to an Operation.
func ParseOperation(s string) (Operation, error) {
	for op, name := range opNames {
		if name == s {
			return op, nil
		}
	}
	return 0, pdf.Validationf("unknown operation %q", s)
}

// Operations lists every operation in declaration order.
func Operations() []Operation {
	out := make([]Operation, 0, len(opNames))
	for op := OpMerge; op <= OpSetMetadata; op++ {
		out = append(out, op)
	}
	return out
}

// Params is the operation-specific input. The set of implementations is
// closed: one options type per Operation.
type Params interface {
	Operation() Operation
	validate() error
}

// Request is one invocation of an operation over raw input files.
type Request struct {
	Inputs   [][]byte
	Params   Params
	Password string
}

// Output is the success payload of Run.
type Output struct {
	Operation Operation
	// Doc is nil for compare.
	Doc *pdf.Document
	// PDF is the serialized Doc.
	PDF         []byte
	Differences []string
	Summary     progress.Summary
}

// DefaultWrite is used by every operation except compress.
var DefaultWrite = pdf.WriteOptions{CompressStreams: true}

// Progress bands shared by all operations.
const (
	bandLoad      = 10
	bandTransform = 90
)

// Run validates, loads, transforms and serializes, reporting progress on rep
// and ending with exactly one Completed or Failed.
func Run(ctx context.Context, req Request, rep progress.Reporter) (*Output, error) {
	t := progress.Track(rep)
	t.Progress(0)
	start := time.Now()
	out, err := run(ctx, req, t)
	if err != nil {
		if req.Params != nil {
			err = pdf.WithOp(req.Params.Operation().String(), err)
		}
		t.Failed(err)
		return nil, err
	}
	out.Summary["duration_ms"] = time.Since(start).Milliseconds()
	t.Completed(out.Summary)
	return out, nil
}

// Validate checks parameters and input count without touching the inputs.
func Validate(req Request) error {
	if req.Params == nil {
		return pdf.Validationf("no operation parameters")
	}
	if err := req.Params.validate(); err != nil {
		return err
	}
	return checkInputCount(req.Params.Operation(), len(req.Inputs))
}

func run(ctx context.Context, req Request, t *progress.Tracker) (*Output, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	op := req.Params.Operation()

	var inputBytes int64
	for _, in := range req.Inputs {
		inputBytes += int64(len(in))
	}
	out := &Output{Operation: op, Summary: progress.Summary{"operation": op.String(), "input_bytes": inputBytes}}
	write := DefaultWrite

	if op == OpRepair {
		doc, report, err := Repair(ctx, req.Inputs[0], req.Password, t)
		if err != nil {
			return nil, err
		}
		out.Doc = doc
		out.Summary["recovered_pages"] = report.Recovered
		out.Summary["failed_pages"] = report.Failed
		return finish(ctx, out, write, t)
	}

	docs, err := loadAll(ctx, req.Inputs, req.Password, t)
	if err != nil {
		return nil, err
	}

	switch p := req.Params.(type) {
	case MergeOptions:
		out.Doc, err = Merge(ctx, docs, t)
	case SplitOptions:
		var pages []int
		pages, err = ParsePageSelection(p.Pages, docs[0].PageCount())
		if err == nil {
			out.Doc, err = Split(ctx, docs[0], pages, t)
		}
	case DeletePagesOptions:
		var pages []int
		pages, err = ParsePageSelection(p.Pages, docs[0].PageCount())
		if err == nil {
			out.Doc, err = DeletePages(ctx, docs[0], pages, t)
		}
	case ReorderOptions:
		out.Doc, err = Reorder(ctx, docs[0], p.Order, t)
	case RotateOptions:
		var pages []int
		if p.Pages != "" {
			pages, err = ParsePageSelection(p.Pages, docs[0].PageCount())
		}
		if err == nil {
			err = Rotate(ctx, docs[0], p.Degrees, pages, t)
			out.Doc = docs[0]
		}
	case CropOptions:
		err = Crop(ctx, docs[0], p, t)
		out.Doc = docs[0]
	case WatermarkOptions:
		err = Watermark(ctx, docs[0], p, t)
		out.Doc = docs[0]
	case PageNumberOptions:
		err = AddPageNumbers(ctx, docs[0], p, t)
		out.Doc = docs[0]
	case SignOptions:
		var res SignResult
		res, err = Sign(ctx, docs[0], p, t)
		out.Doc = docs[0]
		out.Summary["fallback"] = res.Fallback
	case EditTextOptions:
		err = EditText(ctx, docs[0], p, t)
		out.Doc = docs[0]
	case CompressOptions:
		out.Doc, write, err = Compress(ctx, docs[0], p.Level, t)
		out.Summary["images_reencoded"] = false
	case MetadataOptions:
		SetMetadata(docs[0], p)
		out.Doc = docs[0]
	case CompareOptions:
		out.Differences = Compare(docs[0], docs[1])
		out.Summary["differences"] = out.Differences
		t.Progress(bandTransform)
		return out, nil
	default:
		return nil, pdf.Validationf("unsupported operation %s", op)
	}
	if err != nil {
		return nil, err
	}
	return finish(ctx, out, write, t)
}

func checkInputCount(op Operation, n int) error {
	switch op {
	case OpMerge:
		if n < 2 {
			return pdf.MinimumInputf("merge needs at least 2 documents, got %d", n)
		}
	case OpCompare:
		if n < 2 {
			return pdf.MinimumInputf("compare needs 2 documents, got %d", n)
		}
		if n > 2 {
			return pdf.Validationf("compare takes exactly 2 documents, got %d", n)
		}
	default:
		if n != 1 {
			return pdf.Validationf("%s takes exactly one document, got %d", op, n)
		}
	}
	return nil
}

// loadAll loads every input; any failure aborts the whole operation.
func loadAll(ctx context.Context, inputs [][]byte, password string, t *progress.Tracker) ([]*pdf.Document, error) {
	docs := make([]*pdf.Document, 0, len(inputs))
	for i, in := range inputs {
		doc, err := pdf.LoadContext(ctx, in, pdf.LoadOptions{Password: password})
		if err != nil {
			if len(inputs) > 1 {
				return nil, fmt.Errorf("input %d: %w", i+1, err)
			}
			return nil, err
		}
		docs = append(docs, doc)
		t.Step(i+1, len(inputs), 0, bandLoad)
	}
	return docs, nil
}

func finish(ctx context.Context, out *Output, write pdf.WriteOptions, t *progress.Tracker) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.Progress(bandTransform)
	b, err := pdf.Serialize(out.Doc, write)
	if err != nil {
		return nil, err
	}
	out.PDF = b
	out.Summary["pages"] = out.Doc.PageCount()
	out.Summary["output_bytes"] = len(b)
	if in, ok := out.Summary["input_bytes"].(int64); ok && in > 0 {
		out.Summary["size_change_percent"] = roundTo(100*(float64(len(b))-float64(in))/float64(in), 1)
	}
	return out, nil
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	if v < 0 {
		return -float64(int64(-v*p+0.5)) / p
	}
	return float64(int64(v*p+0.5)) / p
}
