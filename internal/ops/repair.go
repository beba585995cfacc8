package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
)

// RepairOptions has no parameters.
type RepairOptions struct{}

func (RepairOptions) Operation() Operation { return OpRepair }
func (RepairOptions) validate() error      { return nil }

// RepairReport lists 1-based page numbers by outcome.
type RepairReport struct {
	Recovered []int
	Failed    []int
}

const corrupted = "file may be severely corrupted"

// Repair loads data as leniently as possible and rebuilds it page by page
// into a new document, so one unreadable page does not cost the others.
// Pages are renumbered and the output carries no /Encrypt, so an encrypted
// source must be opened with its password; without one Repair fails with a
// capability error.
func Repair(ctx context.Context, data []byte, password string, rep progress.Reporter) (*pdf.Document, RepairReport, error) {
	t := progress.Track(rep)
	var report RepairReport
	src, err := pdf.LoadContext(ctx, data, pdf.LoadOptions{Password: password, Repair: true})
	if err != nil {
		if ctx.Err() != nil {
			return nil, report, ctx.Err()
		}
		if !pdf.IsKind(err, pdf.KindParse) || strings.Contains(err.Error(), corrupted) {
			return nil, report, err
		}
		return nil, report, &pdf.Error{Kind: pdf.KindParse, Msg: corrupted, Err: err}
	}
	t.Progress(bandLoad)

	out := pdf.NewDocument()
	out.Version = src.Version
	pdf.CopyInfo(src, out)
	for i := range src.Pages {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		if err := clonePageSafely(src, i, out); err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("repair: page dropped")
			report.Failed = append(report.Failed, i+1)
		} else {
			report.Recovered = append(report.Recovered, i+1)
		}
		t.Step(i+1, src.PageCount(), bandLoad, bandTransform)
	}
	if len(report.Recovered) == 0 {
		return nil, report, pdf.Parsef("%s: no page could be recovered", corrupted)
	}
	return out, report, nil
}

func clonePageSafely(src *pdf.Document, i int, dst *pdf.Document) (err error) {
	before := dst.PageCount()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", i+1, r)
		}
		if err != nil && dst.PageCount() > before {
			dst.Pages = dst.Pages[:before]
		}
	}()
	_, err = pdf.ClonePage(src, i, dst)
	return err
}
