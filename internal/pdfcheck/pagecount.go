// Package pdfcheck re-reads serialized output with an independent parser
// (pdfcpu) before it is handed to storage.
package pdfcheck

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsuite/internal/pdf"
)

// Checker validates PDF bytes.
type Checker struct {
	conf *model.Configuration
}

// New returns a Checker using pdfcpu's relaxed validation.
func New() *Checker {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Checker{conf: conf}
}

// PageCount returns the number of pages pdfcpu sees in data.
func (c *Checker) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), c.conf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// Check validates data and, when wantPages is positive, that it has exactly
// that many pages. Failures are parse errors: the output is not a document
// another reader accepts.
func (c *Checker) Check(data []byte, wantPages int) error {
	if err := api.Validate(bytes.NewReader(data), c.conf); err != nil {
		log.Warn().Err(err).Int("size", len(data)).Msg("output failed independent validation")
		return &pdf.Error{Kind: pdf.KindParse, Msg: "output failed validation", Err: err}
	}
	if wantPages <= 0 {
		return nil
	}
	n, err := c.PageCount(data)
	if err != nil {
		return &pdf.Error{Kind: pdf.KindParse, Msg: "output failed validation", Err: err}
	}
	if n != wantPages {
		return pdf.Parsef("output has %d pages, expected %d", n, wantPages)
	}
	return nil
}
