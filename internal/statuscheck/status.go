// Package statuscheck reports readiness of the service's dependencies.
package statuscheck

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/pdfcheck"
	"github.com/local/pdfsuite/internal/preview"
)

// Pinger is anything with a cheap reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the Checker. Gateway is optional; a nil gateway is
// reported as not configured without failing readiness.
type Options struct {
	Redis       Pinger
	Storage     Pinger
	StorageName string
	Gateway     Pinger
	Timeout     time.Duration
}

type Checker struct {
	opts Options

	once   sync.Once
	sample []byte
	err    error
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis     Status `json:"redis"`
	Storage   Status `json:"storage"`
	Gateway   Status `json:"gateway"`
	Renderer  Status `json:"renderer"`
	Validator Status `json:"validator"`
}

// Healthy reports whether every required dependency is up.
func (s Summary) Healthy() bool {
	return s.Redis.OK && s.Storage.OK && s.Renderer.OK && s.Validator.OK
}

func New(opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Checker{opts: opts}
}

// Summary returns the current status snapshot. Checks run concurrently.
func (c *Checker) Summary(ctx context.Context) Summary {
	var (
		s  Summary
		wg sync.WaitGroup
	)
	run := func(dst *Status, f func() Status) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			*dst = f()
		}()
	}
	run(&s.Redis, func() Status { return c.ping(ctx, c.opts.Redis, "Connected") })
	run(&s.Storage, func() Status { return c.ping(ctx, c.opts.Storage, "Connected ("+c.storageName()+")") })
	run(&s.Gateway, func() Status { return c.checkGateway(ctx) })
	run(&s.Renderer, c.checkRenderer)
	run(&s.Validator, c.checkValidator)
	wg.Wait()
	return s
}

func (c *Checker) storageName() string {
	if c.opts.StorageName == "" {
		return "local"
	}
	return c.opts.StorageName
}

func (c *Checker) ping(ctx context.Context, p Pinger, okMsg string) Status {
	if p == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: okMsg}
}

func (c *Checker) checkGateway(ctx context.Context) Status {
	if c.opts.Gateway == nil {
		return Status{OK: false, Message: "Not configured"}
	}
	return c.ping(ctx, c.opts.Gateway, "Available")
}

// samplePDF is a one-page document produced by our own serializer, used to
// exercise the renderer and the independent validator.
func (c *Checker) samplePDF() ([]byte, error) {
	c.once.Do(func() {
		doc := pdf.NewDocument()
		doc.AddBlankPage(pdf.NewRect(0, 0, 72, 72))
		c.sample, c.err = pdf.Serialize(doc, pdf.WriteOptions{CompressStreams: true})
	})
	return c.sample, c.err
}

func (c *Checker) checkRenderer() Status {
	data, err := c.samplePDF()
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if _, err := preview.Render(data, preview.Options{Page: 1, DPI: 36}); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

func (c *Checker) checkValidator() Status {
	data, err := c.samplePDF()
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if err := pdfcheck.New().Check(data, 1); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
