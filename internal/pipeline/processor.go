// Package pipeline runs chip extraction over many scenes: load the bundle,
// cut the chip, write it out and catalog it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/star/goeschip/internal/chip"
	"github.com/star/goeschip/internal/metrics"
	"github.com/star/goeschip/internal/output"
	"github.com/star/goeschip/internal/scene"
)

// Job asks for one chip from the scene bundle in Dir.
type Job struct {
	Dir    string
	Center chip.GeoPoint
	Buffer int
}

// Result is a successfully processed job.
type Result struct {
	Job     Job
	Chip    *chip.Chip
	Written output.Written
}

// StageError records which step of processing a scene failed.
type StageError struct {
	Dir   string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("scene %s: %s: %v", e.Dir, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Reason returns a short label for the failure, used as a metric label.
func (e *StageError) Reason() string {
	switch {
	case errors.Is(e.Err, scene.ErrNotBundle):
		return "not_bundle"
	case errors.Is(e.Err, chip.ErrTargetNotVisible):
		return "not_visible"
	case errors.Is(e.Err, chip.ErrEmptyChip):
		return "empty"
	case errors.Is(e.Err, chip.ErrInvalidBuffer):
		return "invalid_buffer"
	}
	return e.Stage
}

// Processor handles a single job. It is safe for concurrent use when its
// Catalog is (output.Catalog is).
type Processor struct {
	fsys    fs.FS
	out     *output.Dir
	catalog *output.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewProcessor creates a Processor reading bundles from fsys. catalog may
// be nil to skip cataloging.
func NewProcessor(fsys fs.FS, out *output.Dir, catalog *output.Catalog, logger *slog.Logger) *Processor {
	return &Processor{
		fsys:    fsys,
		out:     out,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// Process loads, extracts, writes and catalogs one chip. Failures are
// returned as *StageError.
func (p *Processor) Process(ctx context.Context, job Job) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &StageError{Dir: job.Dir, Stage: "cancelled", Err: err}
	}

	start := time.Now()

	s, err := scene.Load(p.fsys, job.Dir)
	if err != nil {
		return Result{}, &StageError{Dir: job.Dir, Stage: "load", Err: err}
	}

	c, err := chip.Extract(s, job.Center, job.Buffer)
	if err != nil {
		return Result{}, &StageError{Dir: job.Dir, Stage: "extract", Err: err}
	}

	w, err := p.out.Write(c)
	if err != nil {
		return Result{}, &StageError{Dir: job.Dir, Stage: "write", Err: err}
	}

	if p.catalog != nil {
		p.catalog.Append(output.NewRecord(c, scene.Platform(s.Name), w, p.now()))
	}

	metrics.RecordChip(c.Window.Truncated, time.Since(start))

	p.logger.Debug("chip written",
		"scene", job.Dir,
		"tag", w.Tag,
		"row", c.RowIndex,
		"col", c.ColIndex,
		"rows", c.Data.Rows,
		"cols", c.Data.Cols,
		"clamped", c.Clamped,
		"truncated", c.Window.Truncated,
	)
	if c.Clamped {
		p.logger.Warn("target outside scene axes, using edge pixel",
			"scene", job.Dir,
			"scan_x", c.ScanX,
			"scan_y", c.ScanY,
		)
	}

	return Result{Job: job, Chip: c, Written: w}, nil
}
