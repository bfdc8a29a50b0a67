package export

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/nodepack/internal/archive"
	"github.com/tingly-dev/nodepack/internal/repo"
)

// Result describes a completed export
type Result struct {
	ID       string
	Entries  int // manifest included
	Bytes    int64
	Duration time.Duration
}

// Stats is reported to the Recorder after every export attempt
type Stats struct {
	Format   archive.Format
	NodeOnly bool
	Kind     string // see Kind
	Entries  int
	Bytes    int64
	Duration time.Duration
}

// Recorder receives export statistics
type Recorder interface {
	RecordExport(ctx context.Context, s Stats)
}

// Exporter runs the export pipeline: validate, walk, assemble, write
type Exporter struct {
	store       repo.Store
	validator   *Validator
	assembler   *Assembler
	inlineLimit int64
	timeout     time.Duration
	recorder    Recorder
	newID       func() string
}

// ExporterOption defines a functional option for Exporter configuration
type ExporterOption func(*Exporter)

// WithInlineLimit sets the binary size above which content is streamed
func WithInlineLimit(n int64) ExporterOption {
	return func(e *Exporter) {
		e.inlineLimit = n
	}
}

// WithTimeout bounds every export; zero disables the bound
func WithTimeout(d time.Duration) ExporterOption {
	return func(e *Exporter) {
		e.timeout = d
	}
}

func WithRecorder(r Recorder) ExporterOption {
	return func(e *Exporter) {
		e.recorder = r
	}
}

// WithIDFunc replaces the manifest id generator
func WithIDFunc(fn func() string) ExporterOption {
	return func(e *Exporter) {
		e.newID = fn
	}
}

func NewExporter(store repo.Store, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		store:       store,
		validator:   NewValidator(store),
		assembler:   NewAssembler(store),
		inlineLimit: 64 * 1024,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate resolves the requested path, see Validator
func (e *Exporter) Validate(ctx context.Context, p string) (*repo.Node, error) {
	return e.validator.Validate(ctx, p)
}

// Export validates p and writes its archive to w. Nothing is written when
// validation or option checks fail. Once bytes are written a failure cannot
// retract them; the export fails as a whole.
func (e *Exporter) Export(ctx context.Context, p string, opts Options, w io.Writer) (*Result, error) {
	node, err := e.Validate(ctx, p)
	if err != nil {
		opts.RootPath = p
		e.record(ctx, opts, err, nil, 0)
		return nil, err
	}
	return e.ExportNode(ctx, node, opts, w)
}

// ExportNode exports an already validated node
func (e *Exporter) ExportNode(ctx context.Context, node *repo.Node, opts Options, w io.Writer) (*Result, error) {
	start := time.Now()
	opts.RootPath = node.Path
	opts, err := opts.Normalize()
	if err != nil {
		e.record(ctx, opts, err, nil, 0)
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	aw, err := archive.NewWriter(w, opts.Format, archive.WithInlineLimit(e.inlineLimit))
	if err != nil {
		err = classify(err)
		e.record(ctx, opts, err, nil, time.Since(start))
		return nil, err
	}

	id := e.newID()
	walker := NewWalker(e.store, opts.Exclude)
	err = e.assembler.Assemble(ctx, walker.Walk(ctx, node, opts.NodeOnly), opts, id, aw)

	result := &Result{
		ID:       id,
		Entries:  aw.Entries(),
		Bytes:    aw.BytesWritten(),
		Duration: time.Since(start),
	}
	e.record(ctx, opts, err, result, result.Duration)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Exporter) record(ctx context.Context, opts Options, err error, result *Result, d time.Duration) {
	fields := logrus.Fields{
		"root_path":  opts.RootPath,
		"mount_path": opts.MountPath,
		"node_only":  opts.NodeOnly,
		"format":     opts.Format,
		"duration":   d,
	}
	stats := Stats{Format: opts.Format, NodeOnly: opts.NodeOnly, Kind: Kind(err), Duration: d}
	if result != nil {
		fields["id"] = result.ID
		fields["entries"] = result.Entries
		fields["bytes"] = result.Bytes
		stats.Entries = result.Entries
		stats.Bytes = result.Bytes
	}

	entry := logrus.WithFields(fields)
	switch {
	case err == nil:
		entry.Info("Export completed")
	case errors.Is(err, ErrStructural):
		entry.WithError(err).Error("Export aborted: repository structure defect")
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidOptions):
		entry.WithError(err).Debug("Export rejected")
	default:
		entry.WithError(err).Warn("Export failed")
	}

	if e.recorder != nil {
		e.recorder.RecordExport(context.WithoutCancel(ctx), stats)
	}
}
