// Package pipeline generates report artifacts and runs the archive-then-purge
// close cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/airframesio/report-archiver/cmd/compressors"
	"github.com/airframesio/report-archiver/cmd/formatters"
	"github.com/airframesio/report-archiver/cmd/locks"
	"github.com/airframesio/report-archiver/cmd/report"
	"github.com/airframesio/report-archiver/cmd/source"
	"github.com/airframesio/report-archiver/cmd/storage"
)

const (
	DefaultMaxMonths      = 6
	DefaultBatchSize      = 1000
	DefaultPurgeTimeout   = 5 * time.Minute
	DefaultArchiveTimeout = 2 * time.Minute
)

// MaxBatchSize keeps one delete batch well under the 65535 bind parameters
// PostgreSQL accepts per statement
const MaxBatchSize = 10000

// Options configures limits and archive layout
type Options struct {
	MaxMonths        int
	BatchSize        int
	PurgeTimeout     time.Duration
	ArchiveTimeout   time.Duration
	Compression      string
	CompressionLevel int
	PathTemplate     string
}

// Artifact is a rendered report file
type Artifact struct {
	Body        []byte
	ContentType string
	Filename    string
	Extension   string
}

// Result is the outcome of an export or a close cycle
type Result struct {
	InvocationID string
	Artifact     Artifact
	Table        *report.Table
	RowIDs       []int64
	ArchiveKey   string
	Purged       int

	// Skipped is set when a close cycle found no rows to archive
	Skipped bool
}

// Pipeline composes the data source, serializer, archive store and lock
type Pipeline struct {
	source source.Source
	store  storage.ObjectStore
	locker locks.Locker
	logger *slog.Logger

	observer     Observer
	now          func() time.Time
	compressor   compressors.Compressor
	pathTemplate *storage.PathTemplate

	mu   sync.RWMutex
	opts Options
}

// New validates opts and applies defaults
func New(src source.Source, store storage.ObjectStore, locker locks.Locker, logger *slog.Logger, opts Options) (*Pipeline, error) {
	if opts.MaxMonths <= 0 {
		opts.MaxMonths = DefaultMaxMonths
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	opts.BatchSize = min(opts.BatchSize, MaxBatchSize)
	if opts.PurgeTimeout <= 0 {
		opts.PurgeTimeout = DefaultPurgeTimeout
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = DefaultArchiveTimeout
	}

	compressor, err := compressors.GetCompressor(opts.Compression)
	if err != nil {
		return nil, err
	}
	if opts.CompressionLevel <= 0 {
		opts.CompressionLevel = compressor.DefaultLevel()
	}
	if !storage.IsValidPathTemplate(opts.PathTemplate) {
		return nil, fmt.Errorf("invalid archive path template: %q", opts.PathTemplate)
	}
	if locker == nil {
		locker = locks.NewLocalLocker()
	}

	return &Pipeline{
		source:       src,
		store:        store,
		locker:       locker,
		logger:       logger,
		observer:     nopObserver{},
		now:          time.Now,
		compressor:   compressor,
		pathTemplate: storage.NewPathTemplate(opts.PathTemplate),
		opts:         opts,
	}, nil
}

// SetObserver replaces the event observer
func (p *Pipeline) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	p.observer = o
}

// SetClock replaces the time source used for archive names
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// UpdateLimits swaps the span limit and batch size of a running pipeline
func (p *Pipeline) UpdateLimits(maxMonths, batchSize int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if maxMonths > 0 {
		p.opts.MaxMonths = maxMonths
	}
	if batchSize > 0 {
		p.opts.BatchSize = min(batchSize, MaxBatchSize)
	}
}

// MaxMonths returns the current span limit
func (p *Pipeline) MaxMonths() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opts.MaxMonths
}

func (p *Pipeline) batchSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opts.BatchSize
}

// Run exports req and closes the cycle when req asks for it
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.CloseCycle {
		return p.CloseCycle(ctx, req)
	}
	return p.Generate(ctx, req)
}

// Generate renders the report without side effects. Repeated calls over
// unchanged data return byte-identical artifacts.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(p.MaxMonths()); err != nil {
		return nil, err
	}
	return p.generate(ctx, req, uuid.NewString())
}

func (p *Pipeline) generate(ctx context.Context, req Request, invocationID string) (*Result, error) {
	formatter, err := formatters.GetFormatter(req.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	var (
		table *report.Table
		ids   []int64
	)

	switch req.Kind {
	case report.KindSatisfaction:
		categories, rows, ferr := p.fetchFeedback(ctx, req.Range)
		if ferr != nil {
			return nil, ferr
		}

		table, err = report.BuildSatisfactionTable(rows, categories, req.Range)
		ids = make([]int64, len(rows))
		for i, f := range rows {
			ids[i] = f.ID
		}

	case report.KindWorkPerformance:
		rows, lerr := p.source.ListCheckSessions(ctx, req.Range)
		if lerr != nil {
			return nil, fmt.Errorf("%w: %w", ErrDataSource, lerr)
		}

		table, err = report.BuildWorkPerformanceTable(rows, req.Range)
		ids = make([]int64, len(rows))
		for i, s := range rows {
			ids[i] = s.ID
		}

	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, report.ErrUnknownKind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	body, err := formatter.Format(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	p.logger.Debug(fmt.Sprintf("[%s] Rendered %s report: %d rows, %d bytes", invocationID, req.Kind, len(ids), len(body)))

	return &Result{
		InvocationID: invocationID,
		Artifact: Artifact{
			Body:        body,
			ContentType: formatter.MIMEType(),
			Filename:    report.DownloadFilename(req.Kind.DownloadPrefix(), req.Range, formatter.Extension()),
			Extension:   formatter.Extension(),
		},
		Table:  table,
		RowIDs: ids,
	}, nil
}

// Summary computes dashboard statistics over satisfaction feedback
func (p *Pipeline) Summary(ctx context.Context, rng report.DateRange) (report.Summary, error) {
	if err := rng.Validate(p.MaxMonths()); err != nil {
		if errors.Is(err, report.ErrRangeTooLong) {
			return report.Summary{}, fmt.Errorf("%w: %w", ErrInvalidRequest, &SpanError{MaxMonths: p.MaxMonths()})
		}
		return report.Summary{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	categories, rows, err := p.fetchFeedback(ctx, rng)
	if err != nil {
		return report.Summary{}, err
	}
	return report.SummarizeSatisfaction(rows, categories), nil
}

// fetchFeedback loads categories and feedback rows concurrently. Neither is
// used until both have arrived.
func (p *Pipeline) fetchFeedback(ctx context.Context, rng report.DateRange) ([]report.CategoryDefinition, []report.Feedback, error) {
	var (
		categories []report.CategoryDefinition
		rows       []report.Feedback
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = p.source.ListCategories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = p.source.ListFeedbacks(gctx, rng)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDataSource, err)
	}
	return report.SortCategories(categories), rows, nil
}

// cycle tracks one close-cycle run for event reporting
type cycle struct {
	p     *Pipeline
	id    string
	kind  report.Kind
	state State
}

func (c *cycle) emit(state State, message string, mutate func(*Event)) {
	c.state = state
	e := Event{
		InvocationID: c.id,
		Kind:         c.kind,
		State:        state,
		Message:      message,
		Time:         c.p.now(),
	}
	if mutate != nil {
		mutate(&e)
	}
	c.p.observer.Observe(e)
}

func (c *cycle) fail(err error) error {
	c.p.logger.Error(fmt.Sprintf("❌ [%s] Close-cycle for %s failed in %s: %v", c.id, c.kind, c.state, err))
	c.emit(StateFailed, err.Error(), nil)
	return err
}

// CloseCycle renders the report, archives it and purges the source rows.
// Nothing is deleted unless the archive write was acknowledged. The request
// context is honored up to the archive step; archive and purge then run to
// completion under their own timeouts.
func (p *Pipeline) CloseCycle(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(p.MaxMonths()); err != nil {
		return nil, err
	}

	c := &cycle{p: p, id: uuid.NewString(), kind: req.Kind, state: StateIdle}

	lease, err := p.locker.Acquire(ctx, locks.CloseCycleKey(string(req.Kind)))
	if err != nil {
		if errors.Is(err, locks.ErrLocked) {
			return nil, fmt.Errorf("%w: %w", ErrCycleInProgress, err)
		}
		return nil, c.fail(err)
	}
	defer lease.Release()

	p.logger.Info(fmt.Sprintf("[%s] Starting close-cycle for %s (%s to %s)",
		c.id, req.Kind, req.Range.Start.Format(time.RFC3339), req.Range.End.Format(time.RFC3339)))

	c.emit(StateGenerating, "", nil)
	result, err := p.generate(ctx, req, c.id)
	if err != nil {
		return nil, c.fail(err)
	}

	if len(result.RowIDs) == 0 {
		p.logger.Info(fmt.Sprintf("⚠️  [%s] No %s rows in range, skipping archive and purge", c.id, req.Kind))
		result.Skipped = true
		c.emit(StateDone, "no rows to archive", nil)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, c.fail(err)
	}
	if err := lease.Err(); err != nil {
		return nil, c.fail(fmt.Errorf("%w: %w", ErrCycleInProgress, err))
	}

	c.emit(StateArchiving, "", nil)
	key, err := p.archive(context.WithoutCancel(ctx), req, result)
	if err != nil {
		return nil, c.fail(err)
	}
	result.ArchiveKey = key
	p.logger.Info(fmt.Sprintf("✅ [%s] Archived %d rows to %s", c.id, len(result.RowIDs), p.store.Location(key)))

	purged, err := p.purge(ctx, c, lease, req.Kind, key, result.RowIDs)
	result.Purged = purged
	if err != nil {
		return nil, c.fail(err)
	}

	c.emit(StateDone, "", func(e *Event) { e.ArchiveKey = key })
	p.logger.Info(fmt.Sprintf("✅ [%s] Close-cycle for %s completed: %d rows purged", c.id, req.Kind, purged))
	return result, nil
}

// archive compresses the artifact and writes it once
func (p *Pipeline) archive(ctx context.Context, req Request, result *Result) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ArchiveTimeout)
	defer cancel()

	body, err := p.compressor.Compress(result.Artifact.Body, p.opts.CompressionLevel)
	if err != nil {
		return "", fmt.Errorf("%w: compress: %w", ErrArchiveWrite, err)
	}

	contentType := p.compressor.MIMEType()
	if contentType == "" {
		contentType = result.Artifact.ContentType
	}

	now := p.now()
	filename := report.ArchiveFilename(string(req.Kind), req.Range, now,
		result.Artifact.Extension+p.compressor.Extension())
	key := p.pathTemplate.Key(string(req.Kind), now.In(report.ReportZone), filename)

	if err := p.store.PutIfAbsent(ctx, key, body, contentType); err != nil {
		if errors.Is(err, storage.ErrObjectExists) {
			return "", fmt.Errorf("%w: %w", ErrArchiveConflict, err)
		}
		return "", fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}
	return key, nil
}

// purge deletes ids in fixed batches and stops at the first failure. A batch
// starts only while ctx is live and lease still owns the close-cycle key.
func (p *Pipeline) purge(ctx context.Context, c *cycle, lease locks.Lease, kind report.Kind, archiveKey string, ids []int64) (int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.PurgeTimeout)
	defer cancel()

	batches := chunk(ids, p.batchSize())
	c.emit(StatePurging, "", func(e *Event) {
		e.ArchiveKey = archiveKey
		e.BatchesTotal = len(batches)
	})

	purged := 0
	for i, batch := range batches {
		err := ctx.Err()
		if err == nil {
			err = lease.Err()
		}
		if err == nil {
			err = p.source.DeleteBatch(ctx, kind, batch)
		}
		if err != nil {
			return purged, &PurgeError{
				Completed:    i,
				Total:        len(batches),
				ArchiveKey:   archiveKey,
				RemainingIDs: flatten(batches[i:]),
				Err:          err,
			}
		}

		purged += len(batch)
		p.logger.Debug(fmt.Sprintf("[%s] Purged batch %d/%d (%d rows)", c.id, i+1, len(batches), len(batch)))
		c.emit(StatePurging, "", func(e *Event) {
			e.ArchiveKey = archiveKey
			e.BatchesCompleted = i + 1
			e.BatchesTotal = len(batches)
		})
	}
	return purged, nil
}

func chunk(ids []int64, size int) [][]int64 {
	var batches [][]int64
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}

func flatten(batches [][]int64) []int64 {
	var out []int64
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}
