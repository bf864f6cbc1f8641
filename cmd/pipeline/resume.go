package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/airframesio/report-archiver/cmd/compressors"
	"github.com/airframesio/report-archiver/cmd/formatters"
	"github.com/airframesio/report-archiver/cmd/locks"
	"github.com/airframesio/report-archiver/cmd/report"
)

// ResumeResult summarises a resumed purge
type ResumeResult struct {
	InvocationID string
	ArchiveKey   string
	Archived     int
	Remaining    int
	Purged       int
}

// Resume finishes an interrupted purge from its archive. Only identifiers
// listed in the archive and still present in the source are deleted.
func (p *Pipeline) Resume(ctx context.Context, kind report.Kind, archiveKey string) (*ResumeResult, error) {
	if kind != report.KindWorkPerformance {
		return nil, fmt.Errorf("%w: %s", ErrResumeUnsupported, kind)
	}
	if !strings.HasPrefix(path.Base(archiveKey), "backup_"+string(kind)+"_") {
		return nil, fmt.Errorf("%w: archive %s does not belong to %s", ErrInvalidRequest, archiveKey, kind)
	}

	c := &cycle{p: p, id: uuid.NewString(), kind: kind, state: StateIdle}

	lease, err := p.locker.Acquire(ctx, locks.CloseCycleKey(string(kind)))
	if err != nil {
		if errors.Is(err, locks.ErrLocked) {
			return nil, fmt.Errorf("%w: %w", ErrCycleInProgress, err)
		}
		return nil, err
	}
	defer lease.Release()

	ids, err := p.archivedIDs(ctx, archiveKey)
	if err != nil {
		return nil, c.fail(err)
	}

	remaining, err := p.existingIDs(ctx, kind, ids)
	if err != nil {
		return nil, c.fail(fmt.Errorf("%w: %w", ErrDataSource, err))
	}

	p.logger.Info(fmt.Sprintf("[%s] Resuming purge from %s: %d archived, %d still present",
		c.id, archiveKey, len(ids), len(remaining)))

	result := &ResumeResult{
		InvocationID: c.id,
		ArchiveKey:   archiveKey,
		Archived:     len(ids),
		Remaining:    len(remaining),
	}
	if len(remaining) == 0 {
		c.emit(StateDone, "nothing left to purge", nil)
		return result, nil
	}

	purged, err := p.purge(ctx, c, lease, kind, archiveKey, remaining)
	result.Purged = purged
	if err != nil {
		return result, c.fail(err)
	}

	c.emit(StateDone, "", func(e *Event) { e.ArchiveKey = archiveKey })
	p.logger.Info(fmt.Sprintf("✅ [%s] Resumed purge completed: %d rows purged", c.id, purged))
	return result, nil
}

// existingIDs looks ids up one batch at a time so no query binds more
// parameters than a delete batch does
func (p *Pipeline) existingIDs(ctx context.Context, kind report.Kind, ids []int64) ([]int64, error) {
	var existing []int64
	for _, batch := range chunk(ids, p.batchSize()) {
		found, err := p.source.ExistingIDs(ctx, kind, batch)
		if err != nil {
			return nil, err
		}
		existing = append(existing, found...)
	}
	return existing, nil
}

// archivedIDs reads the session identifier column back from an archive
func (p *Pipeline) archivedIDs(ctx context.Context, archiveKey string) ([]int64, error) {
	body, err := p.store.Get(ctx, archiveKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveRead, err)
	}
	defer body.Close()

	compressor := compressors.ForKey(archiveKey)
	reader, err := compressor.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveRead, err)
	}
	defer reader.Close()

	ext := path.Ext(compressors.StripExtension(archiveKey, compressor))
	records, err := formatters.ReadRecords(reader, ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveRead, err)
	}
	if len(records) < report.HeaderRowCount {
		return nil, fmt.Errorf("%w: archive has no header", ErrArchiveRead)
	}

	ids := make([]int64, 0, len(records)-report.HeaderRowCount)
	for i, record := range records[report.HeaderRowCount:] {
		if len(record) <= report.WorkPerformanceIDColumn {
			return nil, fmt.Errorf("%w: row %d has no identifier", ErrArchiveRead, i+1)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(record[report.WorkPerformanceIDColumn]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrArchiveRead, i+1, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
