// Package source reads report rows from the operational database and
// deletes them once they are archived.
package source

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/airframesio/report-archiver/cmd/report"
)

// Source is the data access surface the export pipeline depends on. Every
// list call issues one joined query per table.
type Source interface {
	ListCategories(ctx context.Context) ([]report.CategoryDefinition, error)
	ListFeedbacks(ctx context.Context, rng report.DateRange) ([]report.Feedback, error)
	ListCheckSessions(ctx context.Context, rng report.DateRange) ([]report.CheckSession, error)

	// ExistingIDs returns the subset of ids that still exist for kind. Callers
	// pass at most one purge batch of ids per call.
	ExistingIDs(ctx context.Context, kind report.Kind, ids []int64) ([]int64, error)

	// DeleteBatch removes one batch of rows. Child rows are removed before
	// their parents and the whole batch commits or rolls back together.
	DeleteBatch(ctx context.Context, kind report.Kind, ids []int64) error
}

// DecodeAnswers parses the feedback answers document. Values are either a
// bare number or an object with a rating field; keys that are not category
// IDs and values with no usable score are skipped.
func DecodeAnswers(raw []byte) (report.Scores, error) {
	scores := report.Scores{}
	if len(raw) == 0 {
		return scores, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	for key, value := range doc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		if score, ok := decodeScore(value); ok {
			scores[id] = score
		}
	}
	return scores, nil
}

func decodeScore(value json.RawMessage) (float64, bool) {
	if string(value) == "null" {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(value, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return 0, false
	}

	var obj struct {
		Rating *json.Number `json:"rating"`
	}
	if err := json.Unmarshal(value, &obj); err == nil && obj.Rating != nil {
		if f, err := obj.Rating.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}
