package pipeline

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/airframesio/report-archiver/cmd/report"
)

var validate = validator.New()

// Request describes one export, optionally closing the cycle
type Request struct {
	Kind       report.Kind `validate:"required,oneof=satisfaction work_performance"`
	Range      report.DateRange
	Format     string `validate:"required,oneof=csv xlsx"`
	CloseCycle bool
}

// Validate checks the request shape and the span limit. It runs before
// any query is issued.
func (r Request) Validate(maxMonths int) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := r.Range.Validate(maxMonths); err != nil {
		if errors.Is(err, report.ErrRangeTooLong) {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, &SpanError{MaxMonths: maxMonths})
		}
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}
