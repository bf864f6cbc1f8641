package report

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned for an unrecognised report kind.
var ErrUnknownKind = errors.New("unknown report kind")

// Kind identifies one of the exportable reports.
type Kind string

const (
	KindSatisfaction    Kind = "satisfaction"
	KindWorkPerformance Kind = "work_performance"
)

// ParseKind accepts both the underscore and hyphen spellings.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "satisfaction":
		return KindSatisfaction, nil
	case "work_performance", "work-performance":
		return KindWorkPerformance, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// DownloadPrefix is the fixed report name used in operator download names.
func (k Kind) DownloadPrefix() string {
	if k == KindSatisfaction {
		return "รายงานความพึงพอใจ"
	}
	return "รายงานผลการปฏิบัติงาน"
}

// HasChildTable reports whether rows of this kind own child rows that must
// be deleted first.
func (k Kind) HasChildTable() bool {
	return k == KindWorkPerformance
}
