package report

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ArchiveFilename builds the archive object name. Only the report kind, the
// range and the timestamp go into it. ext includes the leading dot.
func ArchiveFilename(kind string, rng DateRange, at time.Time, ext string) string {
	return fmt.Sprintf("backup_%s_%s_%s_%d%s",
		kind,
		inZone(rng.Start).Format(DateLayout),
		inZone(rng.End).Format(DateLayout),
		at.UnixMilli(),
		ext,
	)
}

// DownloadFilename builds the operator download name, e.g.
// "รายงานความพึงพอใจ_01-มกราคม-2567_ถึง_31-มีนาคม-2567.xlsx".
func DownloadFilename(prefix string, rng DateRange, ext string) string {
	name := fmt.Sprintf("%s_%s_ถึง_%s", prefix, ThaiLongDate(rng.Start), ThaiLongDate(rng.End))
	return SafeFilename(name) + ext
}

// SafeFilename replaces whitespace with underscores and drops path
// separators, reserved punctuation and control characters.
func SafeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case unicode.IsControl(r):
		case strings.ContainsRune(`/\:*?"<>|`, r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "report"
	}
	return out
}
