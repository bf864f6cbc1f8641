// Package report turns raw feedback and check-session rows into the
// two-level-header tables that the formatters serialize.
package report

import (
	"sort"
	"strings"
	"time"
)

// CategoryDefinition is one feedback topic or checklist category. SortKey
// decides its column position in every report.
type CategoryDefinition struct {
	ID      int64
	Name    string
	SortKey int64
}

// SortCategories returns a copy ordered by SortKey, ties by ID ascending.
func SortCategories(categories []CategoryDefinition) []CategoryDefinition {
	sorted := make([]CategoryDefinition, len(categories))
	copy(sorted, categories)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortKey != sorted[j].SortKey {
			return sorted[i].SortKey < sorted[j].SortKey
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

type Location struct {
	ID       int64
	Name     string
	Building string
	Floor    string
}

type Person struct {
	FirstName string
	LastName  string
	Role      string
}

// FullName joins first and last name, trimming the gap when either is empty.
func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Scores maps a category ID to the score given for it. A missing key means
// the category was not answered, which is different from a zero score.
type Scores map[int64]float64

// Feedback is a single customer satisfaction submission.
type Feedback struct {
	ID        int64
	CreatedAt time.Time
	Rating    *float64
	Answers   Scores
	Comment   string
	Location  Location
}

// CheckSession is a single cleaning check recorded by a maid or cleaner,
// optionally reviewed by an inspector.
type CheckSession struct {
	ID                int64
	SessionDate       time.Time
	Status            string
	SupervisorComment string
	CreatedAt         time.Time
	UpdatedAt         *time.Time
	Employee          Person
	Location          Location
	Inspector         *Person
	// SlotStart is the matched time slot start ("HH:MM" or "HH:MM:SS"),
	// empty when the session matched no slot.
	SlotStart string
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
