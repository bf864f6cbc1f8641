package report

import (
	"sort"
	"strconv"
	"strings"
)

// Shift is the half of the working day a check session belongs to.
type Shift int

const (
	ShiftMorning Shift = iota
	ShiftAfternoon
)

// Label returns the Thai shift name shown in reports.
func (s Shift) Label() string {
	if s == ShiftMorning {
		return "เช้า"
	}
	return "บ่าย"
}

// ShiftOf classifies a session. The matched time slot start hour wins; when
// there is no usable slot the creation time in ReportZone decides.
func ShiftOf(s CheckSession) Shift {
	if hour, ok := slotHour(s.SlotStart); ok {
		if hour < 12 {
			return ShiftMorning
		}
		return ShiftAfternoon
	}
	if inZone(s.CreatedAt).Hour() < 12 {
		return ShiftMorning
	}
	return ShiftAfternoon
}

func slotHour(slot string) (int, bool) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return 0, false
	}
	h, _, _ := strings.Cut(slot, ":")
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}

type roundKey struct {
	day      string
	location int64
	shift    Shift
}

func sessionDay(s CheckSession) string {
	if !s.SessionDate.IsZero() {
		return s.SessionDate.Format(DateLayout)
	}
	return inZone(s.CreatedAt).Format(DateLayout)
}

// AssignRounds numbers each session within its (date, location, shift)
// group, 1..N in creation order with ties broken by ID. The result is
// aligned with the input slice and does not depend on input order.
func AssignRounds(sessions []CheckSession) []int {
	order := make([]int, len(sessions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sessionLess(sessions[order[a]], sessions[order[b]])
	})

	counters := make(map[roundKey]int)
	rounds := make([]int, len(sessions))
	for _, idx := range order {
		s := sessions[idx]
		key := roundKey{day: sessionDay(s), location: s.Location.ID, shift: ShiftOf(s)}
		counters[key]++
		rounds[idx] = counters[key]
	}
	return rounds
}

func sessionLess(a, b CheckSession) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
