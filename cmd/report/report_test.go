package report

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func ict(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, ReportZone)
}

func testRange() DateRange {
	return DateRange{Start: ict(2024, 1, 1, 0, 0), End: ict(2024, 1, 31, 23, 59)}
}

func TestAverage(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   string
	}{
		{"three scores", []float64{4, 5, 3}, "4.0"},
		{"empty", nil, "0.0"},
		{"half rounds up", []float64{4, 4, 5, 4}, "4.3"},
		{"exact half", []float64{1, 2}, "1.5"},
		{"single", []float64{0.25}, "0.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatScore(Average(tt.scores))
			if got != tt.want {
				t.Fatalf("Average(%v) = %s, want %s", tt.scores, got, tt.want)
			}
		})
	}
}

func TestSortCategories(t *testing.T) {
	in := []CategoryDefinition{
		{ID: 3, Name: "c", SortKey: 2},
		{ID: 2, Name: "b", SortKey: 1},
		{ID: 1, Name: "a", SortKey: 2},
	}
	got := SortCategories(in)
	ids := []int64{got[0].ID, got[1].ID, got[2].ID}
	if !reflect.DeepEqual(ids, []int64{2, 1, 3}) {
		t.Fatalf("unexpected order %v", ids)
	}
	if in[0].ID != 3 {
		t.Fatal("SortCategories must not reorder its input")
	}
}

func TestAssignRounds(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	loc := Location{ID: 7, Name: "ห้องน้ำชาย"}

	sessions := []CheckSession{
		{ID: 3, SessionDate: day, Location: loc, CreatedAt: ict(2024, 1, 10, 14, 0)},
		{ID: 2, SessionDate: day, Location: loc, CreatedAt: ict(2024, 1, 10, 9, 30)},
		{ID: 1, SessionDate: day, Location: loc, CreatedAt: ict(2024, 1, 10, 8, 0)},
	}

	got := AssignRounds(sessions)
	want := []int{1, 2, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("AssignRounds = %v, want %v", got, want)
	}

	again := AssignRounds(sessions)
	if !reflect.DeepEqual(got, again) {
		t.Fatalf("AssignRounds not deterministic: %v vs %v", got, again)
	}
}

func TestAssignRoundsSeparatesLocations(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	sessions := []CheckSession{
		{ID: 1, SessionDate: day, Location: Location{ID: 1}, CreatedAt: ict(2024, 1, 10, 8, 0)},
		{ID: 2, SessionDate: day, Location: Location{ID: 2}, CreatedAt: ict(2024, 1, 10, 8, 5)},
		{ID: 3, SessionDate: day, Location: Location{ID: 1}, CreatedAt: ict(2024, 1, 10, 8, 10)},
	}
	got := AssignRounds(sessions)
	if !reflect.DeepEqual(got, []int{1, 1, 2}) {
		t.Fatalf("unexpected rounds %v", got)
	}
}

func TestShiftOf(t *testing.T) {
	tests := []struct {
		name    string
		session CheckSession
		want    Shift
	}{
		{"slot wins over creation time", CheckSession{SlotStart: "13:00:00", CreatedAt: ict(2024, 1, 1, 9, 0)}, ShiftAfternoon},
		{"morning slot", CheckSession{SlotStart: "08:30", CreatedAt: ict(2024, 1, 1, 15, 0)}, ShiftMorning},
		{"no slot uses local hour", CheckSession{CreatedAt: time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)}, ShiftMorning},
		{"no slot afternoon", CheckSession{CreatedAt: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)}, ShiftAfternoon},
		{"garbage slot ignored", CheckSession{SlotStart: "xx", CreatedAt: ict(2024, 1, 1, 16, 0)}, ShiftAfternoon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShiftOf(tt.session); got != tt.want {
				t.Fatalf("ShiftOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSatisfactionTableWidth(t *testing.T) {
	rating := 4.0
	feedback := []Feedback{
		{ID: 1, CreatedAt: ict(2024, 1, 5, 10, 0), Rating: &rating, Answers: Scores{1: 5, 2: 3}, Comment: "ดีมาก"},
		{ID: 2, CreatedAt: ict(2024, 1, 6, 11, 0), Answers: Scores{}},
	}

	for _, n := range []int{0, 1, 4} {
		categories := make([]CategoryDefinition, n)
		for i := range categories {
			categories[i] = CategoryDefinition{ID: int64(i + 1), Name: "หัวข้อ", SortKey: int64(i)}
		}

		table, err := BuildSatisfactionTable(feedback, categories, testRange())
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if table.Width() != 7+n {
			t.Fatalf("n=%d: width = %d, want %d", n, table.Width(), 7+n)
		}
		for i, rec := range table.Records() {
			if len(rec) != table.Width() {
				t.Fatalf("n=%d: record %d has %d cells, want %d", n, i, len(rec), table.Width())
			}
		}
		for _, m := range table.Merges() {
			if m.FirstCol > m.LastCol || m.FirstRow > m.LastRow || m.LastCol >= table.Width() || m.FirstCol < 0 {
				t.Fatalf("n=%d: malformed merge %+v", n, m)
			}
		}
		if len(table.ColumnWidths()) != table.Width() {
			t.Fatalf("n=%d: column widths do not match width", n)
		}
	}
}

func TestSatisfactionTableCells(t *testing.T) {
	categories := []CategoryDefinition{{ID: 1, Name: "ความสะอาด"}, {ID: 2, Name: "กลิ่น"}}
	feedback := []Feedback{{
		ID:        9,
		CreatedAt: time.Date(2024, 1, 31, 20, 15, 30, 0, time.UTC),
		Answers:   Scores{1: 4},
		Location:  Location{Name: "ล็อบบี้", Building: "A"},
	}}

	table, err := BuildSatisfactionTable(feedback, categories, testRange())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"03:15:30", "01 ก.พ. 2567", "ล็อบบี้", "A", "-", "4.0", "4", "-", "-"}
	if !reflect.DeepEqual(table.Rows[0], want) {
		t.Fatalf("row = %v, want %v", table.Rows[0], want)
	}

	_, sub := table.HeaderRows()
	if sub[6] != "ความสะอาด" || sub[7] != "กลิ่น" {
		t.Fatalf("category header out of order: %v", sub)
	}
}

func TestWorkPerformanceTable(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	updated := ict(2024, 1, 10, 16, 45)
	sessions := []CheckSession{
		{ID: 12, SessionDate: day, Status: StatusApproved, CreatedAt: ict(2024, 1, 10, 14, 0), UpdatedAt: &updated,
			Employee: Person{FirstName: "สมศรี", LastName: "ใจดี"}, Location: Location{ID: 1, Name: "จุด 1"}},
		{ID: 11, SessionDate: day, Status: StatusFail, CreatedAt: ict(2024, 1, 10, 8, 0),
			Employee: Person{FirstName: "สมศรี"}, Location: Location{ID: 1, Name: "จุด 1"}},
		{ID: 13, SessionDate: day, Status: StatusRejected, CreatedAt: ict(2024, 1, 10, 15, 0),
			Inspector: &Person{FirstName: "วิชัย", LastName: "ตรวจดี", Role: "supervisor"}, Location: Location{ID: 1}},
	}

	table, err := BuildWorkPerformanceTable(sessions, testRange())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Width() != 16 {
		t.Fatalf("width = %d, want 16", table.Width())
	}

	first := table.Rows[0]
	if first[0] != "1" || first[1] != "11" || first[7] != "1" || first[9] != "เช้า" || first[10] != "พบปัญหา" || first[11] != "" {
		t.Fatalf("unexpected first row %v", first)
	}

	second := table.Rows[1]
	if second[7] != "1" || second[9] != "บ่าย" || second[13] != "Admin (System)" || second[14] != "ผู้ดูแลระบบ" || second[12] != "16:45" {
		t.Fatalf("unexpected second row %v", second)
	}

	third := table.Rows[2]
	if third[7] != "2" || third[13] != "วิชัย ตรวจดี" || third[14] != "หัวหน้างาน" || third[6] != "-" {
		t.Fatalf("unexpected third row %v", third)
	}
	if third[2] != "10/01/2567" {
		t.Fatalf("session date = %q", third[2])
	}
}

func TestDateRangeValidate(t *testing.T) {
	start := ict(2024, 1, 1, 0, 0)
	tests := []struct {
		name    string
		rng     DateRange
		wantErr error
	}{
		{"missing", DateRange{Start: start}, ErrRangeRequired},
		{"inverted", DateRange{Start: start, End: start.Add(-time.Hour)}, ErrRangeInverted},
		{"seven months", DateRange{Start: start, End: ict(2024, 8, 1, 0, 0)}, ErrRangeTooLong},
		{"exactly six months", DateRange{Start: start, End: ict(2024, 7, 1, 23, 59)}, nil},
		{"same day", DateRange{Start: start, End: start}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rng.Validate(6)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFilenames(t *testing.T) {
	rng := DateRange{Start: ict(2024, 1, 1, 0, 0), End: ict(2024, 3, 31, 23, 59)}
	at := time.UnixMilli(1712000000000)

	got := ArchiveFilename("work_performance", rng, at, ".csv")
	if got != "backup_work_performance_2024-01-01_2024-03-31_1712000000000.csv" {
		t.Fatalf("ArchiveFilename = %s", got)
	}

	got = DownloadFilename("รายงาน ผลงาน/แม่บ้าน", rng, ".xlsx")
	if got != "รายงาน_ผลงานแม่บ้าน_01-มกราคม-2567_ถึง_31-มีนาคม-2567.xlsx" {
		t.Fatalf("DownloadFilename = %s", got)
	}
}

func TestSummarizeSatisfaction(t *testing.T) {
	r4, r2 := 4.0, 2.0
	categories := []CategoryDefinition{{ID: 1, Name: "ความสะอาด"}, {ID: 2, Name: "กลิ่น"}, {ID: 3, Name: "อุปกรณ์"}}
	rows := []Feedback{
		{Rating: &r4, Answers: Scores{1: 5, 2: 2}},
		{Rating: &r2, Answers: Scores{1: 4, 2: 0}},
		{Answers: Scores{}},
	}

	s := SummarizeSatisfaction(rows, categories)
	if s.TotalReviews != 3 {
		t.Fatalf("TotalReviews = %d", s.TotalReviews)
	}
	if FormatScore(s.AverageRating) != "3.0" {
		t.Fatalf("AverageRating = %s", s.AverageRating)
	}
	if s.TopTopic == nil || s.TopTopic.ID != 1 || FormatScore(s.TopTopic.Average) != "4.5" {
		t.Fatalf("unexpected top topic %+v", s.TopTopic)
	}
	if s.LowTopic == nil || s.LowTopic.ID != 2 {
		t.Fatalf("unexpected low topic %+v", s.LowTopic)
	}
	if s.Topics[2].Count != 0 {
		t.Fatalf("unanswered topic should have zero count")
	}
}
