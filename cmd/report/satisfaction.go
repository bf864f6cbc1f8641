package report

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	SatisfactionTitle = "รายงานคะแนนแบบประเมินความพึงพอใจการบริการด้านความสะอาด"
	topicGroupTitle   = "คะแนนแต่ละหัวข้อประเมิน"
	missingAnswer     = "-"
)

// SatisfactionSubtitle renders the date range line of the satisfaction report.
func SatisfactionSubtitle(rng DateRange) string {
	return fmt.Sprintf("ข้อมูลตั้งแต่วันที่ %s ถึง %s", ThaiShortDate(rng.Start), ThaiShortDate(rng.End))
}

// BuildSatisfactionTable pivots feedback rows into one column per category.
// categories must already be sorted; the same slice drives the header and
// every data row.
func BuildSatisfactionTable(rows []Feedback, categories []CategoryDefinition, rng DateRange) (*Table, error) {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}

	groups := []HeaderGroup{
		{Title: "ประทับเวลา"},
		{Title: "วัน/เดือน/ปี"},
		{Title: "สถานที่"},
		{Title: "อาคาร"},
		{Title: "ชั้น"},
		{Title: "คะแนนเฉลี่ย"},
		{Title: topicGroupTitle, Columns: names, Dynamic: true},
		{Title: "ข้อเสนอแนะ"},
	}

	sorted := make([]Feedback, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	data := make([][]string, 0, len(sorted))
	for _, f := range sorted {
		row := make([]string, 0, 7+len(categories))
		row = append(row,
			ThaiClock(f.CreatedAt),
			ThaiShortDate(f.CreatedAt),
			orDash(f.Location.Name),
			orDash(f.Location.Building),
			orDash(f.Location.Floor),
			FormatScore(AggregateScore(f, categories)),
		)
		for _, c := range categories {
			if v, ok := f.Answers[c.ID]; ok {
				row = append(row, formatAnswer(v))
			} else {
				row = append(row, missingAnswer)
			}
		}
		row = append(row, orDash(f.Comment))
		data = append(data, row)
	}

	return NewTable(SatisfactionTitle, SatisfactionSubtitle(rng), groups, data)
}

// AggregateScore averages the answers given for the current categories. A
// submission with no such answers falls back to its stored overall rating.
func AggregateScore(f Feedback, categories []CategoryDefinition) decimal.Decimal {
	scores := make([]float64, 0, len(categories))
	for _, c := range categories {
		if v, ok := f.Answers[c.ID]; ok {
			scores = append(scores, v)
		}
	}
	if len(scores) == 0 && f.Rating != nil {
		scores = append(scores, *f.Rating)
	}
	return Average(scores)
}

// TopicStat is the mean score of one category across a set of submissions.
type TopicStat struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Average decimal.Decimal `json:"average"`
	Count   int             `json:"count"`
}

// Summary is the dashboard view of a satisfaction range.
type Summary struct {
	TotalReviews  int             `json:"totalReviews"`
	AverageRating decimal.Decimal `json:"averageRating"`
	Topics        []TopicStat     `json:"topics"`
	TopTopic      *TopicStat      `json:"topTopic,omitempty"`
	LowTopic      *TopicStat      `json:"lowTopic,omitempty"`
}

// SummarizeSatisfaction computes totals, the mean overall rating and the
// best and worst category. Only scores above zero count toward a category.
func SummarizeSatisfaction(rows []Feedback, categories []CategoryDefinition) Summary {
	summary := Summary{TotalReviews: len(rows), AverageRating: decimal.Zero}

	ratings := make([]float64, 0, len(rows))
	for _, f := range rows {
		if f.Rating != nil {
			ratings = append(ratings, *f.Rating)
		}
	}
	summary.AverageRating = Average(ratings)

	for _, c := range categories {
		var scores []float64
		for _, f := range rows {
			if v, ok := f.Answers[c.ID]; ok && v > 0 {
				scores = append(scores, v)
			}
		}
		summary.Topics = append(summary.Topics, TopicStat{ID: c.ID, Name: c.Name, Average: Average(scores), Count: len(scores)})
	}

	for i := range summary.Topics {
		stat := &summary.Topics[i]
		if stat.Count == 0 {
			continue
		}
		if summary.TopTopic == nil || stat.Average.GreaterThan(summary.TopTopic.Average) {
			summary.TopTopic = stat
		}
		if summary.LowTopic == nil || stat.Average.LessThan(summary.LowTopic.Average) {
			summary.LowTopic = stat
		}
	}
	return summary
}
