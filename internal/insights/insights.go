// Package insights aggregates practice history for the performance dashboard.
package insights

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/rizztempo/rizztempo/internal/model"
)

// DefaultWindow is the number of days in the progress series.
const DefaultWindow = 7

// Day is one point of the progress series.
type Day struct {
	Date           string   `json:"date"`
	Sessions       int      `json:"sessions"`
	Seconds        int      `json:"seconds"`
	MeanConfidence *float64 `json:"mean_confidence,omitempty"`
}

// Summary is the dashboard payload.
type Summary struct {
	Sessions          int            `json:"sessions"`
	TotalSeconds      int            `json:"total_seconds"`
	MeanSeconds       float64        `json:"mean_seconds"`
	MedianSeconds     float64        `json:"median_seconds"`
	Rated             int            `json:"rated"`
	MeanConfidence    *float64       `json:"mean_confidence,omitempty"`
	ConfidenceTrend   *float64       `json:"confidence_trend,omitempty"`
	FavouriteScenario string         `json:"favourite_scenario,omitempty"`
	ByScenario        map[string]int `json:"by_scenario"`
	Series            []Day          `json:"series"`
	Tips              []Tip          `json:"tips"`
}

// Summarize aggregates sessions into a summary with a zero-filled series of
// window UTC days ending on now.
func Summarize(sessions []model.PracticeSession, now time.Time, window int) Summary {
	if window <= 0 {
		window = DefaultWindow
	}
	sum := Summary{ByScenario: map[string]int{}, Tips: DefaultTips()}

	durations := make([]float64, 0, len(sessions))
	var confidence []float64
	type bucket struct {
		sessions, seconds int
		confidence        []float64
	}
	byDay := map[string]*bucket{}

	for _, s := range sessions {
		sum.Sessions++
		sum.TotalSeconds += s.DurationSeconds
		durations = append(durations, float64(s.DurationSeconds))
		sum.ByScenario[s.ScenarioType]++
		if s.ConfidenceScore != nil {
			confidence = append(confidence, float64(*s.ConfidenceScore))
		}
		if s.CreatedAt == nil {
			continue
		}
		key := s.CreatedAt.UTC().Format(time.DateOnly)
		b := byDay[key]
		if b == nil {
			b = &bucket{}
			byDay[key] = b
		}
		b.sessions++
		b.seconds += s.DurationSeconds
		if s.ConfidenceScore != nil {
			b.confidence = append(b.confidence, float64(*s.ConfidenceScore))
		}
	}

	if len(durations) > 0 {
		sum.MeanSeconds, _ = stats.Mean(durations)
		sum.MedianSeconds, _ = stats.Median(durations)
	}
	sum.Rated = len(confidence)
	sum.MeanConfidence = mean(confidence)
	sum.ConfidenceTrend = trend(sessions)
	sum.FavouriteScenario = favourite(sum.ByScenario)

	end := now.UTC()
	start := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(window - 1))
	for i := 0; i < window; i++ {
		key := start.AddDate(0, 0, i).Format(time.DateOnly)
		d := Day{Date: key}
		if b := byDay[key]; b != nil {
			d.Sessions, d.Seconds = b.sessions, b.seconds
			d.MeanConfidence = mean(b.confidence)
		}
		sum.Series = append(sum.Series, d)
	}
	return sum
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m, err := stats.Mean(values)
	if err != nil {
		return nil
	}
	m, _ = stats.Round(m, 2)
	return &m
}

// trend is the least-squares slope of confidence per session, oldest first.
// Fewer than two rated sessions have no trend.
func trend(sessions []model.PracticeSession) *float64 {
	rated := make([]model.PracticeSession, 0, len(sessions))
	for _, s := range sessions {
		if s.ConfidenceScore != nil {
			rated = append(rated, s)
		}
	}
	if len(rated) < 2 {
		return nil
	}
	sort.SliceStable(rated, func(i, j int) bool {
		a, b := rated[i].CreatedAt, rated[j].CreatedAt
		if a == nil || b == nil {
			return false
		}
		return a.Before(*b)
	})
	series := make(stats.Series, len(rated))
	for i, s := range rated {
		series[i] = stats.Coordinate{X: float64(i), Y: float64(*s.ConfidenceScore)}
	}
	line, err := stats.LinearRegression(series)
	if err != nil || len(line) < 2 {
		return nil
	}
	slope, _ := stats.Round(line[1].Y-line[0].Y, 2)
	return &slope
}

func favourite(counts map[string]int) string {
	best, bestN := "", 0
	for name, n := range counts {
		if n > bestN || (n == bestN && name < best) {
			best, bestN = name, n
		}
	}
	return best
}

// Tip is a static coaching hint shown under the dashboard.
type Tip struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DefaultTips returns the built-in coaching hints.
func DefaultTips() []Tip {
	return []Tip{
		{ID: "1", Title: "Ask open-ended questions", Description: "Try asking questions that require more than a yes/no answer to keep the conversation flowing."},
		{ID: "2", Title: "Practice active listening", Description: "Reference details from earlier in the conversation to show you're paying attention."},
		{ID: "3", Title: "Balance talking and listening", Description: "Aim for roughly equal speaking time to maintain an engaging conversation."},
	}
}
