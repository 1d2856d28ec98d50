package insights

import (
	"testing"
	"time"

	"github.com/rizztempo/rizztempo/internal/model"
)

func session(scenario string, seconds int, score int, at time.Time) model.PracticeSession {
	s := model.PracticeSession{UserID: "u-1", ScenarioType: scenario, DurationSeconds: seconds, CreatedAt: &at}
	if score > 0 {
		s.ConfidenceScore = &score
	}
	return s
}

func TestSummarizeAggregates(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sessions := []model.PracticeSession{
		session("Coffee Shop", 120, 4, now.AddDate(0, 0, -2)),
		session("Coffee Shop", 300, 6, now.AddDate(0, 0, -1)),
		session("First Date", 60, 0, now.AddDate(0, 0, -1)),
		session("Coffee Shop", 600, 8, now),
	}
	sum := Summarize(sessions, now, 3)

	if sum.Sessions != 4 || sum.TotalSeconds != 1080 {
		t.Fatalf("unexpected totals %+v", sum)
	}
	if sum.MeanSeconds != 270 || sum.MedianSeconds != 210 {
		t.Fatalf("unexpected mean/median %v/%v", sum.MeanSeconds, sum.MedianSeconds)
	}
	if sum.Rated != 3 || sum.MeanConfidence == nil || *sum.MeanConfidence != 6 {
		t.Fatalf("unexpected confidence %+v", sum.MeanConfidence)
	}
	if sum.ConfidenceTrend == nil || *sum.ConfidenceTrend != 2 {
		t.Fatalf("expected slope 2, got %v", sum.ConfidenceTrend)
	}
	if sum.FavouriteScenario != "Coffee Shop" {
		t.Fatalf("unexpected favourite %q", sum.FavouriteScenario)
	}
	if len(sum.Series) != 3 {
		t.Fatalf("expected 3 days, got %d", len(sum.Series))
	}
	mid := sum.Series[1]
	if mid.Date != "2025-03-09" || mid.Sessions != 2 || mid.Seconds != 360 || *mid.MeanConfidence != 6 {
		t.Fatalf("unexpected middle day %+v", mid)
	}
	if len(sum.Tips) != 3 {
		t.Fatalf("expected default tips")
	}
}

func TestSummarizeEmptyHistory(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	sum := Summarize(nil, now, 0)
	if sum.Sessions != 0 || sum.MeanSeconds != 0 || sum.MeanConfidence != nil || sum.ConfidenceTrend != nil {
		t.Fatalf("unexpected empty summary %+v", sum)
	}
	if len(sum.Series) != DefaultWindow {
		t.Fatalf("expected %d zero days, got %d", DefaultWindow, len(sum.Series))
	}
	if sum.Series[DefaultWindow-1].Date != "2025-03-10" {
		t.Fatalf("series must end today, got %s", sum.Series[DefaultWindow-1].Date)
	}
}
