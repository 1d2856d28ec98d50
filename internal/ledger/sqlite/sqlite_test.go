package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rizztempo/rizztempo/internal/ledger"
)

func TestStoreRecordAndSummary(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	record := func(outcome ledger.Outcome, seconds float64) {
		if err := store.Record(ctx, ledger.Entry{
			UserID:          "u-42",
			Scenario:        "Coffee Shop",
			ElapsedSeconds:  seconds,
			EstimatedTokens: seconds / 36,
			Outcome:         outcome,
			Tags:            []string{"paused"},
			Memo:            "test",
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	record(ledger.OutcomeDebited, 72)
	record(ledger.OutcomeDebitFailed, 36)
	record(ledger.OutcomeSkipped, 0)

	summary, err := store.Summary(ctx, "u-42")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Sessions != 3 || summary.Debited != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if summary.DebitedSeconds != 72 || summary.UnbilledSeconds != 36 {
		t.Fatalf("unexpected seconds %+v", summary)
	}
	if summary.EstimatedTokens < 2.99 || summary.EstimatedTokens > 3.01 {
		t.Fatalf("unexpected estimate %v", summary.EstimatedTokens)
	}
}

func TestStoreListRecent(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := store.Record(ctx, ledger.Entry{
			UserID:    "u-1",
			Scenario:  "s",
			Outcome:   ledger.OutcomeDebited,
			Tags:      []string{"challenge", "paused"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := store.Record(ctx, ledger.Entry{UserID: "other", Outcome: ledger.OutcomeSkipped}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := store.ListRecent(ctx, "u-1", 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].CreatedAt.After(entries[1].CreatedAt) {
		t.Fatalf("entries not newest first")
	}
	if entries[0].UUID == "" || len(entries[0].Tags) != 2 || entries[0].Tags[0] != "challenge" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestStoreRejectsInvalidEntries(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.Record(ctx, ledger.Entry{Outcome: ledger.OutcomeDebited}); err == nil {
		t.Fatalf("expected missing user error")
	}
	if err := store.Record(ctx, ledger.Entry{UserID: "u", Outcome: "refunded"}); err == nil {
		t.Fatalf("expected invalid outcome error")
	}
	if _, err := store.ListRecent(ctx, "", 10); err == nil {
		t.Fatalf("expected user id error")
	}
}
