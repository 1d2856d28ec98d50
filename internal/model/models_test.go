package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProfilePatchValidate(t *testing.T) {
	if err := (ProfilePatch{}).Validate(); err == nil {
		t.Fatalf("empty patch must be rejected")
	}
	level := "expert"
	if err := (ProfilePatch{ExperienceLevel: &level}).Validate(); err == nil {
		t.Fatalf("unknown level must be rejected")
	}
	level = "beginner"
	if err := (ProfilePatch{ExperienceLevel: &level, DatingGoals: []string{"social"}}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (ProfilePatch{DatingGoals: []string{"fame"}}).Validate(); err == nil {
		t.Fatalf("unknown goal must be rejected")
	}
}

func TestPracticeSessionValidate(t *testing.T) {
	ok := PracticeSession{UserID: "u", ScenarioType: "Coffee Shop", DurationSeconds: 5}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := 11
	ok.ConfidenceScore = &bad
	if err := ok.Validate(); err == nil {
		t.Fatalf("confidence above 10 must be rejected")
	}
	if err := (PracticeSession{UserID: "u"}).Validate(); err == nil {
		t.Fatalf("missing scenario must be rejected")
	}
}

func TestTokenBalanceTotal(t *testing.T) {
	if got := (TokenBalance{Permanent: 6, Resettable: 0.5}).Total(); got != 6.5 {
		t.Fatalf("unexpected total %v", got)
	}
}

func TestLoadPlansDefaults(t *testing.T) {
	plans, err := LoadPlans("")
	if err != nil {
		t.Fatalf("LoadPlans: %v", err)
	}
	monthly, ok := FindPlan(plans, "monthly")
	if !ok || !monthly.Popular || monthly.Tokens != 200 {
		t.Fatalf("unexpected monthly plan %+v", monthly)
	}
	if len(plans) != 4 {
		t.Fatalf("expected four plans, got %d", len(plans))
	}
}

func TestLoadPlansFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	content := "plans:\n  - id: trial\n    name: Trial\n    price: \"$0\"\n    tokens: 3\n    period: day\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	plans, err := LoadPlans(path)
	if err != nil {
		t.Fatalf("LoadPlans: %v", err)
	}
	if len(plans) != 1 || plans[0].ID != "trial" || plans[0].Tokens != 3 {
		t.Fatalf("unexpected plans %+v", plans)
	}
}

func TestLoadPlansRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	content := "plans:\n  - {id: a, tokens: 1}\n  - {id: a, tokens: 2}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPlans(path); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
