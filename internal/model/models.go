// Package model holds the typed row schemas exchanged with the backend.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend table names.
const (
	TableProfiles             = "profiles"
	TablePracticeSessions     = "practice_sessions"
	TableUserTokens           = "user_tokens"
	TableDailyChallenges      = "daily_challenges"
	TableChallengeCompletions = "user_challenge_completions"
	TableUserStreaks          = "user_streaks"
	TableScenarios            = "conversation_scenarios"
	TableSubscriptions        = "subscriptions"
)

// Profile is the per-user attribute row keyed by the auth user id.
type Profile struct {
	ID                  string     `json:"id"`
	Username            *string    `json:"username,omitempty"`
	DeviceFingerprints  []string   `json:"device_fingerprints,omitempty"`
	ExperienceLevel     *string    `json:"experience_level,omitempty"`
	DatingGoals         []string   `json:"dating_goals,omitempty"`
	OnboardingCompleted bool       `json:"onboarding_completed"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

// NewProfile is the insert payload created on first sign-in.
type NewProfile struct {
	ID                 string   `json:"id"`
	DeviceFingerprints []string `json:"device_fingerprints"`
}

func (p NewProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("profile id required")
	}
	if len(p.DeviceFingerprints) == 0 || strings.TrimSpace(p.DeviceFingerprints[0]) == "" {
		return errors.New("device fingerprint required")
	}
	return nil
}

// ProfilePatch carries the mutable profile columns; nil fields are omitted.
type ProfilePatch struct {
	Username            *string  `json:"username,omitempty"`
	ExperienceLevel     *string  `json:"experience_level,omitempty"`
	DatingGoals         []string `json:"dating_goals,omitempty"`
	OnboardingCompleted *bool    `json:"onboarding_completed,omitempty"`
}

func (p ProfilePatch) Validate() error {
	if p.Username == nil && p.ExperienceLevel == nil && p.DatingGoals == nil && p.OnboardingCompleted == nil {
		return errors.New("profile update has no fields")
	}
	if p.ExperienceLevel != nil && !IsExperienceLevel(*p.ExperienceLevel) {
		return fmt.Errorf("unknown experience level %q", *p.ExperienceLevel)
	}
	for _, g := range p.DatingGoals {
		if !IsDatingGoal(g) {
			return fmt.Errorf("unknown dating goal %q", g)
		}
	}
	return nil
}

// TokenBalance mirrors user_tokens. The backend is the only writer.
type TokenBalance struct {
	UserID     string  `json:"user_id,omitempty"`
	Permanent  float64 `json:"permanent_tokens"`
	Resettable float64 `json:"resettable_tokens"`
}

// Total is permanent + resettable.
func (b TokenBalance) Total() float64 { return b.Permanent + b.Resettable }

// PracticeSession is one timed practice interaction.
type PracticeSession struct {
	ID              string     `json:"id,omitempty"`
	UserID          string     `json:"user_id"`
	ScenarioType    string     `json:"scenario_type"`
	DurationSeconds int        `json:"duration_seconds"`
	ConfidenceScore *int       `json:"confidence_score,omitempty"`
	Feedback        *string    `json:"feedback,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

func (s PracticeSession) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return errors.New("session user_id required")
	}
	if strings.TrimSpace(s.ScenarioType) == "" {
		return errors.New("session scenario_type required")
	}
	if s.DurationSeconds < 0 {
		return errors.New("session duration must not be negative")
	}
	if s.ConfidenceScore != nil {
		if err := ValidateConfidence(*s.ConfidenceScore); err != nil {
			return err
		}
	}
	return nil
}

// SessionFeedback is the patch attached after a session.
type SessionFeedback struct {
	ConfidenceScore int    `json:"confidence_score"`
	Feedback        string `json:"feedback"`
}

func (f SessionFeedback) Validate() error {
	return ValidateConfidence(f.ConfidenceScore)
}

// Confidence score bounds used by the feedback form.
const (
	MinConfidence = 1
	MaxConfidence = 10
)

// ValidateConfidence checks a self-reported confidence score.
func ValidateConfidence(score int) error {
	if score < MinConfidence || score > MaxConfidence {
		return fmt.Errorf("confidence score %d outside %d..%d", score, MinConfidence, MaxConfidence)
	}
	return nil
}

// Scenario is a conversation context offered for practice.
type Scenario struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	Category    string `json:"category,omitempty"`
}

// DailyChallenge is the challenge scheduled for one calendar date.
type DailyChallenge struct {
	ID              string `json:"id"`
	ChallengeDate   string `json:"challenge_date"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	ScenarioType    string `json:"scenario_type,omitempty"`
	DifficultyLevel int    `json:"difficulty_level,omitempty"`
	BonusTokens     int    `json:"bonus_tokens,omitempty"`
	IsActive        bool   `json:"is_active"`
}

// ChallengeCompletion records a user's attempt at a challenge.
type ChallengeCompletion struct {
	UserID      string     `json:"user_id"`
	ChallengeID string     `json:"challenge_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Streak is the backend-computed practice streak.
type Streak struct {
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
}

// Subscription status values.
const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)

// Subscription is a paid plan attached to a user.
type Subscription struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	PlanType             string     `json:"plan_type"`
	Status               string     `json:"status"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
}

// SubscriptionStatusPatch changes only the status column.
type SubscriptionStatusPatch struct {
	Status string `json:"status"`
}

func (p SubscriptionStatusPatch) Validate() error {
	switch p.Status {
	case SubscriptionActive, SubscriptionCancelled:
		return nil
	default:
		return fmt.Errorf("unknown subscription status %q", p.Status)
	}
}
