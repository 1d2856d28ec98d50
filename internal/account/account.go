// Package account runs the sign-up, sign-in and onboarding flows on top of
// the auth manager and the cached profile.
package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/rizztempo/rizztempo/internal/auth"
	"github.com/rizztempo/rizztempo/internal/backend"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/remote"
	"github.com/rizztempo/rizztempo/internal/state"
)

// ErrMissingField is wrapped by every form validation failure.
var ErrMissingField = errors.New("missing required field")

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

// Fingerprinter supplies the device fingerprint.
type Fingerprinter interface {
	Fingerprint(ctx context.Context) string
}

// SignUpRequest is the sign-up form.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

func (r SignUpRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return missing("email and password")
	}
	if strings.TrimSpace(r.Phone) == "" {
		return missing("phone number")
	}
	return nil
}

// SignInRequest is the sign-in form.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r SignInRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return missing("email and password")
	}
	return nil
}

// Outcome reports what an auth flow did.
type Outcome struct {
	User    auth.User     `json:"user"`
	Session *auth.Session `json:"-"`
	// Pending is set when sign-up succeeded but no session was issued yet.
	Pending      bool `json:"pending"`
	NewProfile   bool `json:"new_profile"`
	BonusGranted bool `json:"bonus_granted"`
	// ProvisionError is the non-fatal failure of post-auth provisioning.
	ProvisionError string `json:"provision_error,omitempty"`
}

// Service wires the auth manager, procedures and profile cache.
type Service struct {
	auth     *auth.Manager
	profiles remote.Table[model.Profile]
	procs    *backend.Procedures
	fp       Fingerprinter
	state    *state.State
	logger   *log.Logger
}

// NewService builds the account flows. st may be nil when no cache is kept.
func NewService(mgr *auth.Manager, client *remote.Client, procs *backend.Procedures, fp Fingerprinter, st *state.State) *Service {
	return &Service{
		auth:     mgr,
		profiles: remote.NewTable[model.Profile](client, model.TableProfiles),
		procs:    procs,
		fp:       fp,
		state:    st,
		logger:   log.New(log.Writer(), "[rizztempo/account] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (s *Service) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SignUp creates the account and provisions the profile when a user id is returned.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	res, err := s.auth.SignUp(ctx, strings.TrimSpace(req.Email), req.Password, strings.TrimSpace(req.Phone))
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{User: res.User, Session: res.Session, Pending: res.Session == nil}
	if res.Session != nil && res.User.ID != "" {
		s.provision(ctx, res.User.ID, &out)
	}
	return out, nil
}

// SignIn authenticates and provisions the profile on first sign-in.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	session, err := s.auth.SignIn(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{User: session.User, Session: session}
	s.provision(ctx, session.User.ID, &out)
	return out, nil
}

// SignOut ends the session.
func (s *Service) SignOut(ctx context.Context) error {
	return s.auth.SignOut(ctx)
}

func (s *Service) provision(ctx context.Context, userID string, out *Outcome) {
	created, granted, err := s.PostAuth(ctx, userID)
	out.NewProfile, out.BonusGranted = created, granted
	if err != nil {
		s.logger.Printf("post-auth provisioning for %s failed: %v", userID, err)
		out.ProvisionError = err.Error()
	}
}

// PostAuth creates the profile row tagged with this device when it does not
// exist yet and then asks the backend for the registration bonus. The bonus
// procedure itself decides whether this device already claimed one.
func (s *Service) PostAuth(ctx context.Context, userID string) (created, bonusGranted bool, err error) {
	if strings.TrimSpace(userID) == "" {
		return false, false, state.ErrNoUser
	}
	existing, err := s.profiles.First(ctx, remote.Filter{"id": userID})
	if err != nil {
		return false, false, fmt.Errorf("lookup profile: %w", err)
	}
	if existing != nil {
		return false, false, nil
	}
	fp := s.fp.Fingerprint(ctx)
	if _, err := s.profiles.Insert(ctx, model.NewProfile{ID: userID, DeviceFingerprints: []string{fp}}); err != nil {
		return false, false, fmt.Errorf("create profile: %w", err)
	}
	if s.state != nil {
		if err := s.state.Profile.Refetch(ctx); err != nil {
			s.logger.Printf("refresh profile after create: %v", err)
		}
	}
	if _, err := s.procs.GrantRegistrationBonus(ctx, userID, fp); err != nil {
		if backend.IsProcedureError(err) {
			// Declined, e.g. the device already claimed a bonus.
			s.logger.Printf("registration bonus declined for %s: %v", userID, err)
			return true, false, nil
		}
		return true, false, fmt.Errorf("grant registration bonus: %w", err)
	}
	if s.state != nil {
		if err := s.state.Tokens.Refetch(ctx); err != nil {
			s.logger.Printf("refresh tokens after bonus: %v", err)
		}
	}
	return true, true, nil
}

// Onboarding is the questionnaire answer.
type Onboarding struct {
	ExperienceLevel string   `json:"experience_level"`
	DatingGoals     []string `json:"dating_goals"`
}

func (o Onboarding) Validate() error {
	if strings.TrimSpace(o.ExperienceLevel) == "" {
		return missing("experience level")
	}
	if !model.IsExperienceLevel(o.ExperienceLevel) {
		return fmt.Errorf("unknown experience level %q", o.ExperienceLevel)
	}
	if len(o.DatingGoals) == 0 {
		return missing("dating goals")
	}
	seen := make(map[string]bool, len(o.DatingGoals))
	for _, g := range o.DatingGoals {
		if !model.IsDatingGoal(g) {
			return fmt.Errorf("unknown dating goal %q", g)
		}
		if seen[g] {
			return fmt.Errorf("duplicate dating goal %q", g)
		}
		seen[g] = true
	}
	return nil
}

// CompleteOnboarding stores the answers and marks onboarding done.
func (s *Service) CompleteOnboarding(ctx context.Context, o Onboarding) (*model.Profile, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if s.state == nil {
		return nil, errors.New("profile cache not configured")
	}
	level := o.ExperienceLevel
	done := true
	return s.state.Profile.Update(ctx, model.ProfilePatch{
		ExperienceLevel:     &level,
		DatingGoals:         append([]string(nil), o.DatingGoals...),
		OnboardingCompleted: &done,
	})
}
