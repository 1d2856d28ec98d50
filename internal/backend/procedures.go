// Package backend invokes the backend's stored procedures by name. The
// procedures own all accounting; this package only shapes arguments and
// interprets the {success, ...} result.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Procedure names.
const (
	ProcConsumeTokens          = "consume_tokens"
	ProcPurchaseTokens         = "purchase_tokens"
	ProcGrantRegistrationBonus = "grant_registration_bonus"
	ProcActivateSubscription   = "activate_subscription"
)

// RegistrationBonusTokens is what grant_registration_bonus credits a new device.
const RegistrationBonusTokens = 6

// Caller is the subset of the remote client used here.
type Caller interface {
	Call(ctx context.Context, procedure string, args any, out any) error
}

// Result is a decoded procedure response. Fields beyond success/error/message
// are kept in Extra.
type Result struct {
	Success bool
	Error   string
	Message string
	Extra   map[string]json.RawMessage
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// Some procedures return a bare boolean.
		var ok bool
		if berr := json.Unmarshal(data, &ok); berr == nil {
			r.Success = ok
			return nil
		}
		return err
	}
	if raw, ok := fields["success"]; ok {
		_ = json.Unmarshal(raw, &r.Success)
		delete(fields, "success")
	}
	if raw, ok := fields["error"]; ok {
		_ = json.Unmarshal(raw, &r.Error)
		delete(fields, "error")
	}
	if raw, ok := fields["message"]; ok {
		_ = json.Unmarshal(raw, &r.Message)
		delete(fields, "message")
	}
	if len(fields) > 0 {
		r.Extra = fields
	}
	return nil
}

// MarshalJSON writes the result back in the flat procedure shape.
func (r Result) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		fields[k] = v
	}
	fields["success"] = r.Success
	if r.Error != "" {
		fields["error"] = r.Error
	}
	if r.Message != "" {
		fields["message"] = r.Message
	}
	return json.Marshal(fields)
}

// Float reads a numeric extra field.
func (r Result) Float(name string) (float64, bool) {
	raw, ok := r.Extra[name]
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// ProcedureError reports a procedure that answered success=false.
type ProcedureError struct {
	Procedure string
	Reason    string
}

func (e *ProcedureError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s was not successful", e.Procedure)
	}
	return fmt.Sprintf("%s was not successful: %s", e.Procedure, e.Reason)
}

// IsProcedureError reports whether err is a success=false answer.
func IsProcedureError(err error) bool {
	var pe *ProcedureError
	return errors.As(err, &pe)
}

// Procedures wraps the named procedures with typed arguments.
type Procedures struct {
	caller Caller
}

// New returns a Procedures bound to caller.
func New(caller Caller) *Procedures {
	return &Procedures{caller: caller}
}

// ConsumeTokens debits the user for seconds of practice. seconds is sent at
// full precision; rounding is the backend's job.
func (p *Procedures) ConsumeTokens(ctx context.Context, userID string, seconds float64) (Result, error) {
	if err := requireUser(userID); err != nil {
		return Result{}, err
	}
	if seconds <= 0 {
		return Result{}, errors.New("seconds must be positive")
	}
	return p.call(ctx, ProcConsumeTokens, map[string]any{
		"p_user_id": userID,
		"p_seconds": seconds,
	})
}

// PurchaseTokens credits amount tokens against a payment reference.
func (p *Procedures) PurchaseTokens(ctx context.Context, userID string, amount int, paymentID string) (Result, error) {
	if err := requireUser(userID); err != nil {
		return Result{}, err
	}
	if amount <= 0 {
		return Result{}, errors.New("amount must be positive")
	}
	if strings.TrimSpace(paymentID) == "" {
		return Result{}, errors.New("payment id required")
	}
	return p.call(ctx, ProcPurchaseTokens, map[string]any{
		"p_user_id":    userID,
		"p_amount":     amount,
		"p_payment_id": paymentID,
	})
}

// GrantRegistrationBonus credits the sign-up bonus once per device.
func (p *Procedures) GrantRegistrationBonus(ctx context.Context, userID, deviceFingerprint string) (Result, error) {
	if err := requireUser(userID); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(deviceFingerprint) == "" {
		return Result{}, errors.New("device fingerprint required")
	}
	return p.call(ctx, ProcGrantRegistrationBonus, map[string]any{
		"p_user_id":            userID,
		"p_device_fingerprint": deviceFingerprint,
	})
}

// ActivateSubscription attaches a paid plan to the user.
func (p *Procedures) ActivateSubscription(ctx context.Context, userID, planType, stripeSubscriptionID, stripeCustomerID string) (Result, error) {
	if err := requireUser(userID); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(planType) == "" {
		return Result{}, errors.New("plan type required")
	}
	return p.call(ctx, ProcActivateSubscription, map[string]any{
		"p_user_id":                userID,
		"p_plan_type":              planType,
		"p_stripe_subscription_id": stripeSubscriptionID,
		"p_stripe_customer_id":     stripeCustomerID,
	})
}

func (p *Procedures) call(ctx context.Context, name string, args map[string]any) (Result, error) {
	var res Result
	if err := p.caller.Call(ctx, name, args, &res); err != nil {
		return Result{}, err
	}
	if !res.Success {
		return res, &ProcedureError{Procedure: name, Reason: firstNonEmpty(res.Error, res.Message)}
	}
	return res, nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
