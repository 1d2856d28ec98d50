package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rizztempo/rizztempo/internal/model"
)

type billingEndpoint struct {
	server *Server
}

func newBillingEndpoint(server *Server) endpoint {
	return &billingEndpoint{server: server}
}

func (e *billingEndpoint) Name() string { return "billing" }

func (e *billingEndpoint) Routes() []endpointRoute {
	s := e.server
	return []endpointRoute{
		{Method: http.MethodGet, Path: "/tokens", Handler: s.handleTokens},
		{Method: http.MethodPost, Path: "/tokens/purchase", Handler: s.handlePurchase},
		{Method: http.MethodGet, Path: "/subscription", Handler: s.handleSubscription},
		{Method: http.MethodPost, Path: "/subscription", Handler: s.handleSubscribe},
		{Method: http.MethodDelete, Path: "/subscription", Handler: s.handleCancelSubscription},
	}
}

func balancePayload(b model.TokenBalance) map[string]any {
	return map[string]any{
		"permanent_tokens":  b.Permanent,
		"resettable_tokens": b.Resettable,
		"total":             b.Total(),
	}
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.svc.State.Tokens
	if r.URL.Query().Get("refresh") == "1" || tokens.Loading() {
		if err := tokens.Refetch(r.Context()); err != nil {
			s.fail(w, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, balancePayload(tokens.Value()))
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount    int    `json:"amount"`
		PaymentID string `json:"payment_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Amount <= 0 {
		s.fail(w, invalid(errors.New("amount must be positive")))
		return
	}
	if strings.TrimSpace(req.PaymentID) == "" {
		s.fail(w, invalid(errors.New("payment_id required")))
		return
	}
	res, err := s.svc.State.Tokens.Purchase(r.Context(), req.Amount, req.PaymentID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"tokens": balancePayload(s.svc.State.Tokens.Value()),
	})
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"plans": s.svc.Plans})
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	sub := s.svc.State.Subscription
	if r.URL.Query().Get("refresh") == "1" || sub.Loading() {
		if err := sub.Refetch(r.Context()); err != nil {
			s.fail(w, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"subscription": sub.Value()})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plan                 string `json:"plan"`
		StripeSubscriptionID string `json:"stripe_subscription_id"`
		StripeCustomerID     string `json:"stripe_customer_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	plan, ok := model.FindPlan(s.svc.Plans, req.Plan)
	if !ok {
		s.fail(w, invalid(fmt.Errorf("unknown plan %q", req.Plan)))
		return
	}
	res, err := s.svc.State.Subscription.Activate(r.Context(), plan.ID, req.StripeSubscriptionID, req.StripeCustomerID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"plan":         plan,
		"result":       res,
		"subscription": s.svc.State.Subscription.Value(),
	})
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.State.Subscription.Cancel(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}
