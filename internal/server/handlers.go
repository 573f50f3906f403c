// internal/server/handlers.go
package server

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"CoverLedger/internal/cover"
	"CoverLedger/internal/errs"
)

// --- Reads ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	watermark, err := s.queries.Watermark(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	hash := s.engine.GetStateHash()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"next_sequence":        s.engine.GetSequence(),
		"state_hash":           hex.EncodeToString(hash[:]),
		"projection_watermark": watermark,
		"paused":               s.engine.Paused(),
	})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	strategies := s.engine.Strategies()
	type strategyView struct {
		Address          string `json:"address"`
		Weight           uint32 `json:"weight"`
		Active           bool   `json:"active"`
		ActiveCoverLimit int64  `json:"active_cover_limit"`
	}
	views := make([]strategyView, 0, len(strategies))
	for _, st := range strategies {
		views = append(views, strategyView{
			Address:          st.Address.String(),
			Weight:           st.Weight,
			Active:           st.Active,
			ActiveCoverLimit: st.ActiveCoverLimit,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"max_cover":                s.engine.MaxCover(),
		"active_cover_limit":       s.engine.ActiveCoverLimit(),
		"available_cover_capacity": s.engine.AvailableCoverCapacity(),
		"strategies":               views,
	})
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.ProductConfig()
	current, pending := s.engine.GovernanceState()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"max_rate_num":          cfg.MaxRateNum,
		"max_rate_denom":        cfg.MaxRateDenom,
		"charge_cycle":          cfg.Cycle.String(),
		"charge_cycle_seconds":  cfg.Cycle.Seconds(),
		"paused":                cfg.Paused,
		"cooldown_seconds":      cfg.CooldownSeconds,
		"referral_reward":       cfg.ReferralReward,
		"referral_on":           cfg.ReferralOn,
		"max_charge_batch_size": cfg.MaxChargeBatchSize,
		"base_uri":              cfg.BaseURI,
		"collector":             cfg.Collector.String(),
		"governance":            current.String(),
		"pending_governance":    pending.String(),
		"policy_count":          s.engine.PolicyCount(),
		"premium_pool_balance":  s.engine.PoolBalance(),
		"accepted_assets":       s.engine.AcceptedAssets(),
		"signers":               s.engine.Signers(),
	})
}

func (s *Server) handleMinRequiredBalance(w http.ResponseWriter, r *http.Request) {
	coverLimit, err := strconv.ParseInt(r.URL.Query().Get("cover_limit"), 10, 64)
	if err != nil || coverLimit <= 0 {
		s.writeError(w, errs.New(errs.Validation, "cover_limit must be a positive integer"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"cover_limit":          coverLimit,
		"min_required_balance": s.engine.MinRequiredAccountBalance(coverLimit),
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	address, err := pathUUID(r, "address")
	if err != nil {
		s.writeError(w, err)
		return
	}
	acc, _ := s.engine.AccountOf(address)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":              address.String(),
		"balance":              acc.Balance,
		"non_refundable":       acc.NonRefundable,
		"reward_points":        acc.RewardPoints,
		"cooldown_start":       acc.CooldownStart,
		"used_referral":        acc.UsedReferralCode,
		"min_balance_required": s.engine.MinBalanceRequired(address),
		"withdrawable":         s.engine.WithdrawableOf(address),
	})
}

func (s *Server) handlePremiumHistory(w http.ResponseWriter, r *http.Request) {
	address, err := pathUUID(r, "address")
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.queries.GetPremiumHistory(r.Context(), address, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) handleListActivePolicies(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	policies, err := s.queries.ListActivePolicies(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"policies": policies})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID, err := strconv.ParseUint(chi.URLParam(r, "policyID"), 10, 64)
	if err != nil {
		s.writeError(w, errs.New(errs.Validation, "malformed policy id"))
		return
	}
	policy, ok := s.engine.PolicyByID(policyID)
	if !ok {
		s.writeError(w, errs.Newf(errs.State, "policy %d does not exist", policyID))
		return
	}
	writeJSON(w, http.StatusOK, policyView(policy))
}

func (s *Server) handleTokenURI(w http.ResponseWriter, r *http.Request) {
	policyID, err := strconv.ParseUint(chi.URLParam(r, "policyID"), 10, 64)
	if err != nil {
		s.writeError(w, errs.New(errs.Validation, "malformed policy id"))
		return
	}
	uri, err := s.engine.TokenURI(policyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uri": uri})
}

func (s *Server) handlePolicyByOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := pathUUID(r, "address")
	if err != nil {
		s.writeError(w, err)
		return
	}
	policy, ok := s.engine.PolicyOf(owner)
	if !ok {
		s.writeError(w, errs.Newf(errs.State, "no policy for owner %s", owner))
		return
	}
	writeJSON(w, http.StatusOK, policyView(policy))
}

// --- Policyholder mutations ---

type purchaseRequest struct {
	CoverLimit int64  `json:"cover_limit" validate:"required,gt=0"`
	Referral   string `json:"referral,omitempty"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	account, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req purchaseRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	referral, err := optionalUUID(req.Referral)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Purchase(account, req.CoverLimit, referral); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type purchaseStableRequest struct {
	Account    string `json:"account,omitempty"` // defaults to the caller
	CoverLimit int64  `json:"cover_limit" validate:"required,gt=0"`
	Symbol     string `json:"symbol" validate:"required"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	Referral   string `json:"referral,omitempty"`
}

func (s *Server) handlePurchaseStable(w http.ResponseWriter, r *http.Request) {
	funder, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req purchaseStableRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	account, referral, err := purchaseParties(funder, req.Account, req.Referral)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.PurchaseWithStable(funder, account, req.CoverLimit, req.Symbol, req.Amount, referral); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type purchaseNonStableRequest struct {
	Account       string `json:"account,omitempty"`
	CoverLimit    int64  `json:"cover_limit" validate:"required,gt=0"`
	Symbol        string `json:"symbol" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Price         int64  `json:"price" validate:"required,gt=0"`
	PriceDeadline int64  `json:"price_deadline" validate:"required,gt=0"`
	PriceToken    string `json:"price_token" validate:"required"`
	Referral      string `json:"referral,omitempty"`
}

func (s *Server) handlePurchaseNonStable(w http.ResponseWriter, r *http.Request) {
	funder, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req purchaseNonStableRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	account, referral, err := purchaseParties(funder, req.Account, req.Referral)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.PurchaseWithNonStable(funder, account, req.CoverLimit, req.Symbol,
		req.Amount, req.Price, req.PriceDeadline, req.PriceToken, referral); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type depositRequest struct {
	Recipient string `json:"recipient,omitempty"` // defaults to the caller
	Amount    int64  `json:"amount" validate:"required,gt=0"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	funder, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req depositRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	recipient, err := recipientOrCaller(funder, req.Recipient)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Deposit(funder, recipient, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type depositAssetRequest struct {
	Recipient string `json:"recipient,omitempty"`
	Symbol    string `json:"symbol" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
}

func (s *Server) handleDepositStable(w http.ResponseWriter, r *http.Request) {
	funder, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req depositAssetRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	recipient, err := recipientOrCaller(funder, req.Recipient)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.DepositStable(funder, recipient, req.Symbol, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type depositNonStableRequest struct {
	Recipient     string `json:"recipient,omitempty"`
	Symbol        string `json:"symbol" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Price         int64  `json:"price" validate:"required,gt=0"`
	PriceDeadline int64  `json:"price_deadline" validate:"required,gt=0"`
	PriceToken    string `json:"price_token" validate:"required"`
}

func (s *Server) handleDepositNonStable(w http.ResponseWriter, r *http.Request) {
	funder, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req depositNonStableRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	recipient, err := recipientOrCaller(funder, req.Recipient)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.DepositNonStable(funder, recipient, req.Symbol,
		req.Amount, req.Price, req.PriceDeadline, req.PriceToken); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type withdrawRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req withdrawRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Withdraw(owner, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.DeactivatePolicy(owner); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type cancelRequest struct {
	Premium  int64  `json:"premium" validate:"gte=0"`
	Deadline int64  `json:"deadline" validate:"required,gt=0"`
	Claim    string `json:"claim" validate:"required"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req cancelRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Cancel(owner, req.Premium, req.Deadline, req.Claim); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

// --- Collector ---

type chargeBatchRequest struct {
	Accounts   []string `json:"accounts" validate:"required,min=1"`
	Premiums   []int64  `json:"premiums" validate:"required,min=1"`
	BatchIndex int64    `json:"batch_index" validate:"gte=0"`
}

func (s *Server) handleChargePremiums(w http.ResponseWriter, r *http.Request) {
	collector, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req chargeBatchRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	accounts, err := parseUUIDs(req.Accounts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.ChargePremiums(collector, accounts, req.Premiums, req.BatchIndex); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type cancelBatchRequest struct {
	CommandID string   `json:"command_id,omitempty"`
	Accounts  []string `json:"accounts" validate:"required,min=1"`
	Premiums  []int64  `json:"premiums" validate:"required,min=1"`
}

func (s *Server) handleCancelPolicies(w http.ResponseWriter, r *http.Request) {
	collector, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req cancelBatchRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	accounts, err := parseUUIDs(req.Accounts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.CancelPolicies(collector, accounts, req.Premiums, req.CommandID); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

// --- Shared helpers ---

func purchaseParties(funder uuid.UUID, rawAccount, rawReferral string) (uuid.UUID, *uuid.UUID, error) {
	account := funder
	if rawAccount != "" {
		parsed, err := uuid.Parse(rawAccount)
		if err != nil {
			return uuid.Nil, nil, errs.Newf(errs.Validation, "malformed account address %q", rawAccount)
		}
		account = parsed
	}
	referral, err := optionalUUID(rawReferral)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return account, referral, nil
}

func recipientOrCaller(funder uuid.UUID, raw string) (uuid.UUID, error) {
	if raw == "" {
		return funder, nil
	}
	recipient, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.Newf(errs.Validation, "malformed recipient address %q", raw)
	}
	return recipient, nil
}

func policyView(policy cover.Policy) map[string]interface{} {
	return map[string]interface{}{
		"policy_id":                  policy.ID,
		"owner":                      policy.Owner.String(),
		"cover_limit":                policy.CoverLimit,
		"active":                     policy.Active,
		"pre_deactivate_cover_limit": policy.PreDeactivateCoverLimit,
		"created_at":                 policy.CreatedAt,
	}
}
