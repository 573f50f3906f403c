// internal/server/admin.go
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"CoverLedger/internal/cover"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/payment"
)

// Governance handlers. Every one of these forwards to the engine, which
// enforces that the caller holds the governance seat; the server only
// shapes the wire format.

type addressRequest struct {
	Address string `json:"address" validate:"required,uuid"`
}

func (s *Server) handleSetPendingGovernance(w http.ResponseWriter, r *http.Request) {
	s.govAddressOp(w, r, s.engine.SetPendingGovernance)
}

func (s *Server) handleAcceptGovernance(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.AcceptGovernance(who); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type maxRateRequest struct {
	Num   int64 `json:"num" validate:"required,gt=0"`
	Denom int64 `json:"denom" validate:"required,gt=0"`
}

func (s *Server) handleSetMaxRate(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req maxRateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.SetMaxRate(who, req.Num, req.Denom); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type chargeCycleRequest struct {
	Cycle string `json:"cycle" validate:"required"`
}

func (s *Server) handleSetChargeCycle(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req chargeCycleRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	cycle, err := cover.ParseChargeCycle(req.Cycle)
	if err != nil {
		s.writeError(w, errs.Wrap(errs.Validation, "invalid charge cycle", err))
		return
	}
	if err := s.engine.SetChargeCycle(who, cycle); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type flagRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req flagRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.SetPaused(who, req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleSetReferralOn(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req flagRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.SetReferralOn(who, req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type amountRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

func (s *Server) handleSetCooldown(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req amountRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.SetCooldownSeconds(who, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleSetReferralReward(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req amountRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.SetReferralReward(who, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type batchSizeRequest struct {
	Size int `json:"size" validate:"required,gt=0"`
}

func (s *Server) handleSetMaxChargeBatchSize(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req batchSizeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.SetMaxChargeBatchSize(who, req.Size); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type baseURIRequest struct {
	URI string `json:"uri" validate:"required"`
}

func (s *Server) handleSetBaseURI(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req baseURIRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.SetBaseURI(who, req.URI); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleSetCollector(w http.ResponseWriter, r *http.Request) {
	s.govAddressOp(w, r, s.engine.SetCollector)
}

type addStrategyRequest struct {
	Address string `json:"address" validate:"required,uuid"`
	Weight  uint32 `json:"weight" validate:"required,gt=0"`
}

func (s *Server) handleAddStrategy(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req addStrategyRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	strategy, err := uuid.Parse(req.Address)
	if err != nil {
		s.writeError(w, errs.Newf(errs.Validation, "malformed strategy address %q", req.Address))
		return
	}
	if err := s.engine.AddStrategy(who, strategy, req.Weight); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type statusesRequest struct {
	Addresses []string `json:"addresses" validate:"required,min=1"`
	Statuses  []bool   `json:"statuses" validate:"required,min=1"`
}

func (s *Server) handleSetStrategyStatuses(w http.ResponseWriter, r *http.Request) {
	s.govStatusesOp(w, r, s.engine.SetStrategyStatuses)
}

func (s *Server) handleSetMoverStatuses(w http.ResponseWriter, r *http.Request) {
	s.govStatusesOp(w, r, s.engine.SetMoverStatuses)
}

func (s *Server) handleSetRetainerStatuses(w http.ResponseWriter, r *http.Request) {
	s.govStatusesOp(w, r, s.engine.SetRetainerStatuses)
}

type weightsRequest struct {
	Addresses []string `json:"addresses" validate:"required,min=1"`
	Weights   []uint32 `json:"weights" validate:"required,min=1"`
}

func (s *Server) handleSetWeightAllocation(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req weightsRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	strategies, err := parseUUIDs(req.Addresses)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.SetWeightAllocation(who, strategies, req.Weights); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleAddMover(w http.ResponseWriter, r *http.Request) {
	s.govAddressOp(w, r, s.engine.AddMover)
}

func (s *Server) handleRemoveMover(w http.ResponseWriter, r *http.Request) {
	s.govRemoveOp(w, r, s.engine.RemoveMover)
}

func (s *Server) handleRemoveRetainer(w http.ResponseWriter, r *http.Request) {
	s.govRemoveOp(w, r, s.engine.RemoveRetainer)
}

// govRemoveOp handles the DELETE-by-path-address shape shared by the
// mover and retainer registries.
func (s *Server) govRemoveOp(w http.ResponseWriter, r *http.Request, op func(caller, addr uuid.UUID) error) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	addr, err := pathUUID(r, "address")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := op(who, addr); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type addSignerRequest struct {
	KeyID     string `json:"key_id" validate:"required"`
	PublicKey string `json:"public_key" validate:"required,base64"`
}

func (s *Server) handleAddSigner(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req addSignerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.AddSigner(who, req.KeyID, req.PublicKey); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleRemoveSigner(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	keyID := chi.URLParam(r, "keyID")
	if keyID == "" {
		s.writeError(w, errs.New(errs.Validation, "missing key id"))
		return
	}
	if err := s.engine.RemoveSigner(who, keyID); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type addAssetRequest struct {
	Symbol   string `json:"symbol" validate:"required"`
	Decimals uint8  `json:"decimals" validate:"lte=18"`
	Stable   bool   `json:"stable"`
}

func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req addAssetRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	asset := payment.Asset{Symbol: req.Symbol, Decimals: req.Decimals, Stable: req.Stable}
	if err := s.engine.AddAsset(who, asset); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		s.writeError(w, errs.New(errs.Validation, "missing asset symbol"))
		return
	}
	if err := s.engine.RemoveAsset(who, symbol); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

type sweepRequest struct {
	To     string `json:"to" validate:"required,uuid"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

func (s *Server) handleSweepPremiums(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req sweepRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	to, err := uuid.Parse(req.To)
	if err != nil {
		s.writeError(w, errs.Newf(errs.Validation, "malformed sweep target %q", req.To))
		return
	}
	if err := s.engine.SweepPremiums(who, to, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

// govAddressOp handles the caller-plus-single-address shape shared by
// several governance operations.
func (s *Server) govAddressOp(w http.ResponseWriter, r *http.Request, op func(caller, addr uuid.UUID) error) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req addressRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	addr, err := uuid.Parse(req.Address)
	if err != nil {
		s.writeError(w, errs.Newf(errs.Validation, "malformed address %q", req.Address))
		return
	}
	if err := op(who, addr); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) govStatusesOp(w http.ResponseWriter, r *http.Request, op func(caller uuid.UUID, addrs []uuid.UUID, statuses []bool) error) {
	who, err := caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req statusesRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	addrs, err := parseUUIDs(req.Addresses)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := op(who, addrs, req.Statuses); err != nil {
		s.writeError(w, err)
		return
	}
	s.accepted(w)
}
