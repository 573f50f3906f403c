// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"CoverLedger/internal/engine"
	"CoverLedger/internal/errs"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/query"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server is the HTTP API over the engine and the projection reads.
// Mutations are forwarded to the engine's execution slot; live reads
// come from the engine, historical reads from the query service.
//
// Caller identity arrives in the X-Caller-Address header. Upstream
// authentication (who may present which address) is a gateway concern
// outside this service.
type Server struct {
	addr     string
	engine   *engine.Engine
	queries  *query.Service
	health   *observability.HealthChecker
	validate *validator.Validate
	logger   zerolog.Logger

	httpServer *http.Server
}

func NewServer(addr string, eng *engine.Engine, queries *query.Service, health *observability.HealthChecker) *Server {
	s := &Server{
		addr:     addr,
		engine:   eng,
		queries:  queries,
		health:   health,
		validate: validator.New(),
		logger:   observability.NewLogger("http"),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Caller-Address"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		// Reads
		r.Get("/status", s.handleStatus)
		r.Get("/risk", s.handleRisk)
		r.Get("/product", s.handleProduct)
		r.Get("/min-required-balance", s.handleMinRequiredBalance)
		r.Get("/accounts/{address}", s.handleGetAccount)
		r.Get("/accounts/{address}/premiums", s.handlePremiumHistory)
		r.Get("/policies", s.handleListActivePolicies)
		r.Get("/policies/{policyID}", s.handleGetPolicy)
		r.Get("/policies/{policyID}/uri", s.handleTokenURI)
		r.Get("/policies/owner/{address}", s.handlePolicyByOwner)

		// Policyholder mutations
		r.Post("/policies/purchase", s.handlePurchase)
		r.Post("/policies/purchase/stable", s.handlePurchaseStable)
		r.Post("/policies/purchase/non-stable", s.handlePurchaseNonStable)
		r.Post("/policies/deactivate", s.handleDeactivate)
		r.Post("/policies/cancel", s.handleCancel)
		r.Post("/deposits", s.handleDeposit)
		r.Post("/deposits/stable", s.handleDepositStable)
		r.Post("/deposits/non-stable", s.handleDepositNonStable)
		r.Post("/withdrawals", s.handleWithdraw)

		// Collector
		r.Post("/billing/charge", s.handleChargePremiums)
		r.Post("/billing/cancel", s.handleCancelPolicies)

		// Governance
		r.Post("/governance/pending", s.handleSetPendingGovernance)
		r.Post("/governance/accept", s.handleAcceptGovernance)
		r.Post("/config/max-rate", s.handleSetMaxRate)
		r.Post("/config/charge-cycle", s.handleSetChargeCycle)
		r.Post("/config/paused", s.handleSetPaused)
		r.Post("/config/cooldown", s.handleSetCooldown)
		r.Post("/config/referral-reward", s.handleSetReferralReward)
		r.Post("/config/referral-on", s.handleSetReferralOn)
		r.Post("/config/max-batch-size", s.handleSetMaxChargeBatchSize)
		r.Post("/config/base-uri", s.handleSetBaseURI)
		r.Post("/config/collector", s.handleSetCollector)
		r.Post("/strategies", s.handleAddStrategy)
		r.Post("/strategies/statuses", s.handleSetStrategyStatuses)
		r.Post("/strategies/weights", s.handleSetWeightAllocation)
		r.Post("/movers", s.handleAddMover)
		r.Post("/movers/statuses", s.handleSetMoverStatuses)
		r.Delete("/movers/{address}", s.handleRemoveMover)
		r.Post("/retainers/statuses", s.handleSetRetainerStatuses)
		r.Delete("/retainers/{address}", s.handleRemoveRetainer)
		r.Post("/signers", s.handleAddSigner)
		r.Delete("/signers/{keyID}", s.handleRemoveSigner)
		r.Post("/assets", s.handleAddAsset)
		r.Delete("/assets/{symbol}", s.handleRemoveAsset)
		r.Post("/pool/sweep", s.handleSweepPremiums)
	})

	return r
}

// Handler exposes the routed handler, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info().Str("addr", s.addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// --- Shared plumbing ---

// caller extracts the caller address from X-Caller-Address.
func caller(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-Caller-Address")
	if raw == "" {
		return uuid.Nil, errs.New(errs.Authorization, "missing X-Caller-Address header")
	}
	addr, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.Validation, "malformed X-Caller-Address", err)
	}
	return addr, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	addr, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.Newf(errs.Validation, "malformed %s %q", name, raw)
	}
	return addr, nil
}

// decode unmarshals and validates a request body.
func (s *Server) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.Validation, "malformed request body", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return errs.Wrap(errs.Validation, "invalid request", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error    string                 `json:"error"`
	Category string                 `json:"category,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var domainErr *errs.Error
	if errors.As(err, &domainErr) {
		resp.Category = string(domainErr.Category)
		resp.Details = domainErr.Details
	}
	writeJSON(w, errs.HTTPStatus(err), resp)
}

// accepted is the uniform success body for mutations; state reads go
// through the read endpoints.
func (s *Server) accepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// optionalUUID parses an optional address field, "" meaning absent.
func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	addr, err := uuid.Parse(raw)
	if err != nil {
		return nil, errs.Newf(errs.Validation, "malformed address %q", raw)
	}
	return &addr, nil
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for i, s := range raw {
		addr, err := uuid.Parse(s)
		if err != nil {
			return nil, errs.Newf(errs.Validation, "malformed address at index %d", i)
		}
		out = append(out, addr)
	}
	return out, nil
}
