package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Service provides read-only access to the projection tables. All
// responses carry as_of_sequence so callers can reason about
// freshness relative to the engine's live sequence.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetAccount returns one projected account. A never-touched address
// returns a zero account rather than an error: every address is a
// valid (empty) ledger account.
func (s *Service) GetAccount(ctx context.Context, address uuid.UUID) (*AccountResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &AccountResponse{Address: address, AsOfSequence: asOfSeq}
	err = s.db.QueryRowContext(ctx, `
		SELECT balance, non_refundable, reward_points, cooldown_start, used_referral
		FROM cover_read.accounts
		WHERE address = $1
	`, address).Scan(&resp.Balance, &resp.NonRefundable, &resp.RewardPoints,
		&resp.CooldownStart, &resp.UsedReferral)
	if err == sql.ErrNoRows {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetPolicyByOwner returns the owner's policy, or nil when the owner
// never held one.
func (s *Service) GetPolicyByOwner(ctx context.Context, owner uuid.UUID) (*PolicyResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &PolicyResponse{AsOfSequence: asOfSeq}
	err = s.db.QueryRowContext(ctx, `
		SELECT policy_id, owner, cover_limit, pre_deactivate_cover_limit, active, created_at
		FROM cover_read.policies
		WHERE owner = $1
	`, owner).Scan(&resp.PolicyID, &resp.Owner, &resp.CoverLimit,
		&resp.PreDeactivateCoverLimit, &resp.Active, &resp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetPolicyByID returns one policy by its ID, or nil when no such
// policy was ever created.
func (s *Service) GetPolicyByID(ctx context.Context, policyID uint64) (*PolicyResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &PolicyResponse{AsOfSequence: asOfSeq}
	err = s.db.QueryRowContext(ctx, `
		SELECT policy_id, owner, cover_limit, pre_deactivate_cover_limit, active, created_at
		FROM cover_read.policies
		WHERE policy_id = $1
	`, int64(policyID)).Scan(&resp.PolicyID, &resp.Owner, &resp.CoverLimit,
		&resp.PreDeactivateCoverLimit, &resp.Active, &resp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListActivePolicies returns active policies ordered by ID. The
// collector uses this to build its billing batches.
func (s *Service) ListActivePolicies(ctx context.Context, limit, offset int) ([]PolicyResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, owner, cover_limit, pre_deactivate_cover_limit, active, created_at
		FROM cover_read.policies
		WHERE active
		ORDER BY policy_id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []PolicyResponse
	for rows.Next() {
		var p PolicyResponse
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(&p.PolicyID, &p.Owner, &p.CoverLimit,
			&p.PreDeactivateCoverLimit, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}

	return policies, rows.Err()
}

// GetPremiumHistory returns an owner's premium charges and
// settlements, most recent first.
func (s *Service) GetPremiumHistory(ctx context.Context, owner uuid.UUID, limit int) ([]PremiumChargeResponse, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, sequence, policy_id, owner, premium, charged,
		       from_rewards, from_balance, batch_index, outcome,
		       EXTRACT(EPOCH FROM ts)::BIGINT
		FROM cover_read.premium_history
		WHERE owner = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PremiumChargeResponse
	for rows.Next() {
		var r PremiumChargeResponse
		if err := rows.Scan(&r.EventID, &r.Sequence, &r.PolicyID, &r.Owner,
			&r.Premium, &r.Charged, &r.FromRewards, &r.FromBalance,
			&r.BatchIndex, &r.Outcome, &r.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// Watermark returns the last sequence the main projection applied, -1
// before any output has been projected.
func (s *Service) Watermark(ctx context.Context) (int64, error) {
	return s.getWatermark(ctx)
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT sequence FROM cover_read.watermarks WHERE projection = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return seq, nil
}
