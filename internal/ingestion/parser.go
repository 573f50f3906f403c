package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Command is a parsed collector command, ready for the engine loop.
type Command interface {
	CommandType() string
}

// ChargePremiumBatch bills one premium per listed account. The batch
// index is the collector's idempotency key.
type ChargePremiumBatch struct {
	Collector  uuid.UUID
	Accounts   []uuid.UUID
	Premiums   []int64
	BatchIndex int64
}

func (c *ChargePremiumBatch) CommandType() string { return CommandTypeChargePremiums }

// CancelPolicyBatch settles and closes the listed policies at the
// collector-attested premiums. CommandID dedups transport redelivery.
type CancelPolicyBatch struct {
	CommandID string
	Collector uuid.UUID
	Accounts  []uuid.UUID
	Premiums  []int64
}

func (c *CancelPolicyBatch) CommandType() string { return CommandTypeCancelPolicies }

// ParseRawCommand converts a RawCommand (JSON bytes + command type
// string) into a typed Command. The shell validates shape here; the
// business rules (length match, batch size, collector role) stay in
// the engine so rejections carry the typed error taxonomy.
func ParseRawCommand(raw RawCommand, commandType string) (Command, error) {
	switch commandType {
	case CommandTypeChargePremiums:
		return parseChargePremiumBatch(raw.Data)
	case CommandTypeCancelPolicies:
		return parseCancelPolicyBatch(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match the collector.

type chargeBatchJSON struct {
	Collector  string   `json:"collector"`
	Accounts   []string `json:"accounts"`
	Premiums   []int64  `json:"premiums"`
	BatchIndex int64    `json:"batch_index"`
}

func parseChargePremiumBatch(data []byte) (*ChargePremiumBatch, error) {
	var j chargeBatchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ChargePremiumBatch: %w", err)
	}

	collector, err := uuid.Parse(j.Collector)
	if err != nil {
		return nil, fmt.Errorf("parse collector: %w", err)
	}
	accounts, err := parseAccounts(j.Accounts)
	if err != nil {
		return nil, err
	}

	return &ChargePremiumBatch{
		Collector:  collector,
		Accounts:   accounts,
		Premiums:   j.Premiums,
		BatchIndex: j.BatchIndex,
	}, nil
}

type cancelBatchJSON struct {
	CommandID string   `json:"command_id"`
	Collector string   `json:"collector"`
	Accounts  []string `json:"accounts"`
	Premiums  []int64  `json:"premiums"`
}

func parseCancelPolicyBatch(data []byte) (*CancelPolicyBatch, error) {
	var j cancelBatchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelPolicyBatch: %w", err)
	}

	collector, err := uuid.Parse(j.Collector)
	if err != nil {
		return nil, fmt.Errorf("parse collector: %w", err)
	}
	accounts, err := parseAccounts(j.Accounts)
	if err != nil {
		return nil, err
	}
	if j.CommandID == "" {
		return nil, fmt.Errorf("parse CancelPolicyBatch: missing command_id")
	}

	return &CancelPolicyBatch{
		CommandID: j.CommandID,
		Collector: collector,
		Accounts:  accounts,
		Premiums:  j.Premiums,
	}, nil
}

func parseAccounts(raw []string) ([]uuid.UUID, error) {
	accounts := make([]uuid.UUID, 0, len(raw))
	for i, s := range raw {
		addr, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse accounts[%d]: %w", i, err)
		}
		accounts = append(accounts, addr)
	}
	return accounts, nil
}
