// internal/config/config.go
//
// Seed configuration for a cold start. When the engine boots with no
// snapshot and an empty event log, the seed file supplies the genesis
// state: governance and collector addresses, capital strategies,
// accepted assets, attestation signer keys, and the product defaults.
// Recovered starts ignore the seed entirely; state comes from the
// snapshot and the event log.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"CoverLedger/internal/cover"
	"CoverLedger/internal/payment"
)

type Seed struct {
	Governance string `yaml:"governance"`
	Collector  string `yaml:"collector"`
	// MaxCover is the underwriting capital ceiling backing the pool.
	MaxCover int64 `yaml:"max_cover"`

	Product    ProductSeed    `yaml:"product"`
	Strategies []StrategySeed `yaml:"strategies"`
	Movers     []string       `yaml:"movers,omitempty"`
	Signers    []SignerSeed   `yaml:"signers,omitempty"`
	Assets     []AssetSeed    `yaml:"assets,omitempty"`
}

type ProductSeed struct {
	MaxRateNum         int64  `yaml:"max_rate_num"`
	MaxRateDenom       int64  `yaml:"max_rate_denom"`
	ChargeCycle        string `yaml:"charge_cycle"`
	CooldownSeconds    int64  `yaml:"cooldown_seconds"`
	ReferralReward     int64  `yaml:"referral_reward"`
	ReferralOn         bool   `yaml:"referral_on"`
	MaxChargeBatchSize int    `yaml:"max_charge_batch_size"`
	BaseURI            string `yaml:"base_uri"`
}

type StrategySeed struct {
	Address string `yaml:"address"`
	Weight  uint32 `yaml:"weight"`
}

type SignerSeed struct {
	KeyID     string `yaml:"key_id"`
	PublicKey string `yaml:"public_key"` // base64 Ed25519 public key
}

type AssetSeed struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Stable   bool   `yaml:"stable"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	seed := &Seed{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return seed, nil
}

// Validate checks that every field parses and the product defaults are
// usable before the engine is built around them.
func (s *Seed) Validate() error {
	if _, err := uuid.Parse(s.Governance); err != nil {
		return fmt.Errorf("governance: %w", err)
	}
	if _, err := uuid.Parse(s.Collector); err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	if s.MaxCover <= 0 {
		return fmt.Errorf("max_cover must be positive")
	}
	if s.Product.MaxRateNum <= 0 || s.Product.MaxRateDenom <= 0 {
		return fmt.Errorf("product max rate must be positive")
	}
	if _, err := cover.ParseChargeCycle(s.Product.ChargeCycle); err != nil {
		return fmt.Errorf("product.charge_cycle: %w", err)
	}
	if s.Product.CooldownSeconds < 0 {
		return fmt.Errorf("product.cooldown_seconds must not be negative")
	}
	if s.Product.MaxChargeBatchSize <= 0 {
		return fmt.Errorf("product.max_charge_batch_size must be positive")
	}
	if len(s.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	for i, st := range s.Strategies {
		if _, err := uuid.Parse(st.Address); err != nil {
			return fmt.Errorf("strategies[%d].address: %w", i, err)
		}
		if st.Weight == 0 {
			return fmt.Errorf("strategies[%d].weight must be positive", i)
		}
	}
	for i, m := range s.Movers {
		if _, err := uuid.Parse(m); err != nil {
			return fmt.Errorf("movers[%d]: %w", i, err)
		}
	}
	for i, sg := range s.Signers {
		if sg.KeyID == "" {
			return fmt.Errorf("signers[%d].key_id is required", i)
		}
		if sg.PublicKey == "" {
			return fmt.Errorf("signers[%d].public_key is required", i)
		}
	}
	seen := make(map[string]bool, len(s.Assets))
	for i, a := range s.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("assets[%d].symbol is required", i)
		}
		if seen[a.Symbol] {
			return fmt.Errorf("assets[%d]: duplicate symbol %q", i, a.Symbol)
		}
		seen[a.Symbol] = true
	}
	return nil
}

// GovernanceAddress returns the parsed governance address. Call only
// after Validate.
func (s *Seed) GovernanceAddress() uuid.UUID {
	return uuid.MustParse(s.Governance)
}

func (s *Seed) CollectorAddress() uuid.UUID {
	return uuid.MustParse(s.Collector)
}

func (s *Seed) MoverAddresses() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.Movers))
	for _, m := range s.Movers {
		out = append(out, uuid.MustParse(m))
	}
	return out
}

// ProductConfig converts the product seed into the engine's config
// shape. Call only after Validate.
func (s *Seed) ProductConfig() cover.Config {
	cycle, _ := cover.ParseChargeCycle(s.Product.ChargeCycle)
	return cover.Config{
		MaxRateNum:         s.Product.MaxRateNum,
		MaxRateDenom:       s.Product.MaxRateDenom,
		Cycle:              cycle,
		CooldownSeconds:    s.Product.CooldownSeconds,
		ReferralReward:     s.Product.ReferralReward,
		ReferralOn:         s.Product.ReferralOn,
		MaxChargeBatchSize: s.Product.MaxChargeBatchSize,
		BaseURI:            s.Product.BaseURI,
		Collector:          s.CollectorAddress(),
	}
}

// AssetList converts the asset seeds into registry entries.
func (s *Seed) AssetList() []payment.Asset {
	out := make([]payment.Asset, 0, len(s.Assets))
	for _, a := range s.Assets {
		out = append(out, payment.Asset{Symbol: a.Symbol, Decimals: a.Decimals, Stable: a.Stable})
	}
	return out
}

// Default returns a seed usable for local development.
func Default() *Seed {
	return &Seed{
		Governance: "00000000-0000-0000-0000-0000000000a0",
		Collector:  "00000000-0000-0000-0000-0000000000c0",
		MaxCover:   1_000_000_000000,
		Product: ProductSeed{
			MaxRateNum:         1,
			MaxRateDenom:       31_536_000, // one unit per cover-limit unit per year
			ChargeCycle:        "MONTHLY",
			CooldownSeconds:    604_800,
			ReferralReward:     0,
			ReferralOn:         false,
			MaxChargeBatchSize: 500,
			BaseURI:            "https://cover.example/policies/",
		},
		Strategies: []StrategySeed{
			{Address: "00000000-0000-0000-0000-0000000000f1", Weight: 1},
		},
	}
}
