// internal/config/config_test.go
package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"CoverLedger/internal/config"
	"CoverLedger/internal/cover"
)

const validSeed = `
governance: "00000000-0000-0000-0000-0000000000a0"
collector: "00000000-0000-0000-0000-0000000000c0"
max_cover: 1000000000000
product:
  max_rate_num: 1
  max_rate_denom: 31536000
  charge_cycle: MONTHLY
  cooldown_seconds: 604800
  referral_reward: 50
  referral_on: true
  max_charge_batch_size: 500
  base_uri: "https://cover.example/policies/"
strategies:
  - address: "00000000-0000-0000-0000-0000000000f1"
    weight: 3
  - address: "00000000-0000-0000-0000-0000000000f2"
    weight: 1
movers:
  - "00000000-0000-0000-0000-0000000000d1"
signers:
  - key_id: oracle-1
    public_key: "MCowBQYDK2VwAyEA"
assets:
  - symbol: USDC
    decimals: 6
    stable: true
  - symbol: WETH
    decimals: 18
    stable: false
`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

// ===== Test: Load a valid seed =====

func TestLoadSeed(t *testing.T) {
	seed, err := config.LoadSeed(writeSeed(t, validSeed))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}

	if got := seed.GovernanceAddress().String(); got != "00000000-0000-0000-0000-0000000000a0" {
		t.Errorf("governance = %s", got)
	}
	cfg := seed.ProductConfig()
	if cfg.Cycle != cover.CycleMonthly {
		t.Errorf("cycle = %v, want monthly", cfg.Cycle)
	}
	if cfg.Collector != seed.CollectorAddress() {
		t.Errorf("collector not threaded into product config")
	}
	if cfg.ReferralReward != 50 || !cfg.ReferralOn {
		t.Errorf("referral settings not carried: %+v", cfg)
	}
	if len(seed.Strategies) != 2 || seed.Strategies[0].Weight != 3 {
		t.Errorf("strategies = %+v", seed.Strategies)
	}
	assets := seed.AssetList()
	if len(assets) != 2 || !assets[0].Stable || assets[1].Stable {
		t.Errorf("assets = %+v", assets)
	}
	if len(seed.MoverAddresses()) != 1 {
		t.Errorf("movers = %+v", seed.Movers)
	}
}

// ===== Test: Validation failures =====

func TestLoadSeedRejectsBadGovernance(t *testing.T) {
	bad := strings.Replace(validSeed, "00000000-0000-0000-0000-0000000000a0", "not-a-uuid", 1)
	if _, err := config.LoadSeed(writeSeed(t, bad)); err == nil {
		t.Fatal("expected error for malformed governance address")
	}
}

func TestValidateRequiresStrategy(t *testing.T) {
	seed := config.Default()
	seed.Strategies = nil
	if err := seed.Validate(); err == nil {
		t.Fatal("expected error when no strategies are configured")
	}
}

func TestValidateRejectsBadCycle(t *testing.T) {
	seed := config.Default()
	seed.Product.ChargeCycle = "FORTNIGHTLY"
	if err := seed.Validate(); err == nil {
		t.Fatal("expected error for unknown charge cycle")
	}
}

func TestValidateRejectsDuplicateAsset(t *testing.T) {
	seed := config.Default()
	seed.Assets = []config.AssetSeed{
		{Symbol: "USDC", Decimals: 6, Stable: true},
		{Symbol: "USDC", Decimals: 6, Stable: true},
	}
	if err := seed.Validate(); err == nil {
		t.Fatal("expected error for duplicate asset symbol")
	}
}

// ===== Test: Default seed is valid =====

func TestDefaultSeedValidates(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default seed failed validation: %v", err)
	}
}
