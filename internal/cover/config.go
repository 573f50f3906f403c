// internal/cover/config.go
package cover

import (
	"CoverLedger/internal/errs"

	"github.com/google/uuid"
)

// Config carries the governed product parameters. Mutations go through
// the setters so an invalid value can never land in a running product.
// Not thread-safe. Only accessed by the engine under its execution slot.
type Config struct {
	// MaxRateNum / MaxRateDenom bound the premium chargeable per
	// second of coverage per unit of cover limit.
	MaxRateNum   int64
	MaxRateDenom int64

	Cycle  ChargeCycle
	Paused bool

	// CooldownSeconds is the wait between deactivation and
	// unrestricted withdrawal.
	CooldownSeconds int64

	ReferralReward int64
	ReferralOn     bool

	MaxChargeBatchSize int
	BaseURI            string

	// Collector is the only caller allowed to run premium batches.
	Collector uuid.UUID
}

// DefaultConfig mirrors the deployment defaults; the seed file
// overrides per environment.
func DefaultConfig() Config {
	return Config{
		MaxRateNum:         1,
		MaxRateDenom:       315360000, // 1e-8 per second, ~31.5% of cover per year
		Cycle:              CycleWeekly,
		Paused:             false,
		CooldownSeconds:    604800,
		ReferralReward:     50_000000,
		ReferralOn:         true,
		MaxChargeBatchSize: 1000,
		BaseURI:            "https://coverledger.example/policies/",
	}
}

func (c *Config) SetMaxRate(num, denom int64) error {
	if num < 0 {
		return errs.Newf(errs.Validation, "max rate numerator must not be negative, got %d", num)
	}
	if denom <= 0 {
		return errs.Newf(errs.Validation, "max rate denominator must be positive, got %d", denom)
	}
	c.MaxRateNum = num
	c.MaxRateDenom = denom
	return nil
}

func (c *Config) SetChargeCycle(cycle ChargeCycle) error {
	if !cycle.Valid() {
		return errs.Newf(errs.Validation, "charge cycle %d is out of range", int32(cycle))
	}
	c.Cycle = cycle
	return nil
}

func (c *Config) SetPaused(paused bool) {
	c.Paused = paused
}

func (c *Config) SetCooldownSeconds(seconds int64) error {
	if seconds < 0 {
		return errs.Newf(errs.Validation, "cooldown period must not be negative, got %d", seconds)
	}
	c.CooldownSeconds = seconds
	return nil
}

func (c *Config) SetReferralReward(amount int64) error {
	if amount < 0 {
		return errs.Newf(errs.Validation, "referral reward must not be negative, got %d", amount)
	}
	c.ReferralReward = amount
	return nil
}

func (c *Config) SetReferralOn(on bool) {
	c.ReferralOn = on
}

func (c *Config) SetMaxChargeBatchSize(n int) error {
	if n <= 0 {
		return errs.Newf(errs.Validation, "max charge batch size must be positive, got %d", n)
	}
	c.MaxChargeBatchSize = n
	return nil
}

func (c *Config) SetBaseURI(uri string) {
	c.BaseURI = uri
}

func (c *Config) SetCollector(addr uuid.UUID) error {
	if addr == uuid.Nil {
		return errs.New(errs.Validation, "collector address must not be the zero address")
	}
	c.Collector = addr
	return nil
}
