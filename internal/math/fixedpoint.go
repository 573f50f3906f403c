// internal/math/fixedpoint.go
package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	QuoteConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 (balances, premiums, cover limits)
	PriceConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 (attested asset prices)
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Truncate (amounts credited to accounts)
	RoundUp                       // Away from zero (amounts owed by accounts)
)

// MulDiv performs a * b / denominator using int128 intermediates to
// prevent overflow. Operands are expected non-negative; denominator
// must be positive.
func MulDiv(a, b, denominator int64, rounding RoundingMode) int64 {
	numerator := getInt128()
	numerator.Mul(big.NewInt(a), big.NewInt(b))

	quotient := getInt128()
	remainder := getInt128()
	quotient.QuoRem(numerator, big.NewInt(denominator), remainder)

	result := quotient.Int64()
	if rounding == RoundUp && remainder.Sign() != 0 {
		result++
	}

	putInt128(numerator)
	putInt128(quotient)
	putInt128(remainder)

	return result
}

// MulDiv3 performs a * b * c / denominator with int128 intermediates.
func MulDiv3(a, b, c, denominator int64, rounding RoundingMode) int64 {
	numerator := getInt128()
	numerator.Mul(big.NewInt(a), big.NewInt(b))
	numerator.Mul(numerator, big.NewInt(c))

	quotient := getInt128()
	remainder := getInt128()
	quotient.QuoRem(numerator, big.NewInt(denominator), remainder)

	result := quotient.Int64()
	if rounding == RoundUp && remainder.Sign() != 0 {
		result++
	}

	putInt128(numerator)
	putInt128(quotient)
	putInt128(remainder)

	return result
}

// MinRequiredBalance computes the minimum account balance backing a
// cover limit: coverLimit * rateNum / rateDenom * cycleSeconds — one
// full billing cycle at the maximum allowed premium rate. Rounded down
// so the floor never exceeds the exact product.
func MinRequiredBalance(coverLimit, rateNum, rateDenom, cycleSeconds int64) int64 {
	if coverLimit == 0 || rateNum == 0 {
		return 0
	}
	return MulDiv3(coverLimit, rateNum, cycleSeconds, rateDenom, RoundDown)
}

// ProportionalShare computes the part-proportional slice of amount:
// amount * part / whole, rounded up and clamped to part. Rounding up
// keeps `part <= whole` intact after both are reduced by their shares.
func ProportionalShare(amount, part, whole int64) int64 {
	if part == 0 || whole == 0 {
		return 0
	}
	share := MulDiv(amount, part, whole, RoundUp)
	if share > part {
		share = part
	}
	return share
}

// WeightedCapacity splits total capacity by strategy weight:
// total * weight / weightSum, rounded down.
func WeightedCapacity(total int64, weight, weightSum uint32) int64 {
	if weightSum == 0 {
		return 0
	}
	return MulDiv(total, int64(weight), int64(weightSum), RoundDown)
}

// ConvertAtPrice values an asset amount at an attested price:
// amount * price / PriceConfig.Scale, rounded down.
func ConvertAtPrice(amount, price int64) int64 {
	return MulDiv(amount, price, PriceConfig.Scale, RoundDown)
}

// NormalizeDecimals rescales an amount from an asset's native decimals
// to the ledger's quote precision. Precision beyond the quote scale is
// truncated.
func NormalizeDecimals(amount int64, assetDecimals int) int64 {
	diff := QuoteConfig.DecimalPrecision - assetDecimals
	if diff == 0 {
		return amount
	}
	if diff > 0 {
		return amount * pow10(diff)
	}
	return amount / pow10(-diff)
}

func pow10(n int) int64 {
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
