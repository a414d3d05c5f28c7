package core

import (
	"math/big"

	"github.com/shopspring/decimal"
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// scaleToCanonical normalizes a raw amount from the asset's native precision
// to the canonical 18-digit scale. Skipping this step for assets that do not
// use 18 decimals mis-values them by orders of magnitude, so every valuation
// path goes through here.
func scaleToCanonical(amount *big.Int, decimals int32) *big.Int {
	if decimals == CANONICAL_DECIMALS {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Mul(amount, pow10(CANONICAL_DECIMALS-decimals))
}

// scaleFromCanonical is the inverse, truncating toward zero.
func scaleFromCanonical(amount *big.Int, decimals int32) *big.Int {
	if decimals == CANONICAL_DECIMALS {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Quo(amount, pow10(CANONICAL_DECIMALS-decimals))
}

// usdValue converts a raw collateral amount to canonical USD fixed point.
// price carries FEED_DECIMALS fractional digits. Multiplications happen
// before the single division.
func usdValue(price, amount *big.Int, decimals int32) *big.Int {
	scaledPrice := new(big.Int).Mul(price, ADDITIONAL_FEED_PRECISION)
	scaledAmount := scaleToCanonical(amount, decimals)
	value := new(big.Int).Mul(scaledPrice, scaledAmount)
	return value.Quo(value, PRECISION)
}

// tokenAmountFromUsd is the exact inverse of usdValue. Both divisions
// truncate toward zero, so converting a value back and forth may lose dust
// at small amounts; the result is never larger than the true quotient.
func tokenAmountFromUsd(price, usd *big.Int, decimals int32) *big.Int {
	scaledPrice := new(big.Int).Mul(price, ADDITIONAL_FEED_PRECISION)
	amount := new(big.Int).Mul(usd, PRECISION)
	amount.Quo(amount, scaledPrice)
	return scaleFromCanonical(amount, decimals)
}

// DecimalFromFixed renders a raw fixed-point amount as a human decimal.
func DecimalFromFixed(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// FixedFromDecimal converts a human decimal into raw fixed point, truncating
// anything below the asset's native precision.
func FixedFromDecimal(d decimal.Decimal, decimals int32) *big.Int {
	return d.Shift(decimals).Truncate(0).BigInt()
}
