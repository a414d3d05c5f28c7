package core

import (
	"math/big"
	"time"
)

const (
	// CANONICAL_DECIMALS is the fixed-point scale every USD value and debt
	// amount is expressed in.
	CANONICAL_DECIMALS = 18

	// FEED_DECIMALS is the fractional precision oracle adapters quote at.
	FEED_DECIMALS = 8

	DEFAULT_MAX_PRICE_AGE = 3 * time.Hour
)

var (
	PRECISION                 = mustBigInt("1000000000000000000")
	ADDITIONAL_FEED_PRECISION = mustBigInt("10000000000")

	// A position must be at least 200% overcollateralized: only half of the
	// collateral's USD value counts toward the health factor.
	LIQUIDATION_THRESHOLD = big.NewInt(50)
	LIQUIDATION_PRECISION = big.NewInt(100)
	LIQUIDATION_BONUS     = big.NewInt(10)

	MIN_HEALTH_FACTOR = mustBigInt("1000000000000000000")
	MAX_HEALTH_FACTOR = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)
