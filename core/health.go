package core

import (
	"context"
	"math/big"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// CalculateHealthFactor returns the solvency ratio of a position in
// canonical fixed point. An account with no debt is maximally healthy no
// matter what it holds. Below MIN_HEALTH_FACTOR the position is
// liquidatable.
func CalculateHealthFactor(totalDebt, totalCollateralUsd *big.Int) *big.Int {
	if totalDebt == nil || totalDebt.Sign() == 0 {
		return new(big.Int).Set(MAX_HEALTH_FACTOR)
	}
	adjusted := new(big.Int).Mul(totalCollateralUsd, LIQUIDATION_THRESHOLD)
	adjusted.Quo(adjusted, LIQUIDATION_PRECISION)
	factor := adjusted.Mul(adjusted, PRECISION)
	return factor.Quo(factor, totalDebt)
}

// projection overlays not-yet-persisted ledger values over the stored state
// so invariant checks see the operation's outcome before anything commits.
type projection struct {
	collateral map[string]*big.Int
	debt       *big.Int
}

// accountInformation returns the account's outstanding debt and the USD
// value of its collateral summed over every registered asset, with the
// projection (if any) applied on top of the stores.
func (e *Engine) accountInformation(ctx context.Context, accountId uuid.UUID, proj *projection) (*big.Int, *big.Int, error) {
	debt := big.NewInt(0)
	if proj != nil && proj.debt != nil {
		debt.Set(proj.debt)
	} else {
		position, err := e.ledger.FindDebt(ctx, accountId)
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, nil, err
		}
		if err == nil {
			debt.Set(position.Minted)
		}
	}

	totalUsd := big.NewInt(0)
	for _, assetId := range e.assetIds {
		reg := e.assets[assetId]
		amount, err := e.collateralAmount(ctx, accountId, assetId, proj)
		if err != nil {
			return nil, nil, err
		}
		if amount.Sign() == 0 {
			continue
		}
		price, err := e.freshPrice(ctx, reg)
		if err != nil {
			return nil, nil, err
		}
		totalUsd.Add(totalUsd, usdValue(price, amount, reg.asset.Decimals))
	}
	return debt, totalUsd, nil
}

func (e *Engine) collateralAmount(ctx context.Context, accountId uuid.UUID, assetId string, proj *projection) (*big.Int, error) {
	if proj != nil {
		if amount, ok := proj.collateral[assetId]; ok {
			return amount, nil
		}
	}
	balance, err := e.ledger.FindCollateral(ctx, accountId, assetId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return balance.Amount, nil
}

func (e *Engine) healthFactor(ctx context.Context, accountId uuid.UUID, proj *projection) (*big.Int, error) {
	debt, totalUsd, err := e.accountInformation(ctx, accountId, proj)
	if err != nil {
		return nil, err
	}
	return CalculateHealthFactor(debt, totalUsd), nil
}
