package core

import (
	"context"
	"math/big"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// LiquidateResult reports what a committed liquidation did to the target's
// position.
type LiquidateResult struct {
	Asset *CollateralAsset `json:"asset"`

	DebtCovered      *big.Int `json:"debtCovered"`
	CollateralSeized *big.Int `json:"collateralSeized"`
	Bonus            *big.Int `json:"bonus"`

	TargetPreHealth  *big.Int `json:"targetPreHealth"`
	TargetPostHealth *big.Int `json:"targetPostHealth"`

	TargetPreBalance  *CollateralBalance `json:"targetPreBalance"`
	TargetPostBalance *CollateralBalance `json:"targetPostBalance"`
	TargetPreDebt     *DebtPosition      `json:"targetPreDebt"`
	TargetPostDebt    *DebtPosition      `json:"targetPostDebt"`
}

// Liquidate lets a third party close out an undercollateralized position.
// The liquidator repays debtToCover of the target's debt from their own
// pegged-token holdings and receives the equivalent collateral plus a bonus.
// Every gate is evaluated against projected state; nothing persists unless
// all gates pass:
//
//  1. the target's health factor is below minimum,
//  2. the target holds enough collateral for base + bonus (seizure never
//     under-seizes silently),
//  3. the liquidation strictly improves the target's health factor,
//  4. the liquidator's own position stays solvent.
func (e *Engine) Liquidate(ctx context.Context, liquidator, target uuid.UUID, assetId string, debtToCover *big.Int) (*LiquidateResult, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	if err := requirePositive(debtToCover); err != nil {
		return nil, err
	}
	reg, err := e.registered(assetId)
	if err != nil {
		return nil, err
	}

	startingHealth, err := e.healthFactor(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	if startingHealth.Cmp(MIN_HEALTH_FACTOR) >= 0 {
		return nil, errors.Wrapf(HealthFactorOk, "health factor %s", startingHealth)
	}

	price, err := e.freshPrice(ctx, reg)
	if err != nil {
		return nil, err
	}
	baseAmount := tokenAmountFromUsd(price, debtToCover, reg.asset.Decimals)
	bonus := new(big.Int).Mul(baseAmount, LIQUIDATION_BONUS)
	bonus.Quo(bonus, LIQUIDATION_PRECISION)
	seized := new(big.Int).Add(baseAmount, bonus)

	targetBalance, err := e.ledger.FindCollateral(ctx, target, assetId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Wrapf(InsufficientBalance, "liquidate: target holds no %s", assetId)
		}
		return nil, err
	}
	remainingCollateral := new(big.Int).Sub(targetBalance.Amount, seized)
	if remainingCollateral.Sign() < 0 {
		// Known systemic limitation: a severely undercollateralized target
		// may not cover base + bonus. The liquidation fails whole rather
		// than under-seizing.
		return nil, errors.Wrapf(InsufficientBalance, "liquidate: seize %s exceeds held %s", seized, targetBalance.Amount)
	}

	targetDebt, err := e.ledger.FindDebt(ctx, target)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Wrap(InsufficientBalance, "liquidate: target has no debt")
		}
		return nil, err
	}
	remainingDebt := new(big.Int).Sub(targetDebt.Minted, debtToCover)
	if remainingDebt.Sign() < 0 {
		return nil, errors.Wrapf(InsufficientBalance, "liquidate: cover %s exceeds debt %s", debtToCover, targetDebt.Minted)
	}

	targetProjection := &projection{
		collateral: map[string]*big.Int{assetId: remainingCollateral},
		debt:       remainingDebt,
	}
	endingHealth, err := e.healthFactor(ctx, target, targetProjection)
	if err != nil {
		return nil, err
	}
	if endingHealth.Cmp(startingHealth) <= 0 {
		return nil, errors.Wrapf(HealthFactorNotImproved, "health factor %s -> %s", startingHealth, endingHealth)
	}

	var liquidatorProjection *projection
	if liquidator == target {
		liquidatorProjection = targetProjection
	}
	liquidatorHealth, err := e.healthFactor(ctx, liquidator, liquidatorProjection)
	if err != nil {
		return nil, err
	}
	if liquidatorHealth.Cmp(MIN_HEALTH_FACTOR) < 0 {
		return nil, errors.Wrapf(HealthFactorBelowMinimum, "liquidator health factor %s", liquidatorHealth)
	}

	// All gates passed; external effects, then ledger commits. The engine
	// holds mint authority, so a refusal after the pull is compensated by
	// minting the amount back to the liquidator.
	if err := e.debtToken.TransferIn(ctx, liquidator, debtToCover); err != nil {
		return nil, errors.Wrapf(TransferFailed, "pull debt token: %v", err)
	}
	if err := e.debtToken.Burn(ctx, debtToCover); err != nil {
		e.restoreDebtTokens(ctx, liquidator, debtToCover, "rejected burn")
		return nil, errors.Wrapf(TransferFailed, "burn debt token: %v", err)
	}
	if err := reg.transfer.TransferOut(ctx, liquidator, seized); err != nil {
		// The pulled tokens are already destroyed; the mint reverses that.
		e.restoreDebtTokens(ctx, liquidator, debtToCover, "rejected payout")
		return nil, errors.Wrapf(TransferFailed, "pay out seized %s: %v", assetId, err)
	}

	result := &LiquidateResult{
		Asset:            reg.asset,
		DebtCovered:      new(big.Int).Set(debtToCover),
		CollateralSeized: seized,
		Bonus:            bonus,
		TargetPreHealth:  startingHealth,
		TargetPostHealth: endingHealth,
		TargetPreBalance: targetBalance.Clone(),
		TargetPreDebt:    targetDebt.Clone(),
	}

	targetBalance.Amount = remainingCollateral
	targetBalance.LastUpdate = e.clk.Now().Unix()
	if err := e.ledger.UpsertCollateral(ctx, targetBalance); err != nil {
		return nil, err
	}
	targetDebt.Minted = remainingDebt
	targetDebt.LastUpdate = e.clk.Now().Unix()
	if err := e.ledger.UpsertDebt(ctx, targetDebt); err != nil {
		return nil, err
	}
	result.TargetPostBalance = targetBalance.Clone()
	result.TargetPostDebt = targetDebt.Clone()

	e.journal(ctx, liquidator, ATLiquidate,
		e.action(target, ATRedeemCollateral, assetId, seized),
		e.action(target, ATBurnDebt, "", debtToCover))
	e.log.Info().
		Str("liquidator", liquidator.String()).
		Str("target", target.String()).
		Str("asset", assetId).
		Str("debtCovered", debtToCover.String()).
		Str("seized", seized.String()).
		Str("preHealth", startingHealth.String()).
		Str("postHealth", endingHealth.String()).
		Msg("position liquidated")
	return result, nil
}
