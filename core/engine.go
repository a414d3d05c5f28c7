package core

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type (
	// Config wires an engine. Assets, Oracles and Transfers are parallel
	// lists; their agreement is validated at construction and the resulting
	// registry is immutable.
	Config struct {
		Clock     clock.Clock
		Log       Log
		Ledger    *LedgerService
		DebtToken DebtToken

		Assets    []*CollateralAsset
		Oracles   []PriceAdapter
		Transfers []AssetTransfer

		// MaxPriceAge bounds oracle quote age; DEFAULT_MAX_PRICE_AGE when
		// zero.
		MaxPriceAge time.Duration
	}

	// Engine orchestrates deposits, debt minting, redemption and
	// liquidation as atomic operations over the ledgers. Every mutating
	// operation is evaluated as one indivisible unit: invariants are
	// checked against the projected outcome before anything persists.
	Engine struct {
		clk  clock.Clock
		log  Log
		busy atomic.Bool

		ledger    *LedgerService
		debtToken DebtToken

		assetIds    []string
		assets      map[string]*registeredAsset
		maxPriceAge time.Duration
	}
)

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, errors.Wrap(InvalidConfiguration, "ledger service is nil")
	}
	if cfg.DebtToken == nil {
		return nil, errors.Wrap(InvalidConfiguration, "debt token is nil")
	}
	if len(cfg.Assets) != len(cfg.Oracles) || len(cfg.Assets) != len(cfg.Transfers) {
		return nil, errors.Wrapf(InvalidConfiguration,
			"mismatched registration lists: %d assets, %d oracles, %d transfers",
			len(cfg.Assets), len(cfg.Oracles), len(cfg.Transfers))
	}

	e := &Engine{
		clk:         cfg.Clock,
		log:         cfg.Log,
		ledger:      cfg.Ledger,
		debtToken:   cfg.DebtToken,
		assets:      make(map[string]*registeredAsset, len(cfg.Assets)),
		maxPriceAge: cfg.MaxPriceAge,
	}
	if e.clk == nil {
		e.clk = clock.New()
	}
	if e.log == nil {
		nop := zerolog.Nop()
		e.log = &nop
	}
	if e.maxPriceAge <= 0 {
		e.maxPriceAge = DEFAULT_MAX_PRICE_AGE
	}

	for i, asset := range cfg.Assets {
		if err := asset.Validate(); err != nil {
			return nil, err
		}
		if cfg.Oracles[i] == nil || cfg.Transfers[i] == nil {
			return nil, errors.Wrapf(InvalidConfiguration, "asset %s: nil collaborator", asset.AssetId)
		}
		if _, ok := e.assets[asset.AssetId]; ok {
			return nil, errors.Wrapf(InvalidConfiguration, "asset %s registered twice", asset.AssetId)
		}
		if reported := cfg.Transfers[i].Decimals(); reported != asset.Decimals {
			return nil, errors.Wrapf(InvalidConfiguration,
				"asset %s: registered precision %d but transfer reports %d",
				asset.AssetId, asset.Decimals, reported)
		}
		e.assetIds = append(e.assetIds, asset.AssetId)
		e.assets[asset.AssetId] = &registeredAsset{
			asset:    asset,
			oracle:   cfg.Oracles[i],
			transfer: cfg.Transfers[i],
		}
	}
	return e, nil
}

// enter marks the engine busy for the duration of one top-level operation.
// A nested call arriving while busy, e.g. a collaborator calling back in
// mid-transfer, fails immediately instead of observing partial state.
func (e *Engine) enter() error {
	if !e.busy.CompareAndSwap(false, true) {
		return OperationInProgress
	}
	return nil
}

func (e *Engine) exit() {
	e.busy.Store(false)
}

func (e *Engine) registered(assetId string) (*registeredAsset, error) {
	reg, ok := e.assets[assetId]
	if !ok {
		return nil, errors.Wrapf(UnsupportedAsset, "asset %s", assetId)
	}
	return reg, nil
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ZeroAmount
	}
	return nil
}

// restoreDebtTokens mints amount back to the account after a collaborator
// refused a call that followed a successful token pull. The engine holds mint
// authority, so this undoes the pull-and-burn leg when a later external
// effect fails. A refused restore is logged; there is nothing further to do.
func (e *Engine) restoreDebtTokens(ctx context.Context, accountId uuid.UUID, amount *big.Int, cause string) {
	if err := e.debtToken.Mint(ctx, accountId, amount); err != nil {
		e.log.Error().Err(err).
			Str("account", accountId.String()).
			Str("amount", amount.String()).
			Msg("failed to restore debt tokens after " + cause)
	}
}

// DepositCollateral pulls amount of the asset from the account into engine
// custody and credits the collateral ledger. Depositing can only improve
// solvency, so no health check applies.
func (e *Engine) DepositCollateral(ctx context.Context, accountId uuid.UUID, assetId string, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.depositCollateral(ctx, accountId, assetId, amount); err != nil {
		return err
	}
	e.journal(ctx, accountId, ATDepositCollateral,
		e.action(accountId, ATDepositCollateral, assetId, amount))
	return nil
}

func (e *Engine) depositCollateral(ctx context.Context, accountId uuid.UUID, assetId string, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	reg, err := e.registered(assetId)
	if err != nil {
		return err
	}
	balance, err := FindOrCreateCollateral(ctx, e.clk, e.ledger, accountId, assetId)
	if err != nil {
		return err
	}
	if err := reg.transfer.TransferIn(ctx, accountId, amount); err != nil {
		return errors.Wrapf(TransferFailed, "deposit %s: %v", assetId, err)
	}
	if err := balance.ChangeAmount(e.clk, amount); err != nil {
		return err
	}
	if err := e.ledger.UpsertCollateral(ctx, balance); err != nil {
		return err
	}
	e.log.Info().
		Str("account", accountId.String()).
		Str("asset", assetId).
		Str("amount", amount.String()).
		Msg("collateral deposited")
	return nil
}

// RedeemCollateral debits the caller's collateral ledger entry and pays the
// amount back out, provided the account stays solvent afterwards.
func (e *Engine) RedeemCollateral(ctx context.Context, accountId uuid.UUID, assetId string, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.redeemCollateral(ctx, accountId, assetId, amount); err != nil {
		return err
	}
	e.journal(ctx, accountId, ATRedeemCollateral,
		e.action(accountId, ATRedeemCollateral, assetId, amount))
	return nil
}

func (e *Engine) redeemCollateral(ctx context.Context, accountId uuid.UUID, assetId string, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	reg, err := e.registered(assetId)
	if err != nil {
		return err
	}
	balance, err := e.ledger.FindCollateral(ctx, accountId, assetId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.Wrapf(InsufficientBalance, "redeem %s: no balance", assetId)
		}
		return err
	}
	remaining := new(big.Int).Sub(balance.Amount, amount)
	if remaining.Sign() < 0 {
		return errors.Wrapf(InsufficientBalance, "redeem %s: have %s, want %s", assetId, balance.Amount, amount)
	}

	factor, err := e.healthFactor(ctx, accountId, &projection{
		collateral: map[string]*big.Int{assetId: remaining},
	})
	if err != nil {
		return err
	}
	if factor.Cmp(MIN_HEALTH_FACTOR) < 0 {
		return errors.Wrapf(HealthFactorBelowMinimum, "health factor %s", factor)
	}

	previous := balance.Clone()
	balance.Amount = remaining
	balance.LastUpdate = e.clk.Now().Unix()
	if err := e.ledger.UpsertCollateral(ctx, balance); err != nil {
		return err
	}
	if err := reg.transfer.TransferOut(ctx, accountId, amount); err != nil {
		// The debit must not survive a refused payout.
		if restoreErr := e.ledger.UpsertCollateral(ctx, previous); restoreErr != nil {
			e.log.Error().Err(restoreErr).
				Str("account", accountId.String()).
				Str("asset", assetId).
				Msg("failed to restore collateral after rejected payout")
		}
		return errors.Wrapf(TransferFailed, "redeem %s: %v", assetId, err)
	}
	e.log.Info().
		Str("account", accountId.String()).
		Str("asset", assetId).
		Str("amount", amount.String()).
		Msg("collateral redeemed")
	return nil
}

// MintDebt increases the caller's debt and mints the same amount of the
// pegged token to them. The post-mint health factor is checked against the
// projected debt before anything persists.
func (e *Engine) MintDebt(ctx context.Context, accountId uuid.UUID, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.mintDebt(ctx, accountId, amount); err != nil {
		return err
	}
	e.journal(ctx, accountId, ATMintDebt,
		e.action(accountId, ATMintDebt, "", amount))
	return nil
}

func (e *Engine) mintDebt(ctx context.Context, accountId uuid.UUID, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	position, err := FindOrCreateDebt(ctx, e.clk, e.ledger, accountId)
	if err != nil {
		return err
	}
	minted := new(big.Int).Add(position.Minted, amount)

	factor, err := e.healthFactor(ctx, accountId, &projection{debt: minted})
	if err != nil {
		return err
	}
	if factor.Cmp(MIN_HEALTH_FACTOR) < 0 {
		return errors.Wrapf(HealthFactorBelowMinimum, "health factor %s", factor)
	}

	if err := e.debtToken.Mint(ctx, accountId, amount); err != nil {
		return errors.Wrapf(MintFailed, "mint %s: %v", amount, err)
	}
	position.Minted = minted
	position.LastUpdate = e.clk.Now().Unix()
	if err := e.ledger.UpsertDebt(ctx, position); err != nil {
		return err
	}
	e.log.Info().
		Str("account", accountId.String()).
		Str("amount", amount.String()).
		Msg("debt minted")
	return nil
}

// BurnDebt pulls amount of the pegged token from the caller, destroys it and
// reduces their recorded debt.
func (e *Engine) BurnDebt(ctx context.Context, accountId uuid.UUID, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.burnDebt(ctx, accountId, accountId, amount); err != nil {
		return err
	}
	e.journal(ctx, accountId, ATBurnDebt,
		e.action(accountId, ATBurnDebt, "", amount))
	return nil
}

// burnDebt reduces debtor's recorded debt, funded by pulling the pegged
// token from payer. During liquidation the payer is the liquidator.
func (e *Engine) burnDebt(ctx context.Context, debtor, payer uuid.UUID, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	position, err := e.ledger.FindDebt(ctx, debtor)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.Wrap(InsufficientBalance, "burn: no outstanding debt")
		}
		return err
	}
	remaining := new(big.Int).Sub(position.Minted, amount)
	if remaining.Sign() < 0 {
		return errors.Wrapf(InsufficientBalance, "burn: debt %s, want %s", position.Minted, amount)
	}

	// Reducing debt cannot worsen the health factor; the check is kept so
	// every debt mutation passes through the same gate.
	factor, err := e.healthFactor(ctx, debtor, &projection{debt: remaining})
	if err != nil {
		return err
	}
	if factor.Cmp(MIN_HEALTH_FACTOR) < 0 {
		return errors.Wrapf(HealthFactorBelowMinimum, "health factor %s", factor)
	}

	if err := e.debtToken.TransferIn(ctx, payer, amount); err != nil {
		return errors.Wrapf(TransferFailed, "pull debt token: %v", err)
	}
	if err := e.debtToken.Burn(ctx, amount); err != nil {
		// The payer's tokens were already pulled; the mint leaves them whole.
		e.restoreDebtTokens(ctx, payer, amount, "rejected burn")
		return errors.Wrapf(TransferFailed, "burn debt token: %v", err)
	}
	position.Minted = remaining
	position.LastUpdate = e.clk.Now().Unix()
	if err := e.ledger.UpsertDebt(ctx, position); err != nil {
		return err
	}
	e.log.Info().
		Str("account", debtor.String()).
		Str("amount", amount.String()).
		Msg("debt burned")
	return nil
}

// DepositCollateralAndMintDebt performs deposit and mint as one unit. The
// combined outcome is validated up front, so a mint the new collateral cannot
// back fails before the deposit happens. If the token collaborator refuses
// the mint itself, the deposit is retained and the caller redeems it
// separately.
func (e *Engine) DepositCollateralAndMintDebt(ctx context.Context, accountId uuid.UUID, assetId string, collateralAmount, debtAmount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := requirePositive(collateralAmount); err != nil {
		return err
	}
	if err := requirePositive(debtAmount); err != nil {
		return err
	}
	reg, err := e.registered(assetId)
	if err != nil {
		return err
	}
	current, err := e.collateralAmount(ctx, accountId, assetId, nil)
	if err != nil {
		return err
	}
	position, err := FindOrCreateDebt(ctx, e.clk, e.ledger, accountId)
	if err != nil {
		return err
	}
	factor, err := e.healthFactor(ctx, accountId, &projection{
		collateral: map[string]*big.Int{assetId: new(big.Int).Add(current, collateralAmount)},
		debt:       new(big.Int).Add(position.Minted, debtAmount),
	})
	if err != nil {
		return err
	}
	if factor.Cmp(MIN_HEALTH_FACTOR) < 0 {
		return errors.Wrapf(HealthFactorBelowMinimum, "health factor %s", factor)
	}

	if err := e.depositCollateral(ctx, accountId, reg.asset.AssetId, collateralAmount); err != nil {
		return err
	}
	if err := e.mintDebt(ctx, accountId, debtAmount); err != nil {
		return err
	}
	e.journal(ctx, accountId, ATDepositAndMint,
		e.action(accountId, ATDepositCollateral, assetId, collateralAmount),
		e.action(accountId, ATMintDebt, "", debtAmount))
	return nil
}

// RedeemCollateralForDebt burns debt first, then redeems collateral, so the
// redemption's solvency check sees the reduced debt.
func (e *Engine) RedeemCollateralForDebt(ctx context.Context, accountId uuid.UUID, assetId string, collateralAmount, debtAmount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.burnDebt(ctx, accountId, accountId, debtAmount); err != nil {
		return err
	}
	if err := e.redeemCollateral(ctx, accountId, assetId, collateralAmount); err != nil {
		return err
	}
	e.journal(ctx, accountId, ATRedeemForDebt,
		e.action(accountId, ATBurnDebt, "", debtAmount),
		e.action(accountId, ATRedeemCollateral, assetId, collateralAmount))
	return nil
}

// ---- view surface ----

// SupportedAssets returns the registered collateral assets in registration
// order.
func (e *Engine) SupportedAssets() []*CollateralAsset {
	assets := make([]*CollateralAsset, 0, len(e.assetIds))
	for _, id := range e.assetIds {
		assets = append(assets, e.assets[id].asset)
	}
	return assets
}

func (e *Engine) LiquidationBonusPct() *big.Int {
	return new(big.Int).Set(LIQUIDATION_BONUS)
}

func (e *Engine) MinHealthFactor() *big.Int {
	return new(big.Int).Set(MIN_HEALTH_FACTOR)
}

// AccountInformation reports the account's outstanding debt and total
// collateral USD value.
func (e *Engine) AccountInformation(ctx context.Context, accountId uuid.UUID) (*big.Int, *big.Int, error) {
	return e.accountInformation(ctx, accountId, nil)
}

func (e *Engine) AccountHealthFactor(ctx context.Context, accountId uuid.UUID) (*big.Int, error) {
	return e.healthFactor(ctx, accountId, nil)
}

func (e *Engine) AccountCollateralBalance(ctx context.Context, accountId uuid.UUID, assetId string) (*big.Int, error) {
	if _, err := e.registered(assetId); err != nil {
		return nil, err
	}
	amount, err := e.collateralAmount(ctx, accountId, assetId, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// UsdValue prices a raw amount of the asset in canonical USD fixed point.
func (e *Engine) UsdValue(ctx context.Context, assetId string, amount *big.Int) (*big.Int, error) {
	reg, err := e.registered(assetId)
	if err != nil {
		return nil, err
	}
	price, err := e.freshPrice(ctx, reg)
	if err != nil {
		return nil, err
	}
	return usdValue(price, amount, reg.asset.Decimals), nil
}

// TokenAmountFromUsd converts a canonical USD amount into the asset's raw
// units, truncating toward zero.
func (e *Engine) TokenAmountFromUsd(ctx context.Context, assetId string, usdAmount *big.Int) (*big.Int, error) {
	reg, err := e.registered(assetId)
	if err != nil {
		return nil, err
	}
	price, err := e.freshPrice(ctx, reg)
	if err != nil {
		return nil, err
	}
	return tokenAmountFromUsd(price, usdAmount, reg.asset.Decimals), nil
}
