package core

import (
	"context"
	"math/big"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type (
	// CollateralStore persists per-(account, asset) collateral rows. A
	// missing row is reported as gorm.ErrRecordNotFound.
	CollateralStore interface {
		FindCollateral(ctx context.Context, accountId uuid.UUID, assetId string) (*CollateralBalance, error)
		UpsertCollateral(ctx context.Context, balance *CollateralBalance) error
		ListCollateral(ctx context.Context, accountId uuid.UUID) ([]*CollateralBalance, error)
	}

	// DebtStore persists the single outstanding debt row per account. A
	// missing row is reported as gorm.ErrRecordNotFound.
	DebtStore interface {
		FindDebt(ctx context.Context, accountId uuid.UUID) (*DebtPosition, error)
		UpsertDebt(ctx context.Context, position *DebtPosition) error
	}

	CollateralBalance struct {
		AccountId  uuid.UUID `json:"accountId"`
		AssetId    string    `json:"assetId"`
		Amount     *big.Int  `json:"amount"`
		LastUpdate int64     `json:"lastUpdate"`
	}

	DebtPosition struct {
		AccountId  uuid.UUID `json:"accountId"`
		Minted     *big.Int  `json:"minted"`
		LastUpdate int64     `json:"lastUpdate"`
	}
)

// LedgerService bundles the stores an engine mutates, mirroring how the
// persistence layer is wired in one piece.
type LedgerService struct {
	CollateralStore
	DebtStore
	OperateStore
}

func NewCollateralBalance(clk clock.Clock, accountId uuid.UUID, assetId string) *CollateralBalance {
	return &CollateralBalance{
		AccountId:  accountId,
		AssetId:    assetId,
		Amount:     big.NewInt(0),
		LastUpdate: clk.Now().Unix(),
	}
}

func NewDebtPosition(clk clock.Clock, accountId uuid.UUID) *DebtPosition {
	return &DebtPosition{
		AccountId:  accountId,
		Minted:     big.NewInt(0),
		LastUpdate: clk.Now().Unix(),
	}
}

// FindOrCreateCollateral returns the existing row or a fresh zero row.
// First deposit implicitly creates the ledger entry.
func FindOrCreateCollateral(ctx context.Context, clk clock.Clock, store CollateralStore, accountId uuid.UUID, assetId string) (*CollateralBalance, error) {
	balance, err := store.FindCollateral(ctx, accountId, assetId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return NewCollateralBalance(clk, accountId, assetId), nil
		}
		return nil, err
	}
	return balance, nil
}

func FindOrCreateDebt(ctx context.Context, clk clock.Clock, store DebtStore, accountId uuid.UUID) (*DebtPosition, error) {
	position, err := store.FindDebt(ctx, accountId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return NewDebtPosition(clk, accountId), nil
		}
		return nil, err
	}
	return position, nil
}

func (b *CollateralBalance) Clone() *CollateralBalance {
	return &CollateralBalance{
		AccountId:  b.AccountId,
		AssetId:    b.AssetId,
		Amount:     new(big.Int).Set(b.Amount),
		LastUpdate: b.LastUpdate,
	}
}

// ChangeAmount applies a signed delta. The row never goes negative.
func (b *CollateralBalance) ChangeAmount(clk clock.Clock, delta *big.Int) error {
	amount := new(big.Int).Add(b.Amount, delta)
	if amount.Sign() < 0 {
		return InsufficientBalance
	}
	b.Amount = amount
	b.LastUpdate = clk.Now().Unix()
	return nil
}

func (d *DebtPosition) Clone() *DebtPosition {
	return &DebtPosition{
		AccountId:  d.AccountId,
		Minted:     new(big.Int).Set(d.Minted),
		LastUpdate: d.LastUpdate,
	}
}

// ChangeMinted applies a signed delta. The row never goes negative.
func (d *DebtPosition) ChangeMinted(clk clock.Clock, delta *big.Int) error {
	minted := new(big.Int).Add(d.Minted, delta)
	if minted.Sign() < 0 {
		return InsufficientBalance
	}
	d.Minted = minted
	d.LastUpdate = clk.Now().Unix()
	return nil
}
