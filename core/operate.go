package core

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/gofrs/uuid"
	"github.com/pegvault/core/utils"
	"github.com/shopspring/decimal"
)

type ActionType uint8

const (
	ATDepositCollateral ActionType = iota + 1
	ATRedeemCollateral
	ATMintDebt
	ATBurnDebt
	ATDepositAndMint
	ATRedeemForDebt
	ATLiquidate
)

func (a ActionType) String() string {
	switch a {
	case ATDepositCollateral:
		return "DepositCollateral"
	case ATRedeemCollateral:
		return "RedeemCollateral"
	case ATMintDebt:
		return "MintDebt"
	case ATBurnDebt:
		return "BurnDebt"
	case ATDepositAndMint:
		return "DepositCollateralAndMintDebt"
	case ATRedeemForDebt:
		return "RedeemCollateralForDebt"
	case ATLiquidate:
		return "Liquidate"
	default:
		return "Unknown"
	}
}

type (
	// OperateStore records the journal of committed engine operations.
	OperateStore interface {
		CreateOperate(ctx context.Context, operate *Operate) error
		ListOperates(ctx context.Context, accountId uuid.UUID, op ActionType, createdBeforeAt, limit int64) ([]Operate, error)
	}

	Operate struct {
		Id        uuid.UUID     `json:"id"`
		AccountId uuid.UUID     `json:"accountId"`
		Op        ActionType    `json:"op"`
		Extra     OperateDetail `json:"extra"`
		CreatedAt int64         `json:"createdAt"`
	}

	OperateDetail struct {
		Type      ActionType     `json:"type"`
		AccountId uuid.UUID      `json:"actor"`
		Actions   []ActionDetail `json:"actions"`
	}

	// ActionDetail records one ledger movement in human decimal units.
	ActionDetail struct {
		AccountId  uuid.UUID       `json:"actor"`
		ActionType ActionType      `json:"actionType"`
		AssetId    string          `json:"assetId,omitempty"`
		Amount     decimal.Decimal `json:"amount"`
	}
)

func (j OperateDetail) Value() (driver.Value, error) {
	valueString, err := json.Marshal(j)
	return string(valueString), err
}

func (j *OperateDetail) Scan(value any) error {
	if err := json.Unmarshal(value.([]byte), &j); err != nil {
		return err
	}
	return nil
}

// journal appends an entry for a committed operation. The operation has
// already succeeded; a journal failure is logged, never propagated.
func (e *Engine) journal(ctx context.Context, accountId uuid.UUID, typ ActionType, actions ...ActionDetail) {
	createdAt := e.clk.Now()
	operate := &Operate{
		Id: uuid.FromStringOrNil(utils.GenUuidFromStrings(
			accountId.String(), typ.String(), strconv.FormatInt(createdAt.UnixNano(), 10))),
		AccountId: accountId,
		Op:        typ,
		Extra: OperateDetail{
			Type:      typ,
			AccountId: accountId,
			Actions:   actions,
		},
		CreatedAt: createdAt.Unix(),
	}
	if err := e.ledger.CreateOperate(ctx, operate); err != nil {
		e.log.Warn().Err(err).
			Str("account", accountId.String()).
			Str("op", typ.String()).
			Msg("failed to journal operation")
	}
}

// action renders a ledger movement for the journal. An empty assetId means
// the pegged debt token, which always carries the canonical precision.
func (e *Engine) action(accountId uuid.UUID, typ ActionType, assetId string, amount *big.Int) ActionDetail {
	decimals := int32(CANONICAL_DECIMALS)
	if reg, ok := e.assets[assetId]; ok {
		decimals = reg.asset.Decimals
	}
	return ActionDetail{
		AccountId:  accountId,
		ActionType: typ,
		AssetId:    assetId,
		Amount:     DecimalFromFixed(amount, decimals),
	}
}
