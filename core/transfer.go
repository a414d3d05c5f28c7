package core

import (
	"context"
	"math/big"

	"github.com/gofrs/uuid"
)

type (
	// AssetTransfer moves a single collateral asset between accounts and
	// engine custody. A non-nil error means the movement did not happen;
	// the enclosing engine operation aborts without residue.
	AssetTransfer interface {
		// TransferIn pulls amount from the owner into engine custody.
		TransferIn(ctx context.Context, from uuid.UUID, amount *big.Int) error
		// TransferOut pays amount out of engine custody to the recipient.
		TransferOut(ctx context.Context, to uuid.UUID, amount *big.Int) error
		BalanceOf(ctx context.Context, owner uuid.UUID) (*big.Int, error)
		// Decimals reports the asset's native fractional precision. Checked
		// against the registered CollateralAsset at construction.
		Decimals() int32
	}

	// DebtToken is the pegged synthetic asset. Minting authority is granted
	// to the engine; Burn destroys tokens already pulled into engine custody.
	DebtToken interface {
		Mint(ctx context.Context, to uuid.UUID, amount *big.Int) error
		Burn(ctx context.Context, amount *big.Int) error
		TransferIn(ctx context.Context, from uuid.UUID, amount *big.Int) error
	}
)
