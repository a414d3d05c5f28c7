package core

import "github.com/pkg/errors"

var (
	// Construction-time failures. The engine refuses to start on a bad
	// configuration instead of limping along with a partial asset set.
	InvalidConfiguration = errors.New("engine: invalid configuration")

	ZeroAmount          = errors.New("engine: amount must be positive")
	UnsupportedAsset    = errors.New("engine: collateral asset not registered")
	InsufficientBalance = errors.New("engine: insufficient balance")
	TransferFailed      = errors.New("engine: transfer rejected by collaborator")
	MintFailed          = errors.New("engine: debt token mint rejected")
	StalePriceData      = errors.New("engine: stale price data")

	HealthFactorBelowMinimum = errors.New("engine: health factor below minimum")
	HealthFactorOk           = errors.New("engine: account is solvent, liquidation rejected")
	HealthFactorNotImproved  = errors.New("engine: liquidation did not improve health factor")

	// Returned to any call that arrives while a guarded operation is still
	// in flight, including reentrant callbacks from collaborators.
	OperationInProgress = errors.New("engine: operation already in progress")
)
