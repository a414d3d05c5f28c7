package core

import (
	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/pkg/errors"
)

type (
	// CollateralAsset identifies a collateral type the engine accepts.
	// Assets are registered once at engine construction and the set is
	// immutable afterwards.
	CollateralAsset struct {
		AssetId  string `json:"assetId"`
		Symbol   string `json:"symbol,omitempty"`
		Name     string `json:"name,omitempty"`
		IconURL  string `json:"iconUrl,omitempty"`
		Decimals int32  `json:"decimals"`
	}
)

func NewCollateralAssetFromMixin(asset *mixin.SafeAsset) *CollateralAsset {
	return &CollateralAsset{
		AssetId:  asset.AssetID,
		Symbol:   asset.Symbol,
		Name:     asset.Name,
		IconURL:  asset.IconURL,
		Decimals: asset.Precision,
	}
}

func (a *CollateralAsset) Validate() error {
	if a == nil || a.AssetId == "" {
		return errors.Wrap(InvalidConfiguration, "asset id is empty")
	}
	if a.Decimals < 0 || a.Decimals > CANONICAL_DECIMALS {
		return errors.Wrapf(InvalidConfiguration, "asset %s: unsupported precision %d", a.AssetId, a.Decimals)
	}
	return nil
}

// registeredAsset binds a collateral asset to the collaborators serving it.
// Built once by NewEngine.
type registeredAsset struct {
	asset    *CollateralAsset
	oracle   PriceAdapter
	transfer AssetTransfer
}
