package core

import (
	"testing"

	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestNewCollateralAssetFromMixin(t *testing.T) {
	asset := NewCollateralAssetFromMixin(&mixin.SafeAsset{
		AssetID:   "c6d0c728-2624-429b-8e0d-d9d19b6592fa",
		Symbol:    "BTC",
		Name:      "Bitcoin",
		IconURL:   "https://example.com/btc.png",
		Precision: 8,
	})

	assert.Equal(t, "c6d0c728-2624-429b-8e0d-d9d19b6592fa", asset.AssetId)
	assert.Equal(t, "BTC", asset.Symbol)
	assert.Equal(t, "Bitcoin", asset.Name)
	assert.Equal(t, int32(8), asset.Decimals)
	assert.NoError(t, asset.Validate())
}

func TestCollateralAssetValidate(t *testing.T) {
	tests := []struct {
		name    string
		asset   *CollateralAsset
		wantErr bool
	}{
		{name: "valid 18 decimals", asset: &CollateralAsset{AssetId: "weth", Decimals: 18}},
		{name: "valid 0 decimals", asset: &CollateralAsset{AssetId: "whole", Decimals: 0}},
		{name: "nil", asset: nil, wantErr: true},
		{name: "empty id", asset: &CollateralAsset{Decimals: 18}, wantErr: true},
		{name: "negative decimals", asset: &CollateralAsset{AssetId: "bad", Decimals: -1}, wantErr: true},
		{name: "too many decimals", asset: &CollateralAsset{AssetId: "bad", Decimals: 19}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.asset.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, InvalidConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
