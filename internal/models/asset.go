package models

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrAmountPrecision = errors.New("amount has more decimal places than the asset supports")

var assetDecimals = map[string]int32{
	"USD":  2,
	"EUR":  2,
	"GBP":  2,
	"NGN":  2,
	"USDC": 6,
	"USDT": 6,
	"BTC":  8,
	"ETH":  18,
}

// AssetDecimals defaults to 2 for unknown codes.
func AssetDecimals(code string) int32 {
	if d, ok := assetDecimals[strings.ToUpper(code)]; ok {
		return d
	}
	return 2
}

func IsSupportedAsset(code string) bool {
	_, ok := assetDecimals[strings.ToUpper(code)]
	return ok
}

// ToMinorUnits converts a decimal amount into the asset's smallest unit.
func ToMinorUnits(amount decimal.Decimal, asset string) (int64, error) {
	shifted := amount.Shift(AssetDecimals(asset))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrAmountPrecision
	}
	return shifted.IntPart(), nil
}

func FromMinorUnits(amount int64, asset string) decimal.Decimal {
	return decimal.New(amount, -AssetDecimals(asset))
}
