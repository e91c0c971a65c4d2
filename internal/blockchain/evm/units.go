package evm

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals of the native coin
const Decimals = 18

// ToWei converts a coin amount to wei, truncating below 1 wei
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(Decimals).BigInt()
}

// FromWei converts wei to a coin amount
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Decimals)
}
