package evm

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToWei(t *testing.T) {
	tests := []struct {
		amount string
		wei    string
	}{
		{"1", "1000000000000000000"},
		{"9.95", "9950000000000000000"},
		{"0.000000000000000001", "1"},
		{"0.0000000000000000019", "1"},
		{"0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got := ToWei(decimal.RequireFromString(tt.amount))
			if got.String() != tt.wei {
				t.Errorf("expected %s wei, got %s", tt.wei, got)
			}
		})
	}
}

func TestFromWei(t *testing.T) {
	wei, _ := new(big.Int).SetString("9950000000000000000", 10)
	got := FromWei(wei)
	if !got.Equal(decimal.RequireFromString("9.95")) {
		t.Errorf("expected 9.95, got %s", got)
	}

	if !FromWei(nil).IsZero() {
		t.Error("expected zero for nil")
	}
}
