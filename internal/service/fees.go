package service

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"airpay/internal/blockchain/evm"
)

// FeeService handles fee and batch total calculations
type FeeService struct {
	provider evm.Provider
	logger   *zap.Logger
}

// NewFeeService creates a new fee service
func NewFeeService(provider evm.Provider, logger *zap.Logger) *FeeService {
	return &FeeService{
		provider: provider,
		logger:   logger,
	}
}

// FeeCalculation holds calculated fee information
type FeeCalculation struct {
	GasPriceWei    *big.Int        // Current network gas price
	GasLimit       uint64          // Fixed plain-transfer gas limit
	TransferFeeWei *big.Int        // GasPriceWei * GasLimit
	TransferFee    decimal.Decimal // Same fee in AMB
}

// CalculateTransferFee returns the fee of one plain value transfer at the
// current gas price. The fee is calculated as: gasPrice * 21000
func (s *FeeService) CalculateTransferFee(ctx context.Context) (*FeeCalculation, error) {
	gasPrice, err := s.provider.GetGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	fee := evm.TransferFee(gasPrice)

	s.logger.Debug("Calculated transfer fee",
		zap.String("gas_price_wei", gasPrice.String()),
		zap.String("fee_wei", fee.String()))

	return &FeeCalculation{
		GasPriceWei:    gasPrice,
		GasLimit:       evm.TransferGasLimit,
		TransferFeeWei: fee,
		TransferFee:    evm.FromWei(fee),
	}, nil
}

// BatchTotal is the amount a bulk withdrawal debits, excluding gas:
// amountPerDestination * count
func BatchTotal(amountPerDestination decimal.Decimal, count int) decimal.Decimal {
	return amountPerDestination.Mul(decimal.NewFromInt(int64(count)))
}
