package money

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/models"
)

// Platform-wide monetary constants.
var (
	// MinWithdrawal and MaxWithdrawal bound the requested net amount.
	MinWithdrawal = decimal.NewFromInt(100)
	MaxWithdrawal = decimal.NewFromInt(50000)

	// withdrawFlatFee applies to bank_transfer and instant_transfer payouts.
	withdrawFlatFee = decimal.NewFromInt(25)

	// mobileWalletRate is the percentage the mobile-wallet channel charges,
	// both on payouts (borne by the user) and on deposits (absorbed by the
	// platform).
	mobileWalletRate = decimal.NewFromFloat(0.036)

	// ReleaseFeeRate is the platform's cut of every escrow release.
	ReleaseFeeRate = decimal.NewFromFloat(0.10)
)

var ErrUnknownChannel = errors.New("unknown payment channel")

// Round2 rounds to 2 decimals, half up. Every amount that crosses a wallet
// or the ledger goes through this exactly once.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithdrawalFee returns the channel fee for paying out net. The caller debits
// net + fee; the pair always reconstructs the gross exactly because the fee
// is rounded once and never re-derived.
func WithdrawalFee(channel string, net decimal.Decimal) (decimal.Decimal, error) {
	switch channel {
	case models.ChannelBankTransfer, models.ChannelInstantTransfer:
		return withdrawFlatFee, nil
	case models.ChannelMobileWallet:
		return Round2(net.Mul(mobileWalletRate)), nil
	default:
		return decimal.Zero, ErrUnknownChannel
	}
}

// DepositFee returns the gateway fee the platform absorbs on a top-up. The
// user is credited the full amount on every channel.
func DepositFee(channel string, amount decimal.Decimal) (decimal.Decimal, error) {
	switch channel {
	case models.ChannelBankTransfer, models.ChannelInstantTransfer:
		return decimal.Zero, nil
	case models.ChannelMobileWallet:
		return Round2(amount.Mul(mobileWalletRate)), nil
	default:
		return decimal.Zero, ErrUnknownChannel
	}
}

// ReleaseSplit divides an escrow amount into the payee's payout and the
// platform fee. payout + fee == amount always holds: the fee is rounded and
// the payout is the remainder.
func ReleaseSplit(amount decimal.Decimal) (payout, fee decimal.Decimal) {
	fee = Round2(amount.Mul(ReleaseFeeRate))
	payout = amount.Sub(fee)
	return payout, fee
}
