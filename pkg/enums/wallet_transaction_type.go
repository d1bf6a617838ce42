package enums

import "fmt"

// WalletTransactionType classifies a balance mutation in the wallet ledger.
type WalletTransactionType string

const (
	WalletTopUp      WalletTransactionType = "TOPUP"
	WalletPurchase   WalletTransactionType = "PURCHASE"
	WalletRefund     WalletTransactionType = "REFUND"
	WalletAdjustment WalletTransactionType = "ADJUSTMENT"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTopUp,
	WalletPurchase,
	WalletRefund,
	WalletAdjustment,
}

// IsValid reports whether the value is a known WalletTransactionType.
func (w WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// IsCredit reports whether the type increases the balance.
func (w WalletTransactionType) IsCredit() bool {
	return w != WalletPurchase
}

// Signed applies the direction of the type to a positive amount.
func (w WalletTransactionType) Signed(amount int64) int64 {
	if w.IsCredit() {
		return amount
	}
	return -amount
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}
