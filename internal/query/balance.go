package query

import (
	"github.com/google/uuid"
)

// BalanceResponse represents a user's balance state for API queries.
type BalanceResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Asset  string    `json:"asset"`

	// Ledger balances (from journal entries)
	WalletBalance     int64 `json:"wallet_balance"`     // free, spendable
	CollateralBalance int64 `json:"collateral_balance"` // locked in positions
	DebtBalance       int64 `json:"debt_balance"`       // outstanding loans (magnitude)

	// Derived
	NetBalance int64 `json:"net_balance"` // wallet + collateral - debt

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last projected event sequence
}

// TreasuryBalance is one asset's accumulated treasury holdings.
type TreasuryBalance struct {
	Asset        string `json:"asset"`
	Balance      int64  `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}
