package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === User Balance Queries ===

// GetUserWalletBalance returns the user's free wallet balance
func (bt *BalanceTracker) GetUserWalletBalance(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeWallet, assetID))
}

// GetUserCollateralBalance returns the user's locked collateral across positions
func (bt *BalanceTracker) GetUserCollateralBalance(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeCollateral, assetID))
}

// GetUserDebtOwed returns the user's outstanding debt as a positive number.
// Debt accounts carry negative balances (credits), so the sign flips here.
func (bt *BalanceTracker) GetUserDebtOwed(userID uuid.UUID, assetID AssetID) int64 {
	return -bt.GetBalance(NewUserAccountKey(userID, SubTypeDebt, assetID))
}

// GetTreasuryBalance returns the treasury's holdings for an asset
func (bt *BalanceTracker) GetTreasuryBalance(assetID AssetID) int64 {
	return bt.GetBalance(NewTreasuryAccountKey(assetID))
}

// GetLeverageFloat returns the leverage builder's transient holdings.
// Nonzero outside a leverage batch means a stuck operation.
func (bt *BalanceTracker) GetLeverageFloat(assetID AssetID) int64 {
	return bt.GetBalance(NewLeverageAccountKey(assetID))
}

// === Invariant Checks ===

// ValidateSufficientWallet checks the user's wallet can cover a debit
func (bt *BalanceTracker) ValidateSufficientWallet(userID uuid.UUID, assetID AssetID, required int64) error {
	wallet := bt.GetUserWalletBalance(userID, assetID)
	if wallet < required {
		return fmt.Errorf("insufficient wallet balance: have=%d, need=%d", wallet, required)
	}
	return nil
}

// ValidateSufficientCollateral checks locked collateral can cover a release
func (bt *BalanceTracker) ValidateSufficientCollateral(userID uuid.UUID, assetID AssetID, required int64) error {
	collateral := bt.GetUserCollateralBalance(userID, assetID)
	if collateral < required {
		return fmt.Errorf("insufficient collateral balance: have=%d, need=%d", collateral, required)
	}
	return nil
}

// TotalCollateral sums locked collateral across all users for one asset.
// Tokens held by the vault module beyond this total are strays.
func (bt *BalanceTracker) TotalCollateral(assetID AssetID) int64 {
	var total int64
	for key, balance := range bt.balances {
		if key.Scope == AccountScopeUser && key.SubType == SubTypeCollateral && key.AssetID == assetID {
			total += balance
		}
	}
	return total
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances from a snapshot (used for recovery)
func (bt *BalanceTracker) Restore(snapshot map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(snapshot))
	for k, v := range snapshot {
		if v == 0 {
			continue
		}
		bt.balances[k] = v
	}
}
