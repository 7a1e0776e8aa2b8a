package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateLeverageFloatZero verifies the builder float drained after a
// leverage operation completes
func (v *InvariantValidator) ValidateLeverageFloatZero(assetID AssetID) error {
	balance := v.tracker.GetLeverageFloat(assetID)

	if balance != 0 {
		assetName, _ := GetAssetName(assetID)
		return fmt.Errorf("leverage float for %s has non-zero balance: %d", assetName, balance)
	}

	return nil
}

// ValidateUserWalletNonNegative checks user wallet >= 0
func (v *InvariantValidator) ValidateUserWalletNonNegative(userID uuid.UUID, assetID AssetID) error {
	key := NewUserAccountKey(userID, SubTypeWallet, assetID)
	return v.tracker.ValidateNonNegative(key)
}

// ValidateUserCollateralNonNegative checks user collateral >= 0
func (v *InvariantValidator) ValidateUserCollateralNonNegative(userID uuid.UUID, assetID AssetID) error {
	key := NewUserAccountKey(userID, SubTypeCollateral, assetID)
	return v.tracker.ValidateNonNegative(key)
}

// ValidateUserDebtNonPositive checks the debt account never flips positive:
// repayments are capped at the outstanding loan
func (v *InvariantValidator) ValidateUserDebtNonPositive(userID uuid.UUID, assetID AssetID) error {
	key := NewUserAccountKey(userID, SubTypeDebt, assetID)
	balance := v.tracker.GetBalance(key)
	if balance > 0 {
		return fmt.Errorf("account %s has positive debt balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
