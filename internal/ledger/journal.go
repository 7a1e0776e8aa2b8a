package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeWalletFund JournalType = iota
	JournalTypeCollateralDeposit
	JournalTypeCollateralWithdraw
	JournalTypeDebtMint
	JournalTypeDebtBurn
	JournalTypeInterestCharge
	JournalTypeLiquidationReward
	JournalTypeLiquidationRemainder
	JournalTypeLiquidationWritedown
	JournalTypeTreasuryWithdraw
	JournalTypeStraySweep
	JournalTypeLeverageSwap
	JournalTypeLeverageDeposit
	JournalTypeLeverageResidual
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeWalletFund:
		return "wallet_fund"
	case JournalTypeCollateralDeposit:
		return "collateral_deposit"
	case JournalTypeCollateralWithdraw:
		return "collateral_withdraw"
	case JournalTypeDebtMint:
		return "debt_mint"
	case JournalTypeDebtBurn:
		return "debt_burn"
	case JournalTypeInterestCharge:
		return "interest_charge"
	case JournalTypeLiquidationReward:
		return "liquidation_reward"
	case JournalTypeLiquidationRemainder:
		return "liquidation_remainder"
	case JournalTypeLiquidationWritedown:
		return "liquidation_writedown"
	case JournalTypeTreasuryWithdraw:
		return "treasury_withdraw"
	case JournalTypeStraySweep:
		return "stray_sweep"
	case JournalTypeLeverageSwap:
		return "leverage_swap"
	case JournalTypeLeverageDeposit:
		return "leverage_deposit"
	case JournalTypeLeverageResidual:
		return "leverage_residual"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries of one operation
	EventRef      string      // Idempotency key of source event
	Sequence      int64       // Global event sequence
	PositionID    int64       // Position context (0 for position-less entries)
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	AssetID       AssetID     // Asset being transferred
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Versioned input timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Note on balance invariant: each journal entry is a balanced transfer by
// construction (a single positive amount moves from credit account to debit
// account), so Σ debits == Σ credits is guaranteed per-entry. Multi-leg
// operations (e.g., liquidation with reward + remainder + writedown) use
// multiple entries under one batch_id — each individually balanced.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.AssetID != j.AssetID || j.CreditAccount.AssetID != j.AssetID {
			return fmt.Errorf("journal %s moves asset %d across mismatched accounts", j.JournalID, j.AssetID)
		}
	}

	return nil
}

// Inverse returns a batch that exactly reverses this one: every journal's
// debit and credit accounts are swapped. Used by session rollback.
func (b *Batch) Inverse() *Batch {
	inv := &Batch{
		BatchID:   uuid.New(),
		EventRef:  b.EventRef + ":rollback",
		Sequence:  b.Sequence,
		Timestamp: b.Timestamp,
		Journals:  make([]Journal, len(b.Journals)),
	}
	for i, j := range b.Journals {
		inv.Journals[i] = Journal{
			JournalID:     uuid.New(),
			BatchID:       inv.BatchID,
			EventRef:      inv.EventRef,
			Sequence:      j.Sequence,
			PositionID:    j.PositionID,
			DebitAccount:  j.CreditAccount,
			CreditAccount: j.DebitAccount,
			AssetID:       j.AssetID,
			Amount:        j.Amount,
			JournalType:   j.JournalType,
			Timestamp:     j.Timestamp,
		}
	}
	return inv
}
