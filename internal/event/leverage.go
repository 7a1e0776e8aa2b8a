package event

import "github.com/google/uuid"

// LeverageOpen builds a leveraged position in one atomic operation:
// open with the pulled collateral, then loop {borrow headroom, swap,
// redeposit} Leverage times, skipping the swap on the final iteration.
type LeverageOpen struct {
	RequestID        uuid.UUID
	Vault            string
	CallerID         uuid.UUID
	CollateralAmount int64
	Leverage         uint32   // 1..=10
	MinAmountOut     int64    // Minimum total collateral acquired across all swaps
	Route            []string // Swap route hops (collateral asset last)
	BlockHeight      int64
	Sequence         int64
	Timestamp        int64
}

func (l *LeverageOpen) IdempotencyKey() string {
	return l.RequestID.String()
}

func (l *LeverageOpen) EventType() EventType {
	return EventTypeLeverageOpen
}

func (l *LeverageOpen) VaultID() *string {
	v := l.Vault
	return &v
}

func (l *LeverageOpen) SourceSequence() int64 {
	return l.Sequence
}
