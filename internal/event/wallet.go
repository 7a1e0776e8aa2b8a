package event

import "github.com/google/uuid"

// WalletFund credits a user's free wallet from the external supply boundary.
// Idempotency key: fund_id (UUID from the upstream settlement system).
type WalletFund struct {
	FundID    uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    int64 // Fixed-point base units
	Sequence  int64
	Timestamp int64 // Epoch microseconds (versioned input)
}

func (w *WalletFund) IdempotencyKey() string {
	return w.FundID.String()
}

func (w *WalletFund) EventType() EventType {
	return EventTypeWalletFund
}

func (w *WalletFund) VaultID() *string {
	return nil // Global event
}

func (w *WalletFund) SourceSequence() int64 {
	return w.Sequence
}
