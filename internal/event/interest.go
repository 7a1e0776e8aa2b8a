package event

import (
	"fmt"

	"github.com/google/uuid"
)

// InterestCollect folds accrued interest into a single position's debt.
// CallerVault must equal Vault: only the registered vault itself may collect.
type InterestCollect struct {
	RequestID   uuid.UUID
	Vault       string
	CallerVault string
	PositionID  int64
	BlockHeight int64
	Sequence    int64
	Timestamp   int64
}

func (i *InterestCollect) IdempotencyKey() string {
	return i.RequestID.String()
}

func (i *InterestCollect) EventType() EventType {
	return EventTypeInterestCollect
}

func (i *InterestCollect) VaultID() *string {
	v := i.Vault
	return &v
}

func (i *InterestCollect) SourceSequence() int64 {
	return i.Sequence
}

// InterestSweep charges every period-ready position in the vault, in
// ascending position-id order so replays produce identical journals.
// Idempotency key derives from (vault, block) — one sweep per block.
type InterestSweep struct {
	Vault       string
	BlockHeight int64
	Sequence    int64
	Timestamp   int64
}

func (i *InterestSweep) IdempotencyKey() string {
	return fmt.Sprintf("interest_sweep:%s:%d", i.Vault, i.BlockHeight)
}

func (i *InterestSweep) EventType() EventType {
	return EventTypeInterestSweep
}

func (i *InterestSweep) VaultID() *string {
	v := i.Vault
	return &v
}

func (i *InterestSweep) SourceSequence() int64 {
	return i.Sequence
}
