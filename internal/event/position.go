package event

import (
	"github.com/google/uuid"
)

// PositionOpen requests a new collateralized position in a vault.
// Idempotency key: request_id (UUID assigned by the caller).
type PositionOpen struct {
	RequestID        uuid.UUID // Idempotency key
	Vault            string
	OwnerID          uuid.UUID
	CollateralAmount int64 // Fixed-point collateral-asset base units
	DebtAmount       int64 // Optional initial borrow (0 = collateral-only)
	BlockHeight      int64 // Versioned block height (drives interest accrual)
	Sequence         int64
	Timestamp        int64 // Epoch microseconds (versioned input)
}

func (p *PositionOpen) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *PositionOpen) EventType() EventType {
	return EventTypePositionOpen
}

func (p *PositionOpen) VaultID() *string {
	v := p.Vault
	return &v
}

func (p *PositionOpen) SourceSequence() int64 {
	return p.Sequence
}

// CollateralAdd tops up an existing position's collateral.
type CollateralAdd struct {
	RequestID   uuid.UUID
	Vault       string
	PositionID  int64
	CallerID    uuid.UUID // Owner or authorized leverage delegate
	Amount      int64
	BlockHeight int64
	Sequence    int64
	Timestamp   int64
}

func (c *CollateralAdd) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *CollateralAdd) EventType() EventType {
	return EventTypeCollateralAdd
}

func (c *CollateralAdd) VaultID() *string {
	v := c.Vault
	return &v
}

func (c *CollateralAdd) SourceSequence() int64 {
	return c.Sequence
}

// CollateralRemove withdraws collateral from a position, subject to the
// borrow-limit re-check against current debt.
type CollateralRemove struct {
	RequestID   uuid.UUID
	Vault       string
	PositionID  int64
	CallerID    uuid.UUID // Owner only
	Amount      int64
	BlockHeight int64
	Sequence    int64
	Timestamp   int64
}

func (c *CollateralRemove) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *CollateralRemove) EventType() EventType {
	return EventTypeCollateralRemove
}

func (c *CollateralRemove) VaultID() *string {
	v := c.Vault
	return &v
}

func (c *CollateralRemove) SourceSequence() int64 {
	return c.Sequence
}
