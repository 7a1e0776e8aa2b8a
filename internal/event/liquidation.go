package event

import "github.com/google/uuid"

// PositionLiquidate is the permissionless liquidation trigger. The core
// charges interest, verifies health is below the vault's threshold, then
// seizes all collateral: the liquidator reward share goes to the caller's
// wallet, the remainder to the treasury.
type PositionLiquidate struct {
	RequestID    uuid.UUID
	Vault        string
	PositionID   int64
	LiquidatorID uuid.UUID
	BlockHeight  int64
	Sequence     int64
	Timestamp    int64
}

func (l *PositionLiquidate) IdempotencyKey() string {
	return l.RequestID.String()
}

func (l *PositionLiquidate) EventType() EventType {
	return EventTypePositionLiquidate
}

func (l *PositionLiquidate) VaultID() *string {
	v := l.Vault
	return &v
}

func (l *PositionLiquidate) SourceSequence() int64 {
	return l.Sequence
}
