package event

import "github.com/google/uuid"

// DebtBorrow mints debt asset against a position. When Beneficiary is set the
// minted amount goes to the beneficiary's wallet instead of the caller's
// (leverage delegate only).
type DebtBorrow struct {
	RequestID   uuid.UUID
	Vault       string
	PositionID  int64
	CallerID    uuid.UUID
	Beneficiary *uuid.UUID // nil = caller receives
	Amount      int64
	BlockHeight int64
	Sequence    int64
	Timestamp   int64
}

func (d *DebtBorrow) IdempotencyKey() string {
	return d.RequestID.String()
}

func (d *DebtBorrow) EventType() EventType {
	return EventTypeDebtBorrow
}

func (d *DebtBorrow) VaultID() *string {
	v := d.Vault
	return &v
}

func (d *DebtBorrow) SourceSequence() int64 {
	return d.Sequence
}

// DebtRepay burns debt asset from the caller's wallet against a position.
// Repaying more than the outstanding loan is rejected, never clamped.
type DebtRepay struct {
	RequestID   uuid.UUID
	Vault       string
	PositionID  int64
	CallerID    uuid.UUID
	Amount      int64
	BlockHeight int64
	Sequence    int64
	Timestamp   int64
}

func (d *DebtRepay) IdempotencyKey() string {
	return d.RequestID.String()
}

func (d *DebtRepay) EventType() EventType {
	return EventTypeDebtRepay
}

func (d *DebtRepay) VaultID() *string {
	v := d.Vault
	return &v
}

func (d *DebtRepay) SourceSequence() int64 {
	return d.Sequence
}
