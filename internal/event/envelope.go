package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeWalletFund
	EventTypePositionOpen
	EventTypeCollateralAdd
	EventTypeCollateralRemove
	EventTypeDebtBorrow
	EventTypeDebtRepay
	EventTypePositionLiquidate
	EventTypeLeverageOpen
	EventTypeInterestCollect
	EventTypeInterestSweep
	EventTypePriceUpdate
	EventTypeVaultRegister
	EventTypeVaultParamUpdate
	EventTypeTreasuryWithdraw
	EventTypeStraySweep
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Vault context (nullable for price/admin events)
	VaultID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// VaultID returns the vault context (nil for price/admin events)
	VaultID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeWalletFund:
		return "WalletFund"
	case EventTypePositionOpen:
		return "PositionOpen"
	case EventTypeCollateralAdd:
		return "CollateralAdd"
	case EventTypeCollateralRemove:
		return "CollateralRemove"
	case EventTypeDebtBorrow:
		return "DebtBorrow"
	case EventTypeDebtRepay:
		return "DebtRepay"
	case EventTypePositionLiquidate:
		return "PositionLiquidate"
	case EventTypeLeverageOpen:
		return "LeverageOpen"
	case EventTypeInterestCollect:
		return "InterestCollect"
	case EventTypeInterestSweep:
		return "InterestSweep"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeVaultRegister:
		return "VaultRegister"
	case EventTypeVaultParamUpdate:
		return "VaultParamUpdate"
	case EventTypeTreasuryWithdraw:
		return "TreasuryWithdraw"
	case EventTypeStraySweep:
		return "StraySweep"
	default:
		return "Unknown"
	}
}
