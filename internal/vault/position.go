package vault

import (
	"github.com/google/uuid"
)

// PositionStatus is audit-only: semantics are driven by the amounts.
type PositionStatus int32

const (
	PositionStatusActive PositionStatus = iota
	PositionStatusClosed
	PositionStatusLiquidated
)

func (ps PositionStatus) String() string {
	switch ps {
	case PositionStatusActive:
		return "Active"
	case PositionStatusClosed:
		return "Closed"
	case PositionStatusLiquidated:
		return "Liquidated"
	default:
		return "Unknown"
	}
}

// Position is one collateralized loan. Ids increase monotonically, are never
// reused, and records persist after both amounts reach zero.
type Position struct {
	ID               int64
	VaultID          string
	Owner            uuid.UUID
	CollateralAmount int64 // Collateral-asset base units, >= 0
	DebtAmount       int64 // Debt-asset base units, >= 0
	Status           PositionStatus
	OpenedBlock      int64
	Version          int64 // Bumped on every mutation
}

// CanonicalBytes returns deterministic serialization for hashing.
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 80)

	// id (8 bytes LE)
	buf = appendInt64LE(buf, p.ID)

	// vault_id (length-prefixed)
	buf = append(buf, byte(len(p.VaultID)))
	buf = append(buf, []byte(p.VaultID)...)

	// owner (16 bytes UUID binary)
	buf = append(buf, p.Owner[:]...)

	// collateral_amount (8 bytes LE)
	buf = appendInt64LE(buf, p.CollateralAmount)

	// debt_amount (8 bytes LE)
	buf = appendInt64LE(buf, p.DebtAmount)

	// status (1 byte)
	buf = append(buf, byte(p.Status))

	// opened_block (8 bytes LE)
	buf = appendInt64LE(buf, p.OpenedBlock)

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
