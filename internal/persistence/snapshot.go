package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots contain balances, positions, vault configs, oracle quotes,
// interest accrual state, token module state, sequence counters, idempotency
// keys, and the last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData contains the full in-memory state at a point in time.
type SnapshotData struct {
	Sequence        int64                    `json:"sequence"`
	StateHash       []byte                   `json:"state_hash"`
	PrevHash        []byte                   `json:"prev_hash"`
	Balances        map[string]int64         `json:"balances"` // AccountPath -> balance
	Positions       []PositionSnapshot       `json:"positions"`
	Configs         []ConfigSnapshot         `json:"configs"`
	NextPositionID  int64                    `json:"next_position_id"`
	Quotes          map[string]QuoteSnapshot `json:"quotes"` // asset -> latest reading
	InterestVaults  []InterestVaultSnap      `json:"interest_vaults"`
	InterestStates  []InterestStateSnap      `json:"interest_states"`
	InterestPools   []InterestPoolSnap       `json:"interest_pools"`
	PeriodBlocks    uint64                   `json:"period_blocks"`
	TokenBalances   []TokenBalanceSnap       `json:"token_balances"`
	TokenAllowances []TokenAllowanceSnap     `json:"token_allowances"`
	SequenceState   map[string]int64         `json:"sequence_state"`   // partition -> next expected seq
	IdempotencyKeys []string                 `json:"idempotency_keys"` // Recent keys for LRU warming
	CreatedAt       time.Time                `json:"created_at"`
}

// PositionSnapshot is a serializable position.
type PositionSnapshot struct {
	PositionID       int64  `json:"position_id"`
	VaultID          string `json:"vault_id"`
	OwnerID          string `json:"owner_id"`
	CollateralAmount int64  `json:"collateral_amount"`
	DebtAmount       int64  `json:"debt_amount"`
	Status           int32  `json:"status"`
	OpenedBlock      int64  `json:"opened_block"`
	Version          int64  `json:"version"`
}

// ConfigSnapshot is a serializable vault configuration.
type ConfigSnapshot struct {
	VaultID              string `json:"vault_id"`
	CollateralAsset      string `json:"collateral_asset"`
	DebtAsset            string `json:"debt_asset"`
	LTVRatio             uint64 `json:"ltv_ratio"`
	LiquidationThreshold uint64 `json:"liquidation_threshold"`
	LiquidatorRewardBips uint64 `json:"liquidator_reward_bips"`
	AnnualRateBips       uint64 `json:"annual_rate_bips"`
	TreasuryID           string `json:"treasury_id"`
	StalenessWindowSec   int64  `json:"staleness_window_sec"`
	EffectiveSeq         int64  `json:"effective_seq"`
}

// QuoteSnapshot is a serializable oracle reading.
type QuoteSnapshot struct {
	RawPrice     int64  `json:"raw_price"`
	Decimals     uint8  `json:"decimals"`
	FeedSequence int64  `json:"feed_sequence"`
	UpdatedAt    int64  `json:"updated_at"`
	Source       string `json:"source"`
}

// InterestVaultSnap is a serializable interest-engine vault registration.
type InterestVaultSnap struct {
	Vault          string `json:"vault"`
	DebtAsset      string `json:"debt_asset"`
	AnnualRateBips uint64 `json:"annual_rate_bips"`
}

// InterestStateSnap is a serializable per-position accrual cursor.
type InterestStateSnap struct {
	Vault     string `json:"vault"`
	Position  int64  `json:"position"`
	LastBlock uint64 `json:"last_block"`
}

// InterestPoolSnap is a serializable interest-pool balance.
type InterestPoolSnap struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

// TokenBalanceSnap is a serializable token-module balance.
type TokenBalanceSnap struct {
	Holder string `json:"holder"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

// TokenAllowanceSnap is a serializable token-module allowance.
type TokenAllowanceSnap struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Asset   string `json:"asset"`
	Amount  int64  `json:"amount"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying events from the snapshot sequence
// forward before being eligible for restart loading.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart, load the latest snapshot then replay events from sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay, used for
// both warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, vault_id, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.VaultID,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
