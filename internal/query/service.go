package query

import (
	"context"
	"database/sql"
	"fmt"

	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. Queries are
// served via gRPC and HTTP/JSON, reading from PostgreSQL projections. All
// responses include as_of_sequence for freshness semantics.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a user's wallet, collateral, and debt balances for an
// asset. The debt account carries a negative ledger balance; the response
// reports its magnitude.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	wallet, err := qs.getProjectedBalance(ctx, fmt.Sprintf("user:%s:wallet:%s", userID, asset))
	if err != nil {
		return nil, err
	}

	collateral, err := qs.getProjectedBalance(ctx, fmt.Sprintf("user:%s:collateral:%s", userID, asset))
	if err != nil {
		return nil, err
	}

	debt, err := qs.getProjectedBalance(ctx, fmt.Sprintf("user:%s:debt:%s", userID, asset))
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		UserID:            userID,
		Asset:             asset,
		WalletBalance:     wallet,
		CollateralBalance: collateral,
		DebtBalance:       -debt,
		NetBalance:        wallet + collateral + debt,
		AsOfSequence:      asOfSeq,
	}, nil
}

// GetPositions returns all non-closed positions owned by a user, with
// health and borrow headroom derived from the latest projected quotes.
func (qs *QueryService) GetPositions(
	ctx context.Context,
	userID uuid.UUID,
) ([]PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT position_id, vault_id, collateral_amount, debt_amount, status
		FROM projections.positions
		WHERE owner_id = $1 AND status != 'closed'
		ORDER BY position_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		var p PositionResponse
		p.OwnerID = userID
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PositionID, &p.VaultID, &p.CollateralAmount, &p.DebtAmount, &p.Status,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range positions {
		qs.deriveRiskFields(ctx, &positions[i])
	}

	return positions, nil
}

// GetPosition returns one position by id.
func (qs *QueryService) GetPosition(
	ctx context.Context,
	positionID int64,
) (*PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var p PositionResponse
	p.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT position_id, vault_id, owner_id, collateral_amount, debt_amount, status
		FROM projections.positions
		WHERE position_id = $1
	`, positionID).Scan(
		&p.PositionID, &p.VaultID, &p.OwnerID, &p.CollateralAmount, &p.DebtAmount, &p.Status,
	)
	if err == sql.ErrNoRows {
		return nil, vault.ErrUnknownPosition
	}
	if err != nil {
		return nil, err
	}

	qs.deriveRiskFields(ctx, &p)
	return &p, nil
}

// deriveRiskFields fills HealthRatio, MaxBorrowable, and Liquidatable from
// the latest projected quotes and vault parameters. When quotes or the vault
// row are missing the fields stay at their zero values; the ledger state in
// the response is still authoritative.
//
// Debt here is the projected principal: whole periods accrued since the last
// charge are not folded in, so these fields can overstate health until the
// next charge or sweep lands. The write side is unaffected — every mutating
// ledger operation charges interest before reading debt.
func (qs *QueryService) deriveRiskFields(ctx context.Context, p *PositionResponse) {
	var (
		collAsset, debtAsset       string
		ltvRatio, threshold        uint64
		collRaw, debtRaw           int64
		collDecimals, debtDecimals uint8
	)

	err := qs.db.QueryRowContext(ctx, `
		SELECT v.collateral_asset, v.debt_asset, v.ltv_ratio, v.liquidation_threshold,
		       qc.raw_price, qc.decimals, qd.raw_price, qd.decimals
		FROM projections.vaults v
		JOIN projections.quotes qc ON qc.asset = v.collateral_asset
		JOIN projections.quotes qd ON qd.asset = v.debt_asset
		WHERE v.vault_id = $1
	`, p.VaultID).Scan(
		&collAsset, &debtAsset, &ltvRatio, &threshold,
		&collRaw, &collDecimals, &debtRaw, &debtDecimals,
	)
	if err != nil {
		return
	}

	collPrice, err := fpmath.NormalizePrice(collRaw, collDecimals)
	if err != nil {
		return
	}
	debtPrice, err := fpmath.NormalizePrice(debtRaw, debtDecimals)
	if err != nil {
		return
	}

	collValue := fpmath.AssetValue(p.CollateralAmount, collPrice)
	debtValue := fpmath.AssetValue(p.DebtAmount, debtPrice)

	p.HealthRatio = fpmath.HealthRatio(collValue, debtValue)
	p.Liquidatable = fpmath.Liquidatable(collValue, debtValue, threshold)

	headroom := fpmath.BorrowLimitValue(collValue, ltvRatio)
	headroom.Sub(headroom, debtValue)
	if headroom.Sign() > 0 {
		if units, err := fpmath.UnitsFromValue(headroom, debtPrice); err == nil {
			p.MaxBorrowable = units
		}
	}
}

// GetInterestHistory returns interest charges, newest first, with
// cursor-based pagination on sequence.
func (qs *QueryService) GetInterestHistory(
	ctx context.Context,
	vaultID *string,
	positionID *int64,
	limit int,
	afterSequence *int64,
) ([]InterestHistoryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT journal_id, vault_id, position_id, asset_id, amount, sequence,
		       (EXTRACT(EPOCH FROM timestamp) * 1000000)::bigint
		FROM projections.interest_history
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if vaultID != nil {
		query += fmt.Sprintf(" AND vault_id = $%d", argIdx)
		args = append(args, *vaultID)
		argIdx++
	}

	if positionID != nil {
		query += fmt.Sprintf(" AND position_id = $%d", argIdx)
		args = append(args, *positionID)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []InterestHistoryResponse
	for rows.Next() {
		var h InterestHistoryResponse
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.JournalID, &h.VaultID, &h.PositionID, &h.AssetID,
			&h.Amount, &h.Sequence, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetLiquidationHistory returns liquidation flows, newest first.
func (qs *QueryService) GetLiquidationHistory(
	ctx context.Context,
	vaultID *string,
	limit int,
	afterSequence *int64,
) ([]LiquidationHistoryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT journal_id, vault_id, position_id, asset_id, amount, flow, sequence,
		       (EXTRACT(EPOCH FROM timestamp) * 1000000)::bigint
		FROM projections.liquidation_history
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if vaultID != nil {
		query += fmt.Sprintf(" AND vault_id = $%d", argIdx)
		args = append(args, *vaultID)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []LiquidationHistoryResponse
	for rows.Next() {
		var h LiquidationHistoryResponse
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.JournalID, &h.VaultID, &h.PositionID, &h.AssetID,
			&h.Amount, &h.Flow, &h.Sequence, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetJournalHistory returns journal entries touching a user's accounts,
// newest first, with pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence, position_id,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence, &e.PositionID,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetTreasury returns accumulated treasury holdings per asset.
func (qs *QueryService) GetTreasury(ctx context.Context) ([]TreasuryBalance, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT split_part(account_path, ':', 3), balance
		FROM projections.balances
		WHERE account_path LIKE 'system:treasury:%' AND balance != 0
		ORDER BY account_path
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []TreasuryBalance
	for rows.Next() {
		var b TreasuryBalance
		b.AsOfSequence = asOfSeq
		if err := rows.Scan(&b.Asset, &b.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}

	return balances, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain linkage and the global zero-sum
// invariant against the persisted event log and projections.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Check global balance (should sum to zero across all accounts per asset)
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
