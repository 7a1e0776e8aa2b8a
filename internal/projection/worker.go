package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"VaultLedger/internal/ledger"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	VaultID        *string
	Payload        []byte // JSON-encoded event payload
	JournalEntries []JournalEntry
	Timestamp      int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	JournalID     string
	PositionID    int64
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	touched := make(map[int64]bool)
	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
		if err := pw.updatePositionProjection(ctx, tx, output, j, touched); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
		if err := pw.updateHistoryProjections(ctx, tx, output, j); err != nil {
			return fmt.Errorf("history projection: %w", err)
		}
	}

	// Positions drained to zero by withdraw/repay are closed; liquidated
	// positions were already marked by their journals.
	for positionID := range touched {
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.positions
			SET status = 'closed', last_sequence = $2
			WHERE position_id = $1 AND status = 'active'
			  AND collateral_amount = 0 AND debt_amount = 0
		`, positionID, output.Sequence); err != nil {
			return fmt.Errorf("close position: %w", err)
		}
	}

	if err := pw.updateEventProjections(ctx, tx, output); err != nil {
		return fmt.Errorf("event projection: %w", err)
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	// Debit account: balance increases
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	// Credit account: balance decreases
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

// updatePositionProjection folds a journal into the positions table. The
// journal types carry enough information to replay collateral and debt
// amounts exactly as the core tracks them.
func (pw *ProjectionWorker) updatePositionProjection(ctx context.Context, tx *sql.Tx, output ProjectionOutput, j JournalEntry, touched map[int64]bool) error {
	if j.PositionID == 0 {
		return nil
	}

	var collDelta, debtDelta int64
	status := ""
	owner := ""

	switch ledger.JournalType(j.JournalType) {
	case ledger.JournalTypeCollateralDeposit, ledger.JournalTypeLeverageDeposit:
		collDelta = j.Amount
		owner = ownerFromAccountPath(j.DebitAccount)
	case ledger.JournalTypeCollateralWithdraw:
		collDelta = -j.Amount
	case ledger.JournalTypeDebtMint:
		debtDelta = j.Amount
	case ledger.JournalTypeDebtBurn:
		debtDelta = -j.Amount
	case ledger.JournalTypeInterestCharge:
		debtDelta = j.Amount
	case ledger.JournalTypeLiquidationWritedown:
		debtDelta = -j.Amount
		status = "liquidated"
	case ledger.JournalTypeLiquidationReward, ledger.JournalTypeLiquidationRemainder:
		collDelta = -j.Amount
		status = "liquidated"
	default:
		return nil
	}

	touched[j.PositionID] = true

	vaultID := ""
	if output.VaultID != nil {
		vaultID = *output.VaultID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(position_id, vault_id, owner_id, collateral_amount, debt_amount, status, last_sequence)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, 'active', $7)
		ON CONFLICT (position_id) DO UPDATE SET
			collateral_amount = projections.positions.collateral_amount + $4,
			debt_amount       = projections.positions.debt_amount + $5,
			owner_id          = COALESCE(projections.positions.owner_id, NULLIF($3, '')::uuid),
			status            = CASE WHEN $6 <> '' THEN $6 ELSE projections.positions.status END,
			last_sequence     = $7
	`, j.PositionID, vaultID, owner, collDelta, debtDelta, status, output.Sequence)
	return err
}

// updateHistoryProjections appends interest and liquidation history rows for
// the journal types that represent those flows.
func (pw *ProjectionWorker) updateHistoryProjections(ctx context.Context, tx *sql.Tx, output ProjectionOutput, j JournalEntry) error {
	switch ledger.JournalType(j.JournalType) {
	case ledger.JournalTypeInterestCharge:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.interest_history
				(journal_id, vault_id, position_id, asset_id, amount, sequence, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, to_timestamp($7 / 1000000.0))
			ON CONFLICT (journal_id) DO NOTHING
		`, j.JournalID, output.VaultID, j.PositionID, j.AssetID, j.Amount,
			output.Sequence, output.Timestamp)
		return err

	case ledger.JournalTypeLiquidationReward,
		ledger.JournalTypeLiquidationRemainder,
		ledger.JournalTypeLiquidationWritedown:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.liquidation_history
				(journal_id, vault_id, position_id, asset_id, amount, flow, sequence, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, to_timestamp($8 / 1000000.0))
			ON CONFLICT (journal_id) DO NOTHING
		`, j.JournalID, output.VaultID, j.PositionID, j.AssetID, j.Amount,
			ledger.JournalType(j.JournalType).String(), output.Sequence, output.Timestamp)
		return err
	}

	return nil
}

// priceUpdatePayload matches the envelope's JSON-encoded PriceUpdate fields.
type priceUpdatePayload struct {
	Asset        string
	RawPrice     int64
	Decimals     uint8
	FeedSequence int64
	Source       string
}

// vaultConfigPayload matches VaultRegister; pointer fields also cover the
// partial VaultParamUpdate shape.
type vaultConfigPayload struct {
	Vault                string
	CollateralAsset      string
	DebtAsset            string
	LTVRatio             *uint64
	LiquidationThreshold *uint64
	LiquidatorRewardBips *uint64
	AnnualRateBips       *uint64
	EffectiveSeq         int64
}

// updateEventProjections handles state-only events that carry no journals:
// oracle quotes and vault configurations.
func (pw *ProjectionWorker) updateEventProjections(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	switch output.EventType {
	case "PriceUpdate":
		var p priceUpdatePayload
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return fmt.Errorf("decode price payload: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.quotes
				(asset, raw_price, decimals, feed_sequence, source, last_sequence, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (asset) DO UPDATE SET
				raw_price = $2, decimals = $3, feed_sequence = $4,
				source = $5, last_sequence = $6, updated_at = NOW()
		`, p.Asset, p.RawPrice, p.Decimals, p.FeedSequence, p.Source, output.Sequence)
		return err

	case "VaultRegister", "VaultParamUpdate":
		var v vaultConfigPayload
		if err := json.Unmarshal(output.Payload, &v); err != nil {
			return fmt.Errorf("decode vault payload: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.vaults
				(vault_id, collateral_asset, debt_asset, ltv_ratio, liquidation_threshold,
				 liquidator_reward_bips, annual_rate_bips, effective_seq, last_sequence)
			VALUES ($1, $2, $3, COALESCE($4, 0), COALESCE($5, 0), COALESCE($6, 0), COALESCE($7, 0), $8, $9)
			ON CONFLICT (vault_id) DO UPDATE SET
				ltv_ratio              = COALESCE($4, projections.vaults.ltv_ratio),
				liquidation_threshold  = COALESCE($5, projections.vaults.liquidation_threshold),
				liquidator_reward_bips = COALESCE($6, projections.vaults.liquidator_reward_bips),
				annual_rate_bips       = COALESCE($7, projections.vaults.annual_rate_bips),
				effective_seq          = GREATEST(projections.vaults.effective_seq, $8),
				last_sequence          = $9
		`, v.Vault, v.CollateralAsset, v.DebtAsset,
			v.LTVRatio, v.LiquidationThreshold, v.LiquidatorRewardBips, v.AnnualRateBips,
			v.EffectiveSeq, output.Sequence)
		return err
	}

	return nil
}

// ownerFromAccountPath extracts the user UUID from "user:<uuid>:<subtype>:<asset>".
func ownerFromAccountPath(path string) string {
	parts := strings.Split(path, ":")
	if len(parts) >= 2 && parts[0] == "user" {
		return parts[1]
	}
	return ""
}

// RebuildProjections rebuilds balance and history tables from the event log.
// Quote and vault-config rows refresh on the next applied event.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	// Truncate all projection tables
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.positions`,
		`TRUNCATE projections.interest_history`,
		`TRUNCATE projections.liquidation_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild debit-side balances
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Subtract credit-side balances
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	// Rebuild interest history from interest-charge journals
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.interest_history
			(journal_id, vault_id, position_id, asset_id, amount, sequence, timestamp)
		SELECT
			j.journal_id, e.vault_id, j.position_id, j.asset_id, j.amount,
			j.sequence, to_timestamp(j.timestamp / 1000000.0)
		FROM event_log.journal j
		JOIN event_log.events e ON e.sequence = j.sequence
		WHERE j.journal_type = $1
		ON CONFLICT (journal_id) DO NOTHING
	`, int32(ledger.JournalTypeInterestCharge))
	if err != nil {
		return fmt.Errorf("rebuild interest history: %w", err)
	}

	// Rebuild liquidation history
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history
			(journal_id, vault_id, position_id, asset_id, amount, flow, sequence, timestamp)
		SELECT
			j.journal_id, e.vault_id, j.position_id, j.asset_id, j.amount,
			CASE j.journal_type
				WHEN $1 THEN 'liquidation_reward'
				WHEN $2 THEN 'liquidation_remainder'
				ELSE 'liquidation_writedown'
			END,
			j.sequence, to_timestamp(j.timestamp / 1000000.0)
		FROM event_log.journal j
		JOIN event_log.events e ON e.sequence = j.sequence
		WHERE j.journal_type IN ($1, $2, $3)
		ON CONFLICT (journal_id) DO NOTHING
	`, int32(ledger.JournalTypeLiquidationReward),
		int32(ledger.JournalTypeLiquidationRemainder),
		int32(ledger.JournalTypeLiquidationWritedown))
	if err != nil {
		return fmt.Errorf("rebuild liquidation history: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
