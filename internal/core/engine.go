package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/interest"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/leverage"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/token"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
)

// DeterministicCore is the single-threaded event processor
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	tokens            *token.Engine
	oracle            *oracle.Adapter
	interestEngine    *interest.Engine
	ledgerEngine      *vault.Engine
	builder           *leverage.Builder
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte
}

// NewDeterministicCore wires the full state stack: token engine, oracle
// adapter, interest engine, position ledger and leverage builder all share
// the single balance tracker and journal generator. A nil router falls back
// to the oracle-priced router.
func NewDeterministicCore(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	router leverage.SwapRouter,
	metrics *observability.Metrics,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()
	validator := ledger.NewInvariantValidator(balanceTracker)
	journalGen := ledger.NewJournalGenerator(startSequence, balanceTracker)
	tokens := token.NewEngine()
	oracleAdapter := oracle.NewAdapter()
	interestEngine := interest.NewEngine(0, 0)
	ledgerEngine := vault.NewEngine(tokens, oracleAdapter, journalGen, balanceTracker, interestEngine)

	if router == nil {
		router = leverage.NewOracleRouter(oracleAdapter)
	}

	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        journalGen,
		validator:         validator,
		tokens:            tokens,
		oracle:            oracleAdapter,
		interestEngine:    interestEngine,
		ledgerEngine:      ledgerEngine,
		builder:           leverage.NewBuilder(ledgerEngine, router),
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation
	partition := c.getPartition(evt)
	sourceSequence := evt.SourceSequence()

	// Special handling for price feed readings (gaps tolerated)
	if priceEvt, ok := evt.(*event.PriceUpdate); ok {
		if err := c.sequenceValidator.ValidatePriceSequence(priceEvt.Asset, priceEvt.FeedSequence); err != nil {
			return err
		}
	} else {
		// Regular sequence validation
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Event dispatch. Operations run inside a ledger session that
	// applies journal batches to balances as it goes, so by the time batches
	// come back here they are already applied (or fully rolled back).
	batches, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "dispatch").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// State-only events (price readings, vault registration, parameter
	// updates) and no-op outcomes produce no journals but still need an
	// envelope in the event log.
	if len(batches) == 0 {
		batches = []*ledger.Batch{c.emptyBatch(evt)}
	}

	// Step 4-9: Validate each batch and extend the hash chain
	outputs := make([]CoreOutput, 0, len(batches))

	for _, batch := range batches {
		if len(batch.Journals) > 0 {
			// Balance re-check before the batch enters the log. The session
			// validated on apply; a failure here is core corruption.
			if err := c.validator.ValidateBatchBalance(batch); err != nil {
				panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
			}
		}

		// Compute state digest
		stateDigest := c.computeStateDigest(evt, batch)

		// Compute state hash; capture the chain tip first since ComputeHash
		// advances it
		prevHash := c.hasher.GetPrevHash()
		stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

		// Create envelope
		envelope := &event.EventEnvelope{
			Sequence:       c.sequence,
			IdempotencyKey: idempotencyKey,
			EventType:      evt.EventType(),
			VaultID:        evt.VaultID(),
			Timestamp:      c.getEventTimestamp(evt),
			SourceSequence: sourceSequence,
			Payload:        marshalEventPayload(evt),
			StateHash:      stateHash,
			PrevHash:       prevHash,
		}

		output := CoreOutput{
			Envelope:   envelope,
			Batch:      batch,
			StateDelta: stateDigest,
		}

		outputs = append(outputs, output)
		c.sequence++
	}

	// Step 10: Post-checks
	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 11: Emit outputs. Persist channel uses BLOCKING send
	// (backpressure), projection channel uses NON-BLOCKING send with
	// silent drop.
	for _, output := range outputs {
		// Persistence: blocking send — the core stalls until the persistence
		// worker drains. This guarantees no event is lost.
		c.persistChan <- output

		// Projections: non-blocking send — drop on full. Projection workers
		// can rebuild from the event log if they fall behind.
		select {
		case c.projectionChan <- output:
		default:
			// Silently dropped — projection will catch up via rebuild
		}
	}

	// Step 12: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// getPartition determines partition key for sequence validation. Admin
// events ride their own strictly-ordered partition; command events order per
// vault; wallet funding orders globally.
func (c *DeterministicCore) getPartition(evt event.Event) string {
	switch e := evt.(type) {
	case *event.PriceUpdate:
		return fmt.Sprintf("price:%s", e.Asset)
	case *event.VaultRegister, *event.VaultParamUpdate, *event.TreasuryWithdraw, *event.StraySweep:
		return "admin"
	}
	if vaultID := evt.VaultID(); vaultID != nil {
		return fmt.Sprintf("vault:%s", *vaultID)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from the event. The
// core MUST NOT call time.Now(); every timestamp is a versioned input.
func (c *DeterministicCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.WalletFund:
		return time.UnixMicro(e.Timestamp)
	case *event.PositionOpen:
		return time.UnixMicro(e.Timestamp)
	case *event.CollateralAdd:
		return time.UnixMicro(e.Timestamp)
	case *event.CollateralRemove:
		return time.UnixMicro(e.Timestamp)
	case *event.DebtBorrow:
		return time.UnixMicro(e.Timestamp)
	case *event.DebtRepay:
		return time.UnixMicro(e.Timestamp)
	case *event.PositionLiquidate:
		return time.UnixMicro(e.Timestamp)
	case *event.LeverageOpen:
		return time.UnixMicro(e.Timestamp)
	case *event.InterestCollect:
		return time.UnixMicro(e.Timestamp)
	case *event.InterestSweep:
		return time.UnixMicro(e.Timestamp)
	case *event.PriceUpdate:
		return time.UnixMicro(e.PriceTimestamp)
	case *event.VaultRegister:
		return time.UnixMicro(e.Timestamp)
	case *event.VaultParamUpdate:
		return time.UnixMicro(e.Timestamp)
	case *event.TreasuryWithdraw:
		return time.UnixMicro(e.Timestamp)
	case *event.StraySweep:
		return time.UnixMicro(e.Timestamp)
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T — deterministic core cannot use wall-clock time", evt))
	}
}

// emptyBatch wraps a state-only event so it still occupies a slot in the
// hash chain and the event log.
func (c *DeterministicCore) emptyBatch(evt event.Event) *ledger.Batch {
	return &ledger.Batch{
		BatchID:   uuid.New(),
		EventRef:  evt.IdempotencyKey(),
		Sequence:  c.sequence,
		Timestamp: c.getEventTimestamp(evt).UnixMicro(),
		Journals:  []ledger.Journal{},
	}
}

// marshalEventPayload serializes the typed event for the envelope. Marshal
// failure cannot happen for our event structs, so the fallback is an empty
// object rather than an error path.
func marshalEventPayload(evt event.Event) []byte {
	data, err := json.Marshal(evt)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// opContext derives the session context from a command event.
func opContext(idempotencyKey string, blockHeight, timestampMicros int64) vault.OpContext {
	return vault.OpContext{
		EventRef:    idempotencyKey,
		BlockHeight: blockHeight,
		Timestamp:   timestampMicros,
	}
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) ([]*ledger.Batch, error) {
	switch e := evt.(type) {
	case *event.WalletFund:
		op := opContext(e.IdempotencyKey(), 0, e.Timestamp)
		return c.ledgerEngine.FundWallet(op, e.UserID, e.Asset, e.Amount)

	case *event.PositionOpen:
		op := opContext(e.IdempotencyKey(), e.BlockHeight, e.Timestamp)
		_, batches, err := c.ledgerEngine.OpenPosition(op, e.Vault, e.OwnerID, e.CollateralAmount, e.DebtAmount)
		return batches, err

	case *event.CollateralAdd:
		op := opContext(e.IdempotencyKey(), e.BlockHeight, e.Timestamp)
		return c.ledgerEngine.AddCollateral(op, e.Vault, e.PositionID, e.CallerID, e.Amount)

	case *event.CollateralRemove:
		op := opContext(e.IdempotencyKey(), e.BlockHeight, e.Timestamp)
		return c.ledgerEngine.RemoveCollateral(op, e.Vault, e.PositionID, e.CallerID, e.Amount)

	case *event.DebtBorrow:
		op := opContext(e.IdempotencyKey(), e.BlockHeight, e.Timestamp)
		return c.ledgerEngine.Borrow(op, e.Vault, e.PositionID, e.CallerID, e.Beneficiary, e.Amount)

	case *event.DebtRepay:
		op := opContext(e.IdempotencyKey(), e.BlockHeight, e.Timestamp)
		return c.ledgerEngine.Repay(op, e.Vault, e.PositionID, e.CallerID, e.Amount)

	case *event.PositionLiquidate:
		op := opContext(e.IdempotencyKey(), e.BlockHeight, e.Timestamp)
		return c.ledgerEngine.Liquidate(op, e.Vault, e.PositionID, e.LiquidatorID)

	case *event.LeverageOpen:
		op := opContext(e.IdempotencyKey(), e.BlockHeight, e.Timestamp)
		_, batches, err := c.builder.LeveragePosition(op, e.Vault, e.CallerID, e.CollateralAmount, e.Leverage, e.MinAmountOut, e.Route)
		return batches, err

	case *event.InterestCollect:
		op := opContext(e.IdempotencyKey(), e.BlockHeight, e.Timestamp)
		_, batches, err := c.ledgerEngine.CollectInterest(op, e.CallerVault, e.Vault, e.PositionID)
		return batches, err

	case *event.InterestSweep:
		op := opContext(e.IdempotencyKey(), e.BlockHeight, e.Timestamp)
		_, batches, err := c.ledgerEngine.SweepInterest(op, e.Vault)
		return batches, err

	case *event.PriceUpdate:
		return nil, c.oracle.ApplyUpdate(&oracle.PriceQuote{
			Asset:        e.Asset,
			RawPrice:     e.RawPrice,
			Decimals:     e.Decimals,
			FeedSequence: e.FeedSequence,
			UpdatedAt:    e.PriceTimestamp / 1_000_000,
			Source:       e.Source,
		})

	case *event.VaultRegister:
		cfg := &vault.VaultConfig{
			VaultID:              e.Vault,
			CollateralAsset:      e.CollateralAsset,
			DebtAsset:            e.DebtAsset,
			LTVRatio:             e.LTVRatio,
			LiquidationThreshold: e.LiquidationThreshold,
			LiquidatorRewardBips: e.LiquidatorRewardBips,
			TreasuryID:           e.TreasuryID,
			StalenessWindowSec:   e.StalenessWindowSec,
			EffectiveSeq:         e.EffectiveSeq,
		}
		return nil, c.ledgerEngine.RegisterVault(cfg, e.AnnualRateBips)

	case *event.VaultParamUpdate:
		upd := vault.ParamUpdate{
			LTVRatio:             e.LTVRatio,
			LiquidationThreshold: e.LiquidationThreshold,
			LiquidatorRewardBips: e.LiquidatorRewardBips,
			AnnualRateBips:       e.AnnualRateBips,
			PeriodBlocks:         e.PeriodBlocks,
			TreasuryID:           e.TreasuryID,
			EffectiveSeq:         e.EffectiveSeq,
		}
		_, err := c.ledgerEngine.UpdateParams(e.Vault, upd)
		return nil, err

	case *event.TreasuryWithdraw:
		op := opContext(e.IdempotencyKey(), 0, e.Timestamp)
		return c.ledgerEngine.TreasuryWithdraw(op, e.Asset, e.Amount, e.Recipient)

	case *event.StraySweep:
		op := opContext(e.IdempotencyKey(), 0, e.Timestamp)
		_, batches, err := c.ledgerEngine.SweepStrays(op, e.Asset)
		return batches, err

	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// computeStateDigest creates canonical bytes for the state hash: the
// post-batch balances of every touched account, plus the domain state the
// event mutated outside the journal (positions, accrual cursors, quotes,
// vault parameters).
func (c *DeterministicCore) computeStateDigest(evt event.Event, batch *ledger.Batch) []byte {
	// Collect all affected accounts
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	// Sort accounts deterministically
	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	// Sort by AccountPath (deterministic string ordering)
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	// Build digest
	digest := make([]byte, 0, len(accounts)*64)

	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		// Append account path
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)

		// Append balance (8 bytes LE)
		digest = appendInt64LE(digest, balance)
	}

	// Domain state sections
	switch e := evt.(type) {
	case *event.PriceUpdate:
		digest = append(digest, []byte("quote:")...)
		digest = append(digest, byte(len(e.Asset)))
		digest = append(digest, []byte(e.Asset)...)
		if q, ok := c.oracle.Quote(e.Asset); ok {
			digest = appendInt64LE(digest, q.RawPrice)
			digest = append(digest, q.Decimals)
			digest = appendInt64LE(digest, q.FeedSequence)
		}

	case *event.VaultRegister:
		digest = c.appendConfigDigest(digest, e.Vault)

	case *event.VaultParamUpdate:
		digest = c.appendConfigDigest(digest, e.Vault)

	default:
		if vaultID := evt.VaultID(); vaultID != nil {
			digest = c.appendVaultDigest(digest, *vaultID)
		}
	}

	return digest
}

// appendVaultDigest folds every position in the vault plus its accrual
// cursors into the digest, in position-id order.
func (c *DeterministicCore) appendVaultDigest(digest []byte, vaultID string) []byte {
	digest = append(digest, []byte("vault:")...)
	digest = append(digest, byte(len(vaultID)))
	digest = append(digest, []byte(vaultID)...)

	for _, id := range c.ledgerEngine.PositionsInVault(vaultID) {
		pos, ok := c.ledgerEngine.Position(id)
		if !ok {
			continue
		}
		digest = append(digest, pos.CanonicalBytes()...)
		digest = appendInt64LE(digest, int64(c.interestEngine.LastBlock(vaultID, id)))
	}
	return digest
}

// appendConfigDigest folds a vault's parameters and interest rate into the
// digest.
func (c *DeterministicCore) appendConfigDigest(digest []byte, vaultID string) []byte {
	cfg, ok := c.ledgerEngine.Config(vaultID)
	if !ok {
		return digest
	}
	digest = append(digest, []byte("config:")...)
	digest = append(digest, byte(len(cfg.VaultID)))
	digest = append(digest, []byte(cfg.VaultID)...)
	digest = append(digest, byte(len(cfg.CollateralAsset)))
	digest = append(digest, []byte(cfg.CollateralAsset)...)
	digest = append(digest, byte(len(cfg.DebtAsset)))
	digest = append(digest, []byte(cfg.DebtAsset)...)
	digest = appendInt64LE(digest, int64(cfg.LTVRatio))
	digest = appendInt64LE(digest, int64(cfg.LiquidationThreshold))
	digest = appendInt64LE(digest, int64(cfg.LiquidatorRewardBips))
	digest = appendInt64LE(digest, cfg.StalenessWindowSec)
	digest = appendInt64LE(digest, cfg.EffectiveSeq)

	rate, _ := c.interestEngine.Rate(vaultID)
	digest = appendInt64LE(digest, int64(rate))
	digest = appendInt64LE(digest, int64(c.interestEngine.PeriodBlocks()))
	return digest
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

// postCheckInvariants validates invariants after batch application
func (c *DeterministicCore) postCheckInvariants(evt event.Event) error {
	switch e := evt.(type) {
	case *event.WalletFund:
		assetID, _ := ledger.GetAssetID(e.Asset)
		if err := c.validator.ValidateUserWalletNonNegative(e.UserID, assetID); err != nil {
			return fmt.Errorf("post-check wallet: %w", err)
		}

	case *event.CollateralRemove:
		if err := c.checkPositionAccounts(e.Vault, e.PositionID); err != nil {
			return err
		}

	case *event.DebtRepay:
		if err := c.checkPositionAccounts(e.Vault, e.PositionID); err != nil {
			return err
		}

	case *event.PositionLiquidate:
		if err := c.checkPositionAccounts(e.Vault, e.PositionID); err != nil {
			return err
		}

	case *event.LeverageOpen:
		// The builder float must drain to zero within the event
		if cfg, ok := c.ledgerEngine.Config(e.Vault); ok {
			for _, asset := range []string{cfg.CollateralAsset, cfg.DebtAsset} {
				assetID, _ := ledger.GetAssetID(asset)
				if err := c.validator.ValidateLeverageFloatZero(assetID); err != nil {
					return fmt.Errorf("post-check leverage float: %w", err)
				}
			}
		}
	}

	// Periodic global checks: zero-sum across every account, and per-user
	// ledger aggregates matching the sums over live positions.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("post-check zero-sum (at seq %d): %w", c.sequence, err)
		}
		if err := c.ledgerEngine.ValidateAggregates(); err != nil {
			return fmt.Errorf("post-check aggregates (at seq %d): %w", c.sequence, err)
		}
	}

	return nil
}

// checkPositionAccounts validates the sign invariants on the owner's
// accounts after an operation touched the position.
func (c *DeterministicCore) checkPositionAccounts(vaultID string, positionID int64) error {
	cfg, ok := c.ledgerEngine.Config(vaultID)
	if !ok {
		return nil
	}
	pos, ok := c.ledgerEngine.Position(positionID)
	if !ok {
		return nil
	}
	collateralAssetID, _ := ledger.GetAssetID(cfg.CollateralAsset)
	debtAssetID, _ := ledger.GetAssetID(cfg.DebtAsset)

	if err := c.validator.ValidateUserCollateralNonNegative(pos.Owner, collateralAssetID); err != nil {
		return fmt.Errorf("post-check collateral: %w", err)
	}
	if err := c.validator.ValidateUserDebtNonPositive(pos.Owner, debtAssetID); err != nil {
		return fmt.Errorf("post-check debt: %w", err)
	}
	return nil
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	PrevHash        [32]byte
	Balances        map[ledger.AccountKey]int64
	Positions       []*vault.Position
	Configs         []*vault.VaultConfig
	NextPositionID  int64
	Quotes          map[string]*oracle.PriceQuote
	InterestVaults  []interest.VaultEntry
	InterestStates  []interest.StateEntry
	InterestPools   []interest.PoolEntry
	TokenBalances   []token.BalanceEntry
	TokenAllowances []token.AllowanceEntry
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state from a snapshot.
// On warm restart, load the latest snapshot then replay events past it.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	// Restore sequence
	c.sequence = snap.Sequence + 1 // Next sequence to assign

	// Restore state hash chain
	c.hasher.SetPrevHash(snap.StateHash)

	// Restore balances
	c.balanceTracker.Restore(snap.Balances)

	// Restore vault configurations before positions: positions reference
	// their vault's assets in digests and invariant checks.
	for _, cfg := range snap.Configs {
		if err := c.ledgerEngine.RestoreConfig(cfg); err != nil {
			return fmt.Errorf("restore config %s: %w", cfg.VaultID, err)
		}
	}
	for _, pos := range snap.Positions {
		c.ledgerEngine.RestorePosition(pos)
	}
	c.ledgerEngine.SetNextPositionID(snap.NextPositionID)

	// Restore oracle quotes
	for _, q := range snap.Quotes {
		if err := c.oracle.RestoreQuote(q); err != nil {
			return err
		}
	}

	// Restore interest registry, accrual cursors and pools
	for _, v := range snap.InterestVaults {
		c.interestEngine.RestoreVault(v.Vault, v.DebtAsset, v.AnnualRateBips)
	}
	for _, s := range snap.InterestStates {
		c.interestEngine.SetLastBlock(s.Vault, s.Position, s.LastBlock)
	}
	for _, p := range snap.InterestPools {
		c.interestEngine.SetPool(p.Asset, p.Amount)
	}

	// Restore token balances and allowances
	for _, b := range snap.TokenBalances {
		c.tokens.SetBalance(b.Holder, b.Asset, b.Amount)
	}
	for _, a := range snap.TokenAllowances {
		c.tokens.SetAllowance(a.Owner, a.Spender, a.Asset, a.Amount)
	}

	// Restore sequence validator state
	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}

	// Restore journal generator sequence
	c.journalGen.SetSequence(snap.Sequence)

	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache: avoids
// cold-path DB lookups for recently processed events after a restart.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// Ledger exposes the position ledger for read-side queries and startup
// wiring. Mutations must flow through ProcessEvent.
func (c *DeterministicCore) Ledger() *vault.Engine {
	return c.ledgerEngine
}

// Oracle exposes the price adapter for read-side queries.
func (c *DeterministicCore) Oracle() *oracle.Adapter {
	return c.oracle
}

// Interest exposes the accrual engine for read-side queries.
func (c *DeterministicCore) Interest() *interest.Engine {
	return c.interestEngine
}

// Tokens exposes the token engine for read-side queries.
func (c *DeterministicCore) Tokens() *token.Engine {
	return c.tokens
}

// SetLeverageDelegate grants or revokes the leverage delegate role
// (startup wiring; not event-driven).
func (c *DeterministicCore) SetLeverageDelegate(id uuid.UUID, allowed bool) {
	c.ledgerEngine.SetLeverageDelegate(id, allowed)
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	quotes := c.oracle.AllQuotes()

	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		Positions:       c.ledgerEngine.Positions(),
		Configs:         c.ledgerEngine.Configs(),
		NextPositionID:  c.ledgerEngine.NextPositionID(),
		Quotes:          quotes,
		InterestVaults:  c.interestEngine.Vaults(),
		InterestStates:  c.interestEngine.States(),
		InterestPools:   c.interestEngine.Pools(),
		TokenBalances:   c.tokens.SortedBalances(),
		TokenAllowances: c.tokens.SortedAllowances(),
		SequenceState:   c.sequenceValidator.Partitions(),
		IdempotencyKeys: c.idempotency.lru.Keys(),
	}
}
