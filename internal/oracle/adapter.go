package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	fpmath "VaultLedger/internal/math"
)

var (
	// ErrInvalidPrice rejects non-positive or non-normalizable feed readings.
	ErrInvalidPrice = errors.New("oracle: invalid price")

	// ErrStalePrice rejects readings older than the staleness window
	// relative to the in-flight event's timestamp.
	ErrStalePrice = errors.New("oracle: stale price")

	// ErrUnknownAsset is returned when no feed has ever reported the asset.
	ErrUnknownAsset = errors.New("oracle: unknown asset")
)

// PriceQuote is the latest accepted reading for one asset. RawPrice and
// Decimals are retained verbatim so snapshots can renormalize on restore.
type PriceQuote struct {
	Asset        string
	RawPrice     int64
	Decimals     uint8
	FeedSequence int64 // Monotonic per asset
	UpdatedAt    int64 // Unix seconds (versioned input, never wall-clock)
	Source       string
}

// Adapter keeps the latest quote per asset. Single-writer: only the
// deterministic core applies updates, so no locking here.
type Adapter struct {
	quotes     map[string]*PriceQuote
	normalized map[string]*big.Int // 18-decimal, derived from quotes
}

func NewAdapter() *Adapter {
	return &Adapter{
		quotes:     make(map[string]*PriceQuote),
		normalized: make(map[string]*big.Int),
	}
}

// ApplyUpdate validates and stores a feed reading. Readings at or below the
// current feed sequence are skipped silently (idempotent); gaps are
// tolerated since each reading carries the full price.
func (a *Adapter) ApplyUpdate(q *PriceQuote) error {
	if q.RawPrice <= 0 {
		return fmt.Errorf("%w: %s reported %d", ErrInvalidPrice, q.Asset, q.RawPrice)
	}

	current := a.quotes[q.Asset]
	if current != nil && q.FeedSequence <= current.FeedSequence {
		// Stale or duplicate feed sequence - skip
		return nil
	}

	price, err := fpmath.NormalizePrice(q.RawPrice, q.Decimals)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPrice, q.Asset, err)
	}

	a.quotes[q.Asset] = q
	a.normalized[q.Asset] = price
	return nil
}

// Latest returns the 18-decimal price for asset, validated against the
// staleness window: a reading is rejected when asOf - UpdatedAt > maxAge
// (both unix seconds). Future-dated readings pass. The returned value is
// shared; callers must not mutate it.
func (a *Adapter) Latest(asset string, asOf, maxAge int64) (*big.Int, error) {
	q, ok := a.quotes[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if age := asOf - q.UpdatedAt; age > maxAge {
		return nil, fmt.Errorf("%w: %s is %ds old (window %ds)",
			ErrStalePrice, asset, age, maxAge)
	}
	return a.normalized[asset], nil
}

// Quote returns the stored reading for an asset.
func (a *Adapter) Quote(asset string) (*PriceQuote, bool) {
	q, ok := a.quotes[asset]
	return q, ok
}

// RestoreQuote directly sets a reading (used for snapshot restore).
// Renormalizes from the stored raw price.
func (a *Adapter) RestoreQuote(q *PriceQuote) error {
	price, err := fpmath.NormalizePrice(q.RawPrice, q.Decimals)
	if err != nil {
		return fmt.Errorf("restore quote %s: %w", q.Asset, err)
	}
	a.quotes[q.Asset] = q
	a.normalized[q.Asset] = price
	return nil
}

// AllQuotes returns every stored reading (for snapshot creation).
func (a *Adapter) AllQuotes() map[string]*PriceQuote {
	result := make(map[string]*PriceQuote, len(a.quotes))
	for k, v := range a.quotes {
		result[k] = v
	}
	return result
}

// Assets returns the known asset symbols in sorted order so state digests
// iterate deterministically.
func (a *Adapter) Assets() []string {
	assets := make([]string, 0, len(a.quotes))
	for asset := range a.quotes {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
