package event

import "fmt"

// PriceUpdate carries one oracle reading for an asset. FeedSequence is
// monotonic per asset; stale readings (lower sequence) are skipped silently.
type PriceUpdate struct {
	Asset          string
	RawPrice       int64 // Price in the feed's own decimals
	Decimals       uint8 // Feed decimals (normalized to 1e18 on ingest)
	FeedSequence   int64 // Monotonic per asset
	PriceTimestamp int64 // Epoch microseconds (versioned input)
	Source         string
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", p.Asset, p.FeedSequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) VaultID() *string {
	return nil // Global event
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.FeedSequence
}
