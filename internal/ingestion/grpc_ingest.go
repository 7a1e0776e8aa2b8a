package ingestion

import (
	"context"
	"fmt"
	"time"

	"VaultLedger/internal/event"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// GRPCIngestService provides admin/manual event injection via gRPC. This
// surface is for operator use, not high-throughput ingestion (use NATS for
// that), so injections are rate limited.
type GRPCIngestService struct {
	eventChan chan<- event.Event
	limiter   *rate.Limiter
}

func NewGRPCIngestService(eventChan chan<- event.Event) *GRPCIngestService {
	return &GRPCIngestService{
		eventChan: eventChan,
		limiter:   rate.NewLimiter(rate.Limit(50), 100),
	}
}

func (s *GRPCIngestService) send(ctx context.Context, evt event.Event) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectWalletFund manually credits a user's wallet.
func (s *GRPCIngestService) InjectWalletFund(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
	amount int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	return s.send(ctx, &event.WalletFund{
		FundID:    uuid.New(),
		UserID:    userID,
		Asset:     asset,
		Amount:    amount,
		Sequence:  time.Now().UnixMicro(), // Admin-injected: use timestamp as sequence
		Timestamp: time.Now().UnixMicro(),
	})
}

// InjectPriceUpdate manually injects an oracle reading.
func (s *GRPCIngestService) InjectPriceUpdate(
	ctx context.Context,
	asset string,
	rawPrice int64,
	decimals uint8,
	feedSequence int64,
) error {
	if rawPrice <= 0 {
		return fmt.Errorf("price must be positive")
	}

	return s.send(ctx, &event.PriceUpdate{
		Asset:          asset,
		RawPrice:       rawPrice,
		Decimals:       decimals,
		FeedSequence:   feedSequence,
		PriceTimestamp: time.Now().UnixMicro(),
		Source:         "admin",
	})
}

// InjectInterestSweep manually triggers a vault-wide interest sweep.
func (s *GRPCIngestService) InjectInterestSweep(
	ctx context.Context,
	vault string,
	blockHeight int64,
) error {
	if vault == "" {
		return fmt.Errorf("vault is required")
	}

	return s.send(ctx, &event.InterestSweep{
		Vault:       vault,
		BlockHeight: blockHeight,
		Sequence:    time.Now().UnixMicro(),
		Timestamp:   time.Now().UnixMicro(),
	})
}

// InjectTreasuryWithdraw manually pays out treasury holdings.
func (s *GRPCIngestService) InjectTreasuryWithdraw(
	ctx context.Context,
	asset string,
	amount int64,
	recipient uuid.UUID,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	return s.send(ctx, &event.TreasuryWithdraw{
		RequestID: uuid.New(),
		Asset:     asset,
		Amount:    amount,
		Recipient: recipient,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: time.Now().UnixMicro(),
	})
}

// InjectStraySweep manually sweeps stranded module-account tokens.
func (s *GRPCIngestService) InjectStraySweep(
	ctx context.Context,
	asset string,
	recipient uuid.UUID,
) error {
	return s.send(ctx, &event.StraySweep{
		RequestID: uuid.New(),
		Asset:     asset,
		Recipient: recipient,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: time.Now().UnixMicro(),
	})
}
