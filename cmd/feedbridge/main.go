// feedbridge subscribes to an upstream websocket price feed and republishes
// ticks onto the vault.prices.* JetStream subjects in the wire format the
// ledger's ingestion layer expects. Feed sequence numbers are assigned here,
// monotonically per asset, so the core's gap-tolerant price ordering works
// even when the upstream feed has no sequence of its own.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type Config struct {
	FeedURL  string        `envconfig:"FEED_URL" default:"wss://stream.example.com/prices"`
	NATSURL  string        `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	Assets   []string      `envconfig:"FEED_ASSETS" default:"BTC,ETH,USDT,USDC,DAI"`
	Source   string        `envconfig:"FEED_SOURCE" default:"feedbridge"`
	Decimals uint8         `envconfig:"FEED_DECIMALS" default:"8"`
	PingIval time.Duration `envconfig:"FEED_PING_INTERVAL" default:"30s"`
}

// tickMessage is the upstream feed's tick format.
type tickMessage struct {
	Symbol      string `json:"symbol"`
	Price       int64  `json:"price"` // Integer price scaled by feed decimals
	TimestampMs int64  `json:"timestamp_ms"`
}

// priceUpdateWire matches the ingestion parser's price payload.
type priceUpdateWire struct {
	Asset            string `json:"asset"`
	RawPrice         int64  `json:"raw_price"`
	Decimals         uint8  `json:"decimals"`
	FeedSequence     int64  `json:"feed_sequence"`
	PriceTimestampUs int64  `json:"price_timestamp_us"`
	Source           string `json:"source"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("INFO: feedbridge starting...")

	var cfg Config
	if err := envconfig.Process("vault", &cfg); err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("INFO: shutting down...")
		cancel()
	}()

	nc, err := nats.Connect(cfg.NATSURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatalf("FATAL: jetstream init: %v", err)
	}
	log.Printf("INFO: NATS connected (%s)", cfg.NATSURL)

	bridge := &feedBridge{
		cfg:       cfg,
		js:        js,
		sequences: make(map[string]int64),
		wanted:    make(map[string]bool, len(cfg.Assets)),
	}
	for _, a := range cfg.Assets {
		bridge.wanted[strings.ToUpper(strings.TrimSpace(a))] = true
	}

	// Reconnect loop with exponential backoff
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			break
		}

		err := bridge.run(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("WARN: feed connection lost: %v (reconnecting in %s)", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}
		backoff = time.Second
	}

	log.Println("INFO: feedbridge stopped")
}

type feedBridge struct {
	cfg       Config
	js        jetstream.JetStream
	sequences map[string]int64 // asset -> last assigned feed sequence
	wanted    map[string]bool
}

// run holds one websocket session open until it fails or ctx is cancelled.
func (b *feedBridge) run(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, b.cfg.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.cfg.FeedURL, err)
	}
	defer conn.Close()
	log.Printf("INFO: feed connected (%s)", b.cfg.FeedURL)

	// Close the connection when ctx is cancelled to unblock ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	// Keepalive pings
	go func() {
		ticker := time.NewTicker(b.cfg.PingIval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var tick tickMessage
		if err := json.Unmarshal(data, &tick); err != nil {
			log.Printf("WARN: malformed tick: %v", err)
			continue
		}

		asset := strings.ToUpper(tick.Symbol)
		if !b.wanted[asset] {
			continue
		}
		if tick.Price <= 0 {
			log.Printf("WARN: non-positive price for %s: %d", asset, tick.Price)
			continue
		}

		if err := b.publish(ctx, asset, tick); err != nil {
			log.Printf("WARN: publish %s: %v", asset, err)
		}
	}
}

func (b *feedBridge) publish(ctx context.Context, asset string, tick tickMessage) error {
	b.sequences[asset]++

	ts := tick.TimestampMs * 1000
	if tick.TimestampMs == 0 {
		ts = time.Now().UnixMicro()
	}

	payload, err := json.Marshal(priceUpdateWire{
		Asset:            asset,
		RawPrice:         tick.Price,
		Decimals:         b.cfg.Decimals,
		FeedSequence:     b.sequences[asset],
		PriceTimestampUs: ts,
		Source:           b.cfg.Source,
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("vault.prices.%s", asset)
	pubCtx, pubCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pubCancel()

	_, err = b.js.Publish(pubCtx, subject, payload)
	return err
}
