package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
)

// Poller fetches prices on a fixed interval. A failed or empty fetch keeps the
// previous snapshot; listeners only see successful snapshots.
type Poller struct {
	fetcher  Fetcher
	symbols  []string
	interval time.Duration
	log      *slog.Logger

	mu        sync.RWMutex
	latest    models.MarketSnapshot
	listeners []func(models.MarketSnapshot)
}

func NewPoller(fetcher Fetcher, symbols []string, interval time.Duration, log *slog.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		symbols:  symbols,
		interval: interval,
		log:      log,
	}
}

// Subscribe registers fn for every new snapshot. Register before Run.
func (p *Poller) Subscribe(fn func(models.MarketSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Poller) Latest() models.MarketSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one fetch and reports whether the snapshot was replaced.
func (p *Poller) Poll(ctx context.Context) bool {
	quotes, err := p.fetcher.FetchPrices(ctx, p.symbols)
	if err != nil {
		p.log.Warn("price fetch failed, keeping previous snapshot", slog.Any("error", err))
		return false
	}
	if len(quotes) == 0 {
		p.log.Warn("price fetch returned nothing, keeping previous snapshot")
		return false
	}

	snapshot := models.MarketSnapshot(quotes)

	p.mu.Lock()
	p.latest = snapshot
	listeners := p.listeners
	p.mu.Unlock()

	p.log.Debug("prices updated", "quotes", len(snapshot))
	for _, fn := range listeners {
		fn(snapshot)
	}
	return true
}
