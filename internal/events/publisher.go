// Package events streams every appended ledger transaction to the optional
// Kafka and ClickHouse sinks.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
)

// Sink receives batches of events. Write errors are logged and dropped.
type Sink interface {
	Name() string
	Write(ctx context.Context, batch []models.TransactionEvent) error
	Close() error
}

// Publisher hands events to its sinks from a bounded buffer. Publish never
// blocks; events are dropped with a warning when the buffer is full.
type Publisher struct {
	sinks []Sink
	log   *slog.Logger
	ch    chan models.TransactionEvent
	wg    sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

func NewPublisher(log *slog.Logger, buffer int, sinks ...Sink) *Publisher {
	return &Publisher{
		sinks: sinks,
		log:   log,
		ch:    make(chan models.TransactionEvent, buffer),
	}
}

func (p *Publisher) Publish(evt models.TransactionEvent) {
	if len(p.sinks) == 0 {
		return
	}
	select {
	case p.ch <- evt:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.log.Warn("transaction event dropped, stream buffer full", "accountID", evt.AccountID, "txID", evt.Transaction.ID)
	}
}

func (p *Publisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Start runs the publisher in the background; Wait blocks until it returned.
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Run(ctx)
	}()
}

// Run forwards events until ctx is done, then drains what is buffered and
// closes the sinks.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.closeSinks()
			return
		case evt := <-p.ch:
			batch := p.collect(evt)
			p.write(ctx, batch)
		}
	}
}

// Wait blocks until the run launched by Start returned.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

func (p *Publisher) collect(first models.TransactionEvent) []models.TransactionEvent {
	batch := []models.TransactionEvent{first}
	for {
		select {
		case evt := <-p.ch:
			batch = append(batch, evt)
		default:
			return batch
		}
	}
}

func (p *Publisher) drain() {
	var batch []models.TransactionEvent
	for {
		select {
		case evt := <-p.ch:
			batch = append(batch, evt)
		default:
			if len(batch) > 0 {
				p.write(context.Background(), batch)
			}
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, batch []models.TransactionEvent) {
	for _, s := range p.sinks {
		if err := s.Write(ctx, batch); err != nil {
			p.log.Error("failed to write transaction events", "sink", s.Name(), "count", len(batch), slog.Any("error", err))
		}
	}
}

func (p *Publisher) closeSinks() {
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			p.log.Warn("failed to close sink", "sink", s.Name(), slog.Any("error", err))
		}
	}
}
