package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
)

// ClickHouseSink buffers events and inserts them in batches, flushing when the
// buffer reaches BatchSize or on every FlushInterval.
type ClickHouseSink struct {
	conn  driver.Conn
	cfg   config.ClickHouseConfig
	log   *slog.Logger
	stop  chan struct{}
	done  chan struct{}
	close sync.Once

	mu  sync.Mutex
	buf []models.TransactionEvent
}

func NewClickHouseSink(ctx context.Context, cfg config.ClickHouseConfig, log *slog.Logger) (*ClickHouseSink, error) {
	const op = "events.NewClickHouseSink"

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &ClickHouseSink{
		conn: conn,
		cfg:  cfg,
		log:  log,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if err := s.createTable(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	go s.flushLoop()
	return s, nil
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			account_id String,
			tx_id      String,
			type       LowCardinality(String),
			asset      LowCardinality(String),
			amount     Decimal(38, 18),
			price      Decimal(38, 18),
			total      Decimal(38, 18),
			ts         DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (account_id, ts)`, s.cfg.Table)
	return s.conn.Exec(ctx, query)
}

func (s *ClickHouseSink) Write(ctx context.Context, batch []models.TransactionEvent) error {
	s.mu.Lock()
	s.buf = append(s.buf, batch...)
	full := len(s.buf) >= s.cfg.BatchSize
	s.mu.Unlock()

	if full {
		return s.flush(ctx)
	}
	return nil
}

func (s *ClickHouseSink) flushLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.flush(context.Background()); err != nil {
				s.log.Error("clickhouse flush failed", slog.Any("error", err))
			}
		}
	}
}

func (s *ClickHouseSink) flush(ctx context.Context) error {
	const op = "events.ClickHouseSink.flush"

	s.mu.Lock()
	rows := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.cfg.Table)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, evt := range rows {
		tx := evt.Transaction
		if err := batch.Append(
			evt.AccountID,
			tx.ID,
			string(tx.Type),
			tx.Asset,
			tx.Amount,
			tx.Price,
			tx.Total,
			time.UnixMilli(tx.Timestamp),
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Debug("clickhouse batch inserted", "rows", len(rows))
	return nil
}

// Close flushes what is buffered and closes the connection.
func (s *ClickHouseSink) Close() error {
	var err error
	s.close.Do(func() {
		close(s.stop)
		<-s.done
		if ferr := s.flush(context.Background()); ferr != nil {
			s.log.Error("final clickhouse flush failed", slog.Any("error", ferr))
		}
		err = s.conn.Close()
	})
	return err
}
