package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/configtypes"
)

const (
	defaultBatchSize     = 1000
	defaultFlushInterval = 5 * time.Second
	insertTimeout        = 10 * time.Second
)

// ClickHouseEmitter buffers events and flushes them to ClickHouse in
// batches, either when the buffer fills or on a timer. A failed flush
// drops the batch; events are operational telemetry, not ledger data.
type ClickHouseEmitter struct {
	conn          driver.Conn
	table         string
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger

	mu     sync.Mutex
	buffer []*Event

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClickHouseEmitter connects to ClickHouse and starts the background
// flusher. The target table must already exist.
func NewClickHouseEmitter(config configtypes.EventClickHouseConfig, logger *zap.Logger) (*ClickHouseEmitter, error) {
	if len(config.Addrs) == 0 {
		return nil, fmt.Errorf("clickhouse event sink requires at least one address")
	}
	if config.Table == "" {
		return nil, fmt.Errorf("clickhouse event sink requires a table name")
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: config.Addrs,
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping failed: %w", err)
	}

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	flushInterval := time.Duration(config.FlushInterval)
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	e := &ClickHouseEmitter{
		conn:          conn,
		table:         config.Table,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		buffer:        make([]*Event, 0, batchSize),
		done:          make(chan struct{}),
	}

	e.wg.Add(1)
	go e.flushLoop()

	return e, nil
}

// Emit buffers the event. Flushes synchronously when the batch fills.
func (e *ClickHouseEmitter) Emit(event *Event) {
	e.mu.Lock()
	e.buffer = append(e.buffer, event)
	shouldFlush := len(e.buffer) >= e.batchSize
	var batch []*Event
	if shouldFlush {
		batch = e.takeLocked()
	}
	e.mu.Unlock()

	if shouldFlush {
		e.flush(batch)
	}
}

// Close flushes the remaining buffer and closes the connection.
func (e *ClickHouseEmitter) Close() error {
	close(e.done)
	e.wg.Wait()

	e.mu.Lock()
	batch := e.takeLocked()
	e.mu.Unlock()
	e.flush(batch)

	return e.conn.Close()
}

func (e *ClickHouseEmitter) flushLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.mu.Lock()
			batch := e.takeLocked()
			e.mu.Unlock()
			e.flush(batch)
		case <-e.done:
			return
		}
	}
}

func (e *ClickHouseEmitter) takeLocked() []*Event {
	if len(e.buffer) == 0 {
		return nil
	}
	batch := e.buffer
	e.buffer = make([]*Event, 0, e.batchSize)
	return batch
}

func (e *ClickHouseEmitter) flush(batch []*Event) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	insert, err := e.conn.PrepareBatch(ctx, "INSERT INTO "+e.table)
	if err != nil {
		e.logger.Warn("failed to prepare clickhouse batch",
			zap.Int("events", len(batch)),
			zap.Error(err))
		return
	}

	for _, event := range batch {
		err := insert.Append(
			event.EventType,
			event.Key,
			event.URL,
			event.RequestURL,
			event.Provider,
			event.ErrorMessage,
			event.Elapsed,
			event.CreatedAt,
			event.EngineID,
		)
		if err != nil {
			e.logger.Warn("failed to append event to clickhouse batch",
				zap.String("event_type", event.EventType),
				zap.Error(err))
			return
		}
	}

	if err := insert.Send(); err != nil {
		e.logger.Warn("failed to send clickhouse batch",
			zap.Int("events", len(batch)),
			zap.Error(err))
	}
}
