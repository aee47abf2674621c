package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/configtypes"
)

const defaultPollInterval = 30 * time.Second

// Expected schema:
//
//	providers(name, api_endpoint, resource_type, is_active, expose)
//	provider_url_schemes(provider_name, scheme)
const listQuery = `
SELECT p.name, p.api_endpoint, p.resource_type, p.is_active, p.expose, s.scheme
FROM providers p
JOIN provider_url_schemes s ON s.provider_name = p.name
WHERE p.is_active = TRUE
ORDER BY p.name, s.scheme`

// SQLStore reads external provider records from MySQL. There is no
// change feed; Watch polls on an interval and diffs against the last
// seen set.
type SQLStore struct {
	db           *sql.DB
	pollInterval time.Duration
	logger       *zap.Logger

	mu    sync.Mutex
	known []Record
}

// NewSQLStore opens the database and verifies connectivity.
func NewSQLStore(cfg *configtypes.MySQLStoreConfig, logger *zap.Logger) (*SQLStore, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("mysql store requires a dsn")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql store: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql store ping failed: %w", err)
	}

	pollInterval := time.Duration(cfg.PollInterval)
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &SQLStore{
		db:           db,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

// NewSQLStoreWithDB wraps an existing connection (used in tests).
func NewSQLStoreWithDB(db *sql.DB, pollInterval time.Duration, logger *zap.Logger) *SQLStore {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &SQLStore{db: db, pollInterval: pollInterval, logger: logger}
}

// List queries the active provider records. Invalid rows are skipped
// with a warning.
func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var records []Record
	var current *Record

	for rows.Next() {
		var name, endpoint, resourceType, scheme string
		var isActive, expose bool
		if err := rows.Scan(&name, &endpoint, &resourceType, &isActive, &expose, &scheme); err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}

		if current == nil || current.Name != name {
			if current != nil {
				records = appendValid(records, *current, s.logger)
			}
			current = &Record{
				Name:         name,
				APIEndpoint:  endpoint,
				ResourceType: resourceType,
				IsActive:     isActive,
				Expose:       expose,
			}
		}
		current.URLSchemes = append(current.URLSchemes, scheme)
	}
	if current != nil {
		records = appendValid(records, *current, s.logger)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read provider rows: %w", err)
	}

	s.mu.Lock()
	s.known = records
	s.mu.Unlock()

	return records, nil
}

func appendValid(records []Record, r Record, logger *zap.Logger) []Record {
	if err := r.Validate(); err != nil {
		logger.Warn("Skipping invalid provider record",
			zap.String("provider", r.Name),
			zap.Error(err))
		return records
	}
	return append(records, r)
}

// Watch polls the database and invokes the callbacks with the
// difference on each change. The watch stops when ctx is cancelled.
func (s *SQLStore) Watch(ctx context.Context, onUpsert UpsertFunc, onRemove RemoveFunc) error {
	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.poll(ctx, onUpsert, onRemove)
			}
		}
	}()
	return nil
}

func (s *SQLStore) poll(ctx context.Context, onUpsert UpsertFunc, onRemove RemoveFunc) {
	s.mu.Lock()
	old := s.known
	s.mu.Unlock()

	updated, err := s.List(ctx)
	if err != nil {
		s.logger.Error("Failed to poll provider store, keeping current records",
			zap.Error(err))
		return
	}

	upserts, removals := DiffRecords(old, updated)
	for _, r := range upserts {
		onUpsert(r)
	}
	for _, name := range removals {
		onRemove(name)
	}

	if len(upserts) > 0 || len(removals) > 0 {
		s.logger.Info("Provider store changed",
			zap.Int("upserts", len(upserts)),
			zap.Int("removals", len(removals)))
	}
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
