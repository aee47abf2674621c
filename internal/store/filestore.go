package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/yamlutil"
)

// providerFile is the YAML shape of the provider file.
type providerFile struct {
	Providers []Record `yaml:"providers"`
}

// FileStore reads external provider records from a YAML file and can
// watch it for edits. Invalid records are skipped with a warning so one
// bad entry does not take the rest of the file down.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	known   []Record
	watcher *fsnotify.Watcher
}

// NewFileStore builds a FileStore. The file is not read until List or
// Watch is called.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// List loads and validates the current file contents. Only active,
// valid records are returned.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	var file providerFile
	if err := yamlutil.UnmarshalFileStrict(s.path, &file); err != nil {
		return nil, fmt.Errorf("failed to load provider file: %w", err)
	}

	records := make([]Record, 0, len(file.Providers))
	for _, r := range file.Providers {
		if !r.IsActive {
			continue
		}
		if err := r.Validate(); err != nil {
			s.logger.Warn("Skipping invalid provider record",
				zap.String("provider", r.Name),
				zap.Error(err))
			continue
		}
		records = append(records, r)
	}

	s.mu.Lock()
	s.known = records
	s.mu.Unlock()

	return records, nil
}

// Watch starts watching the provider file and invokes the callbacks
// with the difference on each change. Rapid edits are debounced. The
// watch stops when ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context, onUpsert UpsertFunc, onRemove RemoveFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}
	s.watcher = watcher

	go s.watchLoop(ctx, onUpsert, onRemove)
	return nil
}

func (s *FileStore) watchLoop(ctx context.Context, onUpsert UpsertFunc, onRemove RemoveFunc) {
	// Debounce timer to avoid rapid reloads
	const debounceDelay = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = s.watcher.Close()
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					s.reload(ctx, onUpsert, onRemove)
				})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Provider file watcher error", zap.Error(err))
		}
	}
}

func (s *FileStore) reload(ctx context.Context, onUpsert UpsertFunc, onRemove RemoveFunc) {
	s.mu.Lock()
	old := s.known
	s.mu.Unlock()

	updated, err := s.List(ctx)
	if err != nil {
		s.logger.Error("Failed to reload provider file, keeping current records",
			zap.String("path", s.path),
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
		s.logger.Info("Provider file reloaded",
			zap.Int("upserts", len(upserts)),
			zap.Int("removals", len(removals)))
	}
}

// Close stops the watcher if one is running.
func (s *FileStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
