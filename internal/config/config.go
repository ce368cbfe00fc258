// Package config manages the ingestion state file.
//
// The state file is a small JSON document holding the Drive folder and
// dataset settings together with the cached artifact pointer ids. It is read
// at the start of every ingestion cycle and rewritten only when new artifact
// ids were created or recovered.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dhelos/saleshook/internal/constants"
	"github.com/dhelos/saleshook/internal/dataset"
	"github.com/dhelos/saleshook/internal/fileutils"
	"github.com/dhelos/saleshook/internal/pipeline"
	"github.com/fsnotify/fsnotify"
)

// Manager loads, watches and persists the ingestion state file.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg fileConfig
}

type fileConfig struct {
	FolderID        string `json:"folder_id"`
	FileName        string `json:"file_name"`
	SheetName       string `json:"sheet_name,omitempty"`
	CompareColumn   string `json:"compare_column"`
	FallbackColumn  string `json:"fallback_column,omitempty"`
	CompareStrategy string `json:"compare_strategy,omitempty"`

	ParquetFileID string `json:"parquet_file_id,omitempty"`
	ExcelFileID   string `json:"excel_file_id,omitempty"`
}

// New creates a new Manager for the state file at path. Load must be called
// before the other methods.
func New(path string) *Manager {
	return &Manager{path: path}
}

// Load reads and parses the state file.
func (cm *Manager) Load() error {
	data, err := os.ReadFile(cm.path)
	if err != nil {
		return fmt.Errorf("failed to read state file: %v", err)
	}

	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse state file: %v", err)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.cfg = cfg
	return nil
}

// Validate checks that the settings required for ingestion are present.
func (cm *Manager) Validate() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.cfg.FolderID == "" {
		return fmt.Errorf("folder_id is not configured in %s", filepath.Base(cm.path))
	}
	if cm.cfg.FileName == "" {
		return fmt.Errorf("file_name is not configured in %s", filepath.Base(cm.path))
	}
	if cm.cfg.CompareColumn == "" {
		return fmt.Errorf("compare_column is not configured in %s", filepath.Base(cm.path))
	}
	return nil
}

// Settings returns the ingestion settings derived from the state file.
func (cm *Manager) Settings() pipeline.Settings {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	sheet := cm.cfg.SheetName
	if sheet == "" {
		sheet = constants.DefaultSheetName
	}

	strategy := dataset.Strategy(cm.cfg.CompareStrategy)
	if strategy != dataset.StrategyChronological {
		strategy = dataset.StrategyLexical
	}

	return pipeline.Settings{
		BaseName:  cm.cfg.FileName,
		FolderID:  cm.cfg.FolderID,
		SheetName: sheet,
		Compare: dataset.ComparePolicy{
			Column:   cm.cfg.CompareColumn,
			Fallback: cm.cfg.FallbackColumn,
			Strategy: strategy,
		},
	}
}

// Pointers returns the cached artifact pointer metadata.
func (cm *Manager) Pointers() pipeline.Pointers {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return pipeline.Pointers{
		ParquetID: cm.cfg.ParquetFileID,
		ExcelID:   cm.cfg.ExcelFileID,
	}
}

// SavePointers stores the pointer metadata and rewrites the state file
// atomically, preserving the other settings.
func (cm *Manager) SavePointers(p pipeline.Pointers) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cfg.ParquetFileID = p.ParquetID
	cm.cfg.ExcelFileID = p.ExcelID

	data, err := json.MarshalIndent(cm.cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to serialize state file: %v", err)
	}
	if err := fileutils.AtomicWrite(cm.path, data); err != nil {
		return fmt.Errorf("failed to write state file: %v", err)
	}
	return nil
}

// Watch watches the state file for changes and reloads it. It returns a
// channel signaling successful reloads and a channel for watch errors. Both
// are closed when ctx is done.
func (cm *Manager) Watch(ctx context.Context) (<-chan struct{}, <-chan error, error) {
	if _, err := os.Stat(cm.path); err != nil {
		return nil, nil, fmt.Errorf("cannot watch state file: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file watcher: %v", err)
	}
	// Watch the directory: editors and atomic writes replace the file.
	if err := watcher.Add(filepath.Dir(cm.path)); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to watch state file directory: %v", err)
	}

	reloadCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)

	go func() {
		defer watcher.Close()
		defer close(reloadCh)
		defer close(errCh)

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(cm.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				if err := cm.Load(); err != nil {
					slog.Warn("Failed to reload state file", "path", cm.path, "err", err)
					continue
				}
				slog.Info("State file reloaded", "path", cm.path)
				select {
				case reloadCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return reloadCh, errCh, nil
}
