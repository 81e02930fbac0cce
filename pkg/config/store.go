package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store owns the live settings snapshot and its on-disk JSON document.
//
// Readers call Get and receive a copy; writers go through Update, which
// persists atomically (write temp, rename) before swapping the snapshot.
type Store struct {
	path    string
	mu      sync.Mutex // serialises writers and disk access
	current atomic.Pointer[Settings]
}

// Open loads (or creates) the settings document at path and returns a Store
// around it. The parent directory is created if missing; a permission failure
// there is fatal to startup.
func Open(path string, bootstrapPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("cannot create settings directory: %w", err)
	}

	settings, err := Load(path, bootstrapPath)
	if err != nil {
		return nil, err
	}

	s := &Store{path: path}
	s.current.Store(settings)

	// Persist immediately so generated secrets (local API key) survive a
	// restart even if the admin never touches the config.
	if err := s.save(settings); err != nil {
		return nil, err
	}

	return s, nil
}

// Get returns a snapshot-consistent copy of the current settings.
func (s *Store) Get() Settings {
	return *s.current.Load()
}

// Update applies fn to a copy of the current settings, validates the result,
// persists it atomically and swaps the live snapshot. On any error the
// previous snapshot stays in place.
func (s *Store) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.current.Load()
	if err := fn(&next); err != nil {
		return Settings{}, err
	}
	next.SetDefaults()
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.save(&next); err != nil {
		return Settings{}, err
	}
	s.current.Store(&next)
	return next, nil
}

// save writes the document via temp file + rename so readers of the file
// never observe a partial write. Caller holds s.mu.
func (s *Store) save(settings *Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close settings file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// Watch refreshes the snapshot when the settings file is edited outside the
// admin surface. It blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: the atomic rename replaces the file inode, so
	// watching the path directly would break after the first save.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := s.reload(); err != nil {
				slog.Warn("Settings reload failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Settings watcher error", "error", err)
		}
	}
}

func (s *Store) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var next Settings
	if err := json.Unmarshal(data, &next); err != nil {
		return err
	}
	next.SetDefaults()
	if err := next.Validate(); err != nil {
		return err
	}

	if next == *s.current.Load() {
		return nil
	}
	s.current.Store(&next)
	slog.Info("Settings reloaded from disk")
	return nil
}
