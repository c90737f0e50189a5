package charter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrUnknownCoop is returned when no charter is published for a coop.
var ErrUnknownCoop = errors.New("unknown cooperative")

// Registry resolves the charter currently in force for a cooperative.
// The returned *Config is an immutable snapshot: callers must not
// modify it.
type Registry interface {
	ActiveConfig(coopID string) (*Config, error)
}

// --- Static registry ---

// StaticRegistry is an in-memory Registry. Publish swaps snapshots
// atomically per coop.
type StaticRegistry struct {
	mu       sync.RWMutex
	charters map[string]*Config
}

// NewStaticRegistry validates and publishes each config.
func NewStaticRegistry(cfgs ...*Config) (*StaticRegistry, error) {
	r := &StaticRegistry{charters: make(map[string]*Config)}
	for _, cfg := range cfgs {
		if err := r.Publish(cfg); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Publish validates cfg and makes a private copy of it the active
// snapshot for its coop.
func (r *StaticRegistry) Publish(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	snap := cfg.Clone()
	r.mu.Lock()
	r.charters[snap.CoopID] = snap
	r.mu.Unlock()
	return nil
}

// Unpublish removes the snapshot for coopID.
func (r *StaticRegistry) Unpublish(coopID string) {
	r.mu.Lock()
	delete(r.charters, coopID)
	r.mu.Unlock()
}

// ActiveConfig implements Registry.
func (r *StaticRegistry) ActiveConfig(coopID string) (*Config, error) {
	r.mu.RLock()
	cfg, ok := r.charters[coopID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCoop, coopID)
	}
	return cfg, nil
}

// CoopIDs returns the published coop ids in sorted order.
func (r *StaticRegistry) CoopIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.charters))
	for id := range r.charters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// --- File registry ---

// DefaultDebounce is how long the watcher collects events before
// reloading.
const DefaultDebounce = 300 * time.Millisecond

// FileRegistry serves charters from *.yaml / *.yml files in a
// directory, one charter per file keyed by its coopId.
type FileRegistry struct {
	*StaticRegistry

	dir      string
	logger   *slog.Logger
	debounce time.Duration

	// OnReload, if set, is called after each reload attempt from the
	// watcher.
	OnReload func(path string, err error)

	mu    sync.Mutex
	files map[string]string // path -> coopId
}

// NewFileRegistry loads every charter file in dir. Any invalid file
// fails construction.
func NewFileRegistry(dir string, logger *slog.Logger) (*FileRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &FileRegistry{
		StaticRegistry: &StaticRegistry{charters: make(map[string]*Config)},
		dir:            dir,
		logger:         logger,
		debounce:       DefaultDebounce,
		files:          make(map[string]string),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading charter dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isCharterFile(e.Name()) {
			continue
		}
		if err := r.Reload(filepath.Join(dir, e.Name())); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetDebounce overrides the watcher debounce delay. Call before Watch.
func (r *FileRegistry) SetDebounce(d time.Duration) {
	if d > 0 {
		r.debounce = d
	}
}

// Reload parses path and publishes it. On error the previously
// published snapshot for that file stays active.
func (r *FileRegistry) Reload(path string) error {
	cfg, err := LoadFile(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for p, id := range r.files {
		if p != path && id == cfg.CoopID {
			return fmt.Errorf("charter %s: coopId %q already defined in %s", path, cfg.CoopID, p)
		}
	}
	if err := r.Publish(cfg); err != nil {
		return err
	}
	if prev, ok := r.files[path]; ok && prev != cfg.CoopID {
		r.Unpublish(prev)
	}
	r.files[path] = cfg.CoopID
	return nil
}

func (r *FileRegistry) forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.files[path]; ok {
		r.Unpublish(id)
		delete(r.files, path)
	}
}

// Watch starts reloading charters as files in the directory change.
// It returns once the watcher is installed; the watch loop stops when
// ctx is done.
func (r *FileRegistry) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating charter watcher: %w", err)
	}
	if err := fsw.Add(r.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watching charter dir: %w", err)
	}
	go r.processEvents(ctx, fsw)

	r.logger.Info("charter watcher started", "dir", r.dir, "debounce", r.debounce)
	return nil
}

func (r *FileRegistry) processEvents(ctx context.Context, fsw *fsnotify.Watcher) {
	defer func() { _ = fsw.Close() }()
	ticker := time.NewTicker(r.debounce)
	defer ticker.Stop()

	pending := make(map[string]fsnotify.Op)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !isCharterFile(event.Name) {
				continue
			}
			pending[event.Name] |= event.Op

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			r.logger.Warn("charter watcher error", "error", err)

		case <-ticker.C:
			for path := range pending {
				r.apply(path)
			}
			clear(pending)
		}
	}
}

func (r *FileRegistry) apply(path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		r.forget(path)
		r.logger.Info("charter removed", "path", path)
		r.notify(path, nil)
		return
	}
	err := r.Reload(path)
	if err != nil {
		r.logger.Warn("charter reload failed, keeping last good snapshot", "path", path, "error", err)
	} else {
		r.logger.Info("charter reloaded", "path", path)
	}
	r.notify(path, err)
}

func (r *FileRegistry) notify(path string, err error) {
	if r.OnReload != nil {
		r.OnReload(path, err)
	}
}

func isCharterFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
