package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Effects is the catalogue of effect clips available in a directory.
type Effects struct {
	dir string
	log zerolog.Logger

	mu    sync.RWMutex
	names []string
}

// NewEffects creates a catalogue for dir. The listing is loaded lazily.
func NewEffects(dir string, log zerolog.Logger) *Effects {
	return &Effects{
		dir: dir,
		log: log.With().Str("component", "effects").Str("dir", dir).Logger(),
	}
}

// Dir returns the directory holding the effect files.
func (e *Effects) Dir() string {
	return e.dir
}

// Refresh re-reads the directory listing.
func (e *Effects) Refresh() error {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return fmt.Errorf("read effects dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	e.mu.Lock()
	e.names = names
	e.mu.Unlock()
	return nil
}

// List returns the effect file names.
func (e *Effects) List() []string {
	e.mu.RLock()
	loaded := e.names != nil
	e.mu.RUnlock()
	if !loaded {
		if err := e.Refresh(); err != nil {
			e.log.Warn().Err(err).Msg("listing effects")
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.names...)
}

// Resolve returns the path of the first effect whose file name contains
// name, compared case-insensitively. It fails with ErrEffectNotFound.
func (e *Effects) Resolve(name string) (string, error) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return "", fmt.Errorf("%w: empty name", ErrEffectNotFound)
	}

	if path, ok := e.match(query); ok {
		return path, nil
	}
	// The directory may have changed since the last listing.
	if err := e.Refresh(); err != nil {
		e.log.Warn().Err(err).Msg("refreshing effects")
	}
	if path, ok := e.match(query); ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %q", ErrEffectNotFound, name)
}

func (e *Effects) match(query string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, n := range e.names {
		if strings.Contains(strings.ToLower(n), query) {
			return filepath.Join(e.dir, n), true
		}
	}
	return "", false
}

// Watch keeps the listing current until ctx is done.
func (e *Effects) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(e.dir); err != nil {
		return fmt.Errorf("watch %s: %w", e.dir, err)
	}
	if err := e.Refresh(); err != nil {
		e.log.Warn().Err(err).Msg("initial effects listing")
	}
	e.log.Debug().Msg("effects watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := e.Refresh(); err != nil {
				e.log.Warn().Err(err).Msg("refreshing effects")
				continue
			}
			e.log.Debug().Str("event", ev.Op.String()).Str("file", filepath.Base(ev.Name)).Msg("effects reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.log.Warn().Err(err).Msg("effects watch error")
		}
	}
}
