// Package watch keeps the vector store in step with a project tree by
// re-ingesting files as they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
	"github.com/cosmikwolf/sazid/internal/logger"
)

// DefaultDebounce is how long a path must be quiet before it is re-ingested.
const DefaultDebounce = 250 * time.Millisecond

// ChangeType describes what the watcher did with a path.
type ChangeType string

// Change types.
const (
	ChangeIngested ChangeType = "ingested"
	ChangePurged   ChangeType = "purged"
)

// EventCallback is called after each applied change. err is non-nil when
// the ingest service failed for the path.
type EventCallback func(change ChangeType, path string, err error)

// Config configures a Watcher.
type Config struct {
	// Root is the directory tree to watch.
	Root string

	// Tags are attached to every re-ingested chunk.
	Tags []string

	// SkipDirs are directory names never watched or ingested.
	SkipDirs []string

	// Debounce collapses bursts of events on the same path.
	Debounce time.Duration

	// Rescan, when positive, re-ingests the whole tree on this interval
	// to catch events the platform dropped.
	Rescan time.Duration
}

// Watcher applies file system changes under a root to an ingest service.
type Watcher struct {
	ingest   driving.IngestService
	cfg      Config
	onChange EventCallback

	// pending is only touched by the Run goroutine.
	pending map[string]struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithCallback registers a callback invoked after every applied change.
func WithCallback(cb EventCallback) Option {
	return func(w *Watcher) {
		w.onChange = cb
	}
}

// New creates a watcher for cfg.Root.
func New(ingest driving.IngestService, cfg Config, opts ...Option) (*Watcher, error) {
	if ingest == nil {
		return nil, errors.New("watch: ingest service is required")
	}
	if cfg.Root == "" {
		return nil, errors.New("watch: root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", root)
	}
	cfg.Root = root
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	w := &Watcher{
		ingest:  ingest,
		cfg:     cfg,
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.cfg.Root
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.cfg.Root); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	logger.Info("watch: watching %s", w.cfg.Root)

	flush := time.NewTimer(w.cfg.Debounce)
	flush.Stop()
	defer flush.Stop()

	var rescan <-chan time.Time
	if w.cfg.Rescan > 0 {
		ticker := time.NewTicker(w.cfg.Rescan)
		defer ticker.Stop()
		rescan = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch: stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			path, queue := w.handleEvent(fw, ev)
			if !queue {
				continue
			}
			w.pending[path] = struct{}{}
			flush.Reset(w.cfg.Debounce)

		case <-flush.C:
			w.apply(ctx)

		case <-rescan:
			w.rescan(ctx)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: %v", watchErr)
		}
	}
}

// handleEvent decides whether ev names a path to re-examine. New
// directories are added to the watcher and queued whole.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return "", false
	}
	if w.skipped(ev.Name) {
		return "", false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				logger.Warn("watch: add %s: %v", ev.Name, err)
			}
		}
	}
	return ev.Name, true
}

// skipped reports whether path lies in a skipped directory below the root.
func (w *Watcher) skipped(path string) bool {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if slices.Contains(w.cfg.SkipDirs, part) {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.cfg.Root && slices.Contains(w.cfg.SkipDirs, d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// apply drains the pending set. A path that still exists is re-ingested,
// one that is gone is purged.
func (w *Watcher) apply(ctx context.Context) {
	paths := slices.Sorted(maps.Keys(w.pending))
	clear(w.pending)

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			_, err := w.ingest.Purge(ctx, path)
			w.report(ChangePurged, path, err)
			continue
		}
		_, err := w.ingest.IngestPath(ctx, path, w.cfg.Tags)
		w.report(ChangeIngested, path, err)
	}
}

func (w *Watcher) rescan(ctx context.Context) {
	report, err := w.ingest.IngestPath(ctx, w.cfg.Root, w.cfg.Tags)
	if err != nil {
		logger.Warn("watch: rescan: %v", err)
		return
	}
	logger.Debug("watch: rescan inserted %d chunks", report.Inserted)
}

func (w *Watcher) report(change ChangeType, path string, err error) {
	if err != nil {
		logger.Warn("watch: %s %s: %v", change, path, err)
	} else {
		logger.Debug("watch: %s %s", change, path)
	}
	if w.onChange != nil {
		w.onChange(change, path, err)
	}
}
