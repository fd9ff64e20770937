// Package watcher triggers automatic synchronization when spec files change
// on disk. Only documents that opted in with auto_sync are pushed.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/scanner"
)

// DefaultDebounce batches rapid editor saves into one sync pass.
const DefaultDebounce = 500 * time.Millisecond

// Syncer is the slice of the engine the watcher needs.
type Syncer interface {
	SyncOne(ctx context.Context, name string, opts engine.Options) (*engine.Result, error)
}

// Watch starts an fsnotify watcher on the specs root and processes file
// change events until ctx is cancelled. Changes are debounced per document
// directory, then synced when the document's frontmatter carries
// auto_sync: true.
//
// New directories created at runtime are automatically added to the watch
// list.
func Watch(ctx context.Context, sync Syncer, sc *scanner.Scanner, logger *slog.Logger, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := sc.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	// pending collects dirty document names until the debounce timer fires.
	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			for name := range pending {
				delete(pending, name)
				syncIfAuto(ctx, sync, sc, logger, name)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}

			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			name, ok := documentName(root, ev.Name)
			if !ok {
				continue
			}
			pending[name] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func syncIfAuto(ctx context.Context, sync Syncer, sc *scanner.Scanner, logger *slog.Logger, name string) {
	doc, err := sc.ScanDirectory(name)
	if err != nil {
		logger.Warn("watcher: scan failed",
			slog.String("name", name), slog.String("error", err.Error()))
		return
	}
	if doc == nil {
		return
	}
	c := doc.Canonical()
	if c == nil || !c.Meta.AutoSync {
		return
	}

	res, err := sync.SyncOne(ctx, name, engine.Options{})
	if err != nil {
		logger.Warn("watcher: auto-sync failed",
			slog.String("name", name), slog.String("error", err.Error()))
		return
	}
	logger.Info("watcher: auto-synced",
		slog.String("name", name), slog.String("action", string(res.Action)))
}

// documentName maps an absolute event path to the top-level document
// directory it belongs to.
func documentName(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || strings.HasPrefix(parts[0], ".") {
		return "", false
	}
	return parts[0], true
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
