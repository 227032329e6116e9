package pageservice

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/decryptor/internal/models"
)

const reconcileDelay = 200 * time.Millisecond

// Watch loads the library, then follows file changes under root until ctx
// is cancelled. Created or written documents are (re)loaded, removed ones
// are dropped. Renames and new directories trigger a debounced Sync.
func (s *Service) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	if err := s.Sync(ctx); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := s.Sync(ctx); err != nil {
				s.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						s.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleReconcile()
					continue
				}
			}

			if !models.IsDocument(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if _, loadErr := s.Load(ctx, rel); loadErr != nil {
					s.logger.Warn("watcher: load failed",
						slog.String("path", rel),
						slog.String("error", loadErr.Error()))
				}

			case ev.Op&fsnotify.Remove != 0:
				s.Remove(rel)

			case ev.Op&fsnotify.Rename != 0:
				// The new name, if still in the library, arrives as a Create.
				s.Remove(rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
