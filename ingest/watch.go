package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/vectorstore"
)

// DefaultDebounce is how long Watch waits for a burst of changes to settle.
const DefaultDebounce = 500 * time.Millisecond

// WatchFunc receives the outcome of each re-indexing pass.
type WatchFunc func(changed []string, report *Report, err error)

// Watch re-indexes files under root matching pattern whenever they change,
// until ctx is done. Changes are debounced and handled one batch at a time.
// When the store can delete by source, the stale chunks of a changed or
// removed file are dropped before the file is indexed again.
func (ix *Indexer) Watch(ctx context.Context, root, pattern string, fn WatchFunc) error {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return ErrInvalidPattern
	}

	ctx, cancel := context.WithCancel(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return err
	}
	defer watcher.Close()

	if err := addTree(watcher, root); err != nil {
		cancel()
		return err
	}
	ix.logger.Info("watching for changes", "root", root, "pattern", pattern)

	var (
		mu      sync.Mutex
		pending = make(map[string]fsnotify.Op)
		timer   *time.Timer
		flushes = make(chan map[string]fsnotify.Op, 1)
	)
	flush := func() {
		mu.Lock()
		batch := pending
		pending = make(map[string]fsnotify.Op)
		mu.Unlock()
		if len(batch) == 0 {
			return
		}
		select {
		case flushes <- batch:
		case <-ctx.Done():
		}
	}

	// batches are applied on this goroutine only, so the store never
	// sees two passes at once
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case batch := <-flushes:
				changed, report, err := ix.reindex(ctx, root, pattern, batch)
				if err != nil {
					ix.logger.Error("re-indexing failed", "files", len(changed), "err", err)
				}
				if fn != nil && len(changed) > 0 {
					fn(changed, report, err)
				}
			}
		}
	}()

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		cancel()
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						ix.logger.Warn("cannot watch directory", "dir", event.Name, "err", err)
					}
					continue
				}
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			mu.Lock()
			pending[event.Name] |= event.Op
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(DefaultDebounce, flush)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.logger.Error("watcher error", "err", err)
		}
	}
}

// reindex handles one debounced batch of file events. When the store can
// delete by source, chunks of removed files are dropped at once, and the
// stale chunks of changed files only after their new text has embedded.
func (ix *Indexer) reindex(ctx context.Context, root, pattern string, batch map[string]fsnotify.Op) ([]string, *Report, error) {
	deleter, canDelete := ix.store.(vectorstore.SourceDeleter)

	var (
		changed []string
		docs    []core.Document
		errs    []error
	)
	for name := range batch {
		rel, err := filepath.Rel(root, name)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(pattern, rel); !ok {
			continue
		}
		changed = append(changed, rel)

		doc, err := LoadDocument(ctx, root, rel)
		if errors.Is(err, fs.ErrNotExist) {
			ix.logger.Info("file removed", "source", rel)
			if canDelete {
				if _, err := deleter.DeleteSource(ctx, rel); err != nil {
					errs = append(errs, err)
				}
			}
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	sort.Strings(changed)

	if len(docs) == 0 {
		return changed, &Report{}, errors.Join(errs...)
	}

	var dropStale func(context.Context) error
	if canDelete {
		dropStale = func(ctx context.Context) error {
			for _, doc := range docs {
				if _, err := deleter.DeleteSource(ctx, doc.Source); err != nil {
					return fmt.Errorf("dropping stale chunks of %s: %w", doc.Source, err)
				}
			}
			return nil
		}
	}
	report, err := ix.index(ctx, docs, dropStale)
	if err != nil {
		errs = append(errs, err)
	}
	return changed, report, errors.Join(errs...)
}

// addTree watches dir and every directory below it; fsnotify is not recursive.
func addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
