// Package watch reports debounced batches of changes under a directory tree.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dl-alexandre/netdeploy/internal/deploy/exclude"
	"github.com/dl-alexandre/netdeploy/internal/logging"
)

const DefaultDebounce = 2 * time.Second

type Options struct {
	Matcher  *exclude.Matcher
	Debounce time.Duration
	Logger   logging.Logger
}

// Watcher watches root and every non-excluded directory below it. fsnotify
// is not recursive, so directories created later are added as they appear.
type Watcher struct {
	fsw    *fsnotify.Watcher
	root   string
	opts   Options
	logger logging.Logger
}

func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	// fsnotify reports events under the directory actually watched, so a
	// symlinked root is replaced by its target.
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", abs)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, root: abs, opts: opts, logger: logger}

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.relative(path); rel != "" && opts.Matcher.IsExcluded(rel, true) {
			return filepath.SkipDir
		}
		return w.addDir(path)
	})
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) Root() string { return w.root }

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) addDir(path string) error {
	if err := w.fsw.Add(path); err != nil {
		return fmt.Errorf("could not add directory to watcher: %w", err)
	}
	w.logger.Debug("Watching directory", logging.F("path", path))
	return nil
}

// Run calls fn with the sorted, de-duplicated relative paths that changed,
// once no event has arrived for the debounce interval. fn runs on the Run
// goroutine, so changes made while it runs form the next batch. Run returns
// nil when ctx is done.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context, changed []string)) error {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			rel, keep := w.accept(event)
			if !keep {
				continue
			}
			pending[rel] = struct{}{}
			timer.Reset(w.opts.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			w.logger.Warn("Filesystem watch error", logging.F("error", err.Error()))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			w.logger.Info("Changes detected", logging.F("count", len(changed)))
			fn(ctx, changed)
		}
	}
}

// accept filters an event and registers newly created directories.
func (w *Watcher) accept(event fsnotify.Event) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}
	rel := w.relative(event.Name)
	if rel == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}

	isDir := false
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.opts.Matcher.IsExcluded(rel, isDir) {
		return "", false
	}
	if isDir {
		if err := w.addDir(event.Name); err != nil {
			w.logger.Warn("Could not watch new directory", logging.F("path", rel), logging.F("error", err.Error()))
		}
	}
	return rel, true
}

func (w *Watcher) relative(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}
