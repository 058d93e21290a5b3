// Package watcher turns directories into upload inboxes: PDF files dropped into a
// watched directory are handed to a callback once they stop changing.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Handler receives a settled inbox file. It normally imports and removes the file.
type Handler func(ctx context.Context, path string) error

// Inbox watches directories for PDF files.
type Inbox struct {
	roots     []string
	recursive bool
	handle    Handler
	debounce  time.Duration
	logger    *zap.Logger // optional

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	ctx       context.Context
	pending   map[string]*time.Timer
	rootPaths map[string][]string // root -> directories added to fsw
	done      chan struct{}
	stopOnce  sync.Once
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets a logger for inbox events.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must stay unchanged before it is handled.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// NewInbox creates an inbox over roots. Missing roots are created on Start.
func NewInbox(roots []string, recursive bool, handle Handler, opts ...Option) *Inbox {
	in := &Inbox{
		recursive: recursive,
		handle:    handle,
		debounce:  defaultDebounce,
		pending:   make(map[string]*time.Timer),
		rootPaths: make(map[string][]string),
		done:      make(chan struct{}),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			in.roots = append(in.roots, filepath.Clean(abs))
		}
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start begins watching and returns immediately. PDFs already in the roots are handled
// in the background. The inbox stops when ctx is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.fsw != nil {
		in.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return err
	}
	in.fsw = fsw
	in.ctx = ctx
	for _, root := range in.roots {
		if err := in.watchRootLocked(root); err != nil {
			_ = fsw.Close()
			in.fsw = nil
			in.mu.Unlock()
			return err
		}
	}
	roots := append([]string(nil), in.roots...)
	in.mu.Unlock()

	if in.logger != nil {
		in.logger.Info("inbox watching", zap.Strings("directories", roots), zap.Bool("recursive", in.recursive))
	}
	go in.run(ctx, fsw)
	go func() {
		for _, root := range roots {
			in.scan(root)
		}
	}()
	return nil
}

func (in *Inbox) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			in.onEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if in.logger != nil {
				in.logger.Warn("inbox watch error", zap.Error(err))
			}
		}
	}
}

func (in *Inbox) onEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			in.cancel(ev.Name)
		}
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if in.recursive {
			in.mu.Lock()
			var err error
			if in.fsw != nil {
				err = in.addTreeLocked(ev.Name, in.rootOf(ev.Name))
			}
			in.mu.Unlock()
			if err != nil && in.logger != nil {
				in.logger.Warn("inbox failed to watch directory", zap.String("path", ev.Name), zap.Error(err))
			}
			in.scan(ev.Name)
		}
		return
	}
	if isPDFName(ev.Name) {
		in.schedule(ev.Name)
	}
}

// schedule handles path once no event has touched it for the debounce interval.
func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.fsw == nil {
		return
	}
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		ctx := in.ctx
		stopped := in.fsw == nil
		in.mu.Unlock()
		if stopped {
			return
		}
		in.dispatch(ctx, path)
	})
}

func (in *Inbox) dispatch(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := in.handle(ctx, path); err != nil {
		if in.logger != nil {
			in.logger.Warn("inbox file not imported", zap.String("path", path), zap.Error(err))
		}
		return
	}
	if in.logger != nil {
		in.logger.Info("inbox file imported", zap.String("path", path))
	}
}

func (in *Inbox) cancel(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

// scan schedules every PDF already under dir.
func (in *Inbox) scan(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && !in.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if isPDFName(path) {
			in.schedule(path)
		}
		return nil
	})
}

// AddDirectory starts watching root and handles the PDFs already in it.
func (in *Inbox) AddDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	in.mu.Lock()
	for _, r := range in.roots {
		if r == abs {
			in.mu.Unlock()
			return nil
		}
	}
	if in.fsw != nil {
		if err := in.watchRootLocked(abs); err != nil {
			in.mu.Unlock()
			return err
		}
	}
	in.roots = append(in.roots, abs)
	started := in.fsw != nil
	in.mu.Unlock()
	if started {
		go in.scan(abs)
	}
	return nil
}

// RemoveDirectory stops watching root. Files already imported are not affected.
func (in *Inbox) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, r := range in.roots {
		if r != abs {
			continue
		}
		if in.fsw != nil {
			for _, p := range in.rootPaths[abs] {
				_ = in.fsw.Remove(p)
			}
		}
		delete(in.rootPaths, abs)
		in.roots = append(in.roots[:i], in.roots[i+1:]...)
		return nil
	}
	return nil
}

// Directories returns the watched root directories.
func (in *Inbox) Directories() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.roots...)
}

// Stop stops watching and drops files that have not settled yet.
func (in *Inbox) Stop() {
	in.mu.Lock()
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	if in.fsw != nil {
		_ = in.fsw.Close()
		in.fsw = nil
	}
	in.mu.Unlock()
	in.stopOnce.Do(func() { close(in.done) })
}

func (in *Inbox) watchRootLocked(root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !in.recursive {
		if err := in.fsw.Add(root); err != nil {
			return err
		}
		in.rootPaths[root] = []string{root}
		return nil
	}
	return in.addTreeLocked(root, root)
}

func (in *Inbox) addTreeLocked(dir, root string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := in.fsw.Add(path); err != nil {
			return err
		}
		in.rootPaths[root] = append(in.rootPaths[root], path)
		return nil
	})
}

// rootOf returns the watched root containing path. Callers hold in.mu.
func (in *Inbox) rootOf(path string) string {
	clean := filepath.Clean(path)
	for _, r := range in.roots {
		if rel, err := filepath.Rel(r, clean); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return r
		}
	}
	return clean
}

func isPDFName(path string) bool {
	base := filepath.Base(path)
	return strings.EqualFold(filepath.Ext(base), ".pdf") && !strings.HasPrefix(base, ".")
}
