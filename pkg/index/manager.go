package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// debounceWindow coalesces bursts of filesystem events into a single
// invalidation.
const debounceWindow = 500 * time.Millisecond

// Manager caches a built Index for one project root and serves concurrent
// searches against it. Rebuilds swap the index atomically under a write
// lock, so readers observe either the old or the fully-built new index,
// never a partial one.
//
// An optional filesystem watcher invalidates the cache on file events.
// Correctness never depends on the watcher; it only decides when the next
// search pays for a rebuild.
type Manager struct {
	root    string
	opts    Options
	logger  *zap.Logger
	metrics *Metrics

	mu    sync.RWMutex
	index *Index

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a Manager for the given project root.
func NewManager(root string, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		root:    root,
		opts:    opts,
		logger:  logger,
		metrics: NewMetrics(),
		stop:    make(chan struct{}),
	}
}

// Root returns the project root this manager indexes.
func (m *Manager) Root() string {
	return m.root
}

// Index returns the cached index, building it on first use or after an
// invalidation.
func (m *Manager) Index(ctx context.Context) (*Index, error) {
	m.mu.RLock()
	idx := m.index
	m.mu.RUnlock()
	if idx != nil {
		m.metrics.RecordCacheHit()
		return idx, nil
	}
	m.metrics.RecordCacheMiss()
	return m.Rebuild(ctx)
}

// Rebuild builds a fresh index and swaps it in atomically.
func (m *Manager) Rebuild(ctx context.Context) (*Index, error) {
	start := time.Now()
	idx, err := Build(ctx, m.root, m.opts)
	if err != nil {
		return nil, err
	}
	m.metrics.RecordBuild(time.Since(start).Seconds(), idx.Len(), idx.SymbolCount())

	m.mu.Lock()
	m.index = idx
	m.mu.Unlock()

	m.logger.Info("Codebase index built",
		zap.String("root", m.root),
		zap.Int("files", idx.Len()),
		zap.Int("symbols", idx.SymbolCount()),
		zap.Duration("duration", time.Since(start)))
	return idx, nil
}

// Invalidate drops the cached index. The next Index or Search call
// rebuilds it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.index = nil
	m.mu.Unlock()
	m.metrics.RecordInvalidation()
}

// Search runs a ranked search against the cached index, building it first
// when needed.
func (m *Manager) Search(ctx context.Context, frames []FrameRef, errorMessage string) ([]Candidate, error) {
	idx, err := m.Index(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	candidates := idx.Search(frames, errorMessage)
	m.metrics.RecordSearch(time.Since(start).Seconds(), len(candidates))
	return candidates, nil
}

// Excerpt returns a numbered window of a file under the managed root.
func (m *Manager) Excerpt(ctx context.Context, rel string, line, contextLines int) (string, error) {
	idx, err := m.Index(ctx)
	if err != nil {
		return "", err
	}
	return idx.Excerpt(rel, line, contextLines)
}

// Watch starts a filesystem watcher over the root and its non-excluded
// subdirectories. File events invalidate the cached index after a short
// debounce. Directories created after the watch starts are picked up on
// the next rebuild, not immediately.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	m.watcher = watcher

	excluded := make(map[string]struct{}, len(m.opts.ExcludedDirs))
	for _, d := range m.opts.ExcludedDirs {
		excluded[strings.ToLower(d)] = struct{}{}
	}

	absRoot, err := filepath.Abs(m.root)
	if err != nil {
		return fmt.Errorf("resolving watch root: %w", err)
	}
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return nil
		}
		if path != absRoot {
			if _, skip := excluded[strings.ToLower(d.Name())]; skip {
				return fs.SkipDir
			}
		}
		// Best-effort: an unwatchable directory is not fatal.
		_ = watcher.Add(path)
		return nil
	})
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("registering watch paths: %w", err)
	}

	go m.processEvents(ctx)
	return nil
}

// Stop stops the watcher. Safe to call multiple times, and safe to call
// when Watch was never started.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		if m.watcher != nil {
			_ = m.watcher.Close()
		}
	})
}

func (m *Manager) processEvents(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			m.logger.Debug("Codebase changed, invalidating index",
				zap.String("root", m.root))
			m.Invalidate()

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Index watcher error", zap.Error(err))
		}
	}
}
