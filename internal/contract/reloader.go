package contract

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"ggloracle/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Reloader keeps an ABI current with the contract files on disk.
// A reload that fails to load, or whose hash does not match the pin,
// leaves the previous ABI in place.
type Reloader struct {
	tokenizerPath string
	grammarPath   string
	pin           string

	current  atomic.Pointer[ABI]
	onReload func(*ABI)

	mu          sync.Mutex
	pending     bool
	lastEvent   time.Time
	debounceDur time.Duration
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}

	stats ReloaderStats
}

// ReloaderStats tracks reload activity.
type ReloaderStats struct {
	Reloads   int
	Failures  int
	LastError string
	LastHash  string
}

// NewReloader loads the contracts once and prepares a watcher.
// The initial load must succeed and match pin.
func NewReloader(tokenizerPath, grammarPath, pin string) (*Reloader, error) {
	abi, err := LoadFiles(tokenizerPath, grammarPath)
	if err != nil {
		return nil, err
	}
	if err := abi.Pin(pin); err != nil {
		return nil, err
	}

	r := &Reloader{
		tokenizerPath: tokenizerPath,
		grammarPath:   grammarPath,
		pin:           pin,
		debounceDur:   200 * time.Millisecond,
	}
	r.current.Store(abi)
	r.stats.LastHash = abi.Hash
	return r, nil
}

// OnReload registers a callback run after each successful swap.
// Must be called before Start.
func (r *Reloader) OnReload(fn func(*ABI)) { r.onReload = fn }

// Current returns the most recently loaded ABI.
func (r *Reloader) Current() *ABI { return r.current.Load() }

// Stats returns a snapshot of reload activity.
func (r *Reloader) Stats() ReloaderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Start begins watching the directories holding both contract files.
// Directories are watched rather than files so that editors which replace
// files on save are still observed.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dirs := map[string]bool{
		filepath.Dir(r.tokenizerPath): true,
		filepath.Dir(r.grammarPath):   true,
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.run(ctx, w, r.stopCh, r.doneCh)

	logging.Contract("watching contracts %s, %s", r.tokenizerPath, r.grammarPath)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit. Cancelling
// the context passed to Start has the same effect; Stop is then a no-op.
func (r *Reloader) Stop() {
	r.mu.Lock()
	done := r.doneCh
	if !r.running {
		r.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	<-done
}

// run owns w and closes it on every exit path.
func (r *Reloader) run(ctx context.Context, w *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	defer func() {
		r.mu.Lock()
		if r.doneCh == doneCh {
			r.running = false
		}
		r.mu.Unlock()
		if err := w.Close(); err != nil {
			logging.Get(logging.CategoryContract).Error("error closing watcher: %v", err)
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			r.handleEvent(event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryContract).Error("watcher error: %v", err)
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Reloader) handleEvent(event fsnotify.Event) {
	if !r.isContract(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	logging.ContractDebug("contract event %s on %s", event.Op, event.Name)

	r.mu.Lock()
	r.pending = true
	r.lastEvent = time.Now()
	r.mu.Unlock()
}

func (r *Reloader) isContract(name string) bool {
	clean := filepath.Clean(name)
	return clean == filepath.Clean(r.tokenizerPath) || clean == filepath.Clean(r.grammarPath)
}

// flush reloads once events have been quiet for the debounce window.
func (r *Reloader) flush() {
	r.mu.Lock()
	if !r.pending || time.Since(r.lastEvent) < r.debounceDur {
		r.mu.Unlock()
		return
	}
	r.pending = false
	r.mu.Unlock()

	r.Reload()
}

// Reload loads the contract files now and swaps them in on success.
func (r *Reloader) Reload() error {
	abi, err := LoadFiles(r.tokenizerPath, r.grammarPath)
	if err == nil {
		err = abi.Pin(r.pin)
	}

	r.mu.Lock()
	if err != nil {
		r.stats.Failures++
		r.stats.LastError = err.Error()
		r.mu.Unlock()
		logging.Get(logging.CategoryContract).Warn("contract reload rejected, keeping %s: %v", r.Current().Hash, err)
		return err
	}
	prev := r.current.Swap(abi)
	r.stats.Reloads++
	r.stats.LastHash = abi.Hash
	r.stats.LastError = ""
	r.mu.Unlock()

	if prev == nil || prev.Hash != abi.Hash {
		logging.Contract("contracts reloaded: %s", abi.Hash)
	}
	if r.onReload != nil {
		r.onReload(abi)
	}
	return nil
}
