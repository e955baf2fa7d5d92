// Package watch triggers upload runs opportunistically when new
// top-level entries appear under a source root, debouncing bursts of
// filesystem activity into a single run request. It is a much-narrowed
// adaptation of abh/rrrgo/watcher: that watcher recurses the whole tree
// and appends individual file events into a RECENT collection; this one
// only cares that something new landed at the root, since the session
// re-derives the full picture from itemlister and inventory on every run.
package watch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long to wait after the last observed event before
// firing Trigger. Defaults to 2s.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithErrorHandler sets a callback for fsnotify and watch-setup errors.
func WithErrorHandler(handler func(error)) Option {
	return func(w *Watcher) { w.errorHandler = handler }
}

// Watcher monitors the direct children of a single root directory and
// calls Trigger, debounced, whenever a new entry is created there.
type Watcher struct {
	root     string
	trigger  func()
	debounce time.Duration

	errorHandler func(error)

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New returns a Watcher over root that calls trigger after new top-level
// entries appear. It does not start watching until Start is called.
func New(root string, trigger func(), opts ...Option) (*Watcher, error) {
	if trigger == nil {
		return nil, fmt.Errorf("watch: trigger callback is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		root:         root,
		trigger:      trigger,
		debounce:     2 * time.Second,
		errorHandler: func(err error) { fmt.Fprintf(os.Stderr, "watch: %v\n", err) },
		fsw:          fsw,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching root for new top-level entries.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watch: already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fsw.Add(w.root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("watch: watch %s: %w", w.root, err)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops watching and waits for the debounce goroutine to settle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			w.trigger()
			timer = nil
			timerC = nil

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.errorHandler(fmt.Errorf("fsnotify error: %w", err))

		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
