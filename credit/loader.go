package credit

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML credit table and watches it for changes.
type Loader struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	current  *Table
	onChange []func(*Table)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{path: path, logger: logger}
	t, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = t
	return l, nil
}

// Table returns the latest table.
func (l *Loader) Table() *Table {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the table reloads.
func (l *Loader) OnChange(fn func(*Table)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch hot-reloads the table on file changes until stop is called.
// A file that fails to parse leaves the previous table in place.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("credit table watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("credit table watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger.Warn("credit table reload failed, keeping previous table",
							"path", l.path,
							"error", err,
						)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("credit table watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the table file.
func (l *Loader) Reload() (*Table, error) {
	t, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = t
	callbacks := make([]func(*Table), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	l.logger.Info("credit table loaded",
		"path", l.path,
		"stripe_prices", len(t.Stripe),
		"nowpayments_amounts", len(t.NOWPayments),
	)
	for _, fn := range callbacks {
		fn(t)
	}
	return t, nil
}

func (l *Loader) load() (*Table, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read credit table %s: %w", l.path, err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse credit table %s: %w", l.path, err)
	}
	if t.Stripe == nil {
		t.Stripe = map[string]int64{}
	}
	if t.NOWPayments == nil {
		t.NOWPayments = map[string]int64{}
	}
	if err := t.Normalize(); err != nil {
		return nil, err
	}
	return &t, nil
}
