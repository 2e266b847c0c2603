package inventory

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gzhole/agentlock/internal/state"
)

// Registry is the part of the state store the watcher refreshes.
type Registry interface {
	ReplaceAssets(assets []state.Asset) error
}

// Watcher watches the inventory file for changes and swaps the asset
// registry after each change settles. A file that fails to parse leaves the
// previous registry in place.
type Watcher struct {
	path     string
	registry Registry
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Debounce rapid file changes
	debounce     time.Duration
	pendingTimer *time.Timer
	timerMu      sync.Mutex

	// onReload is called after every reload attempt (tests).
	onReload func(error)
}

// NewWatcher creates a watcher for the inventory at path.
func NewWatcher(path string, registry Registry) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(path),
		registry: registry,
		watcher:  fsWatcher,
		stopChan: make(chan struct{}),
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start begins watching. The parent directory is watched so that editors
// which replace the file by rename are still seen.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run()

	log.Infof("watching inventory %s", w.path)
	return nil
}

// Stop stops the watcher and cancels any pending reload.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	w.wg.Wait()

	w.timerMu.Lock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("inventory watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	log.Debugf("inventory changed: %s (%s)", filepath.Base(event.Name), event.Op)
	w.scheduleReload()
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, w.reload)
}

// Reload reads the file now and swaps the registry.
func (w *Watcher) Reload() error {
	f, err := Load(w.path)
	if err == nil {
		err = w.registry.ReplaceAssets(f.Assets)
	}
	if err != nil {
		log.WithError(err).Error("inventory reload failed, keeping previous assets")
		return err
	}
	log.Infof("inventory reloaded: %d assets", len(f.Assets))
	return nil
}

func (w *Watcher) reload() {
	err := w.Reload()
	if w.onReload != nil {
		w.onReload(err)
	}
}
