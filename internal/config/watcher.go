package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/loomhq/loom/internal/logging"
	"go.uber.org/zap"
)

// Watcher reloads Config from its TOML file on write events, debounced to
// collapse the burst of events most editors emit for a single save.
type Watcher struct {
	configPath string
	fsw        *fsnotify.Watcher
	onReload   func(Config)
	debounce   time.Duration
	stop       chan struct{}
}

// WatchFile builds a Watcher over configPath and starts its event loop.
// Call Close to stop it. A configPath of "" returns a nil Watcher that
// does nothing — there is no file to watch.
func WatchFile(configPath string, onReload func(Config)) (*Watcher, error) {
	if configPath == "" {
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(configPath); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		configPath: configPath,
		fsw:        fsw,
		onReload:   onReload,
		debounce:   200 * time.Millisecond,
		stop:       make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	log := logging.Get(logging.CategoryBoot)
	var pending *time.Timer

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, func() {
				cfg, err := Load(w.configPath)
				if err != nil {
					log.Warn("config reload failed", zap.String("path", w.configPath), zap.Error(err))
					return
				}
				log.Info("config reloaded", zap.String("path", w.configPath))
				w.onReload(cfg)
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher error", zap.Error(err))
		case <-w.stop:
			return
		}
	}
}

// Close stops the watcher's event loop and releases its OS handle.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	close(w.stop)
	return w.fsw.Close()
}
