package capture

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchRules hot-reloads the rules file on change. Editors replace files by
// rename, so removed paths are re-added and events are debounced before the
// reload fires.
func WatchRules(rules *Rules, log *zap.Logger) error {
	if rules == nil || rules.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(rules.path); err != nil {
		log.Error("watch add", zap.String("path", rules.path), zap.Error(err))
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						log.Error("watch re-add", zap.String("path", ev.Name), zap.Error(err))
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				if err := rules.Reload(); err != nil {
					log.Error("rules reload failed", zap.Error(err))
				} else {
					log.Info("rules reloaded", zap.String("path", rules.path))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("watch error", zap.Error(err))
			}
		}
	}()
	return nil
}
