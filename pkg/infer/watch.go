package infer

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch re-scans the model directory whenever weights or metadata files are
// created or rewritten, so new backends become available without a restart.
// Events are debounced because weight files arrive in multiple writes.
// Blocks until done is closed.
func (r *Registry) Watch(done <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(r.dir); err != nil {
		return err
	}
	r.log.Info("watching model directory", zap.String("dir", r.dir))

	pending := map[string]time.Time{}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			ext := strings.ToLower(filepath.Ext(ev.Name))
			if ext != ".onnx" && ext != ".json" {
				continue
			}
			pending[ev.Name] = time.Now()
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			now := time.Now()
			stable := true
			for _, t := range pending {
				if now.Sub(t) <= 300*time.Millisecond {
					stable = false
					break
				}
			}
			if !stable {
				continue
			}
			pending = map[string]time.Time{}
			if err := r.Rescan(); err != nil {
				r.log.Warn("model rescan failed", zap.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("model watch error", zap.Error(err))
		case <-done:
			return nil
		}
	}
}
