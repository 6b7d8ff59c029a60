package policy

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hmans/entityql/internal/hook"
	"github.com/hmans/entityql/internal/logger"
	"github.com/hmans/entityql/internal/storage"
)

const debounceDelay = 100 * time.Millisecond

// Enforcer serves the current policy to the hook gateway and can reload it
// when its file changes.
type Enforcer struct {
	path    string
	current atomic.Pointer[Policy]
	logger  logger.Logger

	mu       sync.Mutex
	watching bool
	done     chan struct{}
	stopped  chan struct{}
	onReload func(error)
}

// NewEnforcer loads the policy at path. An empty path allows everything.
func NewEnforcer(path string, log logger.Logger) (*Enforcer, error) {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	e := &Enforcer{path: path, logger: log}

	p := AllowAll()
	if path != "" {
		var err error
		if p, err = Load(path); err != nil {
			return nil, err
		}
	}
	e.current.Store(p)
	return e, nil
}

// Policy returns the policy in effect.
func (e *Enforcer) Policy() *Policy {
	return e.current.Load()
}

// Hooks returns authorizer and validator hooks backed by the current
// policy.
func (e *Enforcer) Hooks() hook.Hooks {
	return hook.Hooks{
		Authorizer: func(ctx context.Context, moment hook.Moment, op hook.Operation, typ string, ent *storage.Entity) (bool, error) {
			return e.Policy().Authorize(ctx, moment, op, typ, ent)
		},
		Validator: func(ctx context.Context, typ string, attrs map[string]any) (bool, error) {
			return e.Policy().Validate(ctx, typ, attrs)
		},
	}
}

// Reload re-reads the policy file. On failure the previous policy stays in
// effect.
func (e *Enforcer) Reload() error {
	if e.path == "" {
		return nil
	}
	p, err := Load(e.path)
	if err != nil {
		e.logger.Warn("policy reload failed, keeping previous policy", zap.String("path", e.path), zap.Error(err))
		return err
	}
	e.current.Store(p)
	e.logger.Info("policy reloaded", zap.String("path", e.path))
	return nil
}

// Watch reloads the policy whenever its file changes. onReload, if not nil,
// receives the result of every reload.
func (e *Enforcer) Watch(onReload func(error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watching || e.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// editors replace files, so watch the directory
	if err := watcher.Add(filepath.Dir(e.path)); err != nil {
		watcher.Close()
		return err
	}

	e.watching = true
	e.done = make(chan struct{})
	e.stopped = make(chan struct{})
	e.onReload = onReload

	go e.watchLoop(watcher, e.done, e.stopped)
	return nil
}

// Unwatch stops watching and waits for the watcher to exit.
func (e *Enforcer) Unwatch() {
	e.mu.Lock()
	if !e.watching {
		e.mu.Unlock()
		return
	}
	close(e.done)
	e.watching = false
	stopped := e.stopped
	e.mu.Unlock()
	<-stopped
}

func (e *Enforcer) watchLoop(watcher *fsnotify.Watcher, done, stopped chan struct{}) {
	defer close(stopped)
	defer watcher.Close()

	target := filepath.Clean(e.path)
	var debounceTimer *time.Timer

	for {
		select {
		case <-done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, e.reloadNotify)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			e.logger.Warn("policy watcher error", zap.Error(err))
		}
	}
}

func (e *Enforcer) reloadNotify() {
	e.mu.Lock()
	if !e.watching {
		e.mu.Unlock()
		return
	}
	callback := e.onReload
	e.mu.Unlock()

	err := e.Reload()
	if callback != nil {
		callback(err)
	}
}
