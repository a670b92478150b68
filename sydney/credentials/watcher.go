package credentials

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Watcher keeps the credentials of a cookies file current. The parent
// directory is watched so editors that replace the file are picked up.
type Watcher struct {
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	wg      conc.WaitGroup

	mu    sync.RWMutex
	creds chathub.Credentials

	reloaded chan struct{}
}

// NewWatcher loads the file once and prepares the watch. Call Start to
// begin reloading.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	creds, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		logger:   logger.With().Str("component", "credentials").Str("path", path).Logger(),
		watcher:  fw,
		creds:    creds,
		reloaded: make(chan struct{}, 1),
	}, nil
}

// Current returns a copy of the latest credentials.
func (w *Watcher) Current() chathub.Credentials {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return copyCredentials(w.creds)
}

// Reloaded signals after every reload attempt.
func (w *Watcher) Reloaded() <-chan struct{} { return w.reloaded }

// Start runs the reload loop until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Go(func() { w.loop(ctx) })
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}

// reload keeps the previous credentials when the new content is invalid.
func (w *Watcher) reload() {
	defer func() {
		select {
		case w.reloaded <- struct{}{}:
		default:
		}
	}()

	creds, err := Load(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("keeping previous credentials")
		return
	}

	w.mu.Lock()
	w.creds = creds
	w.mu.Unlock()
	w.logger.Info().Int("cookies", len(creds)).Msg("credentials reloaded")
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
