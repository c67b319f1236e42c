package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceWindow coalesces the event bursts editors produce on save.
const debounceWindow = 500 * time.Millisecond

// Watcher re-loads a cluster file whenever it changes on disk and hands each
// valid new spec to a callback. Invalid intermediate states are logged and
// skipped; the previous spec stays in effect.
type Watcher struct {
	path     string
	onChange func(*ClusterSpec)
	fw       *fsnotify.Watcher
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for the given cluster file. The parent
// directory is watched rather than the file itself so atomic rename saves are
// seen.
func NewWatcher(path string, onChange func(*ClusterSpec), logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		fw:       fw,
		logger:   logger.With().Str("component", "config-watcher").Logger(),
	}, nil
}

// Run blocks, delivering re-loaded specs until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Watch error")
		case <-fire:
			spec, err := Load(w.path)
			if err != nil {
				w.logger.Warn().Err(err).Str("path", w.path).
					Msg("Changed cluster file is invalid, keeping previous spec")
				continue
			}
			w.logger.Info().Str("path", w.path).Msg("Cluster file reloaded")
			w.onChange(spec)
		}
	}
}
