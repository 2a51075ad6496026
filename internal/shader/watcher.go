package shader

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher turns file system events for one file into reload signals.
// Bursts of events collapse into a single pending signal.
type Watcher struct {
	fw     *fsnotify.Watcher
	target string
	out    chan struct{}
	log    zerolog.Logger
}

// NewWatcher watches the directory holding path so that editors which
// replace the file by renaming are still seen.
func NewWatcher(path string, log zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		fw:     fw,
		target: filepath.Clean(abs),
		out:    make(chan struct{}, 1),
		log:    log,
	}, nil
}

// Changes delivers a value after the file changed.
func (w *Watcher) Changes() <-chan struct{} { return w.out }

// Run forwards events until ctx is done, then closes the underlying
// watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.target || ev.Op == fsnotify.Chmod {
				continue
			}
			w.log.Debug().Str("op", ev.Op.String()).Msg("shader file changed")
			select {
			case w.out <- struct{}{}:
			default:
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// Close stops watching. Run also closes the watcher when it returns.
func (w *Watcher) Close() error { return w.fw.Close() }
