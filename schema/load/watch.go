package load

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rowandb/rowan/schema"
)

// Watcher reloads a schema directory whenever its files change and
// delivers fresh registries over C. Edits arriving in a burst (editors
// write, rename and chmod in quick succession) coalesce into one reload.
// A directory state that fails to load is reported on Errors and the
// previous registry stays current; callers swap registries only when a
// snapshot arrives.
type Watcher struct {
	// C delivers validated registries, one per successful reload.
	C <-chan *schema.Registry
	// Errors delivers reload failures.
	Errors <-chan error

	fsw    *fsnotify.Watcher
	done   chan struct{}
	logger *slog.Logger
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WatchLogger sets the watcher's logger. The default discards everything.
func WatchLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watch loads the directory once to verify it, then starts watching it.
// The initial registry is returned, not delivered on C.
func Watch(dir string, opts ...WatchOption) (*schema.Registry, *Watcher, error) {
	initial, err := Registry(dir)
	if err != nil {
		return nil, nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, nil, err
	}
	regs := make(chan *schema.Registry, 1)
	errs := make(chan error, 1)
	w := &Watcher{
		C:      regs,
		Errors: errs,
		fsw:    fsw,
		done:   make(chan struct{}),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run(dir, regs, errs)
	return initial, w, nil
}

// Close stops watching. C and Errors are closed afterwards.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

// debounce is how long the watcher waits after the last event before
// reloading, absorbing editor write bursts.
const debounce = 100 * time.Millisecond

func (w *Watcher) run(dir string, regs chan *schema.Registry, errs chan<- error) {
	defer close(w.done)
	defer close(regs)
	defer close(errs)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isYAML(ev.Name) {
				continue
			}
			w.logger.Debug("schema change", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
		case <-fire:
			timer, fire = nil, nil
			reg, err := Registry(dir)
			if err != nil {
				w.logger.Warn("schema reload failed", "err", err)
				select {
				case errs <- err:
				default:
				}
				continue
			}
			// Replace a pending snapshot; slow consumers only ever see
			// the latest state.
			select {
			case <-regs:
			default:
			}
			regs <- reg
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case errs <- err:
			default:
			}
		}
	}
}
