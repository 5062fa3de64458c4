package logmine

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher invokes a callback when the mined directory changes, so refreshes
// can follow the logs instead of waiting out the poll interval. fsnotify
// events are debounced; a fingerprint-comparing poll covers filesystems
// where watches never fire (network mounts, some containers).
type Watcher struct {
	dir          string
	onChange     func()
	pollInterval time.Duration
	debounce     time.Duration
	scanner      *Scanner
}

func NewWatcher(dir string, onChange func()) *Watcher {
	return &Watcher{
		dir:          dir,
		onChange:     onChange,
		pollInterval: 30 * time.Second,
		debounce:     2 * time.Second,
		scanner:      NewScanner(),
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var errs <-chan error

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[watcher] fsnotify unavailable, polling only: %v", err)
		fsw = nil
	} else {
		defer fsw.Close()
		_ = filepath.Walk(w.dir, func(path string, info os.FileInfo, err error) error {
			if err == nil && info.IsDir() {
				_ = fsw.Add(path)
			}
			return nil
		})
		events = fsw.Events
		errs = fsw.Errors
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	lastFP := Fingerprint(w.scanner.ListFiles(w.dir))

	var debounce *time.Timer
	var fire <-chan time.Time
	armDebounce := func() {
		if debounce == nil {
			debounce = time.NewTimer(w.debounce)
			fire = debounce.C
			return
		}
		if !debounce.Stop() {
			select {
			case <-debounce.C:
			default:
			}
		}
		debounce.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				// New subdirectories need their own watch.
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = fsw.Add(ev.Name)
				}
			}
			armDebounce()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[watcher] %v", err)
		case <-fire:
			lastFP = Fingerprint(w.scanner.ListFiles(w.dir))
			w.onChange()
		case <-ticker.C:
			fp := Fingerprint(w.scanner.ListFiles(w.dir))
			if fp != lastFP {
				lastFP = fp
				w.onChange()
			}
		}
	}
}
