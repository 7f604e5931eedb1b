// Package filenotify delivers change callbacks for individual files.
// Watches are placed on the containing directory so that atomic
// replace-by-rename writes are observed.
package filenotify

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/fsnotify/fsnotify"
)

const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

type Notifier struct {
	w *fsnotify.Watcher
	// post delivers callbacks; typically the main loop's Post
	post func(func())

	mu      sync.Mutex
	nextID  uint64
	files   map[string]map[uint64]func()
	dirRefs map[string]int
	closed  bool

	done chan struct{}
}

// Watch is the handle of one registered callback.
type Watch struct {
	n    *Notifier
	file string
	id   uint64
}

// New starts a notifier. Callbacks are passed to post, or run on the
// notifier goroutine if post is nil.
func New(post func(func())) (*Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if post == nil {
		post = func(f func()) { f() }
	}

	n := &Notifier{
		w:       w,
		post:    post,
		files:   make(map[string]map[uint64]func()),
		dirRefs: make(map[string]int),
		done:    make(chan struct{}),
	}
	go n.run()
	return n, nil
}

func (n *Notifier) String() string {
	return "filenotify"
}

// Add calls cb whenever filename is written, created, removed or renamed.
// The directory containing filename must exist.
func (n *Notifier) Add(filename string, cb func()) (*Watch, error) {
	file, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(file)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, errors.New("notifier is closed")
	}

	if n.dirRefs[dir] == 0 {
		if err := n.w.Add(dir); err != nil {
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	n.dirRefs[dir]++

	n.nextID++
	if n.files[file] == nil {
		n.files[file] = make(map[uint64]func())
	}
	n.files[file][n.nextID] = cb

	return &Watch{n: n, file: file, id: n.nextID}, nil
}

// Close removes the callback. Closing twice is harmless.
func (wt *Watch) Close() error {
	n := wt.n
	n.mu.Lock()
	defer n.mu.Unlock()

	cbs, ok := n.files[wt.file]
	if !ok {
		return nil
	}
	if _, ok := cbs[wt.id]; !ok {
		return nil
	}
	delete(cbs, wt.id)
	if len(cbs) == 0 {
		delete(n.files, wt.file)
	}

	dir := filepath.Dir(wt.file)
	n.dirRefs[dir]--
	if n.dirRefs[dir] <= 0 {
		delete(n.dirRefs, dir)
		if !n.closed {
			// the directory may be gone already
			_ = n.w.Remove(dir)
		}
	}
	return nil
}

// Close stops the notifier goroutine and waits for it.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	err := n.w.Close()
	<-n.done
	return err
}

func (n *Notifier) run() {
	defer close(n.done)
	for {
		select {
		case ev, ok := <-n.w.Events:
			if !ok {
				return
			}
			if ev.Op&changeOps == 0 {
				continue
			}
			for _, cb := range n.callbacks(filepath.Clean(ev.Name)) {
				n.post(cb)
			}
		case err, ok := <-n.w.Errors:
			if !ok {
				return
			}
			log.Warn(n, "File watcher error", "err", err)
		}
	}
}

func (n *Notifier) callbacks(file string) []func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	cbs := make([]func(), 0, len(n.files[file]))
	for _, cb := range n.files[file] {
		cbs = append(cbs, cb)
	}
	return cbs
}
