package attr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/catawampus/cwmpd/std/filenotify"
	"github.com/catawampus/cwmpd/std/log"
)

// IdleQueue defers work until the main loop has nothing else to do.
type IdleQueue interface {
	WhenIdle(key any, f func())
}

// Files is the shared state of all file-backed attributes: the pending
// write queue and the file watches. It must only be used from the main loop.
type Files struct {
	idle     IdleQueue
	notifier *filenotify.Notifier

	// contents written to <file>.tmp but not renamed yet
	pending map[string]string
	// watch callbacks refer to owners by ID only
	owners map[uint64]Owner
}

// NewFiles creates the file-backed attribute state. notifier may be nil,
// in which case external edits are not noticed.
func NewFiles(idle IdleQueue, notifier *filenotify.Notifier) *Files {
	return &Files{
		idle:     idle,
		notifier: notifier,
		pending:  make(map[string]string),
		owners:   make(map[uint64]Owner),
	}
}

func (fs *Files) String() string {
	return "files"
}

// FileBackedAttr stores its value as the content of a file.
// A missing file reads as the empty string.
type FileBackedAttr struct {
	Behavior
	files     *Files
	path      string
	keepEmpty bool
}

type watchKey struct{ f *FileBackedAttr }

// FileBacked wraps a type descriptor so its value lives in path.
// Writing the empty value deletes the file unless KeepEmpty is set.
func FileBacked(files *Files, path string, b Behavior) *FileBackedAttr {
	return &FileBackedAttr{Behavior: b, files: files, path: path}
}

// KeepEmpty makes empty values write an empty file instead of deleting it.
func (f *FileBackedAttr) KeepEmpty() *FileBackedAttr {
	f.keepEmpty = true
	return f
}

func (f *FileBackedAttr) Path() string {
	return f.path
}

func (f *FileBackedAttr) Get(o Owner) (any, error) {
	f.watch(o)
	return f.read(o)
}

func (f *FileBackedAttr) read(o Owner) (any, error) {
	content, ok := f.files.pending[f.path]
	if !ok {
		b, err := os.ReadFile(f.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		content = string(b)
	}

	v, err := f.Behavior.Validate(o, strings.TrimRight(content, " \t\r\n"))
	if err != nil {
		log.Debug(f.files, "Unparseable file content", "path", f.path, "err", err)
		v = ""
	}
	o.AttrValues().store(f, v)
	return v, nil
}

func (f *FileBackedAttr) Set(o Owner, v any) error {
	v, err := f.Behavior.Validate(o, v)
	if err != nil {
		return err
	}
	return f.Restore(o, v)
}

func (f *FileBackedAttr) Restore(o Owner, v any) error {
	f.watch(o)
	if err := f.write(o, v); err != nil {
		return err
	}
	f.Callbacks().Run(o)
	return nil
}

// write puts the value in <file>.tmp right away, so that errors such as a
// missing directory surface now, and renames it over the file when idle.
func (f *FileBackedAttr) write(o Owner, v any) error {
	content := ""
	if v != nil {
		content = strings.TrimRight(FormatValue(v), " \t\r\n")
	}

	tmp := f.path + ".tmp"
	if content == "" && !f.keepEmpty {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	} else {
		data := content
		if data != "" {
			data += "\n"
		}
		if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", tmp, err)
		}
	}

	f.files.pending[f.path] = content
	o.AttrValues().store(f, v)
	f.files.idle.WhenIdle(f.path, f.flush)
	return nil
}

func (f *FileBackedAttr) flush() {
	defer delete(f.files.pending, f.path)

	err := os.Rename(f.path+".tmp", f.path)
	if errors.Is(err, fs.ErrNotExist) {
		err = os.Remove(f.path)
		if errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
	}
	if err != nil {
		log.Error(f.files, "Failed to update file", "path", f.path, "err", err)
	}
}

// watch registers, once per owner, a file watch that runs the change
// callbacks when someone else edits the file.
func (f *FileBackedAttr) watch(o Owner) {
	vals := o.AttrValues()
	if f.files.notifier == nil {
		return
	}
	if _, ok := vals.load(watchKey{f}); ok {
		return
	}
	vals.store(watchKey{f}, true)

	id := vals.ID()
	f.files.owners[id] = o

	var w *filenotify.Watch
	var err error
	w, err = f.files.notifier.Add(f.path, func() {
		owner, ok := f.files.owners[id]
		if !ok || owner.AttrValues().Released() {
			delete(f.files.owners, id)
			if w != nil {
				w.Close()
			}
			return
		}
		f.externalChange(owner)
	})
	if err != nil {
		log.Warn(f.files, "Unable to watch file", "path", f.path, "err", err)
		delete(f.files.owners, id)
		return
	}
	vals.whenReleased(func() {
		delete(f.files.owners, id)
		w.Close()
	})
}

func (f *FileBackedAttr) externalChange(o Owner) {
	if _, ok := f.files.pending[f.path]; ok {
		// our own write is in flight
		return
	}
	old, _ := o.AttrValues().load(f)
	cur, err := f.read(o)
	if err != nil || Equal(old, cur) {
		return
	}
	log.Debug(f.files, "File changed externally", "path", f.path)
	f.Callbacks().Run(o)
}

// FormatValue renders an attribute value as a string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		return x
	case time.Time:
		return FormatDate(x)
	}
	return fmt.Sprint(v)
}
