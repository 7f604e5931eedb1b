package log

import (
	"io"
	"os"
)

// Open installs a default logger writing to file, or stderr if file is empty.
// The returned function closes the underlying file.
func Open(file string, level string, json bool) (func() error, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr
	closer := func() error { return nil }
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w, closer = f, f.Close
	}

	l := NewText(w)
	if json {
		l = NewJson(w)
	}
	l.SetLevel(lvl)
	SetDefault(l)
	return closer, nil
}
