package attr_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/catawampus/cwmpd/std/filenotify"
	"github.com/catawampus/cwmpd/std/loop"
	tu "github.com/catawampus/cwmpd/std/utils/testutils"
	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/stretchr/testify/require"
)

func TestFileBackedReadWrite(t *testing.T) {
	tu.SetT(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "serial")

	l := loop.New(loop.NewDummyTimer())
	files := attr.NewFiles(l, nil)
	f := attr.FileBacked(files, path, attr.String(nil))
	require.Equal(t, path, f.Path())
	n := &node{}

	v, err := f.Get(n)
	require.NoError(t, err)
	require.Equal(t, "", v)

	tu.WriteFile(dir, "serial", "ABC123  \n")
	v, err = f.Get(n)
	require.NoError(t, err)
	require.Equal(t, "ABC123", v)

	// the write lands in .tmp and the file is replaced when idle
	require.NoError(t, f.Set(n, "XYZ"))
	require.Equal(t, "XYZ\n", tu.ReadFile(path+".tmp"))
	require.Equal(t, "ABC123  \n", tu.ReadFile(path))
	v, _ = f.Get(n)
	require.Equal(t, "XYZ", v)

	require.NoError(t, f.Set(n, "LAST"))
	require.Equal(t, 1, l.RunIdle())
	require.Equal(t, "LAST\n", tu.ReadFile(path))
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	// empty deletes the file
	require.NoError(t, f.Set(n, ""))
	l.RunIdle()
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestFileBackedKeepEmptyAndTypes(t *testing.T) {
	tu.SetT(t)
	dir := t.TempDir()
	l := loop.New(loop.NewDummyTimer())
	files := attr.NewFiles(l, nil)
	n := &node{}

	keep := attr.FileBacked(files, filepath.Join(dir, "keep"), attr.String(nil)).KeepEmpty()
	require.NoError(t, keep.Set(n, ""))
	l.RunIdle()
	_, err := os.Stat(filepath.Join(dir, "keep"))
	require.NoError(t, err)

	num := attr.FileBacked(files, filepath.Join(dir, "num"), attr.Unsigned(nil))
	require.Error(t, num.Set(n, -1))
	require.NoError(t, num.Set(n, "17"))
	l.RunIdle()
	v, err := num.Get(n)
	require.NoError(t, err)
	require.Equal(t, uint64(17), v)

	// garbage content reads as empty
	tu.WriteFile(dir, "num", "seventeen")
	v, err = num.Get(n)
	require.NoError(t, err)
	require.Equal(t, "", v)

	// missing directory fails at Set time
	bad := attr.FileBacked(files, filepath.Join(dir, "nope", "x"), attr.String(nil))
	require.Error(t, bad.Set(n, "x"))
}

func TestFileBackedTrigger(t *testing.T) {
	tu.SetT(t)
	dir := t.TempDir()
	l := loop.New(loop.NewDummyTimer())
	files := attr.NewFiles(l, nil)
	n := &node{}

	f := attr.Trigger(attr.FileBacked(files, filepath.Join(dir, "url"), attr.String(nil)))
	require.NoError(t, f.Set(n, "http://acs"))
	require.Equal(t, 1, n.triggered)
	require.NoError(t, f.Set(n, "http://acs"))
	require.Equal(t, 1, n.triggered)
	l.RunIdle()
	require.NoError(t, f.Set(n, "http://acs2"))
	require.Equal(t, 2, n.triggered)
}

func TestFileBackedExternalEdit(t *testing.T) {
	tu.SetT(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "code")
	tu.WriteFile(dir, "code", "one")

	tasks := make(chan func(), 64)
	notifier, err := filenotify.New(func(f func()) { tasks <- f })
	require.NoError(t, err)
	defer notifier.Close()

	l := loop.New(loop.NewDummyTimer())
	files := attr.NewFiles(l, notifier)
	changes := 0
	f := attr.FileBacked(files, path, attr.String(nil).OnChange(func(attr.Owner) { changes++ }))
	n := &node{}

	v, err := f.Get(n)
	require.NoError(t, err)
	require.Equal(t, "one", v)

	tu.WriteFile(dir, "code", "two")
	deadline := time.After(5 * time.Second)
	for changes == 0 {
		select {
		case task := <-tasks:
			task()
		case <-deadline:
			t.Fatal("external edit not noticed")
		}
	}
	v, _ = f.Get(n)
	require.Equal(t, "two", v)

	require.Equal(t, 1, files.Owners())

	// once the owner is released its watch goes quiet
	n.AttrValues().Release()
	require.Equal(t, 0, files.Owners())
	tu.WriteFile(dir, "code", "three")
	settle := time.After(300 * time.Millisecond)
	for done := false; !done; {
		select {
		case task := <-tasks:
			task()
		case <-settle:
			done = true
		}
	}
	require.Equal(t, 1, changes)
}
