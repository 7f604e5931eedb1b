package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var testT *testing.T

func SetT(t *testing.T) {
	testT = t
}

func NoErr[T any](v T, err error) T {
	require.NoError(testT, err)
	return v
}

func Err[T any](_ T, err error) error {
	require.Error(testT, err)
	return err
}

// ReadFile returns the content of a file, or "" if it does not exist.
func ReadFile(path string) string {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(testT, err)
	return string(b)
}

// WriteFile writes content to dir/name and returns the full path.
func WriteFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(testT, os.WriteFile(path, []byte(content), 0o644))
	return path
}
