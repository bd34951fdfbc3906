package config

import (
	"errors"
	"io/fs"
	"os"
)

// osFileReader reads from the local filesystem.
type osFileReader struct{}

func (osFileReader) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
