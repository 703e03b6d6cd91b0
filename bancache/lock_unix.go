//go:build unix

package bancache

import (
	"os"
	"path/filepath"
	"syscall"
)

type fileLocker struct {
	path string
}

// NewFileLocker creates an advisory flock(2) based Locker on path.
func NewFileLocker(path string) Locker {
	return &fileLocker{path: path}
}

func (l *fileLocker) Lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	if err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}

	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
