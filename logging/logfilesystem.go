package logging

import (
	"os"
	"path/filepath"
)

// ResultsFile is an append-only file of JSON lines.
type ResultsFile interface {
	Append(line []byte) error
	Close() error
}

// ResultsFileSystem creates the results log directory and opens the results log.
type ResultsFileSystem interface {
	MkDir(dirname string) error
	Open(name string) (ResultsFile, error)
}

// OSResultsFileSystem is the os backed ResultsFileSystem.
type OSResultsFileSystem struct{}

// MkDir creates dirname and its parents if missing.
func (OSResultsFileSystem) MkDir(dirname string) error {
	return os.MkdirAll(dirname, 0755)
}

// Open opens name for appending, creating it if needed. With O_APPEND each
// Append is a single write, so concurrent writers never interleave within a line.
func (OSResultsFileSystem) Open(name string) (ResultsFile, error) {
	f, err := os.OpenFile(filepath.Clean(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &osResultsFile{f: f}, nil
}

type osResultsFile struct {
	f *os.File
}

func (r *osResultsFile) Append(line []byte) error {
	_, err := r.f.Write(line)
	return err
}

func (r *osResultsFile) Close() error {
	return r.f.Close()
}
