package artifact

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Store publishes a finished records file to its final location.
type Store interface {
	// Publish copies the local file at src to the store. Readers of the
	// destination see either the previous content or the complete new one.
	Publish(ctx context.Context, src string) error
	Location() string
}

// New returns an S3Store for "s3://bucket/key" targets and a FileStore for anything else.
func New(ctx context.Context, logger zerolog.Logger, target string) (Store, error) {
	if strings.HasPrefix(target, "s3://") {
		bucket, key, err := ParseS3URL(target)
		if err != nil {
			return nil, err
		}
		client, err := newS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return NewS3Store(logger, client, bucket, key), nil
	}
	return NewFileStore(logger, target), nil
}

// ParseS3URL splits "s3://bucket/some/key.json" into bucket and key.
func ParseS3URL(u string) (bucket string, key string, err error) {
	rest := strings.TrimPrefix(u, "s3://")
	if rest == u {
		err = fmt.Errorf("not an s3 URL: %v", u)
		return
	}

	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		err = fmt.Errorf("s3 URL needs both a bucket and a key: %v", u)
		return
	}

	bucket, key = rest[:i], rest[i+1:]
	return
}

// FileStore publishes to a local path by writing a sibling temp file and renaming it.
type FileStore struct {
	logger zerolog.Logger
	path   string
}

// NewFileStore creates a FileStore.
func NewFileStore(logger zerolog.Logger, path string) *FileStore {
	return &FileStore{logger: logger, path: path}
}

// Location is the destination path.
func (s *FileStore) Location() string {
	return s.path
}

// Publish implements Store.
func (s *FileStore) Publish(ctx context.Context, src string) (err error) {
	if err = ctx.Err(); err != nil {
		return
	}

	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %v: %w", dir, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	tmp, err := ioutil.TempFile(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return
	}
	if err = tmp.Close(); err != nil {
		return
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return
	}

	s.logger.Debug().Str("path", s.path).Msg("Published records file")
	return
}
