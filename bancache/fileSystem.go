package bancache

import (
	"io/ioutil"
	"os"
	"path/filepath"
)

// FileSystem is the blob store the ban list is persisted to.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

// FileSystemImpl is the implementation for file system interface.
// Writes go to a temporary file that is renamed over the target, so readers never see a partial list.
type FileSystemImpl struct {
}

// ReadFile reads the whole file.
func (fs *FileSystemImpl) ReadFile(name string) ([]byte, error) {
	return ioutil.ReadFile(name)
}

// WriteFile replaces the file content, creating parent directories as needed.
func (fs *FileSystemImpl) WriteFile(name string, data []byte) (err error) {
	dir := filepath.Dir(name)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return
	}

	tmp, err := ioutil.TempFile(dir, filepath.Base(name)+".tmp*")
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return
	}
	if err = tmp.Close(); err != nil {
		return
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return
	}

	return os.Rename(tmp.Name(), name)
}
