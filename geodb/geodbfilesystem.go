package geodb

import (
	"io/ioutil"
)

// GeoIPFileSystem is the interface to handle GeoIP data file reads and writes.
type GeoIPFileSystem interface {
	WriteFile(filename string, buf []byte) error
	ReadFile(filename string) ([]byte, error)
}

// NewGeoIPFileSystem creates the os backed GeoIPFileSystem.
func NewGeoIPFileSystem() GeoIPFileSystem {
	return &fileSystemImpl{}
}

type fileSystemImpl struct{}

func (fs *fileSystemImpl) ReadFile(name string) ([]byte, error) {
	return ioutil.ReadFile(name)
}

func (fs *fileSystemImpl) WriteFile(name string, buf []byte) error {
	return ioutil.WriteFile(name, buf, 0644)
}
