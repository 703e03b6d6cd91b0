package bancache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"modsecmon/testutils"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

const testPath = "/var/cache/modsec-threat-monitor/ip_banlist.json"

type mockFileSystem struct {
	files           map[string][]byte
	readErr         error
	writeErr        error
	readFileCalled  int
	writeFileCalled int
}

func newMockFileSystem() *mockFileSystem {
	return &mockFileSystem{files: make(map[string][]byte)}
}

func (m *mockFileSystem) ReadFile(name string) ([]byte, error) {
	m.readFileCalled++
	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return data, nil
}

func (m *mockFileSystem) WriteFile(name string, data []byte) error {
	m.writeFileCalled++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.files[name] = data
	return nil
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func persisted(t *testing.T, fs *mockFileSystem) map[string]int64 {
	var m map[string]int64
	if err := json.Unmarshal(fs.files[testPath], &m); err != nil {
		t.Fatalf("Got unexpected error: %v", err)
	}
	return m
}

func TestLoadMissingFile(t *testing.T) {
	assert := assert.New(t)

	c := New(testutils.NewTestLogger(t), newMockFileSystem(), testPath, nil)

	assert.Empty(c.Load())
	assert.False(c.Contains("1.2.3.4"))
}

func TestLoadCorruptFile(t *testing.T) {
	assert := assert.New(t)

	fs := newMockFileSystem()
	fs.files[testPath] = []byte(`{"1.2.3.4": 17`)
	c := New(testutils.NewTestLogger(t), fs, testPath, nil)

	assert.Empty(c.Load())
}

func TestLoadUnreadableFile(t *testing.T) {
	assert := assert.New(t)

	fs := newMockFileSystem()
	fs.readErr = errors.New("permission denied")
	c := New(testutils.NewTestLogger(t), fs, testPath, nil)

	assert.Empty(c.Load())
}

func TestLoadNullFile(t *testing.T) {
	assert := assert.New(t)

	fs := newMockFileSystem()
	fs.files[testPath] = []byte(`null`)
	c := New(testutils.NewTestLogger(t), fs, testPath, nil)

	assert.Empty(c.Load())
	c.Insert("1.2.3.4", DefaultTTL)
	assert.True(c.Contains("1.2.3.4"))
}

func TestInsertExpiresAfterTTL(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	fs := newMockFileSystem()
	clk := &clock{t: time.Unix(1700000000, 0)}
	c := New(testutils.NewTestLogger(t), fs, testPath, clk.now)
	c.Load()

	// Act
	expiry := c.Insert("1.2.3.4", 86400*time.Second)
	assert.Nil(c.Save())

	// Assert
	assert.Equal(int64(1700086400), expiry)

	clk.advance(86399 * time.Second)
	c.Load()
	assert.True(c.Contains("1.2.3.4"))

	clk.advance(2 * time.Second)
	c.Load()
	assert.False(c.Contains("1.2.3.4"))

	assert.Nil(c.Save())
	assert.Empty(persisted(t, fs))
}

func TestExpiryBoundaryIsExpired(t *testing.T) {
	assert := assert.New(t)

	fs := newMockFileSystem()
	fs.files[testPath] = []byte(`{"1.2.3.4": 1000, "5.6.7.8": 1001}`)
	clk := &clock{t: time.Unix(1000, 0)}
	c := New(testutils.NewTestLogger(t), fs, testPath, clk.now)

	assert.Equal(map[string]int64{"5.6.7.8": 1001}, c.Load())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	fs := newMockFileSystem()
	fs.files[testPath] = []byte(`{"1.1.1.1": 500, "2.2.2.2": 2000, "3.3.3.3": 3000}`)
	clk := &clock{t: time.Unix(1000, 0)}
	c := New(testutils.NewTestLogger(t), fs, testPath, clk.now)

	// Act
	c.Load()
	assert.Nil(c.Save())

	// Assert
	assert.Equal(map[string]int64{"2.2.2.2": 2000, "3.3.3.3": 3000}, persisted(t, fs))
	assert.Equal(1, fs.writeFileCalled)
}

func TestInsertOverwrites(t *testing.T) {
	assert := assert.New(t)

	fs := newMockFileSystem()
	clk := &clock{t: time.Unix(1000, 0)}
	c := New(testutils.NewTestLogger(t), fs, testPath, clk.now)
	c.Load()

	c.Insert("1.2.3.4", time.Hour)
	clk.advance(time.Minute)
	c.Insert("1.2.3.4", time.Hour)

	assert.Equal(map[string]int64{"1.2.3.4": 1000 + 60 + 3600}, c.Entries())
}

func TestInsertDefaultTTL(t *testing.T) {
	assert := assert.New(t)

	clk := &clock{t: time.Unix(0, 0)}
	c := New(testutils.NewTestLogger(t), newMockFileSystem(), testPath, clk.now)

	assert.Equal(int64(86400), c.Insert("1.2.3.4", 0))
}

func TestSaveWriteError(t *testing.T) {
	assert := assert.New(t)

	fs := newMockFileSystem()
	fs.writeErr = errors.New("disk full")
	c := New(testutils.NewTestLogger(t), fs, testPath, nil)
	c.Insert("1.2.3.4", time.Hour)

	assert.Error(c.Save())
}

func TestFileSystemImpl(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	fs := &FileSystemImpl{}
	path := filepath.Join(t.TempDir(), "nested", "dir", "ip_banlist.json")

	// Act
	err := fs.WriteFile(path, []byte(`{"1.2.3.4":99}`))
	assert.Nil(err)
	err = fs.WriteFile(path, []byte(`{}`))
	assert.Nil(err)
	data, err := fs.ReadFile(path)

	// Assert
	assert.Nil(err)
	assert.Equal(`{}`, string(data))
	entries, _ := os.ReadDir(filepath.Dir(path))
	assert.Len(entries, 1)
}

func TestCacheWithRealFileSystem(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "ip_banlist.json")
	c := New(testutils.NewTestLogger(t), &FileSystemImpl{}, path, nil)
	c.Load()
	c.Insert("203.0.113.9", time.Hour)
	assert.Nil(c.Save())

	other := New(testutils.NewTestLogger(t), &FileSystemImpl{}, path, nil)
	other.Load()
	assert.True(other.Contains("203.0.113.9"))
}
