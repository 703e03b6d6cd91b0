//go:build !unix

package bancache

// NewFileLocker falls back to no cross-process locking where flock(2) is unavailable.
func NewFileLocker(path string) Locker {
	return NopLocker{}
}
