package bancache

// Locker serializes load-decide-save cycles across processes sharing one ban list.
type Locker interface {
	Lock() (unlock func(), err error)
}

// NopLocker never blocks. Use it when a single process owns the ban list.
type NopLocker struct{}

// Lock returns immediately.
func (NopLocker) Lock() (func(), error) {
	return func() {}, nil
}
