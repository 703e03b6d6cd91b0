package testutils

import (
	"io"
)

// MockReader is an io.Reader that yields Content over and over, Count times in total.
// It lets tests stream large inputs without building them in memory.
type MockReader struct {
	Content []byte
	Count   int
	served  int
	next    []byte
}

// Read fills p with the next bytes of the repeated content.
func (m *MockReader) Read(p []byte) (n int, err error) {
	for n < len(p) {
		if len(m.next) == 0 {
			if m.served >= m.Count || len(m.Content) == 0 {
				if n == 0 {
					err = io.EOF
				}
				return
			}
			m.next = m.Content
			m.served++
		}

		c := copy(p[n:], m.next)
		n += c
		m.next = m.next[c:]
	}

	return
}
