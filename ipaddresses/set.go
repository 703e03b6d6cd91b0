package ipaddresses

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// IPv4 addresses are composed of 4 separate 8-bit integers
const ipSize = 32

// Set holds single addresses and IPv4 ranges. IPv4 entries live in a binary trie
// keyed on the address bits; IPv6 addresses are only matched exactly.
type Set struct {
	root  *node
	exact map[string]bool
	size  int
}

// NewSet builds a Set from entries such as "192.168.10.10", "10.0.0.0/8" or "2001:db8::1".
func NewSet(entries []string) (s *Set, err error) {
	s = &Set{root: &node{}, exact: make(map[string]bool)}
	for _, e := range entries {
		if err = s.Add(e); err != nil {
			return nil, err
		}
	}
	return
}

// Add inserts one entry.
func (s *Set) Add(entry string) error {
	entry = strings.TrimSpace(entry)

	if strings.Contains(entry, "/") {
		prefix, bits, err := ParseCIDR(entry)
		if err != nil {
			return err
		}
		s.insert(prefix, bits)
		s.size++
		return nil
	}

	if ip, err := ParseIPAddress(entry); err == nil {
		s.insert(ip, ipSize)
		s.size++
		return nil
	}

	if ip := net.ParseIP(entry); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			s.insert(binary.BigEndian.Uint32(v4), ipSize)
			s.size++
			return nil
		}
		s.exact[ip.String()] = true
		s.size++
		return nil
	}

	return fmt.Errorf(errInvalidIPAddrFmt, entry)
}

// Len is the number of entries added.
func (s *Set) Len() int {
	return s.size
}

// Contains reports whether addr is one of the entries or falls in one of the ranges.
func (s *Set) Contains(addr string) bool {
	if ip, err := ParseIPAddress(addr); err == nil {
		return s.containsIPv4(ip)
	}
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return false
	}
	// IPv4-mapped IPv6 forms such as ::ffff:192.168.10.10 match the IPv4 entries.
	if v4 := ip.To4(); v4 != nil {
		return s.containsIPv4(binary.BigEndian.Uint32(v4))
	}
	return s.exact[ip.String()]
}

func (s *Set) insert(ip uint32, bits int) {
	n := s.root
	for depth := 0; depth <= ipSize; depth++ {
		if n.match {
			// Already covered by a shorter prefix.
			return
		}
		if depth == bits {
			n.match = true
			return
		}

		if bitAt(ip, depth) == 0 {
			if n.zero == nil {
				n.zero = &node{}
			}
			n = n.zero
		} else {
			if n.one == nil {
				n.one = &node{}
			}
			n = n.one
		}
	}
}

func (s *Set) containsIPv4(ip uint32) bool {
	n := s.root
	for depth := 0; depth < ipSize; depth++ {
		if n.match {
			return true
		}
		if bitAt(ip, depth) == 1 {
			n = n.one
		} else {
			n = n.zero
		}
		if n == nil {
			return false
		}
	}
	return n.match
}

type node struct {
	match bool
	one   *node
	zero  *node
}

// Returns the value of the bit at index i, counting from the most significant bit
func bitAt(ip uint32, i int) uint32 {
	return (ip >> uint32(ipSize-1-i)) & 1
}
