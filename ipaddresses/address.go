package ipaddresses

import (
	"fmt"
	"strconv"
	"strings"
)

const errInvalidIPAddrFmt = "invalid IP address: %s"
const errInvalidCIDRFmt = "invalid CIDR Notation: %s"

// ParseIPAddress is a utility function that converts IP address
// from octet notation (*.*.*.*) to its 32-bit unsigned integer value.
func ParseIPAddress(ipAddr string) (ip uint32, err error) {
	octets := strings.Split(ipAddr, ".")
	if len(octets) != 4 {
		err = fmt.Errorf(errInvalidIPAddrFmt, ipAddr)
		return
	}

	for _, octet := range octets {
		var b int

		b, err = strconv.Atoi(octet)
		if err != nil || b < 0 || b > 255 || octet[0] == '+' {
			err = fmt.Errorf(errInvalidIPAddrFmt, ipAddr)
			return
		}

		ip <<= 8
		ip |= uint32(b)
	}

	return ip, nil
}

// ParseCIDR converts a CIDR notation into a 32-bit unsigned integer
// prefix of an IP address space and its prefix length in bits.
func ParseCIDR(cidr string) (prefix uint32, bits int, err error) {
	splitted := strings.Split(cidr, "/")
	if len(splitted) != 2 {
		err = fmt.Errorf(errInvalidCIDRFmt, cidr)
		return
	}

	ipAddr, suffix := splitted[0], splitted[1]
	ip, err := ParseIPAddress(ipAddr)
	if err != nil {
		err = fmt.Errorf(errInvalidCIDRFmt, cidr)
		return
	}

	bits, err = strconv.Atoi(suffix)
	if err != nil || bits < 0 || bits > 32 {
		err = fmt.Errorf(errInvalidCIDRFmt, cidr)
		return
	}

	prefix = ip & maskOf(bits)
	return
}

func maskOf(bits int) uint32 {
	if bits == 0 {
		return 0
	}
	return uint32(0xffffffff) << uint32(32-bits)
}

// ClientAddress picks the address a request originated from: the first hop of
// X-Forwarded-For when present, else the peer address.
func ClientAddress(forwardedFor string, remoteAddr string) string {
	if forwardedFor != "" {
		first := strings.Split(forwardedFor, ",")[0]
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(remoteAddr)
}
