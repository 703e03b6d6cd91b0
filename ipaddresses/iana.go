package ipaddresses

// IPv4 special-purpose address registry (RFC 6890 and updates).
var specialPurposeRanges = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.31.196.0/24",
	"192.52.193.0/24",
	"192.88.99.0/24",
	"192.168.0.0/16",
	"192.175.48.0/24",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"240.0.0.0/4",
	"255.255.255.255/32",
}

var specialPurpose = mustSet(specialPurposeRanges)

func mustSet(entries []string) *Set {
	s, err := NewSet(entries)
	if err != nil {
		panic(err)
	}
	return s
}

// IsSpecialPurposeAddress reports whether an IPv4 address belongs to a reserved,
// private or documentation range.
func IsSpecialPurposeAddress(ipAddr string) (special bool, err error) {
	ip, err := ParseIPAddress(ipAddr)
	if err != nil {
		return
	}
	special = specialPurpose.containsIPv4(ip)
	return
}
