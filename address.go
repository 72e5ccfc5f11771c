package netrt

import (
	"strconv"
	"strings"
)

// Addr is a normalized (host, port) pair.
type Addr struct {
	Host string
	Port int
}

func (a Addr) String() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// ParseAddress normalizes a "host[:port]" string into an Addr. A bare
// host uses defaultPort. Port must be an integer in [0, 65535]. A
// bracketed IPv6 form (or any address containing more than one colon)
// is rejected with an *AddressError — IPv6 is explicitly out of scope
// for this runtime (spec.md §1, §6).
func ParseAddress(addr string, defaultPort int) (Addr, error) {
	parts := strings.Split(addr, ":")
	switch len(parts) {
	case 1:
		return validateAddr(parts[0], defaultPort)
	case 2:
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return Addr{}, &AddressError{Reason: "port " + parts[1] + " is not an integer"}
		}
		return validateAddr(parts[0], port)
	default:
		return Addr{}, &AddressError{Reason: "address appears to be an IPv6 address, which is not supported"}
	}
}

func validateAddr(host string, port int) (Addr, error) {
	if port < 0 {
		return Addr{}, &AddressError{Reason: "port may not be less than zero"}
	}
	if port > 65535 {
		return Addr{}, &AddressError{Reason: "port may not be higher than 65535"}
	}
	return Addr{Host: host, Port: port}, nil
}

// NormalizeAddrSocketStyle accepts either an already-split (host, port)
// pair or delegates to ParseAddress for a combined string.
func NormalizeAddrSocketStyle(host string, port int, defaultPort int) (Addr, error) {
	if port != 0 {
		return validateAddr(host, port)
	}
	return ParseAddress(host, defaultPort)
}
