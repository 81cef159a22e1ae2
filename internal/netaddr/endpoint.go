// Package netaddr implements the tagged IPv4/IPv6 Endpoint used throughout
// the connection pool. Fields are kept host-order internally; conversion to
// network byte order happens only at the SockaddrPtr boundary, matching the
// layering spec.md describes for the original C Endpoint type.
package netaddr

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/jroosing/poolnetd/internal/helpers"
)

// Family selects which address family ParseText should require or detect.
type Family int

const (
	FamilyAuto Family = iota
	FamilyV4
	FamilyV6
)

// ErrBadAddress is returned when text cannot be parsed under the given hint.
type ErrBadAddress struct {
	Text string
}

func (e *ErrBadAddress) Error() string {
	return fmt.Sprintf("bad address: %q", e.Text)
}

// ErrBadPort is returned when a port is out of the 1..65535 range.
type ErrBadPort struct {
	Port int
}

func (e *ErrBadPort) Error() string {
	return fmt.Sprintf("bad port: %d", e.Port)
}

// Endpoint is a tagged IPv4 or IPv6 socket address, host-order internally.
type Endpoint struct {
	v6    bool
	addr4 uint32
	addr6 [16]byte
	port  uint16
}

// FromV4 constructs an IPv4 endpoint from a host-order 32-bit address.
// Port 0 is rejected: every live endpoint the pool deals with is bound to
// a concrete port by the time it reaches this type.
func FromV4(addr uint32, port uint16) (Endpoint, error) {
	if port == 0 {
		return Endpoint{}, &ErrBadPort{Port: int(port)}
	}
	return Endpoint{addr4: addr, port: port}, nil
}

// FromV6 constructs an IPv6 endpoint from a 16-byte address.
func FromV6(addr [16]byte, port uint16) (Endpoint, error) {
	if port == 0 {
		return Endpoint{}, &ErrBadPort{Port: int(port)}
	}
	return Endpoint{v6: true, addr6: addr, port: port}, nil
}

// ParseText parses text as an address under the given family hint. FamilyAuto
// tries IPv6 first, then IPv4 (per spec.md §4.2).
func ParseText(hint Family, text string, port uint16) (Endpoint, error) {
	if port == 0 {
		return Endpoint{}, &ErrBadPort{Port: int(port)}
	}

	switch hint {
	case FamilyV4:
		return parseV4(text, port)
	case FamilyV6:
		return parseV6(text, port)
	default:
		if ep, err := parseV6(text, port); err == nil {
			return ep, nil
		}
		return parseV4(text, port)
	}
}

func parseV4(text string, port uint16) (Endpoint, error) {
	addr, err := netip.ParseAddr(text)
	if err != nil || !addr.Is4() {
		return Endpoint{}, &ErrBadAddress{Text: text}
	}
	b := addr.As4()
	return FromV4(binary.BigEndian.Uint32(b[:]), port)
}

func parseV6(text string, port uint16) (Endpoint, error) {
	addr, err := netip.ParseAddr(text)
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return Endpoint{}, &ErrBadAddress{Text: text}
	}
	return FromV6(addr.As16(), port)
}

// IsV6 reports whether this endpoint is an IPv6 address.
func (e Endpoint) IsV6() bool { return e.v6 }

// Port returns the endpoint's port in host order.
func (e Endpoint) Port() uint16 { return e.port }

// String renders the endpoint as "ip:port" (IPv6 addresses are bracketed).
func (e Endpoint) String() string {
	if e.v6 {
		addr := netip.AddrFrom16(e.addr6)
		return fmt.Sprintf("[%s]:%d", addr.String(), e.port)
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], e.addr4)
	addr := netip.AddrFrom4(b)
	return fmt.Sprintf("%s:%d", addr.String(), e.port)
}

// Host returns just the address portion, unbracketed.
func (e Endpoint) Host() string {
	if e.v6 {
		return netip.AddrFrom16(e.addr6).String()
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], e.addr4)
	return netip.AddrFrom4(b).String()
}

// SockaddrPtr builds the kernel sockaddr for this endpoint, converting port
// and (for v4) address to network byte order at this single boundary.
func (e Endpoint) SockaddrPtr() unix.Sockaddr {
	if e.v6 {
		sa := &unix.SockaddrInet6{Port: int(e.port)}
		sa.Addr = e.addr6
		return sa
	}
	sa := &unix.SockaddrInet4{Port: int(e.port)}
	binary.BigEndian.PutUint32(sa.Addr[:], e.addr4)
	return sa
}

// FromSockaddr converts a kernel sockaddr (as returned by accept/getsockname)
// back into an Endpoint.
func FromSockaddr(sa unix.Sockaddr) (Endpoint, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return FromV4(binary.BigEndian.Uint32(a.Addr[:]), helpers.ClampIntToUint16(a.Port))
	case *unix.SockaddrInet6:
		return FromV6(a.Addr, helpers.ClampIntToUint16(a.Port))
	default:
		return Endpoint{}, fmt.Errorf("netaddr: unsupported sockaddr type %T", sa)
	}
}
