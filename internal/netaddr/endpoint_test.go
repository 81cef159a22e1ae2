package netaddr_test

import (
	"testing"

	"github.com/jroosing/poolnetd/internal/netaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTextV4RoundTrip(t *testing.T) {
	ep, err := netaddr.ParseText(netaddr.FamilyV4, "192.0.2.10", 8080)
	require.NoError(t, err)
	assert.False(t, ep.IsV6())
	assert.Equal(t, uint16(8080), ep.Port())
	assert.Equal(t, "192.0.2.10:8080", ep.String())
}

func TestParseTextV6RoundTrip(t *testing.T) {
	ep, err := netaddr.ParseText(netaddr.FamilyV6, "2001:db8::1", 53)
	require.NoError(t, err)
	assert.True(t, ep.IsV6())
	assert.Equal(t, "[2001:db8::1]:53", ep.String())
}

func TestParseTextAutoPrefersMatchingFamily(t *testing.T) {
	v4, err := netaddr.ParseText(netaddr.FamilyAuto, "10.0.0.1", 1)
	require.NoError(t, err)
	assert.False(t, v4.IsV6())

	v6, err := netaddr.ParseText(netaddr.FamilyAuto, "::1", 1)
	require.NoError(t, err)
	assert.True(t, v6.IsV6())
}

func TestParseTextRejectsZeroPort(t *testing.T) {
	_, err := netaddr.ParseText(netaddr.FamilyV4, "127.0.0.1", 0)
	assert.Error(t, err)
	var portErr *netaddr.ErrBadPort
	assert.ErrorAs(t, err, &portErr)
}

func TestParseTextRejectsMismatchedFamily(t *testing.T) {
	_, err := netaddr.ParseText(netaddr.FamilyV4, "2001:db8::1", 53)
	assert.Error(t, err)
	var addrErr *netaddr.ErrBadAddress
	assert.ErrorAs(t, err, &addrErr)
}

func TestSockaddrRoundTripV4(t *testing.T) {
	ep, err := netaddr.ParseText(netaddr.FamilyV4, "203.0.113.5", 443)
	require.NoError(t, err)

	sa := ep.SockaddrPtr()
	back, err := netaddr.FromSockaddr(sa)
	require.NoError(t, err)
	assert.Equal(t, ep, back)
}

func TestSockaddrRoundTripV6(t *testing.T) {
	ep, err := netaddr.ParseText(netaddr.FamilyV6, "fe80::1", 9000)
	require.NoError(t, err)

	sa := ep.SockaddrPtr()
	back, err := netaddr.FromSockaddr(sa)
	require.NoError(t, err)
	assert.Equal(t, ep, back)
}

func TestFromV4RejectsZeroPort(t *testing.T) {
	_, err := netaddr.FromV4(0x7f000001, 0)
	assert.Error(t, err)
}

func TestHostStripsPort(t *testing.T) {
	ep, err := netaddr.ParseText(netaddr.FamilyV4, "198.51.100.9", 22)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.9", ep.Host())
}
