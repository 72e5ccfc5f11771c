package netrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddressBareHostUsesDefaultPort(t *testing.T) {
	a, err := ParseAddress("example.org", 8080)
	require.NoError(t, err)
	assert.Equal(t, Addr{Host: "example.org", Port: 8080}, a)
}

func TestParseAddressExplicitPort(t *testing.T) {
	a, err := ParseAddress("example.org:9090", 8080)
	require.NoError(t, err)
	assert.Equal(t, Addr{Host: "example.org", Port: 9090}, a)
}

func TestParseAddressRejectsIPv6(t *testing.T) {
	_, err := ParseAddress("::1", 8080)
	require.Error(t, err)
	var addrErr *AddressError
	assert.ErrorAs(t, err, &addrErr)
}

func TestParseAddressRejectsNonNumericPort(t *testing.T) {
	_, err := ParseAddress("example.org:notaport", 8080)
	require.Error(t, err)
}

func TestParseAddressRejectsOutOfRangePort(t *testing.T) {
	_, err := ParseAddress("example.org:70000", 8080)
	require.Error(t, err)

	_, err = ParseAddress("example.org:-1", 8080)
	require.Error(t, err)
}

func TestAddrString(t *testing.T) {
	a := Addr{Host: "10.0.0.1", Port: 1234}
	assert.Equal(t, "10.0.0.1:1234", a.String())
}
