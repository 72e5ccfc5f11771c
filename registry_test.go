package netrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRegistryDynamicAllocationStartsAtReservedBoundary(t *testing.T) {
	reg := NewPacketRegistry()
	id, err := reg.Register("app.first", BaseHandler{}, nil)
	require.NoError(t, err)
	assert.Equal(t, PacketIDReservedBelow, id)

	id2, err := reg.Register("app.second", BaseHandler{}, nil)
	require.NoError(t, err)
	assert.Equal(t, PacketIDReservedBelow+1, id2)
}

func TestPacketRegistryReRegisterSameTripleIsNoop(t *testing.T) {
	reg := NewPacketRegistry()
	h := BaseHandler{}
	id := uint32(100)

	first, err := reg.Register("app.echo", h, &id)
	require.NoError(t, err)

	second, err := reg.Register("app.echo", h, &id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPacketRegistryConflictingNameIsError(t *testing.T) {
	reg := NewPacketRegistry()
	idA := uint32(100)
	idB := uint32(101)

	_, err := reg.Register("app.echo", BaseHandler{}, &idA)
	require.NoError(t, err)

	_, err = reg.Register("app.echo", BaseHandler{}, &idB)
	require.Error(t, err)
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.True(t, regErr.AlreadyRegistered)
}

func TestPacketRegistryRemapRewritesID(t *testing.T) {
	reg := NewPacketRegistry()
	id := uint32(100)
	_, err := reg.Register("app.echo", BaseHandler{}, &id)
	require.NoError(t, err)

	reg.Remap("app.echo", 200)

	newID, ok := reg.IDForName("app.echo")
	require.True(t, ok)
	assert.Equal(t, uint32(200), newID)

	_, ok = reg.ByID(100)
	assert.False(t, ok)

	_, ok = reg.ByID(200)
	assert.True(t, ok)
}

func TestPacketRegistryNameIDsSnapshotIsIndependent(t *testing.T) {
	reg := NewPacketRegistry()
	id := uint32(100)
	_, err := reg.Register("app.echo", BaseHandler{}, &id)
	require.NoError(t, err)

	snap := reg.NameIDs()
	snap["app.echo"] = 999

	live, ok := reg.IDForName("app.echo")
	require.True(t, ok)
	assert.Equal(t, uint32(100), live)
}
