package netrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueFieldLookupOnMap(t *testing.T) {
	v := Map(map[string]Value{"n": Int(5), "s": String("hi")})

	n, ok := v.Field("n")
	assert.True(t, ok)
	nv, _ := n.Int()
	assert.Equal(t, int64(5), nv)

	_, ok = v.Field("missing")
	assert.False(t, ok)
}

func TestValueFieldOnNonMapReturnsFalse(t *testing.T) {
	v := Int(5)
	_, ok := v.Field("n")
	assert.False(t, ok)
}

func TestValueFromDecodedRoundTripsThroughPlainTypes(t *testing.T) {
	raw := map[string]interface{}{
		"i":    int64(7),
		"f":    3.25,
		"s":    "text",
		"b":    true,
		"list": []interface{}{int64(1), int64(2)},
	}
	v := valueFromDecoded(raw)
	assert.Equal(t, KindMap, v.Kind())

	decoded := v.toDecoded()
	m, ok := decoded.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "text", m["s"])
	assert.Equal(t, true, m["b"])
}

func TestValueFromDecodedHandlesNilAndBytes(t *testing.T) {
	assert.True(t, valueFromDecoded(nil).IsNil())

	v := valueFromDecoded([]byte{1, 2, 3})
	b, ok := v.BytesVal()
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)
}
