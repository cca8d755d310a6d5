package eventlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderedMap_PreservesInsertionOrderThroughRoundTrip(t *testing.T) {
	src := `{"z":1,"a":2,"m":{"y":1,"b":2},"list":[3,1,2]}`
	om, err := OrderedMapFromJSON([]byte(src))
	require.NoError(t, err)
	require.Equal(t, []string{"z", "a", "m", "list"}, om.Keys())

	out, err := om.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, src, string(out))
	require.Equal(t, src, string(out))
}

func TestOrderedMap_UpdateKeepsOriginalPosition(t *testing.T) {
	om := NewOrderedMap()
	om.Set("a", 1)
	om.Set("b", 2)
	om.Set("a", 99)
	require.Equal(t, []string{"a", "b"}, om.Keys())
	v, ok := om.Get("a")
	require.True(t, ok)
	require.Equal(t, 99, v)
}

func TestOrderedMap_Clone_IsIndependent(t *testing.T) {
	om := NewOrderedMap()
	om.Set("nested", NewOrderedMap())
	nested, _ := om.Get("nested")
	nested.(*OrderedMap).Set("x", 1)

	clone := om.Clone()
	clonedNested, _ := clone.Get("nested")
	clonedNested.(*OrderedMap).Set("x", 2)

	originalNested, _ := om.Get("nested")
	v, _ := originalNested.(*OrderedMap).Get("x")
	require.Equal(t, 1, v, "mutating the clone must not affect the original")
}

func TestOrderedMap_NullAndEmpty(t *testing.T) {
	om, err := OrderedMapFromJSON([]byte("null"))
	require.NoError(t, err)
	require.Equal(t, 0, om.Len())
	out, err := om.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "null", string(out))

	om2, err := OrderedMapFromJSON(nil)
	require.NoError(t, err)
	require.Equal(t, 0, om2.Len())
	out2, err := om2.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "null", string(out2))
}

// TestOrderedMap_EmptyObjectIsNotNull proves `{}` round-trips as `{}`,
// not `null` — the two are distinct inputs to the content-addressed hash.
func TestOrderedMap_EmptyObjectIsNotNull(t *testing.T) {
	om, err := OrderedMapFromJSON([]byte("{}"))
	require.NoError(t, err)
	out, err := om.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "{}", string(out))
}
