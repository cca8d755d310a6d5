package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OrderedMap preserves producer-supplied key insertion order for
// payload/metadata fields. Go's native map iteration order is
// unspecified, which would make the content-addressed hash
// non-deterministic across re-encodes of the same logical document —
// OrderedMap is the ordering discipline §4.1 requires implementations
// to pick once and hold forever.
type OrderedMap struct {
	keys   []string
	values map[string]any
	// isNull distinguishes a JSON `null` (no object at all) from `{}`
	// (a present but empty object) — both would otherwise present as a
	// nil keys slice.
	isNull bool
}

// NewOrderedMap creates an empty (non-null) OrderedMap, i.e. one that
// marshals as "{}".
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]any), keys: []string{}}
}

// OrderedMapFromMap builds an OrderedMap from a plain map, using Go's
// (unordered) map iteration as the insertion order. Used only at the
// boundary where a caller hands us a native map and no ordering
// information survived the transport (e.g. an internal test fixture);
// anything arriving over the wire should go through
// OrderedMapFromJSON instead, which preserves source order.
func OrderedMapFromMap(m map[string]any) *OrderedMap {
	om := NewOrderedMap()
	for k, v := range m {
		om.Set(k, v)
	}
	return om
}

// OrderedMapFromJSON decodes a JSON object preserving key order as it
// appears in the source bytes.
func OrderedMapFromJSON(data []byte) (*OrderedMap, error) {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return &OrderedMap{isNull: true}, nil
	}
	om := NewOrderedMap()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fmt.Errorf("eventlog: expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("eventlog: expected string key, got %v", keyTok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		om.Set(key, val)
	}
	// Consume closing '}'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return om, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			om := NewOrderedMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key := keyTok.(string)
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				om.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return om, nil
		case '[':
			var arr []any
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
	}
	return tok, nil
}

// Set inserts or updates a key. New keys are appended to the ordering;
// updating an existing key keeps its original position.
func (om *OrderedMap) Set(key string, value any) {
	om.isNull = false
	if om.values == nil {
		om.values = make(map[string]any)
	}
	if _, exists := om.values[key]; !exists {
		om.keys = append(om.keys, key)
	}
	om.values[key] = value
}

// Get returns the value for key and whether it was present.
func (om *OrderedMap) Get(key string) (any, bool) {
	if om == nil {
		return nil, false
	}
	v, ok := om.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (om *OrderedMap) Keys() []string {
	if om == nil {
		return nil
	}
	return om.keys
}

// Len reports the number of entries.
func (om *OrderedMap) Len() int {
	if om == nil {
		return 0
	}
	return len(om.keys)
}

// Clone returns a deep copy (nested OrderedMaps/slices are also cloned).
func (om *OrderedMap) Clone() *OrderedMap {
	if om == nil {
		return nil
	}
	if om.isNull {
		return &OrderedMap{isNull: true}
	}
	clone := NewOrderedMap()
	for _, k := range om.keys {
		clone.Set(k, cloneValue(om.values[k]))
	}
	return clone
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *OrderedMap:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// MarshalJSON emits the object honoring insertion order.
func (om *OrderedMap) MarshalJSON() ([]byte, error) {
	if om == nil || om.isNull {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range om.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := marshalValue(om.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case *OrderedMap:
		return val.MarshalJSON()
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalValue(item)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(val)
	}
}

// UnmarshalJSON implements json.Unmarshaler by delegating to
// OrderedMapFromJSON.
func (om *OrderedMap) UnmarshalJSON(data []byte) error {
	decoded, err := OrderedMapFromJSON(data)
	if err != nil {
		return err
	}
	*om = *decoded
	return nil
}

// ToMap flattens to a plain map[string]any (order lost) for callers that
// only need value access, e.g. CSV/report rendering.
func (om *OrderedMap) ToMap() map[string]any {
	if om == nil {
		return nil
	}
	out := make(map[string]any, len(om.keys))
	for _, k := range om.keys {
		out[k] = om.values[k]
	}
	return out
}
