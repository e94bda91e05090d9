package document

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Header is an ordered key/value map carried at the top of a Document.
//
// Values are nil, bool, int64, float64, string, []string, a nested *Header,
// or a RawValue for shapes the pipeline does not interpret. Key order is
// preserved across parse and serialize so unknown keys survive untouched.
type Header struct {
	keys   []string
	values map[string]any
}

// RawValue holds a header value whose shape the codec does not model, such
// as a list of maps. It is re-emitted exactly as it was decoded.
type RawValue struct {
	node *yaml.Node
}

// Node exposes the underlying YAML node.
func (r RawValue) Node() *yaml.Node { return r.node }

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{values: make(map[string]any)}
}

// HeaderFrom builds a header from alternating key/value pairs. It panics on
// an odd argument count or a non-string key; it is meant for literals.
func HeaderFrom(pairs ...any) *Header {
	if len(pairs)%2 != 0 {
		panic("document: HeaderFrom requires key/value pairs")
	}
	h := NewHeader()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("document: HeaderFrom key %v is not a string", pairs[i]))
		}
		h.Set(key, pairs[i+1])
	}
	return h
}

// Len reports the number of keys.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Keys returns the keys in insertion order.
func (h *Header) Keys() []string {
	if h == nil {
		return nil
	}
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Has reports whether key is present (even with a nil value).
func (h *Header) Has(key string) bool {
	if h == nil {
		return false
	}
	_, ok := h.values[key]
	return ok
}

// Get returns the raw value for key.
func (h *Header) Get(key string) (any, bool) {
	if h == nil {
		return nil, false
	}
	v, ok := h.values[key]
	return v, ok
}

// Set stores value under key, appending the key when it is new. Values are
// normalized to the header's closed set of types.
func (h *Header) Set(key string, value any) {
	if h.values == nil {
		h.values = make(map[string]any)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = normalizeValue(value)
}

// Delete removes key.
func (h *Header) Delete(key string) {
	if h == nil {
		return
	}
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// String returns the value for key rendered as a string. Numbers and
// booleans are formatted; missing, nil and structured values yield "".
func (h *Header) String(key string) string {
	v, _ := h.Get(key)
	switch typed := v.(type) {
	case string:
		return typed
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}

// Bool returns the boolean stored under key.
func (h *Header) Bool(key string) bool {
	v, _ := h.Get(key)
	b, _ := v.(bool)
	return b
}

// Int returns the integer stored under key. Floats are truncated and numeric
// strings are parsed.
func (h *Header) Int(key string) (int64, bool) {
	v, _ := h.Get(key)
	switch typed := v.(type) {
	case int64:
		return typed, true
	case float64:
		return int64(typed), true
	case string:
		n, err := strconv.ParseInt(typed, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Float returns the numeric value stored under key.
func (h *Header) Float(key string) (float64, bool) {
	v, _ := h.Get(key)
	switch typed := v.(type) {
	case float64:
		return typed, true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}

// Strings returns the list stored under key. A scalar string is returned as
// a single-element list.
func (h *Header) Strings(key string) []string {
	v, _ := h.Get(key)
	switch typed := v.(type) {
	case []string:
		out := make([]string, len(typed))
		copy(out, typed)
		return out
	case string:
		if typed == "" {
			return nil
		}
		return []string{typed}
	default:
		return nil
	}
}

// Map returns the nested header stored under key, or nil.
func (h *Header) Map(key string) *Header {
	v, _ := h.Get(key)
	m, _ := v.(*Header)
	return m
}

// Time parses an RFC 3339 timestamp stored under key.
func (h *Header) Time(key string) (time.Time, bool) {
	raw := h.String(key)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Merge applies partial onto h. Nested headers merge key by key; every other
// value, lists included, replaces the existing one wholesale.
func (h *Header) Merge(partial *Header) {
	if partial == nil {
		return
	}
	for _, key := range partial.keys {
		incoming := partial.values[key]
		if sub, ok := incoming.(*Header); ok {
			if existing := h.Map(key); existing != nil {
				existing.Merge(sub)
				continue
			}
			h.Set(key, sub.Clone())
			continue
		}
		h.Set(key, cloneValue(incoming))
	}
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	if h == nil {
		return nil
	}
	out := &Header{
		keys:   make([]string, len(h.keys)),
		values: make(map[string]any, len(h.values)),
	}
	copy(out.keys, h.keys)
	for k, v := range h.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

// Equal reports whether both headers hold the same keys in the same order
// with equal values.
func (h *Header) Equal(other *Header) bool {
	if h.Len() != other.Len() {
		return false
	}
	for i, key := range h.keys {
		if other.keys[i] != key {
			return false
		}
		if !valuesEqual(h.values[key], other.values[key]) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch ta := a.(type) {
	case *Header:
		tb, ok := b.(*Header)
		return ok && ta.Equal(tb)
	case RawValue:
		tb, ok := b.(RawValue)
		if !ok {
			return false
		}
		left, errA := yaml.Marshal(ta.node)
		right, errB := yaml.Marshal(tb.node)
		return errA == nil && errB == nil && string(left) == string(right)
	case float64:
		tb, ok := b.(float64)
		return ok && (ta == tb || (math.IsNaN(ta) && math.IsNaN(tb)))
	default:
		return reflect.DeepEqual(a, b)
	}
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case *Header:
		return typed.Clone()
	case []string:
		out := make([]string, len(typed))
		copy(out, typed)
		return out
	default:
		return v
	}
}

func normalizeValue(v any) any {
	switch typed := v.(type) {
	case nil, bool, int64, float64, string, RawValue:
		return v
	case *Header:
		if typed == nil {
			return nil
		}
		return typed
	case []string:
		if typed == nil {
			return []string{}
		}
		return typed
	case int:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint:
		return int64(typed)
	case uint32:
		return int64(typed)
	case float32:
		return float64(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case map[string]any:
		sub := NewHeader()
		for _, key := range sortedKeys(typed) {
			sub.Set(key, typed[key])
		}
		return sub
	case map[string]string:
		sub := NewHeader()
		generic := make(map[string]any, len(typed))
		for k, val := range typed {
			generic[k] = val
		}
		for _, key := range sortedKeys(generic) {
			sub.Set(key, generic[key])
		}
		return sub
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(v)
	}
}
