// Package bus models the NetworkManager D-Bus surface the daemon depends on:
// a signal stream carrying property bags and a typed property getter.
//
// D-Bus payloads are dynamically typed and NetworkManager is not consistent
// about nesting, so everything is converted into Value and read back through
// fallible accessors instead of type assertions on the wire types.
package bus

import (
	"fmt"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindObjectPath
	KindInt
	KindUint
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindObjectPath:
		return "objpath"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a tagged variant: string, object path, integer, bool, list or map.
type Value struct {
	kind Kind
	str  string
	i    int64
	u    uint64
	b    bool
	list []Value
	m    map[string]Value
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// ObjectPath wraps a D-Bus object path.
func ObjectPath(p string) Value { return Value{kind: KindObjectPath, str: p} }

// Int wraps a signed integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Uint wraps an unsigned integer.
func Uint(u uint64) Value { return Value{kind: KindUint, u: u} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List wraps a sequence of values.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map wraps a string-keyed dictionary.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind reports the variant held.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds anything.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsString returns the string of a string or object path value.
func (v Value) AsString() (string, bool) {
	if v.kind == KindString || v.kind == KindObjectPath {
		return v.str, true
	}
	return "", false
}

// AsObjectPath returns the path of an object path value. Plain strings that
// look like absolute paths are accepted too.
func (v Value) AsObjectPath() (string, bool) {
	switch v.kind {
	case KindObjectPath:
		return v.str, true
	case KindString:
		if strings.HasPrefix(v.str, "/") {
			return v.str, true
		}
	}
	return "", false
}

// AsUint32 returns an integer value that fits in 32 unsigned bits.
func (v Value) AsUint32() (uint32, bool) {
	switch v.kind {
	case KindUint:
		if v.u <= 1<<32-1 {
			return uint32(v.u), true
		}
	case KindInt:
		if v.i >= 0 && v.i <= 1<<32-1 {
			return uint32(v.i), true
		}
	}
	return 0, false
}

// AsBool returns a boolean value.
func (v Value) AsBool() (bool, bool) {
	if v.kind == KindBool {
		return v.b, true
	}
	return false, false
}

// AsList returns the items of a list value.
func (v Value) AsList() ([]Value, bool) {
	if v.kind == KindList {
		return v.list, true
	}
	return nil, false
}

// AsMap returns the entries of a map value.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind == KindMap {
		return v.m, true
	}
	return nil, false
}

// AsStrings returns a list of strings. Any non-string item fails the whole
// conversion.
func (v Value) AsStrings() ([]string, bool) {
	items, ok := v.AsList()
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.AsString()
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// AsUint32s returns a list of 32-bit unsigned integers.
func (v Value) AsUint32s() ([]uint32, bool) {
	items, ok := v.AsList()
	if !ok {
		return nil, false
	}
	out := make([]uint32, 0, len(items))
	for _, it := range items {
		u, ok := it.AsUint32()
		if !ok {
			return nil, false
		}
		out = append(out, u)
	}
	return out, true
}

// AsUint32Matrix returns a list of lists of 32-bit unsigned integers, the
// shape of IP4Config.Addresses (aau).
func (v Value) AsUint32Matrix() ([][]uint32, bool) {
	items, ok := v.AsList()
	if !ok {
		return nil, false
	}
	out := make([][]uint32, 0, len(items))
	for _, it := range items {
		row, ok := it.AsUint32s()
		if !ok {
			return nil, false
		}
		out = append(out, row)
	}
	return out, true
}

// GoString renders the value for debug logs.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindObjectPath:
		return "@" + v.str
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindUint:
		return fmt.Sprintf("%du", v.u)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindList:
		parts := make([]string, len(v.list))
		for i, it := range v.list {
			parts[i] = it.GoString()
		}
		return "[" + strings.Join(parts, " ") + "]"
	case KindMap:
		parts := make([]string, 0, len(v.m))
		for k, it := range v.m {
			parts = append(parts, k+":"+it.GoString())
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return "<invalid>"
	}
}

// Properties is the key/value bag carried by a change signal.
type Properties map[string]Value

// Has reports whether key is present.
func (p Properties) Has(key string) bool {
	_, ok := p[key]
	return ok
}
