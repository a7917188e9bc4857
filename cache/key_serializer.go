package cache

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

// SerializeKey joins the namespace and the serialized args with KeySeparator.
// Strings are used verbatim, url.Values in their sorted encoded form, and
// anything else falls back to fmt or JSON, all of which are deterministic.
func (defaultKeySerializer) SerializeKey(namespace string, args ...any) string {
	if len(args) == 0 {
		return namespace
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, namespace)
	for _, arg := range args {
		parts = append(parts, serializeArg(arg))
	}

	return strings.Join(parts, KeySeparator)
}

// PrefixOf returns the prefix shared by every key serialized under namespace.
func PrefixOf(namespace string) string {
	return namespace + KeySeparator
}

func serializeArg(v any) string {
	switch a := v.(type) {
	case nil:
		return "nil"
	case string:
		return a
	case url.Values:
		return a.Encode()
	case fmt.Stringer:
		return a.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(a)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T", v)
	}
	return string(data)
}
