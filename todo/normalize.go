package todo

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Shape identifies which wire encoding an item arrived in.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeFlattened
	ShapeNested
)

func (s Shape) String() string {
	switch s {
	case ShapeFlattened:
		return "flattened"
	case ShapeNested:
		return "nested"
	default:
		return "unknown"
	}
}

// WireItem is one raw item tagged with the shape it was detected as.
// Fields holds the item's data fields regardless of where they sat on the wire.
type WireItem struct {
	Shape      Shape
	ID         any
	DocumentID any
	Fields     map[string]any
}

// Detect classifies a decoded JSON value. An item carrying "title" directly is
// flattened; anything else is read from its "attributes" container. Values
// that are not objects yield an empty nested item.
func Detect(v any) WireItem {
	obj, _ := v.(map[string]any)

	w := WireItem{
		ID:         obj["id"],
		DocumentID: obj["documentId"],
	}

	if _, ok := obj["title"]; ok {
		w.Shape = ShapeFlattened
		w.Fields = obj
		return w
	}

	w.Shape = ShapeNested
	attrs, _ := obj["attributes"].(map[string]any)
	w.Fields = attrs
	return w
}

// ParseItem decodes a single raw item. Only undecodable JSON is an error.
func ParseItem(raw []byte) (WireItem, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return WireItem{}, NewMalformedResponse(err, "item is not valid JSON")
	}
	return Detect(v), nil
}

// Normalize converts a detected item into the canonical model. Extraction is
// best-effort: absent or mistyped fields become zero values.
func Normalize(w WireItem) Item {
	return Item{
		ID:          coerceInt(w.ID),
		AlternateID: coerceString(w.DocumentID),
		Title:       stringField(w.Fields, "title"),
		Done:        CoerceBool(w.Fields["done"]),
		CreatedAt:   stringField(w.Fields, "createdAt"),
	}
}

// NormalizeValue is Detect followed by Normalize.
func NormalizeValue(v any) Item {
	return Normalize(Detect(v))
}

// CoerceBool interprets loosely typed booleans. Numbers are true when non-zero,
// strings only for "true" or "1", nil is false and any other value is true.
func CoerceBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0
	case float64:
		return b != 0
	case float32:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	case int32:
		return b != 0
	case uint:
		return b != 0
	case uint64:
		return b != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s == "true" || s == "1"
	default:
		return true
	}
}

func coerceInt(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
	case float64:
		return floatToInt(n)
	case int:
		return int64(n)
	case int64:
		return n
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	}
	return 0
}

func floatToInt(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
