package stubstore

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Shape selects how records are rendered on the wire.
type Shape string

const (
	ShapeFlattened Shape = "flattened"
	ShapeNested    Shape = "nested"
	ShapeMixed     Shape = "mixed"
)

// ParseShape returns the shape named s. An empty name selects ShapeFlattened.
func ParseShape(s string) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(s))) {
	case "", ShapeFlattened:
		return ShapeFlattened, nil
	case ShapeNested:
		return ShapeNested, nil
	case ShapeMixed:
		return ShapeMixed, nil
	}
	return "", errors.New("unknown response shape", errors.CategoryBadInput).
		WithTextCode("UNKNOWN_SHAPE").
		WithMetadata(map[string]any{"shape": s})
}

// renderItem renders t in the shape chosen for position idx of a response.
func (s Shape) renderItem(t Todo, idx int) map[string]any {
	nested := s == ShapeNested || (s == ShapeMixed && idx%2 == 1)
	if nested {
		return renderNested(t)
	}
	return renderFlattened(t)
}

func renderFlattened(t Todo) map[string]any {
	return map[string]any{
		"id":         t.ID,
		"documentId": t.DocumentID,
		"title":      t.Title,
		"done":       t.Done,
		"createdAt":  formatTime(t.CreatedAt),
		"updatedAt":  formatTime(t.UpdatedAt),
	}
}

// renderNested mimics older backends: no document id and done stored as an
// integer column.
func renderNested(t Todo) map[string]any {
	done := 0
	if t.Done {
		done = 1
	}
	return map[string]any{
		"id": t.ID,
		"attributes": map[string]any{
			"title":     t.Title,
			"done":      done,
			"createdAt": formatTime(t.CreatedAt),
			"updatedAt": formatTime(t.UpdatedAt),
		},
	}
}

// listBody renders a page with its pagination metadata.
func (s Shape) listBody(rows []Todo, page, pageSize, total int) map[string]any {
	data := make([]any, 0, len(rows))
	for i, row := range rows {
		data = append(data, s.renderItem(row, i))
	}

	pageCount := 0
	if pageSize > 0 {
		pageCount = (total + pageSize - 1) / pageSize
	}

	return map[string]any{
		"data": data,
		"meta": map[string]any{
			"pagination": map[string]any{
				"page":      page,
				"pageSize":  pageSize,
				"pageCount": pageCount,
				"total":     total,
			},
		},
	}
}

func (s Shape) itemBody(t Todo) map[string]any {
	return map[string]any{
		"data": s.renderItem(t, 0),
		"meta": map[string]any{},
	}
}
