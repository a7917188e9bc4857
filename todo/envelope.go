package todo

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaURL = "https://schemas.goliatone.dev/todo-sync/list-envelope.json"

// envelopeSchema documents the two supported item shapes and the list envelope.
// It is advisory: violations become diagnostics, never errors.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {
      "type": "array",
      "items": {"$ref": "#/$defs/item"}
    },
    "meta": {
      "type": "object",
      "properties": {
        "pagination": {"$ref": "#/$defs/pagination"}
      }
    }
  },
  "$defs": {
    "item": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": ["integer", "string"]},
        "documentId": {"type": "string"}
      },
      "anyOf": [
        {"$ref": "#/$defs/flattened"},
        {"$ref": "#/$defs/nested"}
      ]
    },
    "flattened": {
      "required": ["title"],
      "properties": {
        "title": {"type": "string"},
        "createdAt": {"type": ["string", "null"]}
      }
    },
    "nested": {
      "required": ["attributes"],
      "properties": {
        "attributes": {
          "type": "object",
          "properties": {
            "title": {"type": "string"},
            "createdAt": {"type": ["string", "null"]}
          }
        }
      }
    },
    "pagination": {
      "type": "object",
      "properties": {
        "page": {"type": "integer"},
        "pageSize": {"type": "integer"},
        "pageCount": {"type": "integer"},
        "total": {"type": "integer"}
      }
    }
  }
}`

var compileEnvelope = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(envelopeSchemaURL)
})

// Diagnostic describes a part of a response that did not match the documented
// shapes and was read best-effort.
type Diagnostic struct {
	Location string
	Message  string
}

func (d Diagnostic) String() string {
	if d.Location == "" {
		return d.Message
	}
	return d.Location + ": " + d.Message
}

// DecodeListResponse normalizes a list body. Only undecodable JSON fails; a
// missing or mistyped envelope degrades to an empty page and is reported in
// the returned diagnostics.
func DecodeListResponse(body []byte) (ListResponse, []Diagnostic, error) {
	v, err := decodeValue(body)
	if err != nil {
		return ListResponse{}, nil, NewMalformedResponse(err, "list response is not valid JSON")
	}

	diags := checkEnvelope(v)

	root, _ := v.(map[string]any)
	out := ListResponse{Items: []Item{}}

	if data, ok := root["data"].([]any); ok {
		for _, raw := range data {
			out.Items = append(out.Items, NormalizeValue(raw))
		}
	}

	meta, _ := root["meta"].(map[string]any)
	if pg, ok := meta["pagination"].(map[string]any); ok {
		out.Pagination = Pagination{
			Page:      int(coerceInt(pg["page"])),
			PageSize:  int(coerceInt(pg["pageSize"])),
			PageCount: int(coerceInt(pg["pageCount"])),
			Total:     int(coerceInt(pg["total"])),
		}
	}

	return out, diags, nil
}

// DecodeItemResponse normalizes the body of a create or update call. Bodies
// wrapped in {"data": ...} are unwrapped; anything else is read as the item.
func DecodeItemResponse(body []byte) (Item, error) {
	v, err := decodeValue(body)
	if err != nil {
		return Item{}, NewMalformedResponse(err, "item response is not valid JSON")
	}

	if root, ok := v.(map[string]any); ok {
		if data, ok := root["data"].(map[string]any); ok {
			return NormalizeValue(data), nil
		}
	}
	return NormalizeValue(v), nil
}

func checkEnvelope(v any) []Diagnostic {
	sch, err := compileEnvelope()
	if err != nil {
		return []Diagnostic{{Message: fmt.Sprintf("envelope schema unavailable: %v", err)}}
	}

	err = sch.Validate(v)
	if err == nil {
		return nil
	}

	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Diagnostic{{Message: err.Error()}}
	}

	var diags []Diagnostic
	collectDiagnostics(verr.BasicOutput(), &diags)
	if len(diags) == 0 {
		diags = append(diags, Diagnostic{Message: verr.Error()})
	}
	return diags
}

func collectDiagnostics(unit *jsonschema.OutputUnit, diags *[]Diagnostic) {
	if unit == nil {
		return
	}
	if unit.Error != nil {
		*diags = append(*diags, Diagnostic{
			Location: unit.InstanceLocation,
			Message:  unit.Error.String(),
		})
	}
	for i := range unit.Errors {
		collectDiagnostics(&unit.Errors[i], diags)
	}
}
