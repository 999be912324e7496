package ontology

import (
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// resolveField reads one source field off an event's data map. A field name
// starting with "$" is evaluated as a JSONPath expression against the full
// data map (for structured OCR payloads); any other name is a plain key
// lookup, matching spec's flat-field default.
func resolveField(data map[string]any, field string) string {
	if data == nil {
		return ""
	}
	if strings.HasPrefix(field, "$") {
		v, err := jsonpath.Get(field, map[string]interface{}(data))
		if err != nil {
			return ""
		}
		return stringify(v)
	}
	return stringify(data[field])
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return ""
	}
}

// scanText concatenates the resolved text of each source field with a single
// space separator; missing fields contribute an empty string.
func scanText(data map[string]any, sourceFields []string) string {
	parts := make([]string, len(sourceFields))
	for i, f := range sourceFields {
		parts[i] = resolveField(data, f)
	}
	return strings.Join(parts, " ")
}
