// Package translator converts Dialect A requests into Dialect G requests and
// Dialect G replies (sync and streamed) back into Dialect A shape.
package translator

import "log/slog"

// rejectedSchemaKeywords are JSON-Schema keywords the upstream rejects. They
// are removed wherever they appear as object keys, at every nesting depth.
var rejectedSchemaKeywords = map[string]bool{
	"$schema":              true,
	"$id":                  true,
	"$ref":                 true,
	"definitions":          true,
	"title":                true,
	"examples":             true,
	"default":              true,
	"readOnly":             true,
	"writeOnly":            true,
	"additionalProperties": true,
	"minimum":              true,
	"maximum":              true,
	"exclusiveMinimum":     true,
	"exclusiveMaximum":     true,
	"multipleOf":           true,
	"pattern":              true,
	"format":               true,
	"minLength":            true,
	"maxLength":            true,
	"minItems":             true,
	"maxItems":             true,
	"uniqueItems":          true,
	"minProperties":        true,
	"maxProperties":        true,
	"patternProperties":    true,
	"dependencies":         true,
	"contentMediaType":     true,
	"contentEncoding":      true,
	"const":                true,
	"allOf":                true,
	"anyOf":                true,
	"oneOf":                true,
	"not":                  true,
}

// SanitizeSchema strips rejected keywords from a JSON-Schema fragment at
// every depth and repairs required/properties consistency. It is total: any
// value comes back in the same shape, never an error, and the input is never
// mutated.
func SanitizeSchema(schema interface{}) interface{} {
	switch v := schema.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if rejectedSchemaKeywords[key] {
				continue
			}
			out[key] = SanitizeSchema(value)
		}
		repairRequired(out)
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = SanitizeSchema(item)
		}
		return out
	default:
		return schema
	}
}

// repairRequired restricts a required list to names still present in
// properties; sanitisation may have removed entries. An empty list is
// dropped.
func repairRequired(schema map[string]interface{}) {
	required, ok := schema["required"].([]interface{})
	if !ok {
		return
	}
	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return
	}

	kept := make([]interface{}, 0, len(required))
	for _, name := range required {
		if s, ok := name.(string); ok {
			if _, exists := properties[s]; exists {
				kept = append(kept, s)
			}
		}
	}

	if len(kept) == 0 {
		delete(schema, "required")
		return
	}
	schema["required"] = kept
}

// AuditSchema walks a sanitised schema and logs a warning for any rejected
// keyword that survived. Returns the surviving keywords; used by tests, never
// to reject a request.
func AuditSchema(schema interface{}) []string {
	var survivors []string
	auditSchema(schema, &survivors)
	for _, kw := range survivors {
		slog.Warn("Rejected schema keyword survived sanitisation", "keyword", kw)
	}
	return survivors
}

func auditSchema(schema interface{}, survivors *[]string) {
	switch v := schema.(type) {
	case map[string]interface{}:
		for key, value := range v {
			if rejectedSchemaKeywords[key] {
				*survivors = append(*survivors, key)
			}
			auditSchema(value, survivors)
		}
	case []interface{}:
		for _, item := range v {
			auditSchema(item, survivors)
		}
	}
}
