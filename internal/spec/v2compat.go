package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

var v2OperationKeys = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "options": true, "head": true,
}

// preprocessV2ForCompatibility rewrites Swagger v2 operations kin-openapi
// cannot convert. Each operation ends up with at most one body parameter, so
// the resolver sees at most one bound record per request body:
//   - several body parameters are merged into one object-typed body;
//   - body parameters mixed with formData become formData parameters and the
//     operation consumes multipart/form-data.
//
// On error the original bytes are returned with modified=false.
func preprocessV2ForCompatibility(data []byte) ([]byte, bool, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return data, false, err
	}
	paths, _ := doc["paths"].(map[string]any)
	modified := false
	for _, item := range paths {
		pi, _ := item.(map[string]any)
		for method, raw := range pi {
			if !v2OperationKeys[strings.ToLower(method)] {
				continue
			}
			if op, ok := raw.(map[string]any); ok && rewriteV2Operation(op) {
				modified = true
			}
		}
	}
	if !modified {
		return data, false, nil
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return data, false, err
	}
	return out, true, nil
}

func rewriteV2Operation(op map[string]any) bool {
	params, _ := op["parameters"].([]any)
	bodies, hasForm := 0, false
	for _, p := range params {
		switch paramIn(p) {
		case "body":
			bodies++
		case "formdata":
			hasForm = true
		}
	}
	switch {
	case bodies == 0:
		return false
	case hasForm:
		bodyToFormData(op, params)
		return true
	case bodies > 1:
		mergeBodyParams(op, params)
		return true
	}
	return false
}

func paramIn(p any) string {
	pm, _ := p.(map[string]any)
	return strings.ToLower(asString(pm["in"]))
}

func bodyToFormData(op map[string]any, params []any) {
	out := make([]any, 0, len(params))
	for _, p := range params {
		pm, _ := p.(map[string]any)
		if pm == nil {
			continue
		}
		if paramIn(pm) == "body" {
			out = append(out, formDataFromBodyParam(pm))
			continue
		}
		out = append(out, pm)
	}
	op["parameters"] = out

	consumes, _ := op["consumes"].([]any)
	if !containsString(consumes, "multipart/form-data") {
		op["consumes"] = append(consumes, "multipart/form-data")
	}
}

func mergeBodyParams(op map[string]any, params []any) {
	props := map[string]any{}
	var required []any
	rest := make([]any, 0, len(params))
	for _, p := range params {
		pm, _ := p.(map[string]any)
		if pm == nil {
			continue
		}
		if paramIn(pm) != "body" {
			rest = append(rest, p)
			continue
		}
		name := paramName(pm)
		schema := extractSchemaFromParam(pm)
		if schema == nil {
			schema = map[string]any{"type": "string"}
		}
		props[name] = schema
		if req, _ := pm["required"].(bool); req {
			required = append(required, name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	merged := map[string]any{"in": "body", "name": "body", "schema": schema}
	op["parameters"] = append([]any{merged}, rest...)
}

func paramName(pm map[string]any) string {
	if name := asString(pm["name"]); name != "" {
		return name
	}
	return "field"
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func containsString(list []any, want string) bool {
	for _, v := range list {
		if s, ok := v.(string); ok && s == want {
			return true
		}
	}
	return false
}

// extractSchemaFromParam returns the parameter schema, synthesizing one from
// type/items/format when the parameter has none.
func extractSchemaFromParam(pm map[string]any) map[string]any {
	if sch, ok := pm["schema"].(map[string]any); ok {
		return sch
	}
	t := asString(pm["type"])
	if t == "" {
		return nil
	}
	m := map[string]any{"type": t}
	if it, ok := pm["items"].(map[string]any); ok {
		m["items"] = it
	}
	if f := asString(pm["format"]); f != "" {
		m["format"] = f
	}
	return m
}

func formDataFromBodyParam(pm map[string]any) map[string]any {
	out := map[string]any{"in": "formData", "name": paramName(pm)}
	if desc := asString(pm["description"]); desc != "" {
		out["description"] = desc
	}
	if req, ok := pm["required"].(bool); ok {
		out["required"] = req
	}

	// A referenced object cannot be represented in formData; it degrades to string.
	src := pm
	if sch, ok := pm["schema"].(map[string]any); ok {
		src = sch
		if asString(sch["type"]) == "" && sch["$ref"] != nil {
			src = map[string]any{"type": "string"}
		}
	}
	typ := asString(src["type"])
	if typ == "" {
		typ = "string"
	}
	out["type"] = typ
	if items, ok := src["items"].(map[string]any); ok {
		out["items"] = items
	}
	if f := asString(src["format"]); f != "" {
		out["format"] = f
	}
	return out
}
