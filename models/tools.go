package models

import "context"

// ToolFunc executes a tool with the arguments decoded from the model's call.
// The returned string is the raw tool-result payload.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (string, error)

type FunctionDeclaration struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
	Callable    ToolFunc   `json:"-"`
}

// Parameters defines the JSON Schema for function parameters
type Parameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// Schema renders the parameters as a plain JSON-schema map.
func (p Parameters) Schema() map[string]interface{} {
	schema := map[string]interface{}{
		"type":       p.Type,
		"properties": p.Properties,
	}
	if schema["type"] == "" {
		schema["type"] = "object"
	}
	if p.Properties == nil {
		schema["properties"] = map[string]interface{}{}
	}
	if len(p.Required) > 0 {
		schema["required"] = p.Required
	}
	return schema
}
