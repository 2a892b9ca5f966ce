package mcpservice

import (
	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/invopop/jsonschema"
)

// reflectObject reflects T inline. A non-object T yields no properties.
func reflectObject[T any](allowAdditional bool) (map[string]mcp.SchemaProperty, []string) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(T))
	if s == nil || s.Type != "object" {
		return map[string]mcp.SchemaProperty{}, nil
	}
	return convertProperties(s), append([]string(nil), s.Required...)
}

func inputSchemaFor[A any](allowAdditional bool) mcp.ToolInputSchema {
	props, required := reflectObject[A](allowAdditional)
	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

func outputSchemaFor[O any]() mcp.ToolOutputSchema {
	props, required := reflectObject[O](false)
	return mcp.ToolOutputSchema{Type: "object", Properties: props, Required: required}
}

func convertProperties(s *jsonschema.Schema) map[string]mcp.SchemaProperty {
	out := map[string]mcp.SchemaProperty{}
	if s.Properties == nil {
		return out
	}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = convertSchema(pair.Value)
	}
	return out
}

func convertSchema(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{Type: s.Type, Description: s.Description, Enum: s.Enum}
	switch s.Type {
	case "array":
		if s.Items != nil {
			item := convertSchema(s.Items)
			p.Items = &item
		}
	case "object":
		if s.Properties != nil {
			p.Properties = convertProperties(s)
		}
	}
	return p
}
