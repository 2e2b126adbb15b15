package prompt

import "codeact/internal/tools"

// RegistryCatalog adapts a tools.Registry into an MCPCatalog, surfacing
// whatever MCP tools were registered at startup so the rendered prompt
// lists them alongside the static tool catalog.
type RegistryCatalog struct {
	registry tools.Registry
}

func NewRegistryCatalog(registry tools.Registry) *RegistryCatalog {
	return &RegistryCatalog{registry: registry}
}

func (c *RegistryCatalog) Tools() []ToolSpec {
	if c.registry == nil {
		return nil
	}
	schemas := c.registry.Schemas()
	out := make([]ToolSpec, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, ToolSpec{
			Name:        s.Name,
			Description: s.Description,
			Fields:      fieldNames(s.Parameters),
		})
	}
	return out
}

func fieldNames(parameters map[string]any) []string {
	props, _ := parameters["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	return names
}
