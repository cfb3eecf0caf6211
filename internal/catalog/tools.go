package catalog

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Tool is a function-calling tool definition for one operation.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes the callable side of a Tool.
type ToolFunction struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  *openapi3.Schema `json:"parameters"`
}

// Tools returns one tool definition per registered operation, sorted by name.
func Tools(r *Registry) []Tool {
	tools := make([]Tool, 0, r.Len())
	for _, c := range r.List() {
		tools = append(tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        string(c.Name),
				Description: c.Description,
				Parameters:  ParametersSchema(c),
			},
		})
	}
	return tools
}

// ParametersSchema renders a contract as an OpenAPI object schema.
func ParametersSchema(c *core.OperationContract) *openapi3.Schema {
	obj := openapi3.NewObjectSchema()
	for i := range c.Params {
		p := &c.Params[i]
		obj.WithProperty(p.Name, paramSchema(p))
		if p.Required {
			obj.Required = append(obj.Required, p.Name)
		}
	}
	f := false
	obj.AdditionalProperties = openapi3.AdditionalProperties{Has: &f}
	return obj
}

func paramSchema(p *core.ParameterSpec) *openapi3.Schema {
	var s *openapi3.Schema
	switch p.Type {
	case core.TypeNumber:
		s = openapi3.NewFloat64Schema()
	case core.TypeStringArray:
		s = openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())
	default:
		s = openapi3.NewStringSchema()
	}
	if len(p.Enum) > 0 {
		vals := make([]any, len(p.Enum))
		for i, e := range p.Enum {
			vals[i] = e
		}
		s.WithEnum(vals...)
	}
	if p.Default != nil {
		s.WithDefault(p.Default.Any())
	}
	s.Description = p.Description
	if p.IsReference() {
		s.Description += " Layer identifier of a " + string(p.LayerKind) + " layer."
	}
	return s
}
