package catalog

import "github.com/leapstack-labs/leapgis/pkg/core"

// OperationView is the JSON form of a contract.
type OperationView struct {
	Name        string          `json:"name"`
	AlgorithmID string          `json:"algorithm_id"`
	Description string          `json:"description"`
	Output      core.LayerKind  `json:"output"`
	Params      []ParameterView `json:"params"`
}

// ParameterView is the JSON form of a parameter spec.
type ParameterView struct {
	Name        string         `json:"name"`
	Type        core.ValueType `json:"type"`
	Required    bool           `json:"required"`
	Default     any            `json:"default,omitempty"`
	Layer       core.LayerKind `json:"layer,omitempty"`
	Enum        []string       `json:"enum,omitempty"`
	Description string         `json:"description,omitempty"`
}

// NewOperationView converts a contract.
func NewOperationView(c *core.OperationContract) OperationView {
	v := OperationView{
		Name:        string(c.Name),
		AlgorithmID: c.Name.AlgorithmID(),
		Description: c.Description,
		Output:      c.Output,
		Params:      make([]ParameterView, 0, len(c.Params)),
	}
	for i := range c.Params {
		p := &c.Params[i]
		pv := ParameterView{
			Name:        p.Name,
			Type:        p.Type,
			Required:    p.Required,
			Enum:        p.Enum,
			Description: p.Description,
		}
		if p.Default != nil {
			pv.Default = p.Default.Any()
		}
		if p.IsReference() {
			pv.Layer = p.LayerKind
		}
		v.Params = append(v.Params, pv)
	}
	return v
}

// Views converts every contract in r, sorted by name.
func Views(r *Registry) []OperationView {
	out := make([]OperationView, 0, r.Len())
	for _, c := range r.List() {
		out = append(out, NewOperationView(c))
	}
	return out
}
