package core

import "fmt"

// Shape tells whether a parameter carries one value or a list.
type Shape string

// Parameter shapes.
const (
	ShapeScalar Shape = "scalar"
	ShapeArray  Shape = "array"
)

// RefKind marks parameters whose values name other layers.
type RefKind string

// Reference kinds.
const (
	RefNone  RefKind = ""
	RefLayer RefKind = "layer"
)

// ParameterSpec is one declared parameter of an operation contract.
type ParameterSpec struct {
	Name        string
	Shape       Shape
	Type        ValueType
	Required    bool
	Default     *Value
	Ref         RefKind
	LayerKind   LayerKind // expected kind for RefLayer parameters
	Enum        []string  // allowed values for string parameters
	Description string
}

// IsReference reports whether the parameter names other layers.
func (p *ParameterSpec) IsReference() bool {
	return p.Ref == RefLayer
}

// Allows reports whether s is an accepted value for an enum parameter.
// Parameters without an enum accept everything.
func (p *ParameterSpec) Allows(s string) bool {
	if len(p.Enum) == 0 {
		return true
	}
	for _, e := range p.Enum {
		if e == s {
			return true
		}
	}
	return false
}

// OperationContract is the strict contract of one catalog operation.
type OperationContract struct {
	Name        Operation
	Description string
	Output      LayerKind
	Params      []ParameterSpec
}

// Param returns the declared parameter with the given name.
func (c *OperationContract) Param(name string) (*ParameterSpec, bool) {
	for i := range c.Params {
		if c.Params[i].Name == name {
			return &c.Params[i], true
		}
	}
	return nil, false
}

// References returns the reference-kind parameters in declaration order.
func (c *OperationContract) References() []*ParameterSpec {
	var refs []*ParameterSpec
	for i := range c.Params {
		if c.Params[i].IsReference() {
			refs = append(refs, &c.Params[i])
		}
	}
	return refs
}

// Check verifies the structural invariants of a contract.
func (c *OperationContract) Check() error {
	if c.Name == "" {
		return fmt.Errorf("contract has no operation name")
	}
	seen := make(map[string]struct{}, len(c.Params))
	for _, p := range c.Params {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%s: parameter %s declared twice", c.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Required && p.Default != nil {
			return fmt.Errorf("%s: required parameter %s carries a default", c.Name, p.Name)
		}
		if p.Default != nil && p.Default.Type != p.Type {
			return fmt.Errorf("%s: default for %s is %s, declared %s", c.Name, p.Name, p.Default.Type, p.Type)
		}
		if (p.Shape == ShapeArray) != (p.Type == TypeStringArray) {
			return fmt.Errorf("%s: parameter %s shape %s does not match type %s", c.Name, p.Name, p.Shape, p.Type)
		}
		if p.IsReference() && p.Type == TypeNumber {
			return fmt.Errorf("%s: reference parameter %s must be a string or string array", c.Name, p.Name)
		}
	}
	return nil
}
