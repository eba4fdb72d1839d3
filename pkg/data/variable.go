package data

import (
	"fmt"
	"strings"
)

// VarKind is the value type of a variable.
type VarKind string

const (
	KindContinuous VarKind = "continuous"
	KindDiscrete   VarKind = "discrete"
	KindString     VarKind = "string"
)

// Variable describes one column of a table.
type Variable struct {
	Name   string   `json:"name" yaml:"name"`
	Kind   VarKind  `json:"kind" yaml:"kind"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"` // discrete only
}

// Continuous returns a numeric variable.
func Continuous(name string) Variable {
	return Variable{Name: name, Kind: KindContinuous}
}

// Discrete returns a categorical variable with the given value labels.
func Discrete(name string, values ...string) Variable {
	return Variable{Name: name, Kind: KindDiscrete, Values: append([]string(nil), values...)}
}

// String returns a text variable. Only valid as a meta attribute.
func String(name string) Variable {
	return Variable{Name: name, Kind: KindString}
}

// IsDiscrete reports whether v is categorical.
func (v Variable) IsDiscrete() bool { return v.Kind == KindDiscrete }

// IsContinuous reports whether v is numeric.
func (v Variable) IsContinuous() bool { return v.Kind == KindContinuous }

// Label returns the value label for a discrete index, or the number formatted for continuous variables.
func (v Variable) Label(x float64) string {
	if isMissing(x) {
		return "?"
	}
	if v.IsDiscrete() {
		i := int(x)
		if i >= 0 && i < len(v.Values) {
			return v.Values[i]
		}
		return "?"
	}
	return fmt.Sprintf("%g", x)
}

func (v Variable) clone() Variable {
	v.Values = append([]string(nil), v.Values...)
	return v
}

// Domain is the ordered schema of a table.
type Domain struct {
	Attributes []Variable `json:"attributes" yaml:"attributes"`
	Class      *Variable  `json:"class,omitempty" yaml:"class,omitempty"`
	Metas      []Variable `json:"metas,omitempty" yaml:"metas,omitempty"`
}

// NewDomain builds a domain; class may be nil.
func NewDomain(attributes []Variable, class *Variable, metas ...Variable) Domain {
	d := Domain{}
	for _, a := range attributes {
		d.Attributes = append(d.Attributes, a.clone())
	}
	if class != nil {
		c := class.clone()
		d.Class = &c
	}
	for _, m := range metas {
		d.Metas = append(d.Metas, m.clone())
	}
	return d
}

// Len is the number of attributes plus the class variable, metas excluded.
func (d Domain) Len() int {
	if d.Class != nil {
		return len(d.Attributes) + 1
	}
	return len(d.Attributes)
}

// Index returns the position of the named attribute.
func (d Domain) Index(name string) (int, bool) {
	for i, a := range d.Attributes {
		if strings.EqualFold(a.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Validate checks variable names are unique and that string variables only appear as metas.
func (d Domain) Validate() error {
	seen := make(map[string]bool)
	check := func(v Variable, where string) error {
		if v.Name == "" {
			return fmt.Errorf("%s variable with empty name", where)
		}
		key := strings.ToLower(v.Name)
		if seen[key] {
			return fmt.Errorf("duplicate variable %q", v.Name)
		}
		seen[key] = true
		if v.Kind == KindString && where != "meta" {
			return fmt.Errorf("string variable %q must be a meta attribute", v.Name)
		}
		if v.Kind == KindDiscrete && len(v.Values) == 0 {
			return fmt.Errorf("discrete variable %q has no values", v.Name)
		}
		return nil
	}
	for _, a := range d.Attributes {
		if err := check(a, "attribute"); err != nil {
			return err
		}
	}
	if d.Class != nil {
		if err := check(*d.Class, "class"); err != nil {
			return err
		}
	}
	for _, m := range d.Metas {
		if err := check(m, "meta"); err != nil {
			return err
		}
	}
	return nil
}

func (d Domain) clone() Domain {
	return NewDomain(d.Attributes, d.Class, d.Metas...)
}

// AttributeList is the signal value of a "Features" port: attribute names in order.
type AttributeList []string
