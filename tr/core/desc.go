package core

import (
	"github.com/catawampus/cwmpd/tr/attr"
)

// Desc is the static parameter registry of one node type.
// It is built once, usually in a package-level var, and shared by all nodes.
type Desc struct {
	Name   string
	params map[string]attr.Behavior
	order  []string
}

func NewDesc(name string) *Desc {
	return &Desc{Name: name, params: make(map[string]attr.Behavior)}
}

// Param declares a parameter. Declaring a name twice replaces the descriptor.
func (d *Desc) Param(name string, b attr.Behavior) *Desc {
	if _, ok := d.params[name]; !ok {
		d.order = append(d.order, name)
	}
	d.params[name] = b
	return d
}

// Params returns the parameter names in declaration order.
func (d *Desc) Params() []string {
	return d.order
}

// Attr returns the descriptor of a parameter, or nil.
func (d *Desc) Attr(name string) attr.Behavior {
	return d.params[name]
}
