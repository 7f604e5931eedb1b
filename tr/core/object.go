// Package core is the parameter tree: typed nodes holding parameters,
// static sub-objects and indexed object lists, addressed by dotted paths.
package core

import (
	"fmt"

	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/fault"
)

// Node is a tree object. Node types embed Object and call Init.
//
// The transaction methods bracket writes made by one SetParameterValues:
// StartTransaction is called before the first write to the node, then
// exactly one of CommitTransaction or AbandonTransaction.
type Node interface {
	attr.Owner
	Obj() *Object
	StartTransaction() error
	CommitTransaction() error
	AbandonTransaction() error
}

type Object struct {
	values attr.Values
	self   Node
	desc   *Desc

	objects   map[string]Node
	objOrder  []string
	lists     map[string]*List
	listOrder []string
}

// Init binds the object to the node embedding it and to its registry.
func (o *Object) Init(self Node, desc *Desc) {
	o.self = self
	o.desc = desc
	if o.desc == nil {
		o.desc = NewDesc(fmt.Sprintf("%T", self))
	}
}

func (o *Object) AttrValues() *attr.Values {
	return &o.values
}

func (o *Object) Obj() *Object {
	return o
}

func (o *Object) Desc() *Desc {
	return o.desc
}

func (o *Object) String() string {
	if o.desc == nil {
		return "object"
	}
	return o.desc.Name
}

func (o *Object) StartTransaction() error   { return nil }
func (o *Object) CommitTransaction() error  { return nil }
func (o *Object) AbandonTransaction() error { return nil }

// AddObject exports a static sub-object.
func (o *Object) AddObject(name string, child Node) {
	if o.objects == nil {
		o.objects = make(map[string]Node)
	}
	if _, ok := o.objects[name]; !ok {
		o.objOrder = append(o.objOrder, name)
	}
	o.objects[name] = child
}

// AddList exports an object list.
func (o *Object) AddList(name string, l *List) *List {
	if o.lists == nil {
		o.lists = make(map[string]*List)
	}
	if _, ok := o.lists[name]; !ok {
		o.listOrder = append(o.listOrder, name)
	}
	o.lists[name] = l
	return l
}

// List returns the named object list, or nil.
func (o *Object) List(name string) *List {
	return o.lists[name]
}

// Child returns the named static sub-object, or nil.
func (o *Object) Child(name string) Node {
	return o.objects[name]
}

// Count implements attr.Counter for NumberOfEntries parameters.
func (o *Object) Count(list string) (int, error) {
	l, ok := o.lists[list]
	if !ok {
		return 0, fault.Errorf(fault.ErrNoSuchParameter, "no object list %s in %s", list, o)
	}
	return l.Len(), nil
}

// Get reads a local parameter.
func (o *Object) Get(name string) (any, error) {
	b := o.desc.Attr(name)
	if b == nil {
		return nil, fault.Errorf(fault.ErrNoSuchParameter, "no parameter %s in %s", name, o)
	}
	return b.Get(o.self)
}

// Set writes a local parameter through its descriptor.
func (o *Object) Set(name string, v any) error {
	b := o.desc.Attr(name)
	if b == nil {
		return fault.Errorf(fault.ErrNoSuchParameter, "no parameter %s in %s", name, o)
	}
	return b.Set(o.self, v)
}

// ForceSet writes a local parameter even if it is read-only.
func (o *Object) ForceSet(name string, v any) error {
	b := o.desc.Attr(name)
	if ro, ok := b.(*attr.ReadOnlyAttr); ok {
		return ro.ForceSet(o.self, v)
	}
	return o.Set(name, v)
}

// MustGet reads a local parameter, returning nil on error.
func (o *Object) MustGet(name string) any {
	v, _ := o.Get(name)
	return v
}
