package core

import (
	"strings"

	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/fault"
)

// Root is the top of the tree. Its sub-objects are the data model roots,
// such as "Device" or "InternetGatewayDevice".
type Root struct {
	Object
}

func NewRoot() *Root {
	r := &Root{}
	r.Init(r, NewDesc("root"))
	return r
}

// Param is a resolved parameter path.
type Param struct {
	Path string
	Node Node
	Name string
	Attr attr.Behavior
}

func (p Param) Get() (any, error) {
	v, err := p.Attr.Get(p.Node)
	if err != nil {
		return nil, fault.WithName(err, p.Path)
	}
	return v, nil
}

func (p Param) Set(v any) error {
	if err := p.Attr.Set(p.Node, v); err != nil {
		return fault.WithName(err, p.Path)
	}
	return nil
}

func (p Param) Validate(v any) (any, error) {
	v, err := p.Attr.Validate(p.Node, v)
	if err != nil {
		return nil, fault.WithName(err, p.Path)
	}
	return v, nil
}

func (p Param) Restore(v any) error {
	return p.Attr.Restore(p.Node, v)
}

// Entry is one line of a tree listing. Object paths end with a dot.
type Entry struct {
	Path     string
	Writable bool
}

// IsObject reports whether the entry is an object or object list.
func (e Entry) IsObject() bool {
	return strings.HasSuffix(e.Path, ".")
}

func noSuch(path string) error {
	return fault.New(fault.ErrNoSuchParameter, path, "")
}

func split(path string) []string {
	path = strings.TrimSuffix(path, ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// resolve walks the tree. The result is a Node, a *List, or a Param.
func (r *Root) resolve(path string) (any, error) {
	comps := split(path)
	var cur Node = r
	for i := 0; i < len(comps); i++ {
		name := comps[i]
		o := cur.Obj()
		if child, ok := o.objects[name]; ok {
			cur = child
			continue
		}
		if l, ok := o.lists[name]; ok {
			if i+1 == len(comps) {
				return l, nil
			}
			i++
			child, ok := l.Get(comps[i])
			if !ok {
				return nil, noSuch(path)
			}
			cur = child
			continue
		}
		if b := o.desc.Attr(name); b != nil && i+1 == len(comps) && !strings.HasSuffix(path, ".") {
			return Param{Path: path, Node: cur, Name: name, Attr: b}, nil
		}
		return nil, noSuch(path)
	}
	return cur, nil
}

// GetExport returns the Node, *List or parameter value at path.
func (r *Root) GetExport(path string) (any, error) {
	t, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	if p, ok := t.(Param); ok {
		return p.Get()
	}
	return t, nil
}

// Lookup resolves a parameter path to its owning node and descriptor.
func (r *Root) Lookup(path string) (Param, error) {
	t, err := r.resolve(path)
	if err != nil {
		return Param{}, err
	}
	p, ok := t.(Param)
	if !ok {
		return Param{}, noSuch(path)
	}
	return p, nil
}

// Node resolves an object path, with or without the trailing dot.
func (r *Root) Node(path string) (Node, error) {
	t, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	n, ok := t.(Node)
	if !ok {
		return nil, noSuch(path)
	}
	return n, nil
}

func (r *Root) Get(path string) (any, error) {
	p, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	return p.Get()
}

func (r *Root) Set(path string, v any) error {
	p, err := r.Lookup(path)
	if err != nil {
		return err
	}
	return p.Set(v)
}

// TryValidate returns what path would be set to, without setting it.
func (r *Root) TryValidate(path string, v any) (any, error) {
	p, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	return p.Validate(v)
}

// Entry describes a single path: a parameter, an object or an object list.
// Objects are writable when they can be deleted, lists when they can grow.
func (r *Root) Entry(path string) (Entry, error) {
	t, err := r.resolve(path)
	if err != nil {
		return Entry{}, err
	}
	switch x := t.(type) {
	case Param:
		return Entry{Path: path, Writable: x.Attr.Writable()}, nil
	case *List:
		return Entry{Path: path, Writable: x.Addable()}, nil
	}
	if coll, _, err := SplitObject(path); err == nil {
		if l, err := r.resolve(coll); err == nil {
			if l, ok := l.(*List); ok {
				return Entry{Path: path, Writable: l.Addable()}, nil
			}
		}
	}
	return Entry{Path: path}, nil
}

// ListExports lists the children of the object or list at path. With
// recursive set, the whole subtree is listed, depth first.
func (r *Root) ListExports(path string, recursive bool) ([]Entry, error) {
	t, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	prefix := path
	if prefix != "" && !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}

	out := []Entry{}
	switch x := t.(type) {
	case Node:
		listNode(x, prefix, recursive, &out)
	case *List:
		listEntries(x, prefix, recursive, &out)
	default:
		return nil, fault.New(fault.ErrInvalidArguments, path, "not an object")
	}
	return out, nil
}

func listNode(n Node, prefix string, recursive bool, out *[]Entry) {
	o := n.Obj()
	for _, name := range o.desc.Params() {
		*out = append(*out, Entry{Path: prefix + name, Writable: o.desc.Attr(name).Writable()})
	}
	for _, name := range o.objOrder {
		p := prefix + name + "."
		*out = append(*out, Entry{Path: p})
		if recursive {
			listNode(o.objects[name], p, true, out)
		}
	}
	for _, name := range o.listOrder {
		l := o.lists[name]
		p := prefix + name + "."
		*out = append(*out, Entry{Path: p, Writable: l.Addable()})
		if recursive {
			listEntries(l, p, true, out)
		}
	}
}

func listEntries(l *List, prefix string, recursive bool, out *[]Entry) {
	for _, idx := range l.Keys() {
		p := prefix + idx + "."
		*out = append(*out, Entry{Path: p, Writable: l.Addable()})
		if recursive {
			child, _ := l.Get(idx)
			listNode(child, p, true, out)
		}
	}
}

// Params returns the full paths of every parameter at or below path.
// A path without a trailing dot must name a parameter.
func (r *Root) Params(path string) ([]string, error) {
	if path != "" && !strings.HasSuffix(path, ".") {
		if _, err := r.Lookup(path); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}
	entries, err := r.ListExports(path, true)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsObject() {
			out = append(out, e.Path)
		}
	}
	return out, nil
}

func (r *Root) collection(path string) (*List, error) {
	if !strings.HasSuffix(path, ".") {
		return nil, fault.New(fault.ErrInvalidArguments, path, "object names must end in '.'")
	}
	t, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	l, ok := t.(*List)
	if !ok {
		return nil, fault.New(fault.ErrInvalidArguments, path, "not an object list")
	}
	if !l.Addable() {
		return nil, fault.New(fault.ErrNotWritable, path, "object list is not writable")
	}
	return l, nil
}

// AddChild creates a new entry in the collection at path, e.g. "Device.Hosts.Host.".
// An empty index picks the next free one.
func (r *Root) AddChild(path string, index string) (string, Node, error) {
	l, err := r.collection(path)
	if err != nil {
		return "", nil, err
	}
	child, err := l.newFn()
	if err != nil {
		return "", nil, fault.WithName(err, path)
	}
	if index == "" {
		index = l.Add(child)
	} else {
		if _, taken := l.Get(index); taken {
			return "", nil, fault.New(fault.ErrInvalidArguments, path+index, "index in use")
		}
		l.Put(index, child)
	}
	return index, child, nil
}

// CanDelete returns the error DeleteChild would fail with, without
// removing anything.
func (r *Root) CanDelete(path string, index string) error {
	l, err := r.collection(path)
	if err != nil {
		return err
	}
	if _, ok := l.Get(index); !ok {
		return noSuch(path + index + ".")
	}
	return nil
}

// DeleteChild removes an entry from the collection at path.
func (r *Root) DeleteChild(path string, index string) error {
	l, err := r.collection(path)
	if err != nil {
		return err
	}
	if _, ok := l.Remove(index); !ok {
		return noSuch(path + index + ".")
	}
	return nil
}

// SplitObject splits "A.B.3." into the collection "A.B." and index "3".
func SplitObject(path string) (collection string, index string, err error) {
	comps := split(path)
	if !strings.HasSuffix(path, ".") || len(comps) < 2 {
		return "", "", fault.New(fault.ErrInvalidArguments, path, "not an object path")
	}
	index = comps[len(comps)-1]
	return strings.Join(comps[:len(comps)-1], ".") + ".", index, nil
}
