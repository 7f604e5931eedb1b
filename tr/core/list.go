package core

import (
	"sort"
	"strconv"
)

// List is an indexed collection of child objects, such as Device.Hosts.Host.{i}.
type List struct {
	newFn     func() (Node, error)
	entries   map[string]Node
	lastIndex int
}

// NewList creates a collection. If newFn is nil, the ACS can neither add
// nor delete entries; the device manages them with Add and Remove.
func NewList(newFn func() (Node, error)) *List {
	return &List{newFn: newFn, entries: make(map[string]Node)}
}

// Addable reports whether the ACS may add and delete entries.
func (l *List) Addable() bool {
	return l.newFn != nil
}

// Add inserts child at the next free index and returns the index.
func (l *List) Add(child Node) string {
	for {
		l.lastIndex++
		idx := strconv.Itoa(l.lastIndex)
		if _, taken := l.entries[idx]; !taken {
			l.entries[idx] = child
			return idx
		}
	}
}

// Put inserts child at an explicit index, replacing any previous entry.
func (l *List) Put(index string, child Node) {
	l.entries[index] = child
	if n, err := strconv.Atoi(index); err == nil && n > l.lastIndex {
		l.lastIndex = n
	}
}

func (l *List) Get(index string) (Node, bool) {
	n, ok := l.entries[index]
	return n, ok
}

// Remove deletes an entry and releases its subtree.
func (l *List) Remove(index string) (Node, bool) {
	n, ok := l.entries[index]
	if !ok {
		return nil, false
	}
	delete(l.entries, index)
	release(n)
	return n, true
}

func (l *List) Len() int {
	return len(l.entries)
}

// Keys returns the indices, numeric ones first in numeric order.
func (l *List) Keys() []string {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

func release(n Node) {
	o := n.Obj()
	n.AttrValues().Release()
	for _, name := range o.objOrder {
		release(o.objects[name])
	}
	for _, name := range o.listOrder {
		for _, child := range o.lists[name].entries {
			release(child)
		}
	}
}
