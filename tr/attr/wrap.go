package attr

import (
	"fmt"

	"github.com/catawampus/cwmpd/tr/fault"
)

// TriggerAttr calls the owner's Triggered() when a Set really changed the value.
type TriggerAttr struct {
	Behavior
}

func Trigger(b Behavior) *TriggerAttr {
	return &TriggerAttr{Behavior: b}
}

func (t *TriggerAttr) Set(o Owner, v any) error {
	return t.change(o, func() error { return t.Behavior.Set(o, v) })
}

func (t *TriggerAttr) Restore(o Owner, v any) error {
	return t.change(o, func() error { return t.Behavior.Restore(o, v) })
}

func (t *TriggerAttr) change(o Owner, write func() error) error {
	old, _ := t.Behavior.Get(o)
	if err := write(); err != nil {
		return err
	}
	// the wrapped Set may have normalized the value back to the old one
	cur, _ := t.Behavior.Get(o)
	if !Equal(old, cur) {
		if tr, ok := o.(Triggerable); ok {
			tr.Triggered()
		}
	}
	return nil
}

var errReadOnly = fault.Errorf(fault.ErrNotWritable, "read-only attribute")

// ReadOnlyAttr rejects external writes. The owning node uses ForceSet.
type ReadOnlyAttr struct {
	Behavior
}

func ReadOnly(b Behavior) *ReadOnlyAttr {
	return &ReadOnlyAttr{Behavior: b}
}

func (r *ReadOnlyAttr) Validate(Owner, any) (any, error) {
	return nil, errReadOnly
}

func (r *ReadOnlyAttr) Set(Owner, any) error {
	return errReadOnly
}

func (r *ReadOnlyAttr) Writable() bool {
	return false
}

// ForceSet writes through the wrapped descriptor, ignoring read-only-ness.
func (r *ReadOnlyAttr) ForceSet(o Owner, v any) error {
	return r.Behavior.Set(o, v)
}

// ComputedAttr is a read-only value produced by a function on every read.
type ComputedAttr struct {
	fn        func(o Owner) (any, error)
	callbacks Callbacks
}

func Computed(fn func(o Owner) (any, error)) *ComputedAttr {
	return &ComputedAttr{fn: fn}
}

func (c *ComputedAttr) Validate(Owner, any) (any, error) { return nil, errReadOnly }
func (c *ComputedAttr) Set(Owner, any) error             { return errReadOnly }
func (c *ComputedAttr) Restore(Owner, any) error         { return nil }
func (c *ComputedAttr) Callbacks() *Callbacks            { return &c.callbacks }
func (c *ComputedAttr) Writable() bool                   { return false }

func (c *ComputedAttr) Get(o Owner) (any, error) {
	return c.fn(o)
}

// Counter is implemented by owners with child lists.
type Counter interface {
	Count(list string) (int, error)
}

// NumberOf is the unsigned number of entries in the owner's named child list.
// It is recomputed on every read, so it never goes stale.
func NumberOf(list string) *ComputedAttr {
	return Computed(func(o Owner) (any, error) {
		c, ok := o.(Counter)
		if !ok {
			return nil, fmt.Errorf("%T has no child lists", o)
		}
		n, err := c.Count(list)
		if err != nil {
			return nil, err
		}
		return uint64(n), nil
	})
}

func TriggerBool(init any) *TriggerAttr     { return Trigger(Bool(init)) }
func TriggerInt(init any) *TriggerAttr      { return Trigger(Int(init)) }
func TriggerUnsigned(init any) *TriggerAttr { return Trigger(Unsigned(init)) }
func TriggerString(init any) *TriggerAttr   { return Trigger(String(init)) }
func TriggerDate(init any) *TriggerAttr     { return Trigger(Date(init)) }

func ReadOnlyBool(init any) *ReadOnlyAttr     { return ReadOnly(Bool(init)) }
func ReadOnlyInt(init any) *ReadOnlyAttr      { return ReadOnly(Int(init)) }
func ReadOnlyUnsigned(init any) *ReadOnlyAttr { return ReadOnly(Unsigned(init)) }
func ReadOnlyFloat(init any) *ReadOnlyAttr    { return ReadOnly(Float(init)) }
func ReadOnlyString(init any) *ReadOnlyAttr   { return ReadOnly(String(init)) }
func ReadOnlyDate(init any) *ReadOnlyAttr     { return ReadOnly(Date(init)) }
