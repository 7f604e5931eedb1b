// Package attr implements typed, validating parameter descriptors.
//
// A descriptor is declared once per node type and shared by every node of
// that type; the values themselves live in each node's Values. Descriptors
// compose: wrappers such as Trigger, ReadOnly and FileBacked hold another
// Behavior and change how it is read or written.
package attr

import (
	"reflect"
	"sync/atomic"
	"time"
)

// Owner is a node holding attribute values.
type Owner interface {
	AttrValues() *Values
}

// Triggerable owners are told when a Trigger attribute really changed.
type Triggerable interface {
	Triggered()
}

// Behavior is the interface of every descriptor and wrapper.
type Behavior interface {
	// Validate returns the coerced value, or an error. It has no side effects.
	Validate(o Owner, v any) (any, error)
	// Get returns the current value, computing the initial value if needed.
	Get(o Owner) (any, error)
	// Set validates and stores v, then runs the change callbacks.
	Set(o Owner, v any) error
	// Restore stores a value previously returned by Get, skipping validation
	// and writability checks. It is used to undo a failed transaction.
	Restore(o Owner, v any) error
	// Callbacks returns the list run after every successful Set.
	Callbacks() *Callbacks
	// Writable reports whether external writers may Set the value.
	Writable() bool
}

// Callbacks is an ordered list of change callbacks.
type Callbacks struct {
	fns []func(Owner)
}

func (c *Callbacks) Add(fn func(Owner)) {
	c.fns = append(c.fns, fn)
}

func (c *Callbacks) Len() int {
	return len(c.fns)
}

// Run calls every callback in registration order.
func (c *Callbacks) Run(o Owner) {
	for _, fn := range c.fns {
		fn(o)
	}
}

var lastOwnerID atomic.Uint64

// Values holds the attribute values of one owner.
type Values struct {
	id        uint64
	slots     map[any]any
	released  bool
	onRelease []func()
}

// ID returns a process-unique identifier for the owner.
func (v *Values) ID() uint64 {
	if v.id == 0 {
		v.id = lastOwnerID.Add(1)
	}
	return v.id
}

// Release marks the owner as gone and drops the watches referring to it.
func (v *Values) Release() {
	if v.released {
		return
	}
	v.released = true
	for _, fn := range v.onRelease {
		fn()
	}
	v.onRelease = nil
}

func (v *Values) whenReleased(fn func()) {
	v.onRelease = append(v.onRelease, fn)
}

func (v *Values) Released() bool {
	return v.released
}

func (v *Values) load(key any) (any, bool) {
	val, ok := v.slots[key]
	return val, ok
}

func (v *Values) store(key any, val any) {
	if v.slots == nil {
		v.slots = make(map[any]any)
	}
	v.slots[key] = val
}

// Validator checks or converts a value that already passed the type check.
type Validator func(o Owner, v any) (any, error)

// Attr is the base descriptor: a value slot with a type check, optional
// extra validators and change callbacks.
type Attr struct {
	init       any
	check      func(v any) (any, error)
	validators []Validator
	callbacks  Callbacks
}

// Any returns a descriptor accepting any value.
func Any(init any) *Attr {
	return newAttr(init, func(v any) (any, error) { return v, nil })
}

func newAttr(init any, check func(any) (any, error)) *Attr {
	return &Attr{init: init, check: check}
}

// Validator adds a level of validation. Its input has passed the type
// check, and its output is type checked again.
func (a *Attr) Validator(fn Validator) *Attr {
	a.validators = append(a.validators, fn)
	return a
}

// OnChange adds a change callback.
func (a *Attr) OnChange(fn func(Owner)) *Attr {
	a.callbacks.Add(fn)
	return a
}

func (a *Attr) Validate(o Owner, v any) (any, error) {
	v, err := a.check(v)
	if err != nil {
		return nil, err
	}
	for _, fn := range a.validators {
		if v, err = fn(o, v); err != nil {
			return nil, err
		}
		if v, err = a.check(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (a *Attr) Get(o Owner) (any, error) {
	vals := o.AttrValues()
	if v, ok := vals.load(a); ok {
		return v, nil
	}

	// a nil initial value is never validated, so types may start out unset
	var v any
	if a.init != nil {
		var err error
		if v, err = a.Validate(o, a.init); err != nil {
			return nil, err
		}
	}
	vals.store(a, v)
	return v, nil
}

func (a *Attr) Set(o Owner, v any) error {
	v, err := a.Validate(o, v)
	if err != nil {
		return err
	}
	o.AttrValues().store(a, v)
	a.callbacks.Run(o)
	return nil
}

func (a *Attr) Restore(o Owner, v any) error {
	o.AttrValues().store(a, v)
	a.callbacks.Run(o)
	return nil
}

func (a *Attr) Callbacks() *Callbacks {
	return &a.callbacks
}

func (a *Attr) Writable() bool {
	return true
}

// Equal compares two attribute values.
func Equal(a, b any) bool {
	ta, oka := a.(time.Time)
	tb, okb := b.(time.Time)
	if oka || okb {
		return oka && okb && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
