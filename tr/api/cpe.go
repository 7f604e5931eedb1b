// Package api implements the CPE side of the CWMP RPCs on top of the
// parameter tree. Every RPC either applies completely or not at all.
package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/std/store"
	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/core"
	"github.com/catawampus/cwmpd/tr/fault"
	"github.com/catawampus/cwmpd/tr/notify"
)

// MaxAddObjects bounds the count of a single AddObjects entry.
const MaxAddObjects = 1000

const parameterKeyRecord = "cpe/parameter_key"

// Notifier is the part of the notification engine the RPCs drive.
type Notifier interface {
	SetAttributes(list []notify.Attributes) error
	GetAttributes(names []string) ([]notify.Attributes, error)
	ClearPrefix(prefix string) error
	Observe(path string, v any)
}

type ParamValue struct {
	Name  string
	Value any
}

type ParamInfo struct {
	Name     string
	Writable bool
}

type ObjectCount struct {
	Name  string
	Count int
}

type ObjectResult struct {
	Name    string
	Indices []string
}

// CPE serves the ACS-initiated RPCs.
type CPE struct {
	root   *core.Root
	notify Notifier
	store  store.Store

	parameterKey string
	// OnChange is called after every RPC that modified the tree.
	OnChange func(method string)
}

// NewCPE creates the RPC layer. n and st may be nil.
func NewCPE(root *core.Root, n Notifier, st store.Store) (*CPE, error) {
	c := &CPE{root: root, notify: n, store: st}
	if st != nil {
		key, err := st.Get(parameterKeyRecord)
		if err != nil {
			return nil, err
		}
		c.parameterKey = string(key)
	}
	return c, nil
}

func (c *CPE) String() string {
	return "cpe-api"
}

// ParameterKey returns the key sent with the last successful write RPC.
func (c *CPE) ParameterKey() string {
	return c.parameterKey
}

func (c *CPE) setParameterKey(key string) {
	c.parameterKey = key
	if c.store == nil {
		return
	}
	// The tree change is already committed; a lost key only affects what
	// the next Inform reports.
	if err := c.store.Put(parameterKeyRecord, []byte(key)); err != nil {
		log.Error(c, "Unable to persist ParameterKey", "err", err)
	}
}

func (c *CPE) changed(method string) {
	if c.OnChange != nil {
		c.OnChange(method)
	}
}

// GetRPCMethods lists the methods this CPE answers.
func (c *CPE) GetRPCMethods() []string {
	return []string{
		"AddObject",
		"DeleteObject",
		"GetParameterAttributes",
		"GetParameterNames",
		"GetParameterValues",
		"GetRPCMethods",
		"SetParameterAttributes",
		"SetParameterValues",
		"X_CATAWAMPUS_ORG_AddObjects",
	}
}

// GetParameterValues reads the named parameters. Names ending in a dot
// expand to every parameter below them.
func (c *CPE) GetParameterValues(names []string) ([]ParamValue, error) {
	var faults []*fault.ParamError
	out := make([]ParamValue, 0, len(names))
	for _, name := range names {
		paths, err := c.root.Params(name)
		if err != nil {
			faults = append(faults, fault.WithName(err, name))
			continue
		}
		for _, p := range paths {
			v, err := c.root.Get(p)
			if err != nil {
				faults = append(faults, fault.WithName(err, p))
				continue
			}
			out = append(out, ParamValue{Name: p, Value: v})
		}
	}
	if len(faults) > 0 {
		return nil, &fault.List{Phase: fault.PhaseResolve, Faults: faults}
	}
	return out, nil
}

// GetParameterNames lists the tree at path. With nextLevel only the direct
// children are returned, otherwise path itself and everything below it.
func (c *CPE) GetParameterNames(path string, nextLevel bool) ([]ParamInfo, error) {
	if path != "" && !strings.HasSuffix(path, ".") {
		if nextLevel {
			return nil, fault.New(fault.ErrInvalidArguments, path, "NextLevel requires an object path")
		}
		e, err := c.root.Entry(path)
		if err != nil {
			return nil, err
		}
		return []ParamInfo{{Name: e.Path, Writable: e.Writable}}, nil
	}

	var out []ParamInfo
	if path != "" && !nextLevel {
		e, err := c.root.Entry(path)
		if err != nil {
			return nil, err
		}
		out = append(out, ParamInfo{Name: e.Path, Writable: e.Writable})
	}
	entries, err := c.root.ListExports(path, !nextLevel)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out = append(out, ParamInfo{Name: e.Path, Writable: e.Writable})
	}
	return out, nil
}

type applied struct {
	param core.Param
	old   any
}

// SetParameterValues writes every pair or none of them. The returned count
// is the number of parameters whose stored value changed.
func (c *CPE) SetParameterValues(list []ParamValue, key string) (int, error) {
	// Resolve
	params := make([]core.Param, len(list))
	seen := make(map[string]bool, len(list))
	var faults []*fault.ParamError
	for i, pv := range list {
		p, err := c.root.Lookup(pv.Name)
		if err != nil {
			faults = append(faults, fault.WithName(err, pv.Name))
			continue
		}
		if seen[pv.Name] {
			faults = append(faults, fault.New(fault.ErrInvalidArguments, pv.Name, "parameter given twice"))
			continue
		}
		seen[pv.Name] = true
		params[i] = p
	}
	if len(faults) > 0 {
		return 0, &fault.List{Phase: fault.PhaseResolve, Faults: faults}
	}

	// Validate
	for i, p := range params {
		if _, err := p.Validate(list[i].Value); err != nil {
			faults = append(faults, fault.WithName(err, p.Path))
		}
	}
	if len(faults) > 0 {
		return 0, &fault.List{Phase: fault.PhaseValidate, Faults: faults}
	}

	// Apply
	var (
		done    []applied
		dirty   []core.Node
		started = make(map[core.Node]bool)
		failure error
	)
	for i, p := range params {
		old, err := p.Get()
		if err != nil {
			failure = err
			break
		}
		if !started[p.Node] {
			if err := p.Node.StartTransaction(); err != nil {
				failure = fault.WithName(err, p.Path)
				break
			}
			started[p.Node] = true
			dirty = append(dirty, p.Node)
		}
		if err := p.Set(list[i].Value); err != nil {
			failure = err
			break
		}
		done = append(done, applied{param: p, old: old})
	}
	if failure != nil {
		for i := len(done) - 1; i >= 0; i-- {
			if err := done[i].param.Restore(done[i].old); err != nil {
				log.Warn(c, "Undo failed", "param", done[i].param.Path, "err", err)
			}
		}
		for _, n := range dirty {
			if err := n.AbandonTransaction(); err != nil {
				log.Warn(c, "AbandonTransaction failed", "node", n, "err", err)
			}
		}
		return 0, &fault.List{
			Phase:  fault.PhaseApply,
			Faults: []*fault.ParamError{fault.WithName(failure, "")},
		}
	}

	// Commit
	count := 0
	for _, a := range done {
		v, err := a.param.Get()
		if err != nil || !attr.Equal(v, a.old) {
			count++
		}
		if err == nil && c.notify != nil {
			c.notify.Observe(a.param.Path, v)
		}
	}
	c.setParameterKey(key)

	var commitErr error
	for _, n := range dirty {
		if err := n.CommitTransaction(); err != nil {
			log.Error(c, "CommitTransaction failed", "node", n, "err", err)
			commitErr = errors.Join(commitErr, err)
		}
	}
	c.changed("SetParameterValues")
	if commitErr != nil {
		return count, fault.Errorf(fault.ErrInternal, "commit: %v", commitErr)
	}
	return count, nil
}

// AddObjects creates objects in several collections at once. If any creation
// fails every object created by the call is deleted again.
func (c *CPE) AddObjects(list []ObjectCount, key string) ([]ObjectResult, error) {
	var faults []*fault.ParamError
	for _, e := range list {
		switch {
		case !strings.HasSuffix(e.Name, "."):
			faults = append(faults, fault.New(fault.ErrInvalidArguments, e.Name, "object names must end in '.'"))
		case e.Count < 0:
			faults = append(faults, fault.New(fault.ErrInvalidArguments, e.Name, fmt.Sprintf("negative count %d", e.Count)))
		case e.Count > MaxAddObjects:
			faults = append(faults, fault.New(fault.ErrResourcesExceeded, e.Name, "too many objects requested"))
		}
	}
	if len(faults) > 0 {
		return nil, &fault.List{Phase: fault.PhaseValidate, Faults: faults}
	}

	type created struct{ coll, index string }
	var made []created
	results := make([]ObjectResult, 0, len(list))
	for _, e := range list {
		r := ObjectResult{Name: e.Name, Indices: []string{}}
		for i := 0; i < e.Count; i++ {
			index, _, err := c.root.AddChild(e.Name, "")
			if err != nil {
				for j := len(made) - 1; j >= 0; j-- {
					if err := c.root.DeleteChild(made[j].coll, made[j].index); err != nil {
						log.Warn(c, "Rollback delete failed", "object", made[j].coll+made[j].index, "err", err)
					}
				}
				return nil, &fault.List{
					Phase:  fault.PhaseCreate,
					Faults: []*fault.ParamError{fault.WithName(err, e.Name)},
				}
			}
			made = append(made, created{e.Name, index})
			r.Indices = append(r.Indices, index)
		}
		results = append(results, r)
	}

	c.setParameterKey(key)
	c.changed("AddObjects")
	return results, nil
}

// AddObject creates a single object and returns its index.
func (c *CPE) AddObject(name string, key string) (string, error) {
	res, err := c.AddObjects([]ObjectCount{{Name: name, Count: 1}}, key)
	if err != nil {
		var l *fault.List
		if errors.As(err, &l) && len(l.Faults) == 1 {
			return "", l.Faults[0]
		}
		return "", err
	}
	return res[0].Indices[0], nil
}

// DeleteObject deletes the object at name, e.g. "Device.Hosts.Host.3.",
// together with the notification registrations below it.
func (c *CPE) DeleteObject(name string, key string) error {
	coll, index, err := core.SplitObject(name)
	if err != nil {
		return err
	}
	if err := c.root.CanDelete(coll, index); err != nil {
		return err
	}
	if c.notify != nil {
		if err := c.notify.ClearPrefix(name); err != nil {
			return fault.WithName(err, name)
		}
	}
	if err := c.root.DeleteChild(coll, index); err != nil {
		return err
	}
	c.setParameterKey(key)
	c.changed("DeleteObject")
	return nil
}

// SetParameterAttributes updates notification attributes. Without a
// notification engine every request is rejected.
func (c *CPE) SetParameterAttributes(list []notify.Attributes) error {
	if c.notify == nil {
		return fault.Errorf(fault.ErrRequestDenied, "notifications are disabled")
	}
	return c.notify.SetAttributes(list)
}

func (c *CPE) GetParameterAttributes(names []string) ([]notify.Attributes, error) {
	if c.notify == nil {
		return nil, fault.Errorf(fault.ErrRequestDenied, "notifications are disabled")
	}
	return c.notify.GetAttributes(names)
}
