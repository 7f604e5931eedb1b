// Package notify implements parameter change notification: per-parameter
// attribute registrations and the periodic poll that detects changes.
package notify

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/std/store"
	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/fault"
)

// DefaultInterval is the default polling period.
const DefaultInterval = 60 * time.Second

const storePrefix = "notify/"

type Level int

const (
	// LevelOff never reports changes.
	LevelOff Level = 0
	// LevelPassive reports changes in the next session.
	LevelPassive Level = 1
	// LevelActive reports changes and starts a session right away.
	LevelActive Level = 2
)

// Tree is the part of the parameter tree the engine reads.
type Tree interface {
	Get(path string) (any, error)
	// Params expands a parameter or partial path ("A.B.") to parameter paths.
	Params(path string) ([]string, error)
}

// Sink receives detected changes; it is the CPE session driver.
type Sink interface {
	// SetNotificationParameters queues changed parameters for the next Inform.
	SetNotificationParameters(changes []Change)
	// NewValueChangeSession starts a session for active notifications.
	NewValueChangeSession()
}

// Scheduler runs a function later on the main loop.
type Scheduler interface {
	Schedule(d time.Duration, f func()) func() error
}

// Change is one detected parameter change.
type Change struct {
	Path  string
	Value any
	Level Level
}

// Attributes is one SetParameterAttributes or GetParameterAttributes entry.
// The Change flags say which fields a Set updates.
type Attributes struct {
	Name               string
	NotificationChange bool
	Notification       Level
	AccessListChange   bool
	AccessList         []string
}

type registration struct {
	Level      Level    `json:"level"`
	AccessList []string `json:"access_list,omitempty"`

	last    any
	hasLast bool
}

type Engine struct {
	tree  Tree
	sink  Sink
	store store.Store

	regs map[string]*registration
	// path prefixes that refuse active notification
	denyActive []string

	cancel func() error
	// bumped by Start and Stop; a tick of an earlier run is dropped
	run uint64
}

// NewEngine creates an engine. st may be nil to keep registrations in memory only.
func NewEngine(tree Tree, sink Sink, st store.Store) *Engine {
	return &Engine{
		tree:  tree,
		sink:  sink,
		store: st,
		regs:  make(map[string]*registration),
	}
}

func (e *Engine) String() string {
	return "notify"
}

// DenyActive makes parameters under prefix reject active notification,
// typically counters that change all the time.
func (e *Engine) DenyActive(prefix string) {
	e.denyActive = append(e.denyActive, prefix)
}

// Load restores persisted registrations and takes their current values as baseline.
func (e *Engine) Load() error {
	if e.store == nil {
		return nil
	}
	recs, err := e.store.List(storePrefix)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		reg := &registration{}
		if err := json.Unmarshal(rec.Value, reg); err != nil {
			log.Warn(e, "Dropping corrupt registration", "key", rec.Key, "err", err)
			continue
		}
		path := strings.TrimPrefix(rec.Key, storePrefix)
		e.regs[path] = reg
		e.baseline(path, reg)
	}
	log.Info(e, "Loaded notification registrations", "count", len(recs))
	return nil
}

func (e *Engine) baseline(path string, reg *registration) {
	if reg.Level == LevelOff || reg.hasLast {
		return
	}
	if v, err := e.tree.Get(path); err == nil {
		reg.last, reg.hasLast = v, true
	}
}

func (e *Engine) expand(name string) ([]string, error) {
	paths, err := e.tree.Params(name)
	if err != nil {
		return nil, fault.WithName(err, name)
	}
	return paths, nil
}

// SetAttributes applies a SetParameterAttributes request. Every entry is
// checked before any registration changes.
func (e *Engine) SetAttributes(list []Attributes) error {
	type op struct {
		path string
		a    Attributes
	}
	ops := []op{}
	errs := []*fault.ParamError{}
	for _, a := range list {
		paths, err := e.expand(a.Name)
		if err != nil {
			errs = append(errs, fault.WithName(err, a.Name))
			continue
		}
		if a.NotificationChange {
			if a.Notification < LevelOff || a.Notification > LevelActive {
				errs = append(errs, fault.New(fault.ErrInvalidValue, a.Name, "notification must be 0, 1 or 2"))
				continue
			}
		}
		for _, p := range paths {
			if a.NotificationChange && a.Notification == LevelActive && e.refusesActive(p) {
				errs = append(errs, fault.New(fault.ErrNotificationRejected, p, "active notification not supported"))
				continue
			}
			ops = append(ops, op{p, a})
		}
	}
	if len(errs) > 0 {
		return &fault.List{Phase: fault.PhaseValidate, Faults: errs}
	}

	// work on copies so a store failure leaves the registrations untouched
	updates := make(map[string]*registration)
	order := []string{}
	for _, o := range ops {
		reg, ok := updates[o.path]
		if !ok {
			reg = &registration{}
			if cur, exists := e.regs[o.path]; exists {
				cp := *cur
				reg = &cp
			}
			order = append(order, o.path)
		}
		if o.a.NotificationChange {
			reg.Level = o.a.Notification
			if reg.Level == LevelOff {
				reg.last, reg.hasLast = nil, false
			}
		}
		if o.a.AccessListChange {
			reg.AccessList = append([]string(nil), o.a.AccessList...)
		}
		updates[o.path] = reg
	}

	tx, err := e.begin()
	if err != nil {
		return err
	}
	for _, path := range order {
		reg := updates[path]
		if reg.Level == LevelOff && len(reg.AccessList) == 0 {
			updates[path] = nil
			reg = nil
		}
		if err := e.persist(tx, path, reg); err != nil {
			e.rollback(tx)
			return err
		}
	}
	if err := e.commit(tx); err != nil {
		return err
	}

	for _, path := range order {
		if reg := updates[path]; reg == nil {
			delete(e.regs, path)
		} else {
			e.regs[path] = reg
			e.baseline(path, reg)
		}
	}
	return nil
}

func (e *Engine) refusesActive(path string) bool {
	for _, pfx := range e.denyActive {
		if strings.HasPrefix(path, pfx) {
			return true
		}
	}
	return false
}

// GetAttributes answers GetParameterAttributes. Partial paths expand.
func (e *Engine) GetAttributes(names []string) ([]Attributes, error) {
	out := []Attributes{}
	for _, name := range names {
		paths, err := e.expand(name)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			a := Attributes{Name: p, AccessList: []string{}}
			if reg, ok := e.regs[p]; ok {
				a.Notification = reg.Level
				a.AccessList = append(a.AccessList, reg.AccessList...)
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// Level returns the notification level of a path.
func (e *Engine) Level(path string) Level {
	if reg, ok := e.regs[path]; ok {
		return reg.Level
	}
	return LevelOff
}

// Observe records a value written by the ACS itself, so the next poll does
// not report the ACS's own change back to it.
func (e *Engine) Observe(path string, v any) {
	if reg, ok := e.regs[path]; ok && reg.Level != LevelOff {
		reg.last, reg.hasLast = v, true
	}
}

// ClearPrefix drops the registrations at or below an object path.
// It is called before the object is deleted.
func (e *Engine) ClearPrefix(prefix string) error {
	doomed := []string{}
	for path := range e.regs {
		if path == prefix || strings.HasPrefix(path, prefix) {
			doomed = append(doomed, path)
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	tx, err := e.begin()
	if err != nil {
		return err
	}
	for _, path := range doomed {
		if err := e.persist(tx, path, nil); err != nil {
			e.rollback(tx)
			return err
		}
	}
	if err := e.commit(tx); err != nil {
		return err
	}
	for _, path := range doomed {
		delete(e.regs, path)
	}
	return nil
}

// Check polls every registered parameter once. Changes are reported to
// the sink and returned. Parameters that no longer exist are skipped.
func (e *Engine) Check() []Change {
	paths := make([]string, 0, len(e.regs))
	for p, reg := range e.regs {
		if reg.Level != LevelOff {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	changes := []Change{}
	active := false
	for _, p := range paths {
		reg := e.regs[p]
		v, err := e.tree.Get(p)
		if err != nil {
			if !errors.Is(err, fault.ErrNoSuchParameter) {
				log.Warn(e, "Unable to read parameter", "path", p, "err", err)
			}
			continue
		}
		if reg.hasLast && !attr.Equal(reg.last, v) {
			changes = append(changes, Change{Path: p, Value: v, Level: reg.Level})
			active = active || reg.Level == LevelActive
		}
		reg.last, reg.hasLast = v, true
	}

	if len(changes) > 0 {
		log.Info(e, "Parameters changed", "count", len(changes), "active", active)
		if e.sink != nil {
			e.sink.SetNotificationParameters(changes)
			if active {
				e.sink.NewValueChangeSession()
			}
		}
	}
	return changes
}

// Start polls every interval using sched.
func (e *Engine) Start(sched Scheduler, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	e.Stop()
	run := e.run
	var tick func()
	tick = func() {
		if e.run != run {
			return
		}
		e.Check()
		e.cancel = sched.Schedule(interval, tick)
	}
	e.cancel = sched.Schedule(interval, tick)
}

func (e *Engine) Stop() {
	e.run++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) begin() (store.Store, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.Begin()
}

func (e *Engine) persist(tx store.Store, path string, reg *registration) error {
	if tx == nil {
		return nil
	}
	if reg == nil {
		return tx.Delete(storePrefix + path)
	}
	b, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	return tx.Put(storePrefix+path, b)
}

func (e *Engine) commit(tx store.Store) error {
	if tx == nil {
		return nil
	}
	return tx.Commit()
}

func (e *Engine) rollback(tx store.Store) {
	if tx != nil {
		tx.Rollback()
	}
}
