package api_test

import (
	"errors"
	"testing"

	"github.com/catawampus/cwmpd/std/store"
	tu "github.com/catawampus/cwmpd/std/utils/testutils"
	"github.com/catawampus/cwmpd/tr/api"
	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/core"
	"github.com/catawampus/cwmpd/tr/fault"
	"github.com/catawampus/cwmpd/tr/notify"
	"github.com/stretchr/testify/require"
)

// radio counts its transaction calls. Its Channel validator accepts only
// budget more values once budget is non-negative.
type radio struct {
	core.Object
	budget                    int
	starts, commits, abandons int
}

var radioDesc = core.NewDesc("Radio").
	Param("Channel", attr.Unsigned(1).Validator(func(o attr.Owner, v any) (any, error) {
		r := o.(*radio)
		if r.budget == 0 {
			return nil, fault.Errorf(fault.ErrInvalidValue, "radio busy")
		}
		if r.budget > 0 {
			r.budget--
		}
		return v, nil
	})).
	Param("Enable", attr.Bool(false)).
	Param("Status", attr.ReadOnlyString("Up"))

func newRadio() *radio {
	r := &radio{budget: -1}
	r.Init(r, radioDesc)
	return r
}

func (r *radio) StartTransaction() error {
	r.starts++
	return nil
}

func (r *radio) CommitTransaction() error {
	r.commits++
	return nil
}

func (r *radio) AbandonTransaction() error {
	r.abandons++
	return nil
}

type item struct {
	core.Object
}

var itemDesc = core.NewDesc("Item").
	Param("Name", attr.String(""))

func newItem() (core.Node, error) {
	i := &item{}
	i.Init(i, itemDesc)
	return i, nil
}

type device struct {
	core.Object
}

var deviceDesc = core.NewDesc("Device").
	Param("FooNumberOfEntries", attr.NumberOf("Foo")).
	Param("BarNumberOfEntries", attr.NumberOf("Bar"))

type fixture struct {
	root   *core.Root
	radio0 *radio
	radio1 *radio
	// Bar creations left before newFn fails; negative is unlimited
	barBudget int
}

func newFixture() *fixture {
	f := &fixture{radio0: newRadio(), radio1: newRadio(), barBudget: -1}
	d := &device{}
	d.Init(d, deviceDesc)
	d.AddObject("Radio0", f.radio0)
	d.AddObject("Radio1", f.radio1)
	d.AddList("Foo", core.NewList(newItem))
	d.AddList("Bar", core.NewList(func() (core.Node, error) {
		if f.barBudget == 0 {
			return nil, fault.Errorf(fault.ErrResourcesExceeded, "no room")
		}
		f.barBudget--
		return newItem()
	}))

	f.root = core.NewRoot()
	f.root.AddObject("Device", d)
	return f
}

func newCPE(t *testing.T, f *fixture, st store.Store) *api.CPE {
	n := notify.NewEngine(f.root, nil, st)
	return tu.NoErr(api.NewCPE(f.root, n, st))
}

func TestSetParameterValues(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	c := newCPE(t, f, nil)

	n, err := c.SetParameterValues([]api.ParamValue{
		{Name: "Device.Radio0.Channel", Value: "6"},
		{Name: "Device.Radio0.Enable", Value: "false"},
		{Name: "Device.Radio1.Enable", Value: "1"},
	}, "key1")
	require.NoError(t, err)
	// Radio0.Enable was already false
	require.Equal(t, 2, n)
	require.Equal(t, "key1", c.ParameterKey())

	require.Equal(t, uint64(6), tu.NoErr(f.root.Get("Device.Radio0.Channel")))
	require.Equal(t, true, tu.NoErr(f.root.Get("Device.Radio1.Enable")))
	require.Equal(t, 1, f.radio0.starts)
	require.Equal(t, 1, f.radio0.commits)
	require.Equal(t, 1, f.radio1.commits)
	require.Equal(t, 0, f.radio0.abandons)
}

func TestSetParameterValuesResolve(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	c := newCPE(t, f, nil)

	_, err := c.SetParameterValues([]api.ParamValue{
		{Name: "Device.Radio0.Channel", Value: 11},
		{Name: "Device.Radio0.Nope", Value: 1},
		{Name: "Device.Radio9.Enable", Value: true},
	}, "k")
	var l *fault.List
	require.True(t, errors.As(err, &l))
	require.Equal(t, fault.PhaseResolve, l.Phase)
	require.Len(t, l.Faults, 2)
	require.Equal(t, "Device.Radio0.Nope", l.Faults[0].Name)
	require.Equal(t, "Device.Radio9.Enable", l.Faults[1].Name)
	require.Equal(t, 9003, l.Code())
	require.ErrorIs(t, err, fault.ErrNoSuchParameter)

	require.Equal(t, uint64(1), tu.NoErr(f.root.Get("Device.Radio0.Channel")))
	require.Equal(t, 0, f.radio0.starts)
	require.Equal(t, "", c.ParameterKey())

	_, err = c.SetParameterValues([]api.ParamValue{
		{Name: "Device.Radio0.Enable", Value: true},
		{Name: "Device.Radio0.Enable", Value: false},
	}, "k")
	require.ErrorIs(t, err, fault.ErrInvalidArguments)
}

func TestSetParameterValuesValidate(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	c := newCPE(t, f, nil)

	_, err := c.SetParameterValues([]api.ParamValue{
		{Name: "Device.Radio0.Enable", Value: true},
		{Name: "Device.Radio0.Channel", Value: "-5"},
		{Name: "Device.Radio1.Enable", Value: "banana"},
		{Name: "Device.Radio1.Status", Value: "Down"},
	}, "k")
	var l *fault.List
	require.True(t, errors.As(err, &l))
	require.Equal(t, fault.PhaseValidate, l.Phase)
	require.Len(t, l.Faults, 3)
	require.ErrorIs(t, l.Faults[0], fault.ErrInvalidValue)
	require.ErrorIs(t, l.Faults[1], fault.ErrInvalidValue)
	require.ErrorIs(t, l.Faults[2], fault.ErrNotWritable)
	require.Equal(t, 9008, l.Faults[2].Code())

	// nothing written, no transaction started
	require.Equal(t, false, tu.NoErr(f.root.Get("Device.Radio0.Enable")))
	require.Equal(t, 0, f.radio0.starts+f.radio1.starts)

	// a single fault keeps its own code
	_, err = c.SetParameterValues([]api.ParamValue{
		{Name: "Device.Radio0.Channel", Value: "x"},
	}, "k")
	require.Equal(t, 9007, fault.Code(err))
}

func TestSetParameterValuesUndo(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	c := newCPE(t, f, nil)

	require.NoError(t, f.root.Set("Device.Radio1.Channel", 3))
	// Radio1 passes validation once, then fails on the write
	f.radio1.budget = 1

	_, err := c.SetParameterValues([]api.ParamValue{
		{Name: "Device.Radio0.Channel", Value: 11},
		{Name: "Device.Radio0.Enable", Value: true},
		{Name: "Device.Radio1.Channel", Value: 7},
	}, "k")
	var l *fault.List
	require.True(t, errors.As(err, &l))
	require.Equal(t, fault.PhaseApply, l.Phase)
	require.Len(t, l.Faults, 1)
	require.Equal(t, "Device.Radio1.Channel", l.Faults[0].Name)

	require.Equal(t, uint64(1), tu.NoErr(f.root.Get("Device.Radio0.Channel")))
	require.Equal(t, false, tu.NoErr(f.root.Get("Device.Radio0.Enable")))
	require.Equal(t, uint64(3), tu.NoErr(f.root.Get("Device.Radio1.Channel")))
	require.Equal(t, 1, f.radio0.abandons)
	require.Equal(t, 1, f.radio1.abandons)
	require.Equal(t, 0, f.radio0.commits+f.radio1.commits)
	require.Equal(t, "", c.ParameterKey())
}

func TestAddObjects(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	c := newCPE(t, f, nil)

	res, err := c.AddObjects([]api.ObjectCount{
		{Name: "Device.Foo.", Count: 3},
		{Name: "Device.Bar.", Count: 2},
		{Name: "Device.Bar.", Count: 0},
	}, "add1")
	require.NoError(t, err)
	require.Equal(t, []api.ObjectResult{
		{Name: "Device.Foo.", Indices: []string{"1", "2", "3"}},
		{Name: "Device.Bar.", Indices: []string{"1", "2"}},
		{Name: "Device.Bar.", Indices: []string{}},
	}, res)
	require.Equal(t, "add1", c.ParameterKey())
	require.Equal(t, uint64(3), tu.NoErr(f.root.Get("Device.FooNumberOfEntries")))

	idx := tu.NoErr(c.AddObject("Device.Foo.", "add2"))
	require.Equal(t, "4", idx)
}

func TestAddObjectsRollback(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	c := newCPE(t, f, nil)
	f.barBudget = 4

	_, err := c.AddObjects([]api.ObjectCount{
		{Name: "Device.Foo.", Count: 3},
		{Name: "Device.Bar.", Count: 5},
	}, "k")
	var l *fault.List
	require.True(t, errors.As(err, &l))
	require.Equal(t, fault.PhaseCreate, l.Phase)
	require.Len(t, l.Faults, 1)
	require.Equal(t, "Device.Bar.", l.Faults[0].Name)
	require.Equal(t, 9004, fault.Code(err))

	require.Equal(t, uint64(0), tu.NoErr(f.root.Get("Device.FooNumberOfEntries")))
	require.Equal(t, uint64(0), tu.NoErr(f.root.Get("Device.BarNumberOfEntries")))
	require.Equal(t, "", c.ParameterKey())
}

func TestAddObjectsArguments(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	c := newCPE(t, f, nil)

	_, err := c.AddObjects([]api.ObjectCount{{Name: "Device.Foo", Count: 1}}, "k")
	require.ErrorIs(t, err, fault.ErrInvalidArguments)
	_, err = c.AddObjects([]api.ObjectCount{{Name: "Device.Foo.", Count: -1}}, "k")
	require.ErrorIs(t, err, fault.ErrInvalidArguments)
	_, err = c.AddObjects([]api.ObjectCount{{Name: "Device.Foo.", Count: api.MaxAddObjects + 1}}, "k")
	require.ErrorIs(t, err, fault.ErrResourcesExceeded)
	require.Equal(t, 9004, fault.Code(err))
	require.Equal(t, uint64(0), tu.NoErr(f.root.Get("Device.FooNumberOfEntries")))

	_, err = c.AddObject("Device.Radio0.", "k")
	require.ErrorIs(t, err, fault.ErrInvalidArguments)
	require.Equal(t, 9003, fault.Code(err))
}

func TestDeleteObject(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	n := notify.NewEngine(f.root, nil, nil)
	c := tu.NoErr(api.NewCPE(f.root, n, nil))

	idx := tu.NoErr(c.AddObject("Device.Foo.", "k"))
	path := "Device.Foo." + idx + "."
	require.NoError(t, c.SetParameterAttributes([]notify.Attributes{{
		Name:               path + "Name",
		NotificationChange: true,
		Notification:       notify.LevelPassive,
	}}))
	require.Equal(t, notify.LevelPassive, n.Level(path+"Name"))

	require.NoError(t, c.DeleteObject(path, "del"))
	require.Equal(t, notify.LevelOff, n.Level(path+"Name"))
	require.Equal(t, "del", c.ParameterKey())
	require.ErrorIs(t, tu.Err(f.root.Get(path+"Name")), fault.ErrNoSuchParameter)

	require.ErrorIs(t, c.DeleteObject(path, "k"), fault.ErrNoSuchParameter)
	require.ErrorIs(t, c.DeleteObject("Device.Foo.1", "k"), fault.ErrInvalidArguments)
	require.Equal(t, "del", c.ParameterKey())
}

func TestDeleteObjectFailureKeepsAttributes(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	st := store.NewMemoryStore()
	n := notify.NewEngine(f.root, nil, st)
	c := tu.NoErr(api.NewCPE(f.root, n, st))

	require.NoError(t, c.SetParameterAttributes([]notify.Attributes{{
		Name:               "Device.Radio0.Channel",
		NotificationChange: true,
		Notification:       notify.LevelActive,
	}}))

	// Radio0 is not a list entry
	err := c.DeleteObject("Device.Radio0.", "k")
	require.ErrorIs(t, err, fault.ErrInvalidArguments)
	require.Equal(t, notify.LevelActive, n.Level("Device.Radio0.Channel"))
	require.Equal(t, "", c.ParameterKey())

	// registrations survive a restart too
	reloaded := notify.NewEngine(f.root, nil, st)
	require.NoError(t, reloaded.Load())
	require.Equal(t, notify.LevelActive, reloaded.Level("Device.Radio0.Channel"))
}

func TestGetParameterValues(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	c := newCPE(t, f, nil)

	vals := tu.NoErr(c.GetParameterValues([]string{"Device.Radio0.", "Device.FooNumberOfEntries"}))
	require.Equal(t, []api.ParamValue{
		{Name: "Device.Radio0.Channel", Value: uint64(1)},
		{Name: "Device.Radio0.Enable", Value: false},
		{Name: "Device.Radio0.Status", Value: "Up"},
		{Name: "Device.FooNumberOfEntries", Value: uint64(0)},
	}, vals)

	_, err := c.GetParameterValues([]string{"Device.Radio0.Nope"})
	require.ErrorIs(t, err, fault.ErrNoSuchParameter)
	require.Equal(t, 9005, fault.Code(err))
}

func TestGetParameterNames(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	c := newCPE(t, f, nil)

	names := tu.NoErr(c.GetParameterNames("Device.Radio0.", true))
	require.Equal(t, []api.ParamInfo{
		{Name: "Device.Radio0.Channel", Writable: true},
		{Name: "Device.Radio0.Enable", Writable: true},
		{Name: "Device.Radio0.Status"},
	}, names)

	names = tu.NoErr(c.GetParameterNames("Device.Radio0.", false))
	require.Equal(t, api.ParamInfo{Name: "Device.Radio0."}, names[0])
	require.Len(t, names, 4)

	names = tu.NoErr(c.GetParameterNames("Device.Radio0.Status", false))
	require.Equal(t, []api.ParamInfo{{Name: "Device.Radio0.Status"}}, names)

	require.ErrorIs(t, tu.Err(c.GetParameterNames("Device.Radio0.Status", true)), fault.ErrInvalidArguments)
	require.ErrorIs(t, tu.Err(c.GetParameterNames("Device.Gone.", true)), fault.ErrNoSuchParameter)
}

func TestParameterKeyPersists(t *testing.T) {
	tu.SetT(t)
	st := store.NewMemoryStore()
	f := newFixture()
	c := newCPE(t, f, st)

	_, err := c.SetParameterValues([]api.ParamValue{{Name: "Device.Radio0.Enable", Value: true}}, "persist-me")
	require.NoError(t, err)

	c2 := tu.NoErr(api.NewCPE(f.root, nil, st))
	require.Equal(t, "persist-me", c2.ParameterKey())
	require.ErrorIs(t, c2.SetParameterAttributes(nil), fault.ErrRequestDenied)
}

func TestObserveSuppressesOwnChange(t *testing.T) {
	tu.SetT(t)
	f := newFixture()
	n := notify.NewEngine(f.root, nil, nil)
	c := tu.NoErr(api.NewCPE(f.root, n, nil))

	require.NoError(t, c.SetParameterAttributes([]notify.Attributes{{
		Name:               "Device.Radio0.Channel",
		NotificationChange: true,
		Notification:       notify.LevelPassive,
	}}))
	_, err := c.SetParameterValues([]api.ParamValue{{Name: "Device.Radio0.Channel", Value: 9}}, "k")
	require.NoError(t, err)
	require.Empty(t, n.Check())
}
