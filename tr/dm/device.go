// Package dm is the device data model served to the ACS: DeviceInfo,
// ManagementServer and the Hosts table under "Device.".
package dm

import (
	"fmt"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/tr/api"
	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/config"
	"github.com/catawampus/cwmpd/tr/core"
	"github.com/catawampus/cwmpd/tr/fault"
	"github.com/catawampus/cwmpd/tr/session"
	"github.com/catawampus/cwmpd/tr/soap"
)

const provisioningCodeFile = "provisioning_code"

// informParams are reported in every Inform.
var informParams = []string{
	"Device.DeviceInfo.HardwareVersion",
	"Device.DeviceInfo.SoftwareVersion",
	"Device.DeviceInfo.ProvisioningCode",
	"Device.ManagementServer.ConnectionRequestURL",
	"Device.ManagementServer.ParameterKey",
}

// NoActiveNotify lists the parameters that change too often to allow
// active notification.
var NoActiveNotify = []string{
	"Device.DeviceInfo.UpTime",
}

type Options struct {
	Config *config.Config
	// Files holds the file-backed parameters. Required.
	Files *attr.Files
	// Scope caches per-session values. May be nil.
	Scope *session.Scope
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Hooks receives ManagementServer changes. May be nil.
	Hooks Hooks
}

// Model is the data model tree with the device identity used in Informs.
type Model struct {
	Root   *core.Root
	Device *Device
	Info   *DeviceInfo
	Server *ManagementServer
	Hosts  *Hosts

	cfg *config.DeviceConfig
}

type Device struct {
	core.Object
}

var deviceDesc = core.NewDesc("Device").
	Param("RootDataModelVersion", attr.ReadOnlyString("2.11"))

func New(opts Options) (*Model, error) {
	if opts.Config == nil || opts.Files == nil {
		return nil, fmt.Errorf("dm: config and files are required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	m := &Model{
		Root:   core.NewRoot(),
		Device: &Device{},
		Info:   newDeviceInfo(opts),
		Server: newManagementServer(opts.Config, opts.Hooks, opts.Scope),
		Hosts:  newHosts(),
		cfg:    &opts.Config.Device,
	}
	m.Device.Init(m.Device, deviceDesc)
	m.Device.AddObject("DeviceInfo", m.Info)
	m.Device.AddObject("ManagementServer", m.Server)
	m.Device.AddObject("Hosts", m.Hosts)
	m.Root.AddObject("Device", m.Device)
	return m, nil
}

func (m *Model) String() string {
	return "dm"
}

func (m *Model) DeviceID() soap.DeviceID {
	return soap.DeviceID{
		Manufacturer: m.cfg.Manufacturer,
		OUI:          m.cfg.ManufacturerOUI,
		ProductClass: m.cfg.ProductClass,
		SerialNumber: m.cfg.SerialNumber,
	}
}

// InformParameters reads the parameters of every Inform. Unreadable ones
// are skipped.
func (m *Model) InformParameters() []api.ParamValue {
	ret := make([]api.ParamValue, 0, len(informParams))
	for _, path := range informParams {
		v, err := m.Root.Get(path)
		if err != nil {
			log.Warn(m, "Unable to read inform parameter", "path", path, "err", err)
			continue
		}
		ret = append(ret, api.ParamValue{Name: path, Value: v})
	}
	return ret
}

// DeviceInfo is Device.DeviceInfo.
type DeviceInfo struct {
	core.Object
	scope *session.Scope
	clock func() time.Time
	start time.Time
}

func maxLen(n int) attr.Validator {
	return func(_ attr.Owner, v any) (any, error) {
		if s, ok := v.(string); ok && utf8.RuneCountInString(s) > n {
			return nil, fault.Errorf(fault.ErrInvalidValue, "longer than %d characters", n)
		}
		return v, nil
	}
}

func newDeviceInfo(opts Options) *DeviceInfo {
	cfg := opts.Config.Device
	desc := core.NewDesc("DeviceInfo").
		Param("Manufacturer", attr.ReadOnlyString(cfg.Manufacturer)).
		Param("ManufacturerOUI", attr.ReadOnlyString(cfg.ManufacturerOUI)).
		Param("ProductClass", attr.ReadOnlyString(cfg.ProductClass)).
		Param("SerialNumber", attr.ReadOnlyString(cfg.SerialNumber)).
		Param("HardwareVersion", attr.ReadOnlyString(cfg.HardwareVersion)).
		Param("SoftwareVersion", attr.ReadOnlyString(cfg.SoftwareVersion)).
		Param("UpTime", attr.Computed(upTime)).
		Param("ProvisioningCode", attr.FileBacked(opts.Files,
			filepath.Join(cfg.StateDir, provisioningCodeFile),
			attr.String("").Validator(maxLen(64))))

	di := &DeviceInfo{
		scope: opts.Scope,
		clock: opts.Clock,
		start: opts.Clock(),
	}
	di.Init(di, desc)
	return di
}

// upTime is fixed for the duration of a session.
func upTime(o attr.Owner) (any, error) {
	di := o.(*DeviceInfo)
	compute := func() (any, error) {
		return uint64(di.clock().Sub(di.start) / time.Second), nil
	}
	if di.scope == nil {
		return compute()
	}
	return di.scope.Cached(session.CacheKey("DeviceInfo.UpTime"), compute)
}
