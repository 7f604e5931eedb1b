package dm

import (
	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/core"
)

// Hosts is Device.Hosts. The ACS may add static entries; the device
// adds learned ones with Learn.
type Hosts struct {
	core.Object
}

var hostsDesc = core.NewDesc("Hosts").
	Param("HostNumberOfEntries", attr.NumberOf("Host"))

// Host is Device.Hosts.Host.{i}.
type Host struct {
	core.Object
}

var hostDesc = core.NewDesc("Host").
	Param("PhysAddress", attr.MacAddr(nil)).
	Param("IPAddress", attr.IP4Addr(nil)).
	Param("X_CATAWAMPUS-ORG_IP6Address", attr.IP6Addr(nil)).
	Param("AddressSource", attr.StringEnum([]string{"DHCP", "Static", "AutoIP", "None"}, "None")).
	Param("LeaseTimeRemaining", attr.Int(0)).
	Param("HostName", attr.String("")).
	Param("Active", attr.Bool(false)).
	Param("X_CATAWAMPUS-ORG_LastSeen", attr.Date(nil)).
	Param("X_CATAWAMPUS-ORG_SignalStrength", attr.Float(0)).
	Param("X_CATAWAMPUS-ORG_Port", attr.Unsigned(0))

func newHost() (core.Node, error) {
	h := &Host{}
	h.Init(h, hostDesc)
	return h, nil
}

func newHosts() *Hosts {
	hs := &Hosts{}
	hs.Init(hs, hostsDesc)
	hs.AddList("Host", core.NewList(newHost))
	return hs
}

// Learn records a host seen on the LAN and returns its index. Values are
// parameter names to values; unknown names or invalid values fail.
func (hs *Hosts) Learn(values map[string]any) (string, error) {
	n, _ := newHost()
	h := n.(*Host)
	for name, v := range values {
		if err := h.Set(name, v); err != nil {
			return "", err
		}
	}
	return hs.List("Host").Add(h), nil
}
