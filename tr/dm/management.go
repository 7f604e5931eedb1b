package dm

import (
	"net/url"
	"time"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/config"
	"github.com/catawampus/cwmpd/tr/core"
	"github.com/catawampus/cwmpd/tr/fault"
	"github.com/catawampus/cwmpd/tr/session"
)

// Hooks is how Device.ManagementServer reaches the session driver.
// Setters are called when a transaction touching ManagementServer commits.
type Hooks interface {
	SetAcsURL(url string)
	SetAcsCredentials(username, password string)
	SetRetryParams(p session.RetryParams)
	ConfigurePeriodicInform(enable bool, interval time.Duration, ref time.Time)
	SetConnectionRequestCredentials(username, password string)

	ConnectionRequestURL() string
	ParameterKey() string
}

// ManagementServer is Device.ManagementServer.
type ManagementServer struct {
	core.Object
	hooks Hooks
	scope *session.Scope

	dirty bool
	// periodic inform settings last pushed to the hooks
	periodic struct {
		enable   bool
		interval time.Duration
		ref      time.Time
		set      bool
	}
}

func checkURL(_ attr.Owner, v any) (any, error) {
	s, _ := v.(string)
	if s == "" {
		return v, nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fault.Errorf(fault.ErrInvalidValue, "%q is not an http or https URL", s)
	}
	return v, nil
}

func atLeast(n uint64) attr.Validator {
	return func(_ attr.Owner, v any) (any, error) {
		if x, ok := v.(uint64); ok && x < n {
			return nil, fault.Errorf(fault.ErrInvalidValue, "must be at least %d", n)
		}
		return v, nil
	}
}

func between(lo, hi uint64) attr.Validator {
	return func(_ attr.Owner, v any) (any, error) {
		if x, ok := v.(uint64); ok && (x < lo || x > hi) {
			return nil, fault.Errorf(fault.ErrInvalidValue, "must be in [%d, %d]", lo, hi)
		}
		return v, nil
	}
}

func newManagementServer(cfg *config.Config, hooks Hooks, scope *session.Scope) *ManagementServer {
	desc := core.NewDesc("ManagementServer").
		Param("URL", attr.Trigger(attr.String(cfg.Acs.Url).Validator(checkURL))).
		Param("Username", attr.TriggerString(cfg.Acs.Username)).
		Param("Password", attr.TriggerString(cfg.Acs.Password)).
		Param("PeriodicInformEnable", attr.TriggerBool(cfg.Cwmp.PeriodicInformEnable)).
		Param("PeriodicInformInterval", attr.Trigger(attr.Unsigned(cfg.Cwmp.PeriodicInformInterval).Validator(atLeast(1)))).
		Param("PeriodicInformTime", attr.TriggerDate(nil)).
		Param("ParameterKey", attr.Computed(func(o attr.Owner) (any, error) {
			return o.(*ManagementServer).hook(Hooks.ParameterKey), nil
		})).
		Param("ConnectionRequestURL", attr.Computed(func(o attr.Owner) (any, error) {
			return o.(*ManagementServer).hook(Hooks.ConnectionRequestURL), nil
		})).
		Param("ConnectionRequestUsername", attr.TriggerString(cfg.ConnectionRequest.Username)).
		Param("ConnectionRequestPassword", attr.TriggerString(cfg.ConnectionRequest.Password)).
		Param("UpgradesManaged", attr.Bool(false)).
		Param("CWMPRetryMinimumWaitInterval", attr.Trigger(attr.Unsigned(cfg.Cwmp.RetryMinWait).Validator(between(1, 65535)))).
		Param("CWMPRetryIntervalMultiplier", attr.Trigger(attr.Unsigned(cfg.Cwmp.RetryMultiplier).Validator(between(1000, 65535))))

	ms := &ManagementServer{hooks: hooks, scope: scope}
	ms.Init(ms, desc)
	return ms
}

func (ms *ManagementServer) hook(get func(Hooks) string) string {
	if ms.hooks == nil {
		return ""
	}
	return get(ms.hooks)
}

func (ms *ManagementServer) Triggered() {
	ms.dirty = true
}

func (ms *ManagementServer) StartTransaction() error {
	ms.dirty = false
	return nil
}

// CommitTransaction applies the new values when the session ends, so the
// running session keeps its ACS and credentials.
func (ms *ManagementServer) CommitTransaction() error {
	if !ms.dirty {
		return nil
	}
	ms.dirty = false
	if ms.scope == nil {
		ms.Apply()
		return nil
	}
	ms.scope.RunAtEnd("ManagementServer.Apply", ms.Apply)
	return nil
}

// AbandonTransaction keeps the running configuration; the written values
// were already restored.
func (ms *ManagementServer) AbandonTransaction() error {
	ms.dirty = false
	return nil
}

func (ms *ManagementServer) str(name string) string {
	s, _ := ms.MustGet(name).(string)
	return s
}

func (ms *ManagementServer) unsigned(name string) uint64 {
	n, _ := ms.MustGet(name).(uint64)
	return n
}

// Apply pushes the current values to the session driver. It runs after
// every session that changed a value, and once at startup.
func (ms *ManagementServer) Apply() {
	ms.dirty = false
	if ms.hooks == nil {
		return
	}
	log.Debug(ms, "Applying management server configuration")

	ms.hooks.SetAcsURL(ms.str("URL"))
	ms.hooks.SetAcsCredentials(ms.str("Username"), ms.str("Password"))
	ms.hooks.SetConnectionRequestCredentials(ms.str("ConnectionRequestUsername"), ms.str("ConnectionRequestPassword"))
	ms.hooks.SetRetryParams(session.RetryParamsFromModel(
		ms.unsigned("CWMPRetryMinimumWaitInterval"), ms.unsigned("CWMPRetryIntervalMultiplier")))

	enable, _ := ms.MustGet("PeriodicInformEnable").(bool)
	interval := time.Duration(ms.unsigned("PeriodicInformInterval")) * time.Second
	ref, _ := ms.MustGet("PeriodicInformTime").(time.Time)
	p := &ms.periodic
	if !p.set || p.enable != enable || p.interval != interval || !p.ref.Equal(ref) {
		p.enable, p.interval, p.ref, p.set = enable, interval, ref, true
		ms.hooks.ConfigurePeriodicInform(enable, interval, ref)
	}
}
