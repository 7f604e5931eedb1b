package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/tr/session"
)

type Config struct {
	Core              CoreConfig              `json:"core"`
	Acs               AcsConfig               `json:"acs"`
	Cwmp              CwmpConfig              `json:"cwmp"`
	ConnectionRequest ConnectionRequestConfig `json:"connection_request"`
	Store             StoreConfig             `json:"store"`
	Metrics           MetricsConfig           `json:"metrics"`
	Device            DeviceConfig            `json:"device"`
}

type CoreConfig struct {
	// TRACE, DEBUG, INFO, WARN or ERROR.
	LogLevel string `json:"log_level"`
	// Log file; stderr if empty.
	LogFile string `json:"log_file"`
	// Emit JSON log lines.
	LogJson bool `json:"log_json"`
}

type AcsConfig struct {
	// URL of the ACS. May be left empty and set later through
	// Device.ManagementServer.URL.
	Url      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type CwmpConfig struct {
	// Minimum retry wait in seconds.
	RetryMinWait uint64 `json:"retry_min_wait"`
	// Retry wait multiplier in thousandths.
	RetryMultiplier uint64 `json:"retry_multiplier"`
	PeriodicInformEnable bool `json:"periodic_inform_enable"`
	// Periodic inform interval in seconds.
	PeriodicInformInterval uint64 `json:"periodic_inform_interval"`
	// Period of the parameter change poll.
	NotificationInterval_ms uint64 `json:"notification_interval_ms"`
	// Timeout of a single POST to the ACS.
	HttpTimeout_ms uint64 `json:"http_timeout_ms"`
}

type ConnectionRequestConfig struct {
	Port uint16 `json:"port"`
	Path string `json:"path"`
	// Minimum time between two accepted connection requests.
	PingRateLimit_ms uint64 `json:"ping_rate_limit_ms"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	Realm            string `json:"realm"`
}

type StoreConfig struct {
	// mem://, badger://DIR or sqlite://FILE
	Uri string `json:"uri"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Bind    string `json:"bind"`
}

type DeviceConfig struct {
	// Directory for file-backed parameters.
	StateDir        string `json:"state_dir"`
	Manufacturer    string `json:"manufacturer"`
	ManufacturerOUI string `json:"manufacturer_oui"`
	ProductClass    string `json:"product_class"`
	SerialNumber    string `json:"serial_number"`
	HardwareVersion string `json:"hardware_version"`
	SoftwareVersion string `json:"software_version"`
}

func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			LogLevel: "INFO",
		},
		Cwmp: CwmpConfig{
			RetryMinWait:            5,
			RetryMultiplier:         2000,
			PeriodicInformEnable:    true,
			PeriodicInformInterval:  900,
			NotificationInterval_ms: 60000,
			HttpTimeout_ms:          30000,
		},
		ConnectionRequest: ConnectionRequestConfig{
			Port:             7547,
			Path:             "/ping",
			PingRateLimit_ms: 2000,
			Username:         "catawampus",
			Password:         "cwmp",
			Realm:            "cwmpd",
		},
		Store: StoreConfig{
			Uri: "mem://",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Bind:    ":9469",
		},
		Device: DeviceConfig{
			StateDir:        "/tmp/cwmp",
			Manufacturer:    "Catawampus",
			ManufacturerOUI: "000000",
			ProductClass:    "cwmpd",
			SerialNumber:    "000000000000",
		},
	}
}

func (c *Config) Parse() error {
	if _, err := log.ParseLevel(c.Core.LogLevel); err != nil {
		return err
	}

	if c.Acs.Url != "" {
		u, err := url.Parse(c.Acs.Url)
		if err != nil {
			return fmt.Errorf("invalid acs url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("acs url must be http or https")
		}
	}

	if c.Cwmp.RetryMinWait < 1 {
		return fmt.Errorf("retry_min_wait must be at least 1 second")
	}
	if c.Cwmp.RetryMultiplier < 1000 {
		return fmt.Errorf("retry_multiplier must be at least 1000")
	}
	if c.Cwmp.PeriodicInformEnable && c.Cwmp.PeriodicInformInterval < 1 {
		return fmt.Errorf("periodic_inform_interval must be at least 1 second")
	}
	if c.NotificationInterval() < 100*time.Millisecond {
		return fmt.Errorf("notification_interval_ms must be at least 100")
	}
	if c.HttpTimeout() < time.Second {
		return fmt.Errorf("http_timeout_ms must be at least 1000")
	}

	if c.ConnectionRequest.Port == 0 {
		return fmt.Errorf("connection_request port must be set")
	}
	if !strings.HasPrefix(c.ConnectionRequest.Path, "/") {
		return fmt.Errorf("connection_request path must start with /")
	}

	if c.Metrics.Enabled && c.Metrics.Bind == "" {
		return fmt.Errorf("metrics bind address must be set")
	}
	if c.Device.StateDir == "" {
		return fmt.Errorf("device state_dir must be set")
	}
	return nil
}

func (c *Config) RetryParams() session.RetryParams {
	return session.RetryParamsFromModel(c.Cwmp.RetryMinWait, c.Cwmp.RetryMultiplier)
}

func (c *Config) PeriodicInformInterval() time.Duration {
	return time.Duration(c.Cwmp.PeriodicInformInterval) * time.Second
}

func (c *Config) NotificationInterval() time.Duration {
	return time.Duration(c.Cwmp.NotificationInterval_ms) * time.Millisecond
}

func (c *Config) HttpTimeout() time.Duration {
	return time.Duration(c.Cwmp.HttpTimeout_ms) * time.Millisecond
}

func (c *Config) PingRateLimit() time.Duration {
	return time.Duration(c.ConnectionRequest.PingRateLimit_ms) * time.Millisecond
}
