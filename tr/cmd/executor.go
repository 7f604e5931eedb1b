package cmd

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/catawampus/cwmpd/std/filenotify"
	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/std/loop"
	"github.com/catawampus/cwmpd/std/store"
	"github.com/catawampus/cwmpd/tr/api"
	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/config"
	"github.com/catawampus/cwmpd/tr/cpe"
	"github.com/catawampus/cwmpd/tr/dm"
	"github.com/catawampus/cwmpd/tr/metrics"
	"github.com/catawampus/cwmpd/tr/notify"
	"github.com/catawampus/cwmpd/tr/session"
	"github.com/catawampus/cwmpd/tr/soap"
	"golang.org/x/sync/errgroup"
)

const acsDisableFile = "disable_acs"

// Executor owns every component of a running CPE agent.
type Executor struct {
	config *config.Config

	loop      *loop.Loop
	files     *filenotify.Notifier
	store     store.Store
	metrics   *metrics.Metrics
	scope     *session.Scope
	model     *dm.Model
	notify    *notify.Engine
	cpe       *api.CPE
	machine   *cpe.Machine
	transport *cpe.HTTPTransport
	ping      *cpe.PingServer

	cancel context.CancelFunc
}

func NewExecutor(cfg *config.Config) (*Executor, error) {
	e := &Executor{config: cfg}

	if err := cfg.Parse(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if err := os.MkdirAll(cfg.Device.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	var err error
	if e.store, err = store.Open(cfg.Store.Uri); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	e.loop = loop.New(loop.NewTimer())
	if e.files, err = filenotify.New(e.loop.Post); err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		e.metrics = metrics.New()
	}
	e.scope = session.NewScope()

	e.transport = cpe.NewHTTPTransport(cfg.HttpTimeout(), e.loop.Post)
	e.ping = cpe.NewPingServer(cfg.ConnectionRequest.Port, cfg.ConnectionRequest.Path,
		cfg.ConnectionRequest.Realm, e.loop.Post, func() { e.machine.PingReceived() }, e.metrics)

	glue := &glue{e: e}
	e.model, err = dm.New(dm.Options{
		Config: cfg,
		Files:  attr.NewFiles(e.loop, e.files),
		Scope:  e.scope,
		Hooks:  glue,
	})
	if err != nil {
		return nil, err
	}

	e.notify = notify.NewEngine(e.model.Root, glue, e.store)
	for _, p := range dm.NoActiveNotify {
		e.notify.DenyActive(p)
	}
	if err := e.notify.Load(); err != nil {
		return nil, fmt.Errorf("failed to load notification attributes: %w", err)
	}

	if e.cpe, err = api.NewCPE(e.model.Root, e.notify, e.store); err != nil {
		return nil, err
	}
	// derived values such as entry counts may move after ACS writes
	e.cpe.OnChange = func(string) {
		e.loop.WhenIdle(e.notify, func() { e.notify.Check() })
	}

	e.machine = cpe.New(cpe.Options{
		Sched:         e.loop,
		Handler:       soap.NewHandler(e.cpe),
		Transport:     e.transport,
		Device:        e.model,
		Store:         e.store,
		Metrics:       e.metrics,
		Scope:         e.scope,
		AcsURL:        cfg.Acs.Url,
		Retry:         cfg.RetryParams(),
		PingRateLimit: cfg.PingRateLimit(),
	})
	e.model.Server.Apply()

	disable := filepath.Join(cfg.Device.StateDir, acsDisableFile)
	if err := e.machine.WatchAcsDisabled(e.files, disable); err != nil {
		log.Warn(e, "Unable to watch ACS disable file", "path", disable, "err", err)
	}

	return e, nil
}

func (e *Executor) String() string {
	return "executor"
}

// Start runs the agent until Stop is called or a listener fails.
func (e *Executor) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)

	if err := e.loop.Start(); err != nil {
		return err
	}
	e.loop.Post(func() {
		e.notify.Start(e.loop, e.config.NotificationInterval())
		e.machine.Startup()
	})

	g.Go(func() error {
		return e.ping.Serve(ctx)
	})
	if e.metrics != nil {
		g.Go(func() error {
			return e.metrics.Serve(ctx, e.config.Metrics.Bind)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		e.shutdown()
		return nil
	})

	log.Info(e, "CPE agent started", "acs", e.config.Acs.Url)
	err := g.Wait()
	e.files.Close()
	e.store.Close()
	return err
}

func (e *Executor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// shutdown stops the loop after its components.
func (e *Executor) shutdown() {
	done := make(chan struct{})
	e.loop.Post(func() {
		e.machine.Stop()
		e.notify.Stop()
		close(done)
	})
	<-done
	e.loop.Stop()
	log.Info(e, "CPE agent stopped")
}

// glue connects the data model and the notification engine to the
// session driver and listeners.
type glue struct {
	e *Executor
}

func (g *glue) SetAcsURL(url string) {
	g.e.machine.SetAcsURL(url)
}

func (g *glue) SetAcsCredentials(username, password string) {
	g.e.transport.SetCredentials(username, password)
}

func (g *glue) SetRetryParams(p session.RetryParams) {
	g.e.machine.SetRetryParams(p)
}

func (g *glue) ConfigurePeriodicInform(enable bool, interval time.Duration, ref time.Time) {
	g.e.machine.ConfigurePeriodicInform(enable, interval, ref)
}

func (g *glue) SetConnectionRequestCredentials(username, password string) {
	g.e.ping.SetCredentials(username, password)
}

func (g *glue) ParameterKey() string {
	return g.e.cpe.ParameterKey()
}

// ConnectionRequestURL uses the local address of the route to the ACS.
func (g *glue) ConnectionRequestURL() string {
	acs := g.e.machine.AcsURL()
	v, err := g.e.scope.Cached(session.CacheKey("ConnectionRequestURL", acs), func() (any, error) {
		ip, err := localIP(acs)
		if err != nil {
			return nil, err
		}
		return g.e.ping.URL(ip), nil
	})
	if err != nil {
		log.Debug(g.e, "No route to ACS", "acs", acs, "err", err)
		return ""
	}
	return v.(string)
}

func (g *glue) SetNotificationParameters(changes []notify.Change) {
	g.e.machine.SetNotificationParameters(changes)
}

func (g *glue) NewValueChangeSession() {
	g.e.machine.NewValueChangeSession()
}

// localIP returns the source address used to reach acsURL. No packet is sent.
func localIP(acsURL string) (string, error) {
	u, err := url.Parse(acsURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid ACS URL %q", acsURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	conn, err := net.Dial("udp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
