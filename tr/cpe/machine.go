// Package cpe drives CWMP sessions with the ACS: it opens sessions for
// boot, periodic, value change and connection request events, and moves
// envelopes between the ACS and the RPC handler as the session state allows.
package cpe

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/catawampus/cwmpd/std/filenotify"
	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/std/store"
	"github.com/catawampus/cwmpd/std/utils"
	"github.com/catawampus/cwmpd/tr/api"
	"github.com/catawampus/cwmpd/tr/metrics"
	"github.com/catawampus/cwmpd/tr/notify"
	"github.com/catawampus/cwmpd/tr/session"
	"github.com/catawampus/cwmpd/tr/soap"
	"golang.org/x/time/rate"
)

const (
	// noAcsRetry is the wait before retrying when no ACS URL is known.
	noAcsRetry = 60 * time.Second
	// acsDisableTime is how long the disable file suppresses sessions after
	// its modification time.
	acsDisableTime = 10 * time.Minute

	bootstrapRecord = "cpe/bootstrap_done"
)

// Scheduler runs functions later on the main loop.
type Scheduler interface {
	Now() time.Time
	Schedule(d time.Duration, f func()) func() error
}

// Device describes the CPE in the Inform.
type Device interface {
	DeviceID() soap.DeviceID
	// InformParameters are the parameters sent in every Inform.
	InformParameters() []api.ParamValue
}

type Options struct {
	Sched     Scheduler
	Handler   *soap.Handler
	Transport Transport
	Device    Device
	// Store records whether the bootstrap Inform was acknowledged. May be nil.
	Store   store.Store
	Metrics *metrics.Metrics
	// Scope is ended with every session. May be nil.
	Scope *session.Scope
	Rand  *rand.Rand

	AcsURL        string
	Retry         session.RetryParams
	PingRateLimit time.Duration
}

// Machine runs one session at a time. All methods must be called on the
// main loop.
type Machine struct {
	sched     Scheduler
	handler   *soap.Handler
	transport Transport
	device    Device
	store     store.Store
	metrics   *metrics.Metrics
	scope     *session.Scope
	rnd       *rand.Rand

	acsURL string
	retry  session.RetryParams

	sess    *session.Session
	posting bool
	// queued envelopes for the ACS
	requests  [][]byte
	responses [][]byte
	nextID    uint64

	events     eventQueue
	retryCount int
	// changes waiting for an Inform, and those sent in the current one
	changed map[string]any
	sent    map[string]any

	pingLimiter *rate.Limiter
	pingTimer   func() error
	retryTimer  func() error
	periodic    func() error
	// bumped whenever the periodic timer is replaced
	periodicRun uint64
	stopped     bool

	acsDisabledUntil time.Time
	disableWatch     *filenotify.Watch
}

func New(opts Options) *Machine {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if opts.Retry.MinWait <= 0 {
		opts.Retry = session.DefaultRetryParams
	}
	limit := rate.Inf
	if opts.PingRateLimit > 0 {
		limit = rate.Every(opts.PingRateLimit)
	}
	return &Machine{
		sched:       opts.Sched,
		handler:     opts.Handler,
		transport:   opts.Transport,
		device:      opts.Device,
		store:       opts.Store,
		metrics:     opts.Metrics,
		scope:       opts.Scope,
		rnd:         opts.Rand,
		acsURL:      opts.AcsURL,
		retry:       opts.Retry,
		changed:     make(map[string]any),
		sent:        make(map[string]any),
		pingLimiter: rate.NewLimiter(limit, 1),
	}
}

func (m *Machine) String() string {
	return "cpe"
}

// Session returns the running session, or nil.
func (m *Machine) Session() *session.Session {
	return m.sess
}

func (m *Machine) RetryCount() int {
	return m.retryCount
}

// Events returns the events queued for the next Inform.
func (m *Machine) Events() []soap.Event {
	return m.events.list()
}

func (m *Machine) AcsURL() string {
	return m.acsURL
}

// SetAcsURL changes the ACS used by future sessions.
func (m *Machine) SetAcsURL(url string) {
	if url != m.acsURL {
		log.Info(m, "ACS URL changed", "url", url)
	}
	m.acsURL = url
}

func (m *Machine) RetryParams() session.RetryParams {
	return m.retry
}

func (m *Machine) SetRetryParams(p session.RetryParams) {
	m.retry = p
}

// Startup queues the boot events and opens the first session. The
// bootstrap event is sent until an ACS has acknowledged it once.
func (m *Machine) Startup() {
	if m.bootstrapped() {
		m.newSession(soap.EventBoot)
		return
	}
	m.events.push(soap.EventBoot, "")
	m.newSession(soap.EventBootstrap)
}

// Stop cancels every timer and drops the running session.
func (m *Machine) Stop() {
	m.stopped = true
	m.periodicRun++
	for _, cancel := range []func() error{m.retryTimer, m.pingTimer, m.periodic} {
		if cancel != nil {
			cancel()
		}
	}
	m.retryTimer, m.pingTimer, m.periodic = nil, nil, nil
	if m.disableWatch != nil {
		m.disableWatch.Close()
		m.disableWatch = nil
	}
	if m.sess != nil {
		m.sess.Close()
		m.sess = nil
	}
}

func (m *Machine) bootstrapped() bool {
	if m.store == nil {
		return false
	}
	v, err := m.store.Get(bootstrapRecord)
	return err == nil && len(v) > 0
}

// Queue adds a CPE-originated request for the current or next session.
func (m *Machine) Queue(content any) error {
	body, err := soap.Encode(m.newID(), nil, content)
	if err != nil {
		return err
	}
	m.requests = append(m.requests, body)
	m.run()
	return nil
}

func (m *Machine) newID() string {
	m.nextID++
	return strconv.FormatUint(m.nextID, 10)
}

// WatchAcsDisabled suppresses sessions for a while after file is touched.
func (m *Machine) WatchAcsDisabled(n *filenotify.Notifier, file string) error {
	update := func() {
		fi, err := os.Stat(file)
		if err != nil {
			m.acsDisabledUntil = time.Time{}
			return
		}
		m.acsDisabledUntil = fi.ModTime().Add(acsDisableTime)
		log.Info(m, "ACS sessions disabled", "until", m.acsDisabledUntil)
	}
	w, err := n.Add(file, update)
	if err != nil {
		return err
	}
	m.disableWatch = w
	update()
	return nil
}

func (m *Machine) acsDisabled() bool {
	return m.sched.Now().Before(m.acsDisabledUntil)
}

func (m *Machine) newSession(reason string) {
	if m.stopped {
		return
	}
	if m.acsDisabled() {
		log.Info(m, "ACS disabled, not starting session", "reason", reason)
		m.cancelRetries()
		return
	}
	if m.sess != nil {
		return
	}
	m.cancelRetries()
	m.events.pushFront(reason, "")
	m.sess = session.New(m.acsURL, m.scope)
	log.Info(m, "Starting session", "reason", reason, "acs", m.acsURL)
	m.run()
}

func (m *Machine) cancelRetries() {
	if m.retryTimer != nil {
		m.retryTimer()
		m.retryTimer = nil
	}
	m.retryCount = 0
	m.metrics.RetryCount(0)
}

// NewPeriodicSession starts a session for the periodic inform timer.
func (m *Machine) NewPeriodicSession() {
	if m.events.has(soap.EventPeriodic) {
		return
	}
	m.newSession(soap.EventPeriodic)
}

// NewValueChangeSession starts a session to report changed parameters.
func (m *Machine) NewValueChangeSession() {
	if len(m.changed) == 0 || m.sess != nil {
		return
	}
	if !m.events.has(soap.EventValueChange) {
		m.newSession(soap.EventValueChange)
	}
}

// SetNotificationParameters queues changed parameters for the next Inform.
func (m *Machine) SetNotificationParameters(changes []notify.Change) {
	for _, c := range changes {
		m.changed[c.Path] = c.Value
		level := "passive"
		if c.Level == notify.LevelActive {
			level = "active"
		}
		m.metrics.ValueChange(level)
	}
}

// PingReceived handles an authenticated connection request.
func (m *Machine) PingReceived() {
	if m.sess != nil {
		m.sess.PingReceived = true
		m.metrics.Ping("deferred")
		return
	}

	now := m.sched.Now()
	r := m.pingLimiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		m.metrics.Ping("accepted")
		m.newPingSession()
		return
	}
	if m.pingTimer != nil {
		r.CancelAt(now)
		m.metrics.Ping("limited")
		return
	}
	m.metrics.Ping("delayed")
	log.Debug(m, "Connection request rate limited", "delay", delay)
	m.pingTimer = m.sched.Schedule(delay, func() {
		m.pingTimer = nil
		m.newPingSession()
	})
}

func (m *Machine) newPingSession() {
	if m.pingTimer != nil {
		m.pingTimer()
		m.pingTimer = nil
	}
	m.events.remove(soap.EventConnectionRequest)
	m.newSession(soap.EventConnectionRequest)
}

// ConfigurePeriodicInform restarts the periodic inform timer. A non-zero
// ref aligns informs to ref plus a multiple of interval.
func (m *Machine) ConfigurePeriodicInform(enable bool, interval time.Duration, ref time.Time) {
	m.periodicRun++
	if m.periodic != nil {
		m.periodic()
		m.periodic = nil
	}
	if !enable || interval <= 0 || m.stopped {
		return
	}

	first := interval
	if !ref.IsZero() {
		first = ref.Sub(m.sched.Now()) % interval
		if first <= 0 {
			first += interval
		}
	}
	run := m.periodicRun
	var tick func()
	tick = func() {
		if m.periodicRun != run {
			return
		}
		m.periodic = m.sched.Schedule(interval, tick)
		m.NewPeriodicSession()
	}
	m.periodic = m.sched.Schedule(first, tick)
}

// Run sends the next envelope of the session if nothing is outstanding.
func (m *Machine) run() {
	if m.sess == nil {
		return
	}
	if m.sess.AcsURL() == "" {
		log.Warn(m, "No ACS URL, retrying later", "wait", noAcsRetry)
		m.scheduleRetry(noAcsRetry)
		return
	}
	if m.sess.ShouldClose() {
		m.closeSession()
		return
	}
	if m.posting {
		return
	}

	body, err := m.getNext()
	if err != nil {
		log.Error(m, "Unable to encode message", "err", err)
		m.scheduleRetry(0)
		return
	}
	if len(body) == 0 {
		m.sess.Apply(session.Update{CpeToAcsEmpty: utils.IdPtr(true)})
	}

	m.posting = true
	sess := m.sess
	log.Trace(m, "Posting to ACS", "url", sess.AcsURL(), "len", len(body))
	if log.HasTrace() && len(body) > 0 {
		log.Trace(m, "Request body", "body", string(body))
	}
	m.transport.Post(sess.AcsURL(), body, func(resp *Response, err error) {
		m.gotResponse(sess, resp, err)
	})
}

func (m *Machine) getNext() ([]byte, error) {
	switch {
	case m.sess.InformRequired():
		m.sess.Apply(session.Update{SentInform: utils.IdPtr(true)})
		return m.encodeInform()
	case len(m.responses) > 0 && m.sess.ResponseAllowed():
		body := m.responses[0]
		m.responses = m.responses[1:]
		return body, nil
	case len(m.requests) > 0 && m.sess.RequestAllowed():
		body := m.requests[0]
		m.requests = m.requests[1:]
		return body, nil
	}
	return []byte{}, nil
}

func (m *Machine) encodeInform() ([]byte, error) {
	params := m.device.InformParameters()
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		seen[p.Name] = true
	}

	for path, v := range m.changed {
		m.sent[path] = v
	}
	clear(m.changed)
	if len(m.sent) > 0 && !m.events.has(soap.EventValueChange) {
		m.events.push(soap.EventValueChange, "")
	}
	paths := make([]string, 0, len(m.sent))
	for path := range m.sent {
		if !seen[path] {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		params = append(params, api.ParamValue{Name: path, Value: m.sent[path]})
	}

	out := make([]soap.ParameterValueOut, len(params))
	for i, p := range params {
		out[i] = soap.NewParameterValue(p.Name, p.Value)
	}
	return soap.EncodeInform(m.newID(), soap.Inform{
		DeviceID:     m.device.DeviceID(),
		Events:       m.events.list(),
		MaxEnvelopes: 1,
		CurrentTime:  m.sched.Now(),
		RetryCount:   m.retryCount,
		Parameters:   out,
	})
}

func (m *Machine) gotResponse(sess *session.Session, resp *Response, err error) {
	if sess != m.sess {
		// a session we already abandoned
		return
	}
	m.posting = false

	if err == nil && resp.Status != http.StatusOK && resp.Status != http.StatusNoContent {
		err = fmt.Errorf("ACS returned HTTP status %d", resp.Status)
	}
	if err == nil {
		err = m.handleBody(resp.Body)
	}
	if err != nil {
		log.Warn(m, "Session failed", "err", err)
		m.metrics.Session("failed")
		m.scheduleRetry(0)
		return
	}

	if resp.URL != "" && resp.URL != sess.AcsURL() {
		log.Info(m, "Following ACS redirect", "url", resp.URL)
		sess.SetAcsURL(resp.URL)
	}
	m.run()
}

func (m *Machine) handleBody(body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		m.sess.Apply(session.Update{AcsToCpeEmpty: utils.IdPtr(true)})
		return nil
	}

	msg, err := soap.Parse(body)
	if err != nil {
		return err
	}
	// an absent HoldRequests header means false
	hold := utils.Deref(msg.HoldRequests, false)
	m.sess.Apply(session.Update{OnHold: &hold})

	switch msg.Method {
	case "InformResponse":
		m.informResponseReceived()
	case "Fault":
		var f soap.FaultIn
		if err := msg.Decode(&f); err == nil {
			return fmt.Errorf("ACS fault %d: %s", f.Detail.Code, f.Detail.String)
		}
		return errors.New("ACS fault")
	case "GetRPCMethodsResponse", "TransferCompleteResponse":
		log.Debug(m, "ACS response received", "method", msg.Method)
	default:
		out, code, err := m.handler.Handle(msg)
		m.metrics.RPC(msg.Method, code)
		if err != nil {
			return err
		}
		m.responses = append(m.responses, out)
	}
	return nil
}

func (m *Machine) informResponseReceived() {
	if m.events.has(soap.EventBootstrap) && m.store != nil {
		if err := m.store.Put(bootstrapRecord, []byte{1}); err != nil {
			log.Error(m, "Unable to record bootstrap", "err", err)
		}
	}
	m.events.remove(informEvents...)
	clear(m.sent)
}

func (m *Machine) closeSession() {
	ping := m.sess.Close()
	m.sess = nil
	m.posting = false
	m.responses = nil
	m.transport.Reset()
	m.cancelRetries()
	m.metrics.Session("ok")
	log.Info(m, "Session finished")

	switch {
	case len(m.changed) > 0:
		m.NewValueChangeSession()
	case ping:
		m.newPingSession()
	}
}

// scheduleRetry abandons the session and opens a new one later. A zero
// wait uses the retry backoff.
func (m *Machine) scheduleRetry(wait time.Duration) {
	if m.sess != nil {
		m.sess.Close()
		m.sess = nil
		m.transport.Reset()
	}
	m.posting = false
	m.responses = nil

	if wait == 0 {
		m.retryCount++
		wait = session.RetryWait(m.retryCount, m.retry, m.rnd)
	}
	m.metrics.RetryCount(m.retryCount)
	if m.retryTimer != nil {
		m.retryTimer()
	}
	log.Info(m, "Session retry scheduled", "wait", wait, "retry", m.retryCount)
	m.retryTimer = m.sched.Schedule(wait, func() {
		m.retryTimer = nil
		if m.sess == nil {
			m.sess = session.New(m.acsURL, m.scope)
			m.run()
		}
	})
}
