// Package session tracks the lifecycle of one CWMP session with the ACS.
package session

import (
	"github.com/catawampus/cwmpd/std/log"
	"github.com/google/uuid"
)

type State int

const (
	// StateInit is a connected session that has not sent its Inform yet.
	StateInit State = iota
	// StateActive may send requests and responses.
	StateActive
	// StateOnHold is active, but the ACS asked us to hold our requests.
	StateOnHold
	// StateNoMore has sent the empty POST and only answers ACS requests.
	StateNoMore
	// StateDone has received the empty ACS body; the session must close.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateActive:
		return "ACTIVE"
	case StateOnHold:
		return "ONHOLD"
	case StateNoMore:
		return "NOMORE"
	case StateDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// Update carries the events of one step. Nil fields are "not reported",
// which differs from an explicit false for OnHold.
type Update struct {
	SentInform    *bool
	OnHold        *bool
	CpeToAcsEmpty *bool
	AcsToCpeEmpty *bool
}

func isTrue(b *bool) bool  { return b != nil && *b }
func isFalse(b *bool) bool { return b != nil && !*b }

type Session struct {
	id     string
	acsURL string
	state  State
	scope  *Scope

	// PingReceived is set when a connection request arrives mid-session.
	PingReceived bool
}

// New starts a session in StateInit. scope may be nil.
func New(acsURL string, scope *Scope) *Session {
	s := &Session{
		id:     uuid.NewString(),
		acsURL: acsURL,
		scope:  scope,
	}
	log.Debug(s, "Session created", "acs", acsURL)
	return s
}

func (s *Session) String() string {
	return "session-" + s.id[:8]
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) AcsURL() string {
	return s.acsURL
}

// SetAcsURL records the URL after redirects.
func (s *Session) SetAcsURL(url string) {
	s.acsURL = url
}

func (s *Session) State() State {
	return s.state
}

// Apply performs at most one state transition.
func (s *Session) Apply(u Update) {
	prev := s.state
	switch s.state {
	case StateInit:
		if isTrue(u.SentInform) {
			s.state = StateActive
		}
	case StateActive:
		if isTrue(u.OnHold) {
			s.state = StateOnHold
		} else if isTrue(u.CpeToAcsEmpty) {
			s.state = StateNoMore
		}
	case StateOnHold:
		if isFalse(u.OnHold) {
			s.state = StateActive
		}
	case StateNoMore:
		if isTrue(u.AcsToCpeEmpty) {
			s.state = StateDone
		}
	}
	if prev != s.state {
		log.Debug(s, "Session state changed", "from", prev, "to", s.state)
	}
}

func (s *Session) InformRequired() bool {
	return s.state == StateInit
}

func (s *Session) RequestAllowed() bool {
	return s.state == StateActive
}

func (s *Session) ResponseAllowed() bool {
	return s.state == StateActive || s.state == StateOnHold || s.state == StateNoMore
}

func (s *Session) ShouldClose() bool {
	return s.state == StateDone
}

// Close ends the session: the scope's cache is flushed and its end-of-session
// callbacks run. It returns whether a ping arrived during the session.
func (s *Session) Close() bool {
	if s.scope != nil {
		s.scope.End()
	}
	log.Debug(s, "Session closed", "ping_received", s.PingReceived)
	return s.PingReceived
}
