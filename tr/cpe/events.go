package cpe

import (
	"strings"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/tr/soap"
)

// MaxEventQueueSize bounds the pending Inform events.
const MaxEventQueueSize = 64

// informEvents are the codes an InformResponse acknowledges.
var informEvents = []string{
	"0 bootstrap", "1 boot", "2 periodic", "3 scheduled", "4 value change",
	"6 connection request", "8 diagnostics complete", "m reboot", "m scheduleinform",
}

// eventQueue holds the events of the next Inform, oldest first.
type eventQueue struct {
	events []soap.Event
}

func (q *eventQueue) String() string {
	return "event-queue"
}

func (q *eventQueue) trim() {
	if over := len(q.events) - MaxEventQueueSize; over > 0 {
		log.Error(q, "Event queue overflow, dropping oldest events", "dropped", over)
		q.events = append([]soap.Event(nil), q.events[over:]...)
	}
}

func (q *eventQueue) push(code string, key string) {
	q.events = append(q.events, soap.Event{EventCode: code, CommandKey: key})
	q.trim()
}

func (q *eventQueue) pushFront(code string, key string) {
	q.events = append([]soap.Event{{EventCode: code, CommandKey: key}}, q.events...)
	q.trim()
}

func (q *eventQueue) has(code string) bool {
	for _, e := range q.events {
		if e.EventCode == code {
			return true
		}
	}
	return false
}

// remove drops every event whose code matches one of codes, ignoring case.
func (q *eventQueue) remove(codes ...string) {
	kept := q.events[:0]
	for _, e := range q.events {
		drop := false
		for _, c := range codes {
			if strings.EqualFold(e.EventCode, c) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	q.events = kept
}

func (q *eventQueue) list() []soap.Event {
	return append([]soap.Event(nil), q.events...)
}
