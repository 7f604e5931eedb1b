// Package fault defines the error kinds raised by the parameter tree and the
// RPC layer, and their CWMP fault codes.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMethodNotSupported   = errors.New("method not supported")
	ErrRequestDenied        = errors.New("request denied")
	ErrInternal             = errors.New("internal error")
	ErrInvalidArguments     = errors.New("invalid arguments")
	ErrResourcesExceeded    = errors.New("resources exceeded")
	ErrNoSuchParameter      = errors.New("invalid parameter name")
	ErrInvalidType          = errors.New("invalid parameter type")
	ErrInvalidValue         = errors.New("invalid parameter value")
	ErrNotWritable          = errors.New("attempt to set a non-writable parameter")
	ErrNotificationRejected = errors.New("notification request rejected")
)

var codes = []struct {
	kind error
	code int
}{
	{ErrMethodNotSupported, 9000},
	{ErrRequestDenied, 9001},
	{ErrInternal, 9002},
	{ErrInvalidArguments, 9003},
	{ErrResourcesExceeded, 9004},
	{ErrNoSuchParameter, 9005},
	{ErrInvalidType, 9006},
	{ErrInvalidValue, 9007},
	{ErrNotWritable, 9008},
	{ErrNotificationRejected, 9009},
}

// Code returns the CWMP fault code for err. Errors of unknown kind are internal errors.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var l *List
	if errors.As(err, &l) {
		return l.Code()
	}
	return codeOf(err)
}

func codeOf(err error) int {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return 9002
}

// String returns the standard fault string for a code.
func String(code int) string {
	for _, c := range codes {
		if c.code == code {
			return c.kind.Error()
		}
	}
	return ErrInternal.Error()
}

// Kind returns the sentinel error that err wraps, or ErrInternal.
func Kind(err error) error {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.kind
		}
	}
	return ErrInternal
}

// ParamError is an error about one parameter or object path.
type ParamError struct {
	// Name is the full parameter path, empty if not yet known.
	Name string
	// Kind is one of the sentinel errors of this package.
	Kind error
	// Detail is a human readable explanation.
	Detail string
}

// Errorf creates a ParamError of the given kind with no parameter name.
func Errorf(kind error, format string, v ...any) *ParamError {
	return &ParamError{Kind: kind, Detail: fmt.Sprintf(format, v...)}
}

// New creates a ParamError for the named parameter.
func New(kind error, name string, detail string) *ParamError {
	return &ParamError{Name: name, Kind: kind, Detail: detail}
}

func (e *ParamError) Error() string {
	msg := e.Kind.Error()
	if e.Name != "" {
		msg = fmt.Sprintf("%s: %s", e.Name, msg)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

func (e *ParamError) Unwrap() error {
	return e.Kind
}

// Code returns the CWMP fault code of this error.
func (e *ParamError) Code() int {
	return codeOf(e.Kind)
}

// WithName returns err as a ParamError naming the parameter. Errors that are
// not ParamErrors become internal errors.
func WithName(err error, name string) *ParamError {
	var pe *ParamError
	if errors.As(err, &pe) {
		cp := *pe
		if cp.Name == "" {
			cp.Name = name
		}
		return &cp
	}
	return &ParamError{Name: name, Kind: Kind(err), Detail: err.Error()}
}

// Phase is the step of a multi-parameter RPC at which a List was raised.
type Phase int

const (
	PhaseResolve Phase = iota
	PhaseValidate
	PhaseApply
	PhaseCreate
)

func (p Phase) String() string {
	switch p {
	case PhaseResolve:
		return "resolve"
	case PhaseValidate:
		return "validate"
	case PhaseApply:
		return "apply"
	case PhaseCreate:
		return "create"
	}
	return "unknown"
}

// List is the aggregated failure of a multi-parameter RPC.
// All entries come from the same phase.
type List struct {
	Phase  Phase
	Faults []*ParamError
}

func (l *List) Error() string {
	msgs := make([]string, 0, len(l.Faults))
	for _, f := range l.Faults {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%s failed: %s", l.Phase, strings.Join(msgs, "; "))
}

// Is lets errors.Is match any kind contained in the list.
func (l *List) Is(target error) bool {
	for _, f := range l.Faults {
		if errors.Is(f, target) {
			return true
		}
	}
	return false
}

// Code returns the fault code for the whole RPC. A single fault keeps its own
// code; several parameter faults are reported as invalid arguments.
func (l *List) Code() int {
	if len(l.Faults) == 1 {
		return l.Faults[0].Code()
	}
	return 9003
}
