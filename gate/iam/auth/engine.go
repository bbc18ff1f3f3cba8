package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
)

// ErrNoEngineAccepted is returned when the chain is exhausted without any
// engine granting the request.
var ErrNoEngineAccepted = errors.New("no authentication engine accepted the request")

// Status is the tri-state outcome of a single engine's authentication
// attempt. An engine never produces a fourth state.
type Status int

const (
	// StatusDenied means the engine evaluated the request and rejected it.
	StatusDenied Status = iota

	// StatusGranted means the engine authenticated the request.
	StatusGranted

	// StatusNotApplicable means the engine could not evaluate the request
	// (e.g. the credential kind it handles is absent).
	StatusNotApplicable
)

func (s Status) String() string {
	switch s {
	case StatusDenied:
		return "Denied"
	case StatusGranted:
		return "Granted"
	case StatusNotApplicable:
		return "NotApplicable"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result carries an engine's (or the whole strategy's) outcome. Reason is
// set on denial and holds a typed error chain for error-code mapping.
type Result struct {
	Status   Status
	Identity *Identity
	Reason   error
}

// Granted builds a granted result carrying the resolved identity.
func Granted(identity *Identity) Result {
	return Result{Status: StatusGranted, Identity: identity}
}

// Denied builds a denied result with the denial reason.
func Denied(reason error) Result {
	return Result{Status: StatusDenied, Reason: reason}
}

// NotApplicable builds a not-applicable result.
func NotApplicable() Result {
	return Result{Status: StatusNotApplicable}
}

// Engine is a single pluggable authentication method.
//
// IsApplicable must be cheap and side-effect free; it only inspects the
// request for the credential kind the engine handles. Authenticate performs
// the actual validation and may block on I/O (key fetches).
type Engine interface {
	Name() string
	IsApplicable(r *Request) bool
	Authenticate(ctx context.Context, r *Request) Result
}

// ControlMode governs how an engine's outcome steers the chain.
type ControlMode int

const (
	// Sufficient: a grant terminates the chain immediately. This is the
	// only grant short-circuit.
	Sufficient ControlMode = iota

	// Required: a denial terminates the chain immediately; a grant is
	// recorded and the chain continues so a later engine can still veto.
	Required

	// Fallback: a grant is recorded and wins only if the chain is
	// exhausted without a Sufficient grant or Required denial.
	Fallback
)

func (m ControlMode) String() string {
	switch m {
	case Sufficient:
		return "Sufficient"
	case Required:
		return "Required"
	case Fallback:
		return "Fallback"
	default:
		return fmt.Sprintf("ControlMode(%d)", int(m))
	}
}

type strategyEntry struct {
	engine Engine
	mode   ControlMode
}

// Strategy is an ordered chain of engines with per-engine control modes.
// Evaluation order is the registration order and is part of the observable
// contract: it determines which authentication method wins when a request
// could satisfy more than one.
type Strategy struct {
	name    string
	entries []strategyEntry
}

// NewStrategy creates an empty strategy chain.
func NewStrategy(name string) *Strategy {
	return &Strategy{name: name}
}

// Name returns the strategy's name.
func (s *Strategy) Name() string {
	return s.name
}

// AddEngine appends an engine to the chain under the given control mode.
func (s *Strategy) AddEngine(mode ControlMode, engine Engine) {
	s.entries = append(s.entries, strategyEntry{engine: engine, mode: mode})
}

// Apply evaluates the chain once for the request:
//
//  1. Engines run strictly in registration order; non-applicable engines
//     are skipped without invoking Authenticate.
//  2. A Denied from a Required engine stops the chain: overall Denied.
//  3. A Granted from a Sufficient engine stops the chain: overall Granted.
//     No later engine is invoked.
//  4. A Granted from a Required or Fallback engine is recorded and the
//     chain continues, since a later Required engine could still veto.
//  5. An exhausted chain resolves to the recorded grant if one exists,
//     otherwise Denied with ErrNoEngineAccepted.
func (s *Strategy) Apply(ctx context.Context, r *Request) Result {
	var recorded *Result

	for _, entry := range s.entries {
		if !entry.engine.IsApplicable(r) {
			glog.V(3).Infof("strategy %s: engine %s not applicable", s.name, entry.engine.Name())
			continue
		}

		result := entry.engine.Authenticate(ctx, r)
		glog.V(3).Infof("strategy %s: engine %s (%s) returned %s",
			s.name, entry.engine.Name(), entry.mode, result.Status)

		switch result.Status {
		case StatusDenied:
			if entry.mode == Required {
				return Denied(fmt.Errorf("required engine %s denied the request: %w",
					entry.engine.Name(), result.Reason))
			}
		case StatusGranted:
			if entry.mode == Sufficient {
				return result
			}
			if recorded == nil {
				recorded = &result
			}
		case StatusNotApplicable:
			// Engine declared applicability but could not evaluate after
			// all; treated the same as a skip.
		}
	}

	if recorded != nil {
		return *recorded
	}
	return Denied(ErrNoEngineAccepted)
}
