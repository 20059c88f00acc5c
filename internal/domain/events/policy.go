package events

import (
	"time"

	"github.com/Togather-Foundation/eventos/internal/metrics"
)

// Mode selects the authorization rule for an operation.
type Mode int

const (
	// ModeStrict allows the organizer only. Used for delete, status and grant management.
	ModeStrict Mode = iota + 1
	// ModeDelegated allows the organizer or a holder of a valid editar grant. Used for
	// descriptive updates and media changes.
	ModeDelegated
)

func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeDelegated:
		return "delegated"
	}
	return "unknown"
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Mode    Mode
	Reason  string
}

// Err returns nil for an allowed decision and a *ForbiddenError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ForbiddenError{Mode: d.Mode, Reason: d.Reason}
}

const (
	ReasonOwnerOnly    = "owner-only operation"
	ReasonNotDelegate  = "caller is neither organizer nor delegate"
	ReasonGrantExpired = "edit grant expired"
	ReasonNoCaller     = "caller identity required"
	ReasonUnknownMode  = "unknown authorization mode"
)

// Policy decides whether a caller may mutate an event. It never loads events: the caller
// passes a snapshot that is known to exist.
type Policy struct {
	now func() time.Time
}

// NewPolicy returns a policy reading the clock from now. A nil now uses time.Now.
func NewPolicy(now func() time.Time) *Policy {
	if now == nil {
		now = time.Now
	}
	return &Policy{now: now}
}

// Authorize evaluates mode for callerID against ev.
func (p *Policy) Authorize(ev *Event, callerID string, mode Mode) Decision {
	d := p.decide(ev, callerID, mode)
	outcome := "allowed"
	if !d.Allowed {
		outcome = "denied"
	}
	metrics.AuthorizationDecisions.WithLabelValues(mode.String(), outcome).Inc()
	return d
}

func (p *Policy) decide(ev *Event, callerID string, mode Mode) Decision {
	deny := func(reason string) Decision {
		return Decision{Mode: mode, Reason: reason}
	}
	if callerID == "" {
		return deny(ReasonNoCaller)
	}

	isOrganizer := ev.Organizer.ID == callerID

	switch mode {
	case ModeStrict:
		if isOrganizer {
			return Decision{Allowed: true, Mode: mode}
		}
		return deny(ReasonOwnerOnly)

	case ModeDelegated:
		if isOrganizer {
			return Decision{Allowed: true, Mode: mode}
		}
		now := p.now()
		expired := false
		for _, g := range ev.Grants {
			if g.SubjectID != callerID || g.Kind != GrantKindEdit {
				continue
			}
			if g.ValidAt(now) {
				return Decision{Allowed: true, Mode: mode}
			}
			expired = true
		}
		if expired {
			return deny(ReasonGrantExpired)
		}
		return deny(ReasonNotDelegate)
	}

	return deny(ReasonUnknownMode)
}
