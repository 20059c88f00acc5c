package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/eventos/internal/metrics"
)

// GrantRequest is one incoming delegated permission.
type GrantRequest struct {
	SubjectID string    `json:"usuarioId" validate:"required,max=64"`
	Kind      GrantKind `json:"permissao" validate:"required,oneof=editar"`
	ExpiresAt time.Time `json:"expiraEm" validate:"required"`
}

// GrantUpdate replaces the grant at Index of the existing list.
type GrantUpdate struct {
	Index int
	Grant Grant
}

// GrantPlan is the set of writes that turns an existing grant list into the reconciled
// one. It is applied only if the grants version still equals ExpectedVersion.
type GrantPlan struct {
	ExpectedVersion int64
	Updates         []GrantUpdate
	Appends         []Grant
}

// Empty reports whether the plan writes nothing.
func (p GrantPlan) Empty() bool {
	return len(p.Updates) == 0 && len(p.Appends) == 0
}

// Apply returns the grant list that results from writing p over existing. existing is not
// modified.
func (p GrantPlan) Apply(existing []Grant) []Grant {
	out := make([]Grant, len(existing), len(existing)+len(p.Appends))
	copy(out, existing)
	for _, u := range p.Updates {
		out[u.Index] = u.Grant
	}
	return append(out, p.Appends...)
}

// PlanGrants computes an upsert-by-subject plan. A subject already present is replaced in
// place; a new subject is appended in the order it first appears. Several entries for the
// same subject in one batch collapse to the last one. Entries identical to what is already
// stored produce no write.
func PlanGrants(existing, incoming []Grant, version int64) GrantPlan {
	plan := GrantPlan{ExpectedVersion: version}

	var order []string
	final := make(map[string]Grant, len(incoming))
	for _, g := range incoming {
		if _, seen := final[g.SubjectID]; !seen {
			order = append(order, g.SubjectID)
		}
		final[g.SubjectID] = g
	}

	index := make(map[string]int, len(existing))
	for i, g := range existing {
		if _, dup := index[g.SubjectID]; !dup {
			index[g.SubjectID] = i
		}
	}

	for _, subject := range order {
		g := final[subject]
		i, ok := index[subject]
		if !ok {
			plan.Appends = append(plan.Appends, g)
			continue
		}
		if sameGrant(existing[i], g) {
			continue
		}
		plan.Updates = append(plan.Updates, GrantUpdate{Index: i, Grant: g})
	}
	return plan
}

func sameGrant(a, b Grant) bool {
	return a.SubjectID == b.SubjectID && a.Kind == b.Kind && a.ExpiresAt.Equal(b.ExpiresAt)
}

// GrantManager validates and reconciles delegated grants.
type GrantManager struct {
	repo     Repository
	accounts AccountDirectory
	validate *validator.Validate
	now      func() time.Time
	logger   zerolog.Logger
}

// NewGrantManager returns a manager writing through repo. accounts may be nil, in which
// case subjects are only checked for shape.
func NewGrantManager(repo Repository, accounts AccountDirectory, logger zerolog.Logger, now func() time.Time) *GrantManager {
	if now == nil {
		now = time.Now
	}
	return &GrantManager{
		repo:     repo,
		accounts: accounts,
		validate: newValidator(),
		now:      now,
		logger:   logger.With().Str("component", "grants").Logger(),
	}
}

// Validate checks every request independently and stops at the first invalid one,
// returning a positional *ValidationError for it.
func (m *GrantManager) Validate(ctx context.Context, incoming []GrantRequest) ([]Grant, error) {
	now := m.now()
	grants := make([]Grant, 0, len(incoming))
	for i, req := range incoming {
		if err := m.validateOne(ctx, req, now); err != nil {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("grant[%d]", i),
				Message: fmt.Sprintf("Validation error on grant[%d]", i),
				Err:     err,
			}
		}
		grants = append(grants, Grant{SubjectID: req.SubjectID, Kind: req.Kind, ExpiresAt: req.ExpiresAt.UTC()})
	}
	return grants, nil
}

func (m *GrantManager) validateOne(ctx context.Context, req GrantRequest, now time.Time) error {
	if err := m.validate.Struct(req); err != nil {
		return toValidationError(err)
	}
	if !now.Before(req.ExpiresAt) {
		return &ValidationError{Field: "expiraEm", Message: "expiraEm must be in the future"}
	}
	if m.accounts == nil {
		return nil
	}
	ok, err := m.accounts.Exists(ctx, req.SubjectID)
	if err != nil {
		return fmt.Errorf("looking up account %s: %w", req.SubjectID, err)
	}
	if !ok {
		return &NotFoundError{Resource: "account", ID: req.SubjectID}
	}
	return nil
}

// Reconcile validates incoming and writes the resulting upserts for ev as one atomic batch.
// Authorization is the caller's responsibility. If another writer changed the grants after
// ev was loaded, ErrConflict is returned and nothing is written.
func (m *GrantManager) Reconcile(ctx context.Context, ev *Event, incoming []GrantRequest) (*Event, error) {
	grants, err := m.Validate(ctx, incoming)
	if err != nil {
		return nil, err
	}

	plan := PlanGrants(ev.Grants, grants, ev.GrantsVersion)
	if plan.Empty() {
		out := *ev
		out.Grants = slices.Clone(ev.Grants)
		return &out, nil
	}

	updated, err := m.repo.ApplyGrantPlan(ctx, ev.ID, plan)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.GrantConflicts.Inc()
			m.logger.Warn().
				Str("event_id", ev.ID).
				Int64("expected_version", plan.ExpectedVersion).
				Msg("grant list changed concurrently")
		}
		return nil, err
	}

	metrics.GrantWrites.WithLabelValues("update").Add(float64(len(plan.Updates)))
	metrics.GrantWrites.WithLabelValues("append").Add(float64(len(plan.Appends)))
	m.logger.Info().
		Str("event_id", ev.ID).
		Int("updates", len(plan.Updates)).
		Int("appends", len(plan.Appends)).
		Msg("grants reconciled")

	return updated, nil
}
