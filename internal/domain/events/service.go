package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Togather-Foundation/eventos/internal/domain/ids"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
	"github.com/Togather-Foundation/eventos/internal/metrics"
	"github.com/Togather-Foundation/eventos/internal/notify"
	"github.com/Togather-Foundation/eventos/internal/telemetry"
)

const tracerName = "github.com/Togather-Foundation/eventos/internal/domain/events"

// ServiceConfig holds the lifecycle settings read from configuration.
type ServiceConfig struct {
	DefaultStatus    Status
	CancelledEnabled bool
}

// Dependencies are the collaborators of a Service. Accounts and Publisher are optional.
type Dependencies struct {
	Repository Repository
	Accounts   AccountDirectory
	Artifacts  ArtifactStore
	Validator  *media.Validator
	Publisher  notify.Publisher
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Service is the event lifecycle controller. Every mutation loads the event, asks the
// policy, and only then writes through the grant manager, the media store or the
// repository.
type Service struct {
	repo      Repository
	policy    *Policy
	media     *MediaStore
	grants    *GrantManager
	publisher notify.Publisher
	validate  *validator.Validate
	cfg       ServiceConfig
	now       func() time.Time
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewService wires a Service. An empty DefaultStatus means inativo.
func NewService(deps Dependencies, cfg ServiceConfig) (*Service, error) {
	if deps.Repository == nil || deps.Artifacts == nil {
		return nil, fmt.Errorf("events service requires a repository and an artifact store")
	}
	if cfg.DefaultStatus == "" {
		cfg.DefaultStatus = StatusInactive
	}
	if _, err := ParseStatus(string(cfg.DefaultStatus), cfg.CancelledEnabled); err != nil {
		return nil, fmt.Errorf("default status: %w", err)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Validator == nil {
		deps.Validator = media.NewValidator(nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.NoopPublisher{}
	}

	return &Service{
		repo:      deps.Repository,
		policy:    NewPolicy(deps.Now),
		media:     NewMediaStore(deps.Repository, deps.Validator, deps.Artifacts, deps.Logger),
		grants:    NewGrantManager(deps.Repository, deps.Accounts, deps.Logger, deps.Now),
		publisher: deps.Publisher,
		validate:  newValidator(),
		cfg:       cfg,
		now:       deps.Now,
		tracer:    telemetry.GetTracer(tracerName),
		logger:    deps.Logger.With().Str("component", "events").Logger(),
	}, nil
}

// Create stores a new event owned by caller with the configured initial status, then
// attaches staged media as one batch. Media is validated before the event row is written
// and staged files are deleted on any failure; if storing the media fails after the row
// was written, the row is deleted again.
func (s *Service) Create(ctx context.Context, caller Caller, draft Draft, staged map[media.Class][]media.StagedFile) (ev *Event, err error) {
	ctx, done := s.begin(ctx, "create", attribute.String("caller.id", caller.ID))
	defer func() { done(err) }()

	if caller.ID == "" {
		s.discardStaged(staged)
		return nil, &ValidationError{Field: "organizador", Message: "organizador obrigatório"}
	}
	if err := s.validateDraft(&draft); err != nil {
		s.discardStaged(staged)
		return nil, err
	}
	batch, err := s.media.PrepareBatch(staged)
	if err != nil {
		return nil, err
	}

	id, err := ids.NewULID()
	if err != nil {
		s.discardStaged(staged)
		return nil, fmt.Errorf("generating event id: %w", err)
	}
	ev, err = s.repo.Create(ctx, CreateParams{
		ID:        id,
		Organizer: Organizer(caller),
		Status:    s.cfg.DefaultStatus,
		Draft:     draft,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		s.discardStaged(staged)
		return nil, fmt.Errorf("creating event: %w", err)
	}

	if batch.Len() > 0 {
		withMedia, err := s.media.CommitBatch(ctx, ev.ID, batch)
		if err != nil {
			if derr := s.repo.Delete(context.WithoutCancel(ctx), ev.ID); derr != nil {
				s.logger.Error().Err(derr).Str("event_id", ev.ID).Msg("failed to remove event after media rollback")
			}
			return nil, err
		}
		ev = withMedia
	}

	s.logger.Info().
		Str("event_id", ev.ID).
		Str("caller_id", caller.ID).
		Str("status", string(ev.Status)).
		Msg("event created")
	s.publish(ctx, notify.TopicEventCreated, notify.EventChanged{
		EventID: ev.ID, CallerID: caller.ID, Status: string(ev.Status), At: ev.CreatedAt,
	})
	return ev, nil
}

// Get loads one event.
func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	return s.load(ctx, id)
}

// List returns the events visible to callerID. An anonymous caller only sees ativo events;
// a signed-in caller sees the events they organize or hold a valid grant on.
func (s *Service) List(ctx context.Context, callerID string, filters Filters) (out []Event, err error) {
	ctx, done := s.begin(ctx, "list", attribute.String("caller.id", callerID))
	defer func() { done(err) }()

	if filters.Status != "" {
		if filters.Status, err = ParseStatus(string(filters.Status), s.cfg.CancelledEnabled); err != nil {
			return nil, err
		}
	}
	if filters.Period != "" {
		if filters.Period, err = ParsePeriod(string(filters.Period)); err != nil {
			return nil, err
		}
	}
	now := s.now()
	filters = filters.normalized().resolvePeriod(now)
	if !filters.From.IsZero() && !filters.To.IsZero() && !filters.From.Before(filters.To) {
		return nil, &ValidationError{Field: "dataFim", Message: "dataFim deve ser posterior a dataInicio"}
	}
	return s.repo.List(ctx, ListQuery{Filters: filters, ViewerID: callerID, Now: now})
}

// UpdateDescriptive applies patch for an organizer or a valid delegate.
func (s *Service) UpdateDescriptive(ctx context.Context, id string, patch DescriptivePatch, callerID string) (ev *Event, err error) {
	ctx, done := s.begin(ctx, "update_descriptive", attribute.String("event.id", id), attribute.String("caller.id", callerID))
	defer func() { done(err) }()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(current, callerID, ModeDelegated); err != nil {
		return nil, err
	}
	if err := s.validatePatch(&patch); err != nil {
		return nil, err
	}

	ev, err = s.repo.UpdateDescriptive(ctx, current.ID, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("event_id", ev.ID).Str("caller_id", callerID).Msg("event updated")
	s.publish(ctx, notify.TopicEventUpdated, notify.EventChanged{EventID: ev.ID, CallerID: callerID, At: ev.UpdatedAt})
	return ev, nil
}

// SetStatus changes the status. Owner only. With RequireMedia, activation needs at least
// one item in every media class.
func (s *Service) SetStatus(ctx context.Context, id string, params SetStatusParams, callerID string) (ev *Event, err error) {
	ctx, done := s.begin(ctx, "set_status", attribute.String("event.id", id), attribute.String("caller.id", callerID))
	defer func() { done(err) }()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(current, callerID, ModeStrict); err != nil {
		return nil, err
	}
	status, err := ParseStatus(string(params.Status), s.cfg.CancelledEnabled)
	if err != nil {
		return nil, err
	}
	if status == StatusActive && params.RequireMedia {
		if missing := current.MissingMedia(); len(missing) > 0 {
			return nil, &ValidationError{
				Field:   "midias",
				Message: "mídias obrigatórias ausentes",
				Err:     fmt.Errorf("sem itens em %v", missing),
			}
		}
	}

	ev, err = s.repo.UpdateStatus(ctx, current.ID, status)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("event_id", ev.ID).
		Str("caller_id", callerID).
		Str("from", string(current.Status)).
		Str("to", string(status)).
		Msg("event status changed")
	s.publish(ctx, notify.TopicEventStatus, notify.EventChanged{
		EventID: ev.ID, CallerID: callerID, Status: string(status), At: ev.UpdatedAt,
	})
	return ev, nil
}

// UpdateGrants reconciles delegated grants. Owner only.
func (s *Service) UpdateGrants(ctx context.Context, id string, requests []GrantRequest, callerID string) (ev *Event, err error) {
	ctx, done := s.begin(ctx, "update_grants", attribute.String("event.id", id), attribute.String("caller.id", callerID))
	defer func() { done(err) }()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(current, callerID, ModeStrict); err != nil {
		return nil, err
	}

	ev, err = s.grants.Reconcile(ctx, current, requests)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.TopicEventGrants, notify.EventChanged{
		EventID: ev.ID, CallerID: callerID, Grants: len(ev.Grants), At: s.now().UTC(),
	})
	return ev, nil
}

// AttachMedia adds one staged file to class for an organizer or a valid delegate. The
// staged file is deleted whenever the attach does not succeed.
func (s *Service) AttachMedia(ctx context.Context, id string, class media.Class, file media.StagedFile, callerID string) (ev *Event, item media.Item, err error) {
	ctx, done := s.begin(ctx, "attach_media",
		attribute.String("event.id", id),
		attribute.String("caller.id", callerID),
		attribute.String("media.class", string(class)))
	defer func() { done(err) }()

	current, err := s.load(ctx, id)
	if err != nil {
		s.media.Discard(file)
		return nil, media.Item{}, err
	}
	if err := s.authorize(current, callerID, ModeDelegated); err != nil {
		s.media.Discard(file)
		return nil, media.Item{}, err
	}

	ev, item, err = s.media.Attach(ctx, current.ID, class, file)
	if err != nil {
		return nil, media.Item{}, err
	}

	s.publish(ctx, notify.TopicMediaAttached, notify.MediaChanged{
		EventID: ev.ID, CallerID: callerID, Class: string(class), MediaIDs: []string{item.ID}, At: s.now().UTC(),
	})
	return ev, item, nil
}

// DetachMedia removes one media item for an organizer or a valid delegate.
func (s *Service) DetachMedia(ctx context.Context, id string, class media.Class, mediaID, callerID string) (item media.Item, err error) {
	ctx, done := s.begin(ctx, "detach_media",
		attribute.String("event.id", id),
		attribute.String("caller.id", callerID),
		attribute.String("media.id", mediaID))
	defer func() { done(err) }()

	current, err := s.load(ctx, id)
	if err != nil {
		return media.Item{}, err
	}
	if err := s.authorize(current, callerID, ModeDelegated); err != nil {
		return media.Item{}, err
	}

	item, err = s.media.Detach(ctx, current.ID, class, mediaID)
	if err != nil {
		return media.Item{}, err
	}

	s.publish(ctx, notify.TopicMediaDetached, notify.MediaChanged{
		EventID: current.ID, CallerID: callerID, Class: string(class), MediaIDs: []string{item.ID}, At: s.now().UTC(),
	})
	return item, nil
}

// ListMedia returns the items of class in insertion order.
func (s *Service) ListMedia(ctx context.Context, id string, class media.Class) ([]media.Item, error) {
	if !class.Valid() {
		return nil, &ValidationError{Field: "tipo", Err: media.ErrUnknownClass{Value: string(class)}}
	}
	ev, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return ev.Media(class), nil
}

// Delete removes the event and, best effort, its media artifacts. Owner only.
func (s *Service) Delete(ctx context.Context, id, callerID string) (err error) {
	ctx, done := s.begin(ctx, "delete", attribute.String("event.id", id), attribute.String("caller.id", callerID))
	defer func() { done(err) }()

	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(current, callerID, ModeStrict); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, current.ID); err != nil {
		return err
	}
	s.media.RemoveAll(ctx, current)

	s.logger.Info().Str("event_id", current.ID).Str("caller_id", callerID).Msg("event deleted")
	s.publish(ctx, notify.TopicEventDeleted, notify.EventChanged{EventID: current.ID, CallerID: callerID, At: s.now().UTC()})
	return nil
}

// SignupQRCode renders the event's signup link as a 256x256 PNG.
func (s *Service) SignupQRCode(ctx context.Context, id string) ([]byte, error) {
	ev, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.SignupLink == "" {
		return nil, &ValidationError{Field: "linkInscricao", Message: "evento sem link de inscrição"}
	}
	png, err := qrcode.Encode(ev.SignupLink, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encoding signup QR code: %w", err)
	}
	return png, nil
}

func (s *Service) load(ctx context.Context, id string) (*Event, error) {
	id = ids.Normalize(id)
	if !ids.IsULID(id) {
		return nil, eventNotFound(id)
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) authorize(ev *Event, callerID string, mode Mode) error {
	d := s.policy.Authorize(ev, callerID, mode)
	if d.Allowed {
		return nil
	}
	s.logger.Warn().
		Str("event_id", ev.ID).
		Str("caller_id", callerID).
		Str("mode", mode.String()).
		Str("reason", d.Reason).
		Msg("authorization denied")
	return d.Err()
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("failed to publish notification")
	}
}

func (s *Service) discardStaged(staged map[media.Class][]media.StagedFile) {
	for _, files := range staged {
		s.media.Discard(files...)
	}
}

// begin opens a span and returns a function that records the outcome on both the span and
// the operation histogram.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "events."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		metrics.ObserveOperation(op, start, err)
		telemetry.Finish(span, err)
	}
}
