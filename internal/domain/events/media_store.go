package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/eventos/internal/domain/ids"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
	"github.com/Togather-Foundation/eventos/internal/metrics"
)

// MediaStore keeps media records and their artifacts in step. After a successful attach
// every stored item has both a record and an artifact; after a successful detach neither
// remains.
//
// Rollback deletions run with a context detached from the caller's, so an abandoned request
// still finishes its cleanup.
type MediaStore struct {
	repo      Repository
	validator *media.Validator
	artifacts ArtifactStore
	logger    zerolog.Logger
}

func NewMediaStore(repo Repository, validator *media.Validator, artifacts ArtifactStore, logger zerolog.Logger) *MediaStore {
	return &MediaStore{
		repo:      repo,
		validator: validator,
		artifacts: artifacts,
		logger:    logger.With().Str("component", "media_store").Logger(),
	}
}

// Attach validates file as class, promotes it and appends the record to the event. A
// rejected file is deleted before the error returns.
func (m *MediaStore) Attach(ctx context.Context, eventID string, class media.Class, file media.StagedFile) (*Event, media.Item, error) {
	item, err := m.validator.Validate(file, class)
	if err != nil {
		m.recordRejection(class, err)
		m.discard(file)
		return nil, media.Item{}, &ValidationError{
			Field:   string(class),
			Message: fmt.Sprintf("mídia inválida em %s", class),
			Err:     err,
		}
	}

	url, err := m.artifacts.Promote(ctx, file, class)
	if err != nil {
		m.discard(file)
		return nil, media.Item{}, fmt.Errorf("promoting %s media: %w", class, err)
	}
	if item.ID, err = ids.NewULID(); err != nil {
		m.removeArtifacts(ctx, url)
		return nil, media.Item{}, fmt.Errorf("generating media id: %w", err)
	}
	item.URL = url

	ev, err := m.repo.AppendMedia(ctx, eventID, []MediaRecord{{Class: class, Item: item}})
	if err != nil {
		m.removeArtifacts(ctx, url)
		return nil, media.Item{}, err
	}

	metrics.MediaAttached.WithLabelValues(string(class)).Inc()
	m.logger.Info().
		Str("event_id", eventID).
		Str("class", string(class)).
		Str("media_id", item.ID).
		Msg("media attached")

	return ev, item, nil
}

// AttachBatch attaches several classes at once, all or nothing. Files are validated in
// class order (capa, video, carrossel) and the first failure stops the batch: every file
// passed to this call is deleted and the error names the failing class. Records are
// written in a single transaction.
func (m *MediaStore) AttachBatch(ctx context.Context, eventID string, staged map[media.Class][]media.StagedFile) (*Event, error) {
	batch, err := m.PrepareBatch(staged)
	if err != nil {
		return nil, err
	}
	return m.CommitBatch(ctx, eventID, batch)
}

// MediaBatch is a set of staged files that passed validation, kept in class order.
type MediaBatch struct {
	pending []pendingMedia
}

type pendingMedia struct {
	class media.Class
	file  media.StagedFile
	item  media.Item
}

// Len reports the number of files in the batch.
func (b *MediaBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.pending)
}

// PrepareBatch validates staged without touching storage. On the first failure every
// staged file is deleted.
func (m *MediaStore) PrepareBatch(staged map[media.Class][]media.StagedFile) (*MediaBatch, error) {
	for class, files := range staged {
		if !class.Valid() && len(files) > 0 {
			m.discardAll(staged)
			return nil, &ValidationError{Field: string(class), Err: media.ErrUnknownClass{Value: string(class)}}
		}
	}

	batch := &MediaBatch{}
	for _, class := range media.Classes {
		for i, file := range staged[class] {
			item, err := m.validator.Validate(file, class)
			if err != nil {
				m.recordRejection(class, err)
				m.discardAll(staged)
				return nil, &ValidationError{
					Field:   string(class),
					Message: fmt.Sprintf("mídia inválida em %s[%d]", class, i),
					Err:     err,
				}
			}
			batch.pending = append(batch.pending, pendingMedia{class: class, file: file, item: item})
		}
	}
	return batch, nil
}

// CommitBatch promotes a prepared batch and appends its records to the event. Promoted
// artifacts are removed again if any later step fails.
func (m *MediaStore) CommitBatch(ctx context.Context, eventID string, batch *MediaBatch) (*Event, error) {
	if batch.Len() == 0 {
		return m.repo.GetByID(ctx, eventID)
	}

	promoted := make([]string, 0, batch.Len())
	records := make([]MediaRecord, 0, batch.Len())
	for i := range batch.pending {
		p := &batch.pending[i]
		url, err := m.artifacts.Promote(ctx, p.file, p.class)
		if err != nil {
			m.removeArtifacts(ctx, promoted...)
			for _, rest := range batch.pending[i:] {
				m.discard(rest.file)
			}
			return nil, fmt.Errorf("promoting %s media: %w", p.class, err)
		}
		promoted = append(promoted, url)
		if p.item.ID, err = ids.NewULID(); err != nil {
			m.removeArtifacts(ctx, promoted...)
			for _, rest := range batch.pending[i+1:] {
				m.discard(rest.file)
			}
			return nil, fmt.Errorf("generating media id: %w", err)
		}
		p.item.URL = url
		records = append(records, MediaRecord{Class: p.class, Item: p.item})
	}

	ev, err := m.repo.AppendMedia(ctx, eventID, records)
	if err != nil {
		m.removeArtifacts(ctx, promoted...)
		return nil, err
	}

	for _, r := range records {
		metrics.MediaAttached.WithLabelValues(string(r.Class)).Inc()
	}
	m.logger.Info().
		Str("event_id", eventID).
		Int("items", len(records)).
		Msg("media batch attached")

	return ev, nil
}

// Detach removes the record and then its artifact. An artifact that is already gone, or
// that cannot be deleted, does not fail the call: the record is authoritative.
func (m *MediaStore) Detach(ctx context.Context, eventID string, class media.Class, mediaID string) (media.Item, error) {
	if !class.Valid() {
		return media.Item{}, &NotFoundError{Resource: "media", ID: mediaID}
	}
	item, err := m.repo.RemoveMedia(ctx, eventID, class, mediaID)
	if err != nil {
		return media.Item{}, err
	}

	if err := m.artifacts.Remove(context.WithoutCancel(ctx), item.URL); err != nil {
		m.logger.Error().Err(err).
			Str("event_id", eventID).
			Str("media_id", mediaID).
			Str("url", item.URL).
			Msg("failed to delete media artifact")
	}

	metrics.MediaDetached.WithLabelValues(string(class)).Inc()
	m.logger.Info().
		Str("event_id", eventID).
		Str("class", string(class)).
		Str("media_id", mediaID).
		Msg("media detached")

	return item, nil
}

// RemoveAll deletes every artifact referenced by ev. Used after the event row is gone.
func (m *MediaStore) RemoveAll(ctx context.Context, ev *Event) {
	ctx = context.WithoutCancel(ctx)
	for _, url := range ev.MediaURLs() {
		if err := m.artifacts.Remove(ctx, url); err != nil {
			m.logger.Error().Err(err).Str("event_id", ev.ID).Str("url", url).Msg("failed to delete media artifact")
		}
	}
}

// Discard deletes staged files that will never reach validation.
func (m *MediaStore) Discard(files ...media.StagedFile) {
	for _, f := range files {
		m.discard(f)
	}
}

func (m *MediaStore) discardAll(staged map[media.Class][]media.StagedFile) {
	for _, files := range staged {
		m.Discard(files...)
	}
}

func (m *MediaStore) discard(file media.StagedFile) {
	if err := m.artifacts.Discard(file); err != nil {
		m.logger.Error().Err(err).Str("path", file.Path).Msg("failed to delete staged file")
		return
	}
	metrics.MediaRollbackFiles.Inc()
}

func (m *MediaStore) removeArtifacts(ctx context.Context, urls ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, url := range urls {
		if err := m.artifacts.Remove(ctx, url); err != nil {
			m.logger.Error().Err(err).Str("url", url).Msg("failed to roll back media artifact")
			continue
		}
		metrics.MediaRollbackFiles.Inc()
	}
}

func (m *MediaStore) recordRejection(class media.Class, err error) {
	reason := "unknown"
	var verr *media.ValidationError
	if errors.As(err, &verr) {
		reason = verr.Field
	}
	metrics.MediaRejected.WithLabelValues(string(class), reason).Inc()
}
