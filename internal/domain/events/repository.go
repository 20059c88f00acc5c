package events

import (
	"context"

	"github.com/Togather-Foundation/eventos/internal/domain/media"
)

// Repository persists events, their grants and their media records. Lookups of a missing
// event return a *NotFoundError.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Event, error)
	GetByID(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context, query ListQuery) ([]Event, error)
	UpdateDescriptive(ctx context.Context, id string, patch DescriptivePatch) (*Event, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Event, error)

	// ApplyGrantPlan writes every update and append of plan atomically, provided the
	// event's grants version still equals plan.ExpectedVersion. Otherwise ErrConflict.
	ApplyGrantPlan(ctx context.Context, id string, plan GrantPlan) (*Event, error)

	// AppendMedia adds all records in one transaction.
	AppendMedia(ctx context.Context, id string, records []MediaRecord) (*Event, error)
	RemoveMedia(ctx context.Context, id string, class media.Class, mediaID string) (media.Item, error)
	Delete(ctx context.Context, id string) error
}

// AccountDirectory answers whether an account exists. It is owned by the account store;
// this package only reads it.
type AccountDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// ArtifactStore holds the binary behind each media item.
type ArtifactStore interface {
	// Promote moves a validated staged file into permanent storage for class and returns
	// its public URL.
	Promote(ctx context.Context, file media.StagedFile, class media.Class) (string, error)

	// Remove deletes the artifact behind url. An artifact that is already gone is not an
	// error.
	Remove(ctx context.Context, url string) error

	// Discard deletes a staged file that will not be promoted.
	Discard(file media.StagedFile) error
}
