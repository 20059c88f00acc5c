package events

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/eventos/internal/domain/ids"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
)

// memRepository is an in-memory Repository with the same not-found and versioning
// behavior as the Postgres one.
type memRepository struct {
	mu     sync.Mutex
	events map[string]*Event
	now    func() time.Time

	appendErr error
	creates   int
	// failOnCancel makes Delete fail for a cancelled context, as a real driver would.
	failOnCancel bool
}

func newMemRepository(now func() time.Time) *memRepository {
	return &memRepository{events: make(map[string]*Event), now: now}
}

func cloneEvent(ev *Event) *Event {
	out := *ev
	out.Tags = slices.Clone(ev.Tags)
	out.Grants = slices.Clone(ev.Grants)
	out.MediaCover = slices.Clone(ev.MediaCover)
	out.MediaVideo = slices.Clone(ev.MediaVideo)
	out.MediaCarousel = slices.Clone(ev.MediaCarousel)
	return &out
}

func (r *memRepository) put(ev *Event) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[ev.ID] = cloneEvent(ev)
	return cloneEvent(ev)
}

func (r *memRepository) Create(_ context.Context, p CreateParams) (*Event, error) {
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()
	ev := &Event{
		ID:          p.ID,
		Organizer:   p.Organizer,
		Status:      p.Status,
		Title:       p.Draft.Title,
		Description: p.Draft.Description,
		Venue:       p.Draft.Venue,
		Date:        p.Draft.Date,
		Category:    p.Draft.Category,
		Tags:        p.Draft.Tags,
		SignupLink:  p.Draft.SignupLink,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.CreatedAt,
	}
	return r.put(ev), nil
}

func (r *memRepository) GetByID(_ context.Context, id string) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return nil, eventNotFound(id)
	}
	return cloneEvent(ev), nil
}

func (r *memRepository) List(_ context.Context, q ListQuery) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if q.ViewerID == "" {
			if ev.Status != StatusActive {
				continue
			}
		} else if ev.Organizer.ID != q.ViewerID {
			g, ok := ev.GrantFor(q.ViewerID)
			if !ok || !g.ValidAt(q.Now) {
				continue
			}
		}
		if q.Status != "" && ev.Status != q.Status {
			continue
		}
		if q.Category != "" && ev.Category != q.Category {
			continue
		}
		if q.Tag != "" && !slices.Contains(ev.Tags, q.Tag) {
			continue
		}
		if !containsFold(ev.Title, q.Title) || !containsFold(ev.Description, q.Description) || !containsFold(ev.Venue, q.Venue) {
			continue
		}
		if !q.From.IsZero() && ev.Date.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !ev.Date.Before(q.To) {
			continue
		}
		out = append(out, *cloneEvent(ev))
	}
	slices.SortFunc(out, func(a, b Event) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	out = out[min(q.Offset(), len(out)):]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (r *memRepository) mutate(id string, fn func(*Event) error) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return nil, eventNotFound(id)
	}
	next := cloneEvent(ev)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.now()
	r.events[id] = next
	return cloneEvent(next), nil
}

func (r *memRepository) UpdateDescriptive(_ context.Context, id string, patch DescriptivePatch) (*Event, error) {
	return r.mutate(id, func(ev *Event) error {
		patch.ApplyTo(ev)
		return nil
	})
}

func (r *memRepository) UpdateStatus(_ context.Context, id string, status Status) (*Event, error) {
	return r.mutate(id, func(ev *Event) error {
		ev.Status = status
		return nil
	})
}

func (r *memRepository) ApplyGrantPlan(_ context.Context, id string, plan GrantPlan) (*Event, error) {
	return r.mutate(id, func(ev *Event) error {
		if ev.GrantsVersion != plan.ExpectedVersion {
			return fmt.Errorf("grants of event %s: %w", id, ErrConflict)
		}
		ev.Grants = plan.Apply(ev.Grants)
		ev.GrantsVersion++
		return nil
	})
}

func (r *memRepository) AppendMedia(_ context.Context, id string, records []MediaRecord) (*Event, error) {
	return r.mutate(id, func(ev *Event) error {
		if r.appendErr != nil {
			return r.appendErr
		}
		for _, rec := range records {
			ev.SetMedia(rec.Class, append(ev.Media(rec.Class), rec.Item))
		}
		return nil
	})
}

func (r *memRepository) RemoveMedia(_ context.Context, id string, class media.Class, mediaID string) (media.Item, error) {
	var removed media.Item
	_, err := r.mutate(id, func(ev *Event) error {
		items := ev.Media(class)
		i := slices.IndexFunc(items, func(it media.Item) bool { return it.ID == mediaID })
		if i < 0 {
			return &NotFoundError{Resource: "media", ID: mediaID}
		}
		removed = items[i]
		ev.SetMedia(class, slices.Delete(slices.Clone(items), i, i+1))
		return nil
	})
	return removed, err
}

func (r *memRepository) Delete(ctx context.Context, id string) error {
	if r.failOnCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return eventNotFound(id)
	}
	delete(r.events, id)
	return nil
}

// dirArtifacts promotes staged files into root/<class>/ and serves them as /uploads URLs.
type dirArtifacts struct {
	root       string
	promoteErr error
}

func (a *dirArtifacts) Promote(_ context.Context, file media.StagedFile, class media.Class) (string, error) {
	if a.promoteErr != nil {
		return "", a.promoteErr
	}
	dir := filepath.Join(a.root, string(class))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name, err := ids.NewULID()
	if err != nil {
		return "", err
	}
	name += filepath.Ext(file.Filename)
	if err := os.Rename(file.Path, filepath.Join(dir, name)); err != nil {
		return "", err
	}
	return "/uploads/" + string(class) + "/" + name, nil
}

func (a *dirArtifacts) path(url string) string {
	return filepath.Join(a.root, filepath.FromSlash(url[len("/uploads/"):]))
}

func (a *dirArtifacts) Remove(_ context.Context, url string) error {
	if err := os.Remove(a.path(url)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (a *dirArtifacts) Discard(file media.StagedFile) error {
	if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// cancelSensitiveArtifacts refuses to remove anything once ctx is cancelled.
type cancelSensitiveArtifacts struct {
	*dirArtifacts
}

func (a cancelSensitiveArtifacts) Remove(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.dirArtifacts.Remove(ctx, url)
}

type published struct {
	topic   string
	payload any
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic: topic, payload: payload})
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.topic
	}
	return out
}

type staticAccounts map[string]bool

func (a staticAccounts) Exists(_ context.Context, id string) (bool, error) {
	return a[id], nil
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func stagePNG(t *testing.T, dir, name string, width, height int) media.StagedFile {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, width, height))))
	require.NoError(t, f.Close())
	info, err := os.Stat(path)
	require.NoError(t, err)
	return media.StagedFile{Path: path, Filename: name, SizeBytes: info.Size()}
}

func stageMP4(t *testing.T, dir, name string) media.StagedFile {
	t.Helper()
	path := filepath.Join(dir, name)
	body := []byte{0x00, 0x00, 0x00, 0x10, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00}
	body = append(body, make([]byte, 32)...)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	return media.StagedFile{Path: path, Filename: name, SizeBytes: int64(len(body)), Width: 1280, Height: 720}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mustULID(t *testing.T) string {
	t.Helper()
	id, err := ids.NewULID()
	require.NoError(t, err)
	return id
}
