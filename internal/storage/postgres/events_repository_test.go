package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/eventos/internal/domain/events"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
)

func TestEventRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := &EventRepository{pool: pool}

	organizer := insertAccount(t, ctx, pool, "Ana")
	created := createEvent(t, ctx, repo, organizer, events.StatusInactive, "Festival de Inverno", "musica", "jazz")

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Festival de Inverno", got.Title)
	assert.Equal(t, organizer, got.Organizer.ID)
	assert.Equal(t, events.StatusInactive, got.Status)
	assert.Equal(t, []string{"musica", "jazz"}, got.Tags)
	assert.Empty(t, got.Grants)
	assert.Empty(t, got.MediaCover)
	assert.NotNil(t, got.MediaCarousel)
	assert.Zero(t, got.GrantsVersion)

	_, err = repo.GetByID(ctx, ulid.Make().String())
	assert.ErrorIs(t, err, events.ErrNotFound)
}

func TestEventRepositoryUpdateDescriptiveKeepsUnsetFields(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := &EventRepository{pool: pool}

	ev := createEvent(t, ctx, repo, insertAccount(t, ctx, pool, "Ana"), events.StatusInactive, "Original", "a")

	title := "Renomeado"
	tags := []string{"b", "c"}
	updated, err := repo.UpdateDescriptive(ctx, ev.ID, events.DescriptivePatch{Title: &title, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "Renomeado", updated.Title)
	assert.Equal(t, []string{"b", "c"}, updated.Tags)
	assert.Equal(t, ev.Venue, updated.Venue)
	assert.Equal(t, ev.Date, updated.Date)

	_, err = repo.UpdateDescriptive(ctx, ulid.Make().String(), events.DescriptivePatch{Title: &title})
	assert.ErrorIs(t, err, events.ErrNotFound)
}

func TestEventRepositoryUpdateStatus(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := &EventRepository{pool: pool}

	ev := createEvent(t, ctx, repo, insertAccount(t, ctx, pool, "Ana"), events.StatusInactive, "Show")

	updated, err := repo.UpdateStatus(ctx, ev.ID, events.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, events.StatusActive, updated.Status)

	updated, err = repo.UpdateStatus(ctx, ev.ID, events.StatusInactive)
	require.NoError(t, err)
	assert.Equal(t, events.StatusInactive, updated.Status)
}

func TestEventRepositoryListVisibility(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := &EventRepository{pool: pool}
	now := time.Now().UTC()

	ana := insertAccount(t, ctx, pool, "Ana")
	bruno := insertAccount(t, ctx, pool, "Bruno")
	carla := insertAccount(t, ctx, pool, "Carla")

	draft := createEvent(t, ctx, repo, ana, events.StatusInactive, "Rascunho da Ana", "teatro")
	public := createEvent(t, ctx, repo, bruno, events.StatusActive, "Show do Bruno", "musica")
	shared := createEvent(t, ctx, repo, bruno, events.StatusInactive, "Ensaio do Bruno")

	_, err := repo.ApplyGrantPlan(ctx, shared.ID, events.GrantPlan{
		Appends: []events.Grant{{SubjectID: carla, Kind: events.GrantKindEdit, ExpiresAt: now.Add(time.Hour)}},
	})
	require.NoError(t, err)
	_, err = repo.ApplyGrantPlan(ctx, draft.ID, events.GrantPlan{
		Appends: []events.Grant{{SubjectID: carla, Kind: events.GrantKindEdit, ExpiresAt: now.Add(-time.Hour)}},
	})
	require.NoError(t, err)

	ids := func(list []events.Event) []string {
		out := make([]string, len(list))
		for i, ev := range list {
			out[i] = ev.ID
		}
		return out
	}

	tests := []struct {
		name  string
		query events.ListQuery
		want  []string
	}{
		{"anonymous sees active only", events.ListQuery{Now: now, Filters: events.Filters{Limit: 10}}, []string{public.ID}},
		{"organizer sees own", events.ListQuery{ViewerID: ana, Now: now, Filters: events.Filters{Limit: 10}}, []string{draft.ID}},
		{"delegate sees granted", events.ListQuery{ViewerID: carla, Now: now, Filters: events.Filters{Limit: 10}}, []string{shared.ID}},
		{"status filter", events.ListQuery{ViewerID: bruno, Now: now, Filters: events.Filters{Status: events.StatusActive, Limit: 10}}, []string{public.ID}},
		{"tag filter", events.ListQuery{Now: now, Filters: events.Filters{Tag: "teatro", Limit: 10}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(ctx, tt.query)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(list))
		})
	}

	list, err := repo.List(ctx, events.ListQuery{ViewerID: carla, Now: now, Filters: events.Filters{Limit: 10}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Grants, 1, "listing hydrates grants")
}

func TestEventRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := &EventRepository{pool: pool}
	ana := insertAccount(t, ctx, pool, "Ana")

	create := func(title, venue, description string, date time.Time) *events.Event {
		t.Helper()
		ev, err := repo.Create(ctx, events.CreateParams{
			ID:        ulid.Make().String(),
			Organizer: events.Organizer{ID: ana, Name: "Ana"},
			Status:    events.StatusInactive,
			Draft: events.Draft{
				Title:       title,
				Description: description,
				Venue:       venue,
				Date:        date,
			},
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		return ev
	}

	workshop := create("Oficina 100% prática", "Ateliê Norte", "", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	winter := create("Festival de Inverno", "Teatro Municipal", "<p>Música ao vivo</p>", time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC))
	spring := create("Festival de Primavera", "Praça Central", "", time.Date(2026, 4, 10, 19, 0, 0, 0, time.UTC))
	fair := create("Feira de Livros", "Biblioteca Central", "", time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC))

	ids := func(list []events.Event) []string {
		out := make([]string, len(list))
		for i, ev := range list {
			out[i] = ev.ID
		}
		return out
	}

	tests := []struct {
		name    string
		filters events.Filters
		want    []string
	}{
		{"title ilike", events.Filters{Title: "FESTIVAL", Limit: 10}, []string{winter.ID, spring.ID}},
		{"percent is literal", events.Filters{Title: "100%", Limit: 10}, []string{workshop.ID}},
		{"underscore is literal", events.Filters{Title: "de_", Limit: 10}, []string{}},
		{"description ilike", events.Filters{Description: "ao vivo", Limit: 10}, []string{winter.ID}},
		{"venue ilike", events.Filters{Venue: "central", Limit: 10}, []string{spring.ID, fair.ID}},
		{"from inclusive", events.Filters{From: spring.Date, Limit: 10}, []string{spring.ID, fair.ID}},
		{"to exclusive", events.Filters{To: spring.Date, Limit: 10}, []string{workshop.ID, winter.ID}},
		{"first page", events.Filters{Limit: 3, Page: 1}, []string{workshop.ID, winter.ID, spring.ID}},
		{"second page", events.Filters{Limit: 3, Page: 2}, []string{fair.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(ctx, events.ListQuery{ViewerID: ana, Now: time.Now().UTC(), Filters: tt.filters})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(list))
		})
	}
}

func TestEventRepositoryApplyGrantPlan(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := &EventRepository{pool: pool}
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	ana := insertAccount(t, ctx, pool, "Ana")
	bruno := insertAccount(t, ctx, pool, "Bruno")
	carla := insertAccount(t, ctx, pool, "Carla")
	ev := createEvent(t, ctx, repo, ana, events.StatusInactive, "Oficina")

	ev, err := repo.ApplyGrantPlan(ctx, ev.ID, events.GrantPlan{
		ExpectedVersion: 0,
		Appends: []events.Grant{
			{SubjectID: bruno, Kind: events.GrantKindEdit, ExpiresAt: expiry},
			{SubjectID: carla, Kind: events.GrantKindEdit, ExpiresAt: expiry},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.GrantsVersion)
	require.Len(t, ev.Grants, 2)
	assert.Equal(t, bruno, ev.Grants[0].SubjectID)
	assert.Equal(t, carla, ev.Grants[1].SubjectID)

	later := expiry.Add(24 * time.Hour)
	ev, err = repo.ApplyGrantPlan(ctx, ev.ID, events.GrantPlan{
		ExpectedVersion: 1,
		Updates:         []events.GrantUpdate{{Index: 0, Grant: events.Grant{SubjectID: bruno, Kind: events.GrantKindEdit, ExpiresAt: later}}},
	})
	require.NoError(t, err)
	require.Len(t, ev.Grants, 2, "update keeps position and count")
	assert.Equal(t, bruno, ev.Grants[0].SubjectID)
	assert.True(t, later.Equal(ev.Grants[0].ExpiresAt))

	t.Run("stale version conflicts", func(t *testing.T) {
		_, err := repo.ApplyGrantPlan(ctx, ev.ID, events.GrantPlan{
			ExpectedVersion: 1,
			Appends:         []events.Grant{{SubjectID: "late", Kind: events.GrantKindEdit, ExpiresAt: expiry}},
		})
		assert.ErrorIs(t, err, events.ErrConflict)

		current, err := repo.GetByID(ctx, ev.ID)
		require.NoError(t, err)
		assert.Len(t, current.Grants, 2, "conflicting plan writes nothing")
	})

	t.Run("missing event", func(t *testing.T) {
		_, err := repo.ApplyGrantPlan(ctx, ulid.Make().String(), events.GrantPlan{})
		assert.ErrorIs(t, err, events.ErrNotFound)
	})
}

func TestEventRepositoryMediaAppendAndRemove(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := &EventRepository{pool: pool}

	ev := createEvent(t, ctx, repo, insertAccount(t, ctx, pool, "Ana"), events.StatusInactive, "Mostra")

	item := func(url string) media.Item {
		return media.Item{ID: ulid.Make().String(), URL: url, SizeMB: 0.5, Width: 1280, Height: 720}
	}
	first, second := item("/midias/carrossel/1.png"), item("/midias/carrossel/2.png")
	cover := item("/midias/capa/c.png")

	ev, err := repo.AppendMedia(ctx, ev.ID, []events.MediaRecord{
		{Class: media.ClassCover, Item: cover},
		{Class: media.ClassCarousel, Item: first},
		{Class: media.ClassCarousel, Item: second},
	})
	require.NoError(t, err)
	assert.Equal(t, []media.Item{cover}, ev.MediaCover)
	assert.Equal(t, []media.Item{first, second}, ev.MediaCarousel, "insertion order is kept")
	assert.Empty(t, ev.MediaVideo)

	removed, err := repo.RemoveMedia(ctx, ev.ID, media.ClassCarousel, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, removed)

	_, err = repo.RemoveMedia(ctx, ev.ID, media.ClassCover, second.ID)
	assert.ErrorIs(t, err, events.ErrNotFound, "class must match")

	_, err = repo.RemoveMedia(ctx, ulid.Make().String(), media.ClassCarousel, second.ID)
	var nf *events.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "event", nf.Resource)

	current, err := repo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []media.Item{second}, current.MediaCarousel)

	_, err = repo.AppendMedia(ctx, ulid.Make().String(), []events.MediaRecord{{Class: media.ClassVideo, Item: item("/v.mp4")}})
	assert.ErrorIs(t, err, events.ErrNotFound)
}

func TestEventRepositoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := &EventRepository{pool: pool}

	ev := createEvent(t, ctx, repo, insertAccount(t, ctx, pool, "Ana"), events.StatusActive, "Feira")
	_, err := repo.AppendMedia(ctx, ev.ID, []events.MediaRecord{{
		Class: media.ClassVideo,
		Item:  media.Item{ID: ulid.Make().String(), URL: "/midias/video/v.mp4", SizeMB: 3, Width: 1280, Height: 720},
	}})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, ev.ID))

	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM event_media WHERE event_id = $1`, ev.ID).Scan(&remaining))
	assert.Zero(t, remaining)

	assert.ErrorIs(t, repo.Delete(ctx, ev.ID), events.ErrNotFound)
}

func TestRepositoryWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	root, err := NewRepository(pool)
	require.NoError(t, err)

	organizer := insertAccount(t, ctx, pool, "Ana")
	var id string
	err = root.WithTx(ctx, func(ctx context.Context, tx *Repository) error {
		ev := createEvent(t, ctx, tx.Events(), organizer, events.StatusInactive, "Descartado")
		id = ev.ID
		return events.ErrConflict
	})
	require.ErrorIs(t, err, events.ErrConflict)

	_, err = root.Events().GetByID(ctx, id)
	assert.ErrorIs(t, err, events.ErrNotFound)
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	root, err := NewRepository(pool)
	require.NoError(t, err)
	accounts := root.Accounts()

	id := insertAccount(t, ctx, pool, "Bruno")

	ok, err := accounts.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = accounts.Exists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	caller, err := accounts.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, events.Caller{ID: id, Name: "Bruno"}, caller)

	_, err = accounts.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, events.ErrNotFound)
}
