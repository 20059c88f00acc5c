package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/eventos/internal/domain/events"
	"github.com/Togather-Foundation/eventos/internal/metrics"
)

var _ events.Repository = (*EventRepository)(nil)

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const eventColumns = `
e.id, e.organizer_id, e.organizer_name, e.status, e.title, e.description, e.venue,
e.event_date, e.category, e.tags, e.signup_link, e.grants_version, e.created_at, e.updated_at`

func (r *EventRepository) queryer() queryer {
	return pick(r.pool, r.tx)
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	var ev events.Event
	var status string
	err := row.Scan(
		&ev.ID, &ev.Organizer.ID, &ev.Organizer.Name, &status, &ev.Title, &ev.Description, &ev.Venue,
		&ev.Date, &ev.Category, &ev.Tags, &ev.SignupLink, &ev.GrantsVersion, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Status = events.Status(status)
	ev.Date = ev.Date.UTC()
	if ev.Tags == nil {
		ev.Tags = []string{}
	}
	return &ev, nil
}

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (ev *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("create_event", start, err) }(time.Now())

	d := params.Draft
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err = r.queryer().Exec(ctx, `
INSERT INTO events (id, organizer_id, organizer_name, status, title, description, venue,
                    event_date, category, tags, signup_link, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		params.ID, params.Organizer.ID, params.Organizer.Name, string(params.Status),
		d.Title, d.Description, d.Venue, d.Date.UTC(), d.Category, tags, d.SignupLink, params.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return loadEvent(ctx, r.queryer(), params.ID)
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (ev *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("get_event", start, err) }(time.Now())
	return loadEvent(ctx, r.queryer(), id)
}

// loadEvent reads the event row, its grants and its media in one round trip.
func loadEvent(ctx context.Context, q queryer, id string) (*events.Event, error) {
	batch := &pgx.Batch{}
	batch.Queue(`SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id)
	batch.Queue(grantsQuery, []string{id})
	batch.Queue(mediaQuery, []string{id})

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	ev, err := scanEvent(results.QueryRow())
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &events.NotFoundError{Resource: "event", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	byEvent := map[string]*events.Event{ev.ID: ev}
	if err := scanGrants(results, byEvent); err != nil {
		return nil, err
	}
	if err := scanMedia(results, byEvent); err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *EventRepository) List(ctx context.Context, query events.ListQuery) (out []events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("list_events", start, err) }(time.Now())

	q := r.queryer()
	rows, err := q.Query(ctx, `
SELECT `+eventColumns+`
  FROM events e
 WHERE (
         ($1 = '' AND e.status = 'ativo')
      OR ($1 <> '' AND (
             e.organizer_id = $1
          OR EXISTS (SELECT 1 FROM event_grants g
                      WHERE g.event_id = e.id AND g.subject_id = $1
                        AND g.kind = 'editar' AND g.expires_at > $2::timestamptz)))
       )
   AND ($3 = '' OR e.status = $3)
   AND ($4 = '' OR e.category = $4)
   AND ($5 = '' OR $5 = ANY (e.tags))
   AND ($6 = '' OR e.title ILIKE $6)
   AND ($7 = '' OR e.description ILIKE $7)
   AND ($8 = '' OR e.venue ILIKE $8)
   AND ($9::timestamptz IS NULL OR e.event_date >= $9)
   AND ($10::timestamptz IS NULL OR e.event_date < $10)
 ORDER BY e.event_date, e.id
 LIMIT $11 OFFSET $12`,
		query.ViewerID, query.Now.UTC(), string(query.Status), query.Category, query.Tag,
		containsPattern(query.Title), containsPattern(query.Description), containsPattern(query.Venue),
		nullTime(query.From), nullTime(query.To), query.Limit, query.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var list []*events.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		list = append(list, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(list) == 0 {
		return []events.Event{}, nil
	}

	ids := make([]string, len(list))
	byEvent := make(map[string]*events.Event, len(list))
	for i, ev := range list {
		ids[i] = ev.ID
		byEvent[ev.ID] = ev
	}

	batch := &pgx.Batch{}
	batch.Queue(grantsQuery, ids)
	batch.Queue(mediaQuery, ids)
	results := q.SendBatch(ctx, batch)
	defer results.Close()
	if err := scanGrants(results, byEvent); err != nil {
		return nil, err
	}
	if err := scanMedia(results, byEvent); err != nil {
		return nil, err
	}

	out = make([]events.Event, len(list))
	for i, ev := range list {
		out[i] = *ev
	}
	return out, nil
}

func (r *EventRepository) UpdateDescriptive(ctx context.Context, id string, patch events.DescriptivePatch) (ev *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("update_event", start, err) }(time.Now())

	var tags any
	if patch.Tags != nil {
		tags = *patch.Tags
	}
	var date any
	if patch.Date != nil {
		date = patch.Date.UTC()
	}

	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET title       = COALESCE($2::text, title),
       description = COALESCE($3::text, description),
       venue       = COALESCE($4::text, venue),
       event_date  = COALESCE($5::timestamptz, event_date),
       category    = COALESCE($6::text, category),
       tags        = COALESCE($7::text[], tags),
       signup_link = COALESCE($8::text, signup_link),
       updated_at  = now()
 WHERE id = $1`,
		id, patch.Title, patch.Description, patch.Venue, date, patch.Category, tags, patch.SignupLink,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, &events.NotFoundError{Resource: "event", ID: id}
	}
	return loadEvent(ctx, r.queryer(), id)
}

func (r *EventRepository) UpdateStatus(ctx context.Context, id string, status events.Status) (ev *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("update_status", start, err) }(time.Now())

	tag, err := r.queryer().Exec(ctx,
		`UPDATE events SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, &events.NotFoundError{Resource: "event", ID: id}
	}
	return loadEvent(ctx, r.queryer(), id)
}

func (r *EventRepository) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { metrics.RecordQuery("delete_event", start, err) }(time.Now())

	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &events.NotFoundError{Resource: "event", ID: id}
	}
	return nil
}

// inTx runs fn in the repository's transaction, or in a new one when there is none.
func (r *EventRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.queryer(), fn)
}

// lockEvent takes a row lock on the event so concurrent writers serialize.
func lockEvent(ctx context.Context, tx pgx.Tx, id string) error {
	var found string
	err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return &events.NotFoundError{Resource: "event", ID: id}
	}
	if err != nil {
		return fmt.Errorf("lock event: %w", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern builds an ILIKE substring pattern, or "" when there is nothing to match.
func containsPattern(s string) string {
	if s == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(s) + "%"
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
