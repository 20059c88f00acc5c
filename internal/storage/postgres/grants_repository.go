package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Togather-Foundation/eventos/internal/domain/events"
	"github.com/Togather-Foundation/eventos/internal/metrics"
)

const grantsQuery = `
SELECT event_id, subject_id, kind, expires_at
  FROM event_grants
 WHERE event_id = ANY ($1::text[])
 ORDER BY event_id, position`

func scanGrants(results pgx.BatchResults, byEvent map[string]*events.Event) error {
	rows, err := results.Query()
	if err != nil {
		return fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID, kind string
		var g events.Grant
		if err := rows.Scan(&eventID, &g.SubjectID, &kind, &g.ExpiresAt); err != nil {
			return fmt.Errorf("scan grant: %w", err)
		}
		g.Kind = events.GrantKind(kind)
		g.ExpiresAt = g.ExpiresAt.UTC()
		if ev, ok := byEvent[eventID]; ok {
			ev.Grants = append(ev.Grants, g)
		}
	}
	return rows.Err()
}

// ApplyGrantPlan bumps grants_version only if it still equals plan.ExpectedVersion, then
// writes every update and append as one batch in the same transaction.
func (r *EventRepository) ApplyGrantPlan(ctx context.Context, id string, plan events.GrantPlan) (ev *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("apply_grant_plan", start, err) }(time.Now())

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE events
   SET grants_version = grants_version + 1, updated_at = now()
 WHERE id = $1 AND grants_version = $2`, id, plan.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("bump grants version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("check event: %w", err)
			}
			if !exists {
				return &events.NotFoundError{Resource: "event", ID: id}
			}
			return fmt.Errorf("grants of event %s changed since version %d: %w", id, plan.ExpectedVersion, events.ErrConflict)
		}

		batch := &pgx.Batch{}
		for _, u := range plan.Updates {
			batch.Queue(`
UPDATE event_grants SET kind = $3, expires_at = $4
 WHERE event_id = $1 AND subject_id = $2`,
				id, u.Grant.SubjectID, string(u.Grant.Kind), u.Grant.ExpiresAt.UTC())
		}
		for _, g := range plan.Appends {
			batch.Queue(`
INSERT INTO event_grants (event_id, subject_id, kind, expires_at, position)
VALUES ($1, $2, $3, $4,
        (SELECT COALESCE(MAX(position), -1) + 1 FROM event_grants WHERE event_id = $1))`,
				id, g.SubjectID, string(g.Kind), g.ExpiresAt.UTC())
		}

		results := tx.SendBatch(ctx, batch)
		for i := range plan.Updates {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("update grant %s: %w", plan.Updates[i].Grant.SubjectID, err)
			}
			if tag.RowsAffected() != 1 {
				_ = results.Close()
				return fmt.Errorf("grant %s of event %s vanished: %w", plan.Updates[i].Grant.SubjectID, id, events.ErrConflict)
			}
		}
		for _, g := range plan.Appends {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert grant %s: %w", g.SubjectID, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("grant batch: %w", err)
		}

		ev, err = loadEvent(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}
