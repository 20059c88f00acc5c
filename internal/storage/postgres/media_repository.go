package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Togather-Foundation/eventos/internal/domain/events"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
	"github.com/Togather-Foundation/eventos/internal/metrics"
)

const mediaQuery = `
SELECT event_id, class, id, url, size_mb, width, height
  FROM event_media
 WHERE event_id = ANY ($1::text[])
 ORDER BY event_id, seq`

func scanMedia(results pgx.BatchResults, byEvent map[string]*events.Event) error {
	rows, err := results.Query()
	if err != nil {
		return fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	for _, ev := range byEvent {
		for _, class := range media.Classes {
			ev.SetMedia(class, []media.Item{})
		}
	}
	for rows.Next() {
		var eventID, class string
		var item media.Item
		if err := rows.Scan(&eventID, &class, &item.ID, &item.URL, &item.SizeMB, &item.Width, &item.Height); err != nil {
			return fmt.Errorf("scan media: %w", err)
		}
		if ev, ok := byEvent[eventID]; ok {
			c := media.Class(class)
			ev.SetMedia(c, append(ev.Media(c), item))
		}
	}
	return rows.Err()
}

// AppendMedia inserts all records under a row lock on the event, in one transaction.
func (r *EventRepository) AppendMedia(ctx context.Context, id string, records []events.MediaRecord) (ev *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("append_media", start, err) }(time.Now())

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockEvent(ctx, tx, id); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(`
INSERT INTO event_media (id, event_id, class, url, size_mb, width, height)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				rec.Item.ID, id, string(rec.Class), rec.Item.URL, rec.Item.SizeMB, rec.Item.Width, rec.Item.Height)
		}
		batch.Queue(`UPDATE events SET updated_at = now() WHERE id = $1`, id)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert media: %w", err)
		}

		ev, err = loadEvent(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// RemoveMedia deletes one record. A mismatch on event, class or id is a *NotFoundError
// naming whichever is missing.
func (r *EventRepository) RemoveMedia(ctx context.Context, id string, class media.Class, mediaID string) (item media.Item, err error) {
	defer func(start time.Time) { metrics.RecordQuery("remove_media", start, err) }(time.Now())

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockEvent(ctx, tx, id); err != nil {
			return err
		}

		err := tx.QueryRow(ctx, `
DELETE FROM event_media
 WHERE event_id = $1 AND class = $2 AND id = $3
RETURNING id, url, size_mb, width, height`,
			id, string(class), mediaID,
		).Scan(&item.ID, &item.URL, &item.SizeMB, &item.Width, &item.Height)
		if errors.Is(err, pgx.ErrNoRows) {
			return &events.NotFoundError{Resource: "media", ID: mediaID}
		}
		if err != nil {
			return fmt.Errorf("delete media: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE events SET updated_at = now() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("touch event: %w", err)
		}
		return nil
	})
	if err != nil {
		return media.Item{}, err
	}
	return item, nil
}
