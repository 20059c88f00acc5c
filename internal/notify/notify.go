// Package notify publishes change notifications for events and their media.
package notify

import (
	"context"
	"time"
)

// Topic constants
const (
	TopicEventCreated = "eventos.event.created"
	TopicEventUpdated = "eventos.event.updated"
	TopicEventStatus  = "eventos.event.status"
	TopicEventGrants  = "eventos.event.grants"
	TopicEventDeleted = "eventos.event.deleted"

	TopicMediaAttached = "eventos.media.attached"
	TopicMediaDetached = "eventos.media.detached"
)

// EventChanged is published on every event.* topic.
type EventChanged struct {
	EventID  string    `json:"event_id"`
	CallerID string    `json:"caller_id"`
	Status   string    `json:"status,omitempty"`
	Grants   int       `json:"grants,omitempty"`
	At       time.Time `json:"at"`
}

// MediaChanged is published on every media.* topic.
type MediaChanged struct {
	EventID  string    `json:"event_id"`
	CallerID string    `json:"caller_id"`
	Class    string    `json:"class"`
	MediaIDs []string  `json:"media_ids"`
	At       time.Time `json:"at"`
}

// Publisher is the interface for emitting notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
	Close() error
}

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
