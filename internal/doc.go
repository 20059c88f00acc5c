// Package internal documents the eventos internals.
//
// The internal tree is organized by responsibility:
// - domain/events: lifecycle service, access policy, grant manager and media store
// - domain/media: media classes and the staged-upload validator
// - storage: PostgreSQL repositories, disk and S3 artifact stores
// - config, metrics, notify, sanitize, telemetry, validation: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
