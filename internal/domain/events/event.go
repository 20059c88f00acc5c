// Package events implements the event lifecycle: who may change an event, how delegated
// edit grants are reconciled, and how media is attached and detached without leaving
// orphaned records or files behind.
package events

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Togather-Foundation/eventos/internal/domain/media"
)

// Status is the publication state of an event. No status is terminal.
type Status string

const (
	StatusInactive  Status = "inativo"
	StatusActive    Status = "ativo"
	StatusCancelled Status = "cancelado"
)

// ParseStatus validates raw. cancelado is only accepted when cancelledEnabled is set.
func ParseStatus(raw string, cancelledEnabled bool) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusInactive, StatusActive:
		return s, nil
	case StatusCancelled:
		if cancelledEnabled {
			return s, nil
		}
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("status '%s' inválido", raw)}
}

// Organizer is the owning account, captured from the caller at creation.
type Organizer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Caller is the resolved identity of whoever invokes an operation.
type Caller struct {
	ID   string
	Name string
}

// GrantKind is the capability a grant confers. Only editar exists.
type GrantKind string

const GrantKindEdit GrantKind = "editar"

// Grant is a time-bounded delegated permission for one subject.
type Grant struct {
	SubjectID string    `json:"usuarioId"`
	Kind      GrantKind `json:"permissao"`
	ExpiresAt time.Time `json:"expiraEm"`
}

// ValidAt reports whether the grant confers edit rights at now. Expiry is exclusive.
func (g Grant) ValidAt(now time.Time) bool {
	return g.Kind == GrantKindEdit && now.Before(g.ExpiresAt)
}

// Event is a loaded snapshot.
type Event struct {
	ID            string       `json:"id"`
	Organizer     Organizer    `json:"organizador"`
	Status        Status       `json:"status"`
	Title         string       `json:"titulo"`
	Description   string       `json:"descricao"`
	Venue         string       `json:"local"`
	Date          time.Time    `json:"dataEvento"`
	Category      string       `json:"categoria"`
	Tags          []string     `json:"tags"`
	SignupLink    string       `json:"linkInscricao,omitempty"`
	Grants        []Grant      `json:"permissoes"`
	GrantsVersion int64        `json:"-"`
	MediaCover    []media.Item `json:"midiaCapa"`
	MediaVideo    []media.Item `json:"midiaVideo"`
	MediaCarousel []media.Item `json:"midiaCarrossel"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Media returns the list for class, or nil for an unknown class.
func (e *Event) Media(class media.Class) []media.Item {
	switch class {
	case media.ClassCover:
		return e.MediaCover
	case media.ClassVideo:
		return e.MediaVideo
	case media.ClassCarousel:
		return e.MediaCarousel
	}
	return nil
}

// SetMedia replaces the list for class.
func (e *Event) SetMedia(class media.Class, items []media.Item) {
	switch class {
	case media.ClassCover:
		e.MediaCover = items
	case media.ClassVideo:
		e.MediaVideo = items
	case media.ClassCarousel:
		e.MediaCarousel = items
	}
}

// MissingMedia lists the classes with no items, in processing order.
func (e *Event) MissingMedia() []media.Class {
	var missing []media.Class
	for _, class := range media.Classes {
		if len(e.Media(class)) == 0 {
			missing = append(missing, class)
		}
	}
	return missing
}

// MediaURLs returns every artifact URL the event references.
func (e *Event) MediaURLs() []string {
	var urls []string
	for _, class := range media.Classes {
		for _, item := range e.Media(class) {
			urls = append(urls, item.URL)
		}
	}
	return urls
}

// GrantFor returns the grant held by subjectID, if any.
func (e *Event) GrantFor(subjectID string) (Grant, bool) {
	i := slices.IndexFunc(e.Grants, func(g Grant) bool { return g.SubjectID == subjectID })
	if i < 0 {
		return Grant{}, false
	}
	return e.Grants[i], true
}

// Draft holds the descriptive fields of a new event.
type Draft struct {
	Title       string    `json:"titulo" validate:"required,max=200"`
	Description string    `json:"descricao" validate:"max=10000"`
	Venue       string    `json:"local" validate:"required,max=300"`
	Date        time.Time `json:"dataEvento" validate:"required"`
	Category    string    `json:"categoria" validate:"max=100"`
	Tags        []string  `json:"tags" validate:"max=20,dive,max=50"`
	SignupLink  string    `json:"linkInscricao" validate:"omitempty,url,max=2048"`
}

// DescriptivePatch lists the only fields a descriptive update may touch. Nil fields are
// left unchanged. Organizer, grants, status and media have no representation here.
type DescriptivePatch struct {
	Title       *string    `json:"titulo,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"descricao,omitempty" validate:"omitempty,max=10000"`
	Venue       *string    `json:"local,omitempty" validate:"omitempty,min=1,max=300"`
	Date        *time.Time `json:"dataEvento,omitempty"`
	Category    *string    `json:"categoria,omitempty" validate:"omitempty,max=100"`
	Tags        *[]string  `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	SignupLink  *string    `json:"linkInscricao,omitempty" validate:"omitempty,url,max=2048"`
}

// Empty reports whether the patch changes nothing.
func (p DescriptivePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Venue == nil && p.Date == nil &&
		p.Category == nil && p.Tags == nil && p.SignupLink == nil
}

// ApplyTo copies the set fields onto ev.
func (p DescriptivePatch) ApplyTo(ev *Event) {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Venue != nil {
		ev.Venue = *p.Venue
	}
	if p.Date != nil {
		ev.Date = *p.Date
	}
	if p.Category != nil {
		ev.Category = *p.Category
	}
	if p.Tags != nil {
		ev.Tags = slices.Clone(*p.Tags)
	}
	if p.SignupLink != nil {
		ev.SignupLink = *p.SignupLink
	}
}

// SetStatusParams configures a status transition. RequireMedia enforces that all three
// media lists are non-empty before an event becomes ativo.
type SetStatusParams struct {
	Status       Status
	RequireMedia bool
}

// Period selects events by calendar day relative to the listing time (UTC days).
type Period string

const (
	PeriodPast     Period = "anteriores"
	PeriodToday    Period = "hoje"
	PeriodUpcoming Period = "futuros"
)

// ParsePeriod validates raw.
func ParsePeriod(raw string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PeriodPast, PeriodToday, PeriodUpcoming:
		return p, nil
	}
	return "", &ValidationError{Field: "tipo", Message: fmt.Sprintf("tipo '%s' inválido", raw)}
}

// Filters narrow a listing. Title, Description and Venue match case-insensitive
// substrings. From is inclusive and To exclusive; a Period replaces both. Page starts at 1.
type Filters struct {
	Status      Status
	Title       string
	Description string
	Venue       string
	Category    string
	Tag         string
	From        time.Time
	To          time.Time
	Period      Period
	Limit       int
	Page        int
}

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

func (f Filters) normalized() Filters {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	if f.Page < 1 {
		f.Page = 1
	}
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Venue = strings.TrimSpace(f.Venue)
	f.Category = strings.TrimSpace(f.Category)
	f.Tag = strings.TrimSpace(f.Tag)
	return f
}

// resolvePeriod turns Period into a date window around now and clears it.
func (f Filters) resolvePeriod(now time.Time) Filters {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)
	switch f.Period {
	case PeriodPast:
		f.From, f.To = time.Time{}, today
	case PeriodToday:
		f.From, f.To = today, tomorrow
	case PeriodUpcoming:
		f.From, f.To = tomorrow, time.Time{}
	}
	f.Period = ""
	return f
}

// Offset is the number of rows skipped before the current page.
func (f Filters) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ListQuery is a listing as seen by one viewer. An empty ViewerID restricts the result to
// ativo events; otherwise only events the viewer organizes or holds a grant valid at Now
// on are returned.
type ListQuery struct {
	Filters
	ViewerID string
	Now      time.Time
}

// CreateParams is a fully prepared event row.
type CreateParams struct {
	ID        string
	Organizer Organizer
	Status    Status
	Draft     Draft
	CreatedAt time.Time
}

// MediaRecord pairs a stored item with its class for a batch append.
type MediaRecord struct {
	Class media.Class
	Item  media.Item
}
