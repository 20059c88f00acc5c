package events

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Togather-Foundation/eventos/internal/sanitize"
	"github.com/Togather-Foundation/eventos/internal/validation"
)

// newValidator reports fields by their JSON names so errors match the payload the caller
// sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// toValidationError converts the first validator failure into a *ValidationError.
func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &ValidationError{
		Field:   fe.Field(),
		Message: fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()),
	}
}

// sanitizeDraft strips markup in place. Titles, venues and tags are plain text; the
// description keeps safe formatting.
func sanitizeDraft(d *Draft) {
	d.Title = sanitize.Text(d.Title)
	d.Description = sanitize.HTML(d.Description)
	d.Venue = sanitize.Text(d.Venue)
	d.Category = sanitize.Text(d.Category)
	d.Tags = sanitize.Tags(d.Tags)
	d.SignupLink = strings.TrimSpace(d.SignupLink)
}

// sanitizePatch replaces every set field with a sanitized copy, leaving the caller's
// values untouched.
func sanitizePatch(p *DescriptivePatch) {
	clean := func(s *string, fn func(string) string) *string {
		if s == nil {
			return nil
		}
		v := fn(*s)
		return &v
	}
	p.Title = clean(p.Title, sanitize.Text)
	p.Venue = clean(p.Venue, sanitize.Text)
	p.Category = clean(p.Category, sanitize.Text)
	p.Description = clean(p.Description, sanitize.HTML)
	p.SignupLink = clean(p.SignupLink, strings.TrimSpace)
	if p.Tags != nil {
		tags := sanitize.Tags(*p.Tags)
		if tags == nil {
			tags = []string{}
		}
		p.Tags = &tags
	}
}

func (s *Service) validateDraft(d *Draft) error {
	sanitizeDraft(d)
	if err := s.validate.Struct(d); err != nil {
		return toValidationError(err)
	}
	return checkSignupLink(d.SignupLink)
}

// checkSignupLink narrows the validator's url tag to http and https.
func checkSignupLink(link string) error {
	if err := validation.HTTPURL(link, "linkInscricao", false); err != nil {
		return &ValidationError{Field: "linkInscricao", Message: "linkInscricao failed on 'http_url'", Err: err}
	}
	return nil
}

func (s *Service) validatePatch(p *DescriptivePatch) error {
	if p.Empty() {
		return &ValidationError{Message: "nenhum campo para atualizar"}
	}
	sanitizePatch(p)
	if err := s.validate.Struct(p); err != nil {
		return toValidationError(err)
	}
	if p.Date != nil && p.Date.IsZero() {
		return &ValidationError{Field: "dataEvento", Message: "dataEvento failed on 'required'"}
	}
	if p.SignupLink != nil {
		return checkSignupLink(*p.SignupLink)
	}
	return nil
}
