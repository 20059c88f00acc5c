// Package media describes the three media classes an event carries and validates staged
// uploads against the geometry and container rules of each class.
//
// Validation is side-effect free: a rejected file is left where it was staged, and the
// caller decides whether to delete it.
package media

import (
	"fmt"
	"math"
	"strings"
)

// Class identifies one of an event's media collections.
type Class string

const (
	ClassCover    Class = "capa"
	ClassVideo    Class = "video"
	ClassCarousel Class = "carrossel"
)

// Classes lists every media class in the order batches are processed.
var Classes = []Class{ClassCover, ClassVideo, ClassCarousel}

// ErrUnknownClass is returned by ParseClass for anything outside Classes.
type ErrUnknownClass struct {
	Value string
}

func (e ErrUnknownClass) Error() string {
	return fmt.Sprintf("tipo de mídia '%s' não é permitido", e.Value)
}

// ParseClass maps a user-supplied class name to a Class.
func ParseClass(value string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(value)))
	if !c.Valid() {
		return "", ErrUnknownClass{Value: value}
	}
	return c, nil
}

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	switch c {
	case ClassCover, ClassVideo, ClassCarousel:
		return true
	}
	return false
}

func (c Class) String() string {
	return string(c)
}

// Dimensions is a width x height pair in pixels.
type Dimensions struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// StagedFile is an upload already written to disk by the transport layer and filtered by
// extension and MIME type there. Width and Height carry client-declared metadata and are
// only consulted for classes whose rule does not probe the container.
type StagedFile struct {
	Path      string
	Filename  string
	SizeBytes int64
	Width     int
	Height    int
}

// Item is a stored media record.
type Item struct {
	ID     string  `json:"id"`
	URL    string  `json:"url"`
	SizeMB float64 `json:"sizeMb"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// Dimensions returns the item's geometry.
func (i Item) Dimensions() Dimensions {
	return Dimensions{Width: i.Width, Height: i.Height}
}

const bytesPerMB = 1024 * 1024

// SizeInMB converts a byte count to megabytes rounded to two decimals. Non-empty files
// never round down to zero.
func SizeInMB(sizeBytes int64) float64 {
	if sizeBytes <= 0 {
		return 0
	}
	mb := math.Round(float64(sizeBytes)/bytesPerMB*100) / 100
	if mb < 0.01 {
		return 0.01
	}
	return mb
}
