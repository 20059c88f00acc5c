package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultMaxBytes is the per-file upload ceiling (25 MiB).
const DefaultMaxBytes int64 = 25 * 1024 * 1024

// Rule is the acceptance rule for one media class.
//
// When Probe is false the container is only sniffed for its type and the geometry is taken
// from the staged file's declared metadata, falling back to Dimensions when none is given.
type Rule struct {
	Dimensions Dimensions
	Extensions []string
	Formats    []string
	MaxBytes   int64
	Probe      bool
}

// Rules maps each class to its rule.
type Rules map[Class]Rule

// DefaultRules returns the stock 1280x720 rules for every class. Video geometry is trusted
// from the upload metadata; the container must be ISO-BMFF with an MP4-family brand
// (mp4*, isom, avc1, M4V, dash and similar), so QuickTime "qt  " files are refused.
func DefaultRules() Rules {
	hd := Dimensions{Width: 1280, Height: 720}
	images := []string{".jpg", ".jpeg", ".png"}
	return Rules{
		ClassCover: {
			Dimensions: hd,
			Extensions: images,
			Formats:    []string{"jpeg", "png"},
			MaxBytes:   DefaultMaxBytes,
			Probe:      true,
		},
		ClassCarousel: {
			Dimensions: hd,
			Extensions: images,
			Formats:    []string{"jpeg", "png"},
			MaxBytes:   DefaultMaxBytes,
			Probe:      true,
		},
		ClassVideo: {
			Dimensions: hd,
			Extensions: []string{".mp4"},
			Formats:    []string{"video/mp4"},
			MaxBytes:   DefaultMaxBytes,
			Probe:      false,
		},
	}
}

// ErrInvalidMedia is matched by every ValidationError.
var ErrInvalidMedia = errors.New("invalid media")

// ValidationError explains why a staged file was rejected. Expected and Actual are only set
// for geometry mismatches.
type ValidationError struct {
	Class    Class
	Filename string
	Field    string
	Message  string
	Expected Dimensions
	Actual   Dimensions
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Class, e.Filename, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidMedia
}

// Validator checks staged files against per-class rules.
type Validator struct {
	rules Rules
}

// NewValidator returns a validator for rules. Classes missing from rules fall back to
// DefaultRules.
func NewValidator(rules Rules) *Validator {
	merged := DefaultRules()
	for class, rule := range rules {
		merged[class] = rule
	}
	return &Validator{rules: merged}
}

// Rule returns the active rule for class.
func (v *Validator) Rule(class Class) (Rule, bool) {
	rule, ok := v.rules[class]
	return rule, ok
}

// Validate inspects file as a member of class and returns the media record it would
// produce. The returned Item has no ID or URL; those are assigned when it is stored.
func (v *Validator) Validate(file StagedFile, class Class) (Item, error) {
	rule, ok := v.rules[class]
	if !ok {
		return Item{}, &ValidationError{Class: class, Filename: file.Filename, Field: "tipo", Message: ErrUnknownClass{Value: string(class)}.Error()}
	}

	reject := func(field, format string, args ...any) (Item, error) {
		return Item{}, &ValidationError{
			Class:    class,
			Filename: file.Filename,
			Field:    field,
			Message:  fmt.Sprintf(format, args...),
		}
	}

	if file.SizeBytes <= 0 {
		return reject("tamanho", "arquivo vazio")
	}
	if rule.MaxBytes > 0 && file.SizeBytes > rule.MaxBytes {
		return reject("tamanho", "arquivo de %d bytes excede o limite de %d bytes", file.SizeBytes, rule.MaxBytes)
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if len(rule.Extensions) > 0 && !slices.Contains(rule.Extensions, ext) {
		return reject("extensao", "extensão '%s' inválida para o tipo de mídia '%s'", ext, class)
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return reject("arquivo", "arquivo não pode ser lido: %v", err)
	}
	defer f.Close()

	var actual Dimensions
	if rule.Probe {
		cfg, format, err := image.DecodeConfig(f)
		if err != nil {
			return reject("formato", "conteúdo não é uma imagem válida")
		}
		if len(rule.Formats) > 0 && !slices.Contains(rule.Formats, format) {
			return reject("formato", "formato '%s' não permitido para '%s'", format, class)
		}
		actual = Dimensions{Width: cfg.Width, Height: cfg.Height}
		if actual != rule.Dimensions {
			return Item{}, &ValidationError{
				Class:    class,
				Filename: file.Filename,
				Field:    "dimensoes",
				Message: fmt.Sprintf("Dimensões inválidas para %s. Esperado: %s px, recebido: %s px.",
					class, rule.Dimensions, actual),
				Expected: rule.Dimensions,
				Actual:   actual,
			}
		}
	} else {
		head := make([]byte, 512)
		n, err := io.ReadFull(f, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return reject("arquivo", "arquivo não pode ser lido: %v", err)
		}
		contentType := http.DetectContentType(head[:n])
		if contentType != "video/mp4" && isMP4Family(head[:n]) {
			contentType = "video/mp4"
		}
		if len(rule.Formats) > 0 && !slices.Contains(rule.Formats, contentType) {
			return reject("formato", "conteúdo '%s' não permitido para '%s'", contentType, class)
		}
		actual = rule.Dimensions
		if file.Width > 0 && file.Height > 0 {
			actual = Dimensions{Width: file.Width, Height: file.Height}
		}
	}

	return Item{
		SizeMB: SizeInMB(file.SizeBytes),
		Width:  actual.Width,
		Height: actual.Height,
	}, nil
}

// mp4Brands are ftyp brands of MP4-compatible files. http.DetectContentType only knows
// brands starting with "mp4".
var mp4Brands = map[string]bool{
	"isom": true, "iso2": true, "iso4": true, "iso5": true, "iso6": true,
	"mp41": true, "mp42": true, "avc1": true, "mmp4": true, "msnv": true,
	"M4V ": true, "M4VH": true, "M4VP": true, "dash": true,
}

// isMP4Family reports whether head opens with an ftyp box naming an MP4 brand, either
// as the major brand or among the compatible ones.
func isMP4Family(head []byte) bool {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return false
	}
	size := int(binary.BigEndian.Uint32(head[:4]))
	if size > len(head) {
		size = len(head)
	}
	if mp4Brands[string(head[8:12])] {
		return true
	}
	// bytes 12..16 hold the minor version
	for i := 16; i+4 <= size; i += 4 {
		if mp4Brands[string(head[i:i+4])] {
			return true
		}
	}
	return false
}
