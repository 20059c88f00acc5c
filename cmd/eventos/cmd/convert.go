package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Togather-Foundation/eventos/internal/config"
	"github.com/Togather-Foundation/eventos/internal/domain/events"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
)

func mediaDirs(raw map[string]string) (map[media.Class]string, error) {
	dirs := make(map[media.Class]string, len(raw))
	for name, dir := range raw {
		class, err := media.ParseClass(name)
		if err != nil {
			return nil, fmt.Errorf("media dirs: %w", err)
		}
		dirs[class] = dir
	}
	return dirs, nil
}

// mediaRules overlays configured fields onto the default rule of each class. Zero values
// keep the default.
func mediaRules(raw map[string]config.MediaRuleConfig) (media.Rules, error) {
	defaults := media.DefaultRules()
	rules := make(media.Rules, len(raw))
	for name, rc := range raw {
		class, err := media.ParseClass(name)
		if err != nil {
			return nil, fmt.Errorf("media rules: %w", err)
		}
		rule := defaults[class]
		if rc.Width > 0 {
			rule.Dimensions.Width = rc.Width
		}
		if rc.Height > 0 {
			rule.Dimensions.Height = rc.Height
		}
		if rc.MaxBytes > 0 {
			rule.MaxBytes = rc.MaxBytes
		}
		if len(rc.Extensions) > 0 {
			rule.Extensions = make([]string, len(rc.Extensions))
			for i, ext := range rc.Extensions {
				rule.Extensions[i] = "." + strings.TrimPrefix(strings.ToLower(ext), ".")
			}
		}
		rules[class] = rule
	}
	return rules, nil
}

type ruleView struct {
	Class      media.Class `json:"tipo"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Extensions []string    `json:"extensions"`
	Formats    []string    `json:"formats"`
	MaxBytes   int64       `json:"maxBytes"`
	Probed     bool        `json:"probed"`
}

// describeRules lists the active rule of each class in processing order.
func describeRules(v *media.Validator) []ruleView {
	out := make([]ruleView, 0, len(media.Classes))
	for _, class := range media.Classes {
		rule, ok := v.Rule(class)
		if !ok {
			continue
		}
		out = append(out, ruleView{
			Class:      class,
			Width:      rule.Dimensions.Width,
			Height:     rule.Dimensions.Height,
			Extensions: rule.Extensions,
			Formats:    rule.Formats,
			MaxBytes:   rule.MaxBytes,
			Probed:     rule.Probe,
		})
	}
	return out
}

// parseGrant reads SUBJECT=EXPIRY where EXPIRY is RFC 3339.
func parseGrant(raw string) (events.GrantRequest, error) {
	subject, expiry, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(subject) == "" {
		return events.GrantRequest{}, fmt.Errorf("grant %q: expected SUBJECT=EXPIRY", raw)
	}
	expiresAt, err := time.Parse(time.RFC3339, strings.TrimSpace(expiry))
	if err != nil {
		return events.GrantRequest{}, fmt.Errorf("grant %q: %w", raw, err)
	}
	return events.GrantRequest{
		SubjectID: strings.TrimSpace(subject),
		Kind:      events.GrantKindEdit,
		ExpiresAt: expiresAt,
	}, nil
}

// parseListBound reads an RFC 3339 instant or a bare 2006-01-02 date (UTC). With
// wholeDay a bare date moves to the following midnight so an exclusive upper bound still
// covers that day.
func parseListBound(raw string, wholeDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: expected RFC 3339 or YYYY-MM-DD", raw)
	}
	if wholeDay {
		day = day.AddDate(0, 0, 1)
	}
	return day, nil
}

// stageFile copies src into dir so promotion never consumes the user's original.
func stageFile(dir, src string, width, height int) (media.StagedFile, error) {
	in, err := os.Open(src)
	if err != nil {
		return media.StagedFile{}, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.CreateTemp(dir, "staged-*"+filepath.Ext(src))
	if err != nil {
		return media.StagedFile{}, fmt.Errorf("stage %s: %w", src, err)
	}
	size, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(out.Name())
		return media.StagedFile{}, fmt.Errorf("stage %s: %w", src, err)
	}
	return media.StagedFile{
		Path:      out.Name(),
		Filename:  filepath.Base(src),
		SizeBytes: size,
		Width:     width,
		Height:    height,
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
