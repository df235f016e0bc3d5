// Package scoring defines the per-site scoring capability used by the
// analysis orchestrator, and the RateMySite-backed implementation of it.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrNoResult          = errors.New("No results found - check debug log")
)

// Reporter receives incremental notifications while a site is analyzed.
// Implementations must not block.
type Reporter interface {
	Progress(phase string, p, of int)
	Debug(msg string)
}

// Scorer analyzes a single site. Implementations should honor ctx for
// cancellation and deadlines.
type Scorer interface {
	Analyze(ctx context.Context, target string, r Reporter) (Fields, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, target string, r Reporter) (Fields, error)

func (f ScorerFunc) Analyze(ctx context.Context, target string, r Reporter) (Fields, error) {
	return f(ctx, target, r)
}

// Fields is the scored record of one site keyed by row key.
type Fields map[string]string

// RawKey holds the unparsed backend output alongside the parsed fields.
const RawKey = "_raw"

// Row pairs a Fields key with its display label.
type Row struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Rows is the display order of the comparison table and the export sheet.
var Rows = []Row{
	{"Company", "Company"},
	{"URL", "URL"},
	{"Overall Score", "Overall Score"},
	{"Description of Website", "Description of Website"},
	{"Consumer Score", "Audience Perspective → Consumer"},
	{"Developer Score", "Audience Perspective → Developer"},
	{"Investor Score", "Audience Perspective → Investor"},
	{"Clarity Score", "Technical Criteria → Clarity"},
	{"Visual Design Score", "Technical Criteria → Visual Design"},
	{"UX Score", "Technical Criteria → UX"},
	{"Trust Score", "Technical Criteria → Trust"},
	{"Value Prop Score", "Value Proposition"},
}

// NormalizeURL prefixes https:// when target has no scheme and rejects any
// scheme other than http and https.
func NormalizeURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", target, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse %q: missing host", target)
	}
	return u.String(), nil
}
