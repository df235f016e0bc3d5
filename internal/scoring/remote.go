package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const (
	remoteSteps  = 4
	maxBodyBytes = 4 << 20
)

// HTTPScorer submits a site to a RateMySite-compatible backend and parses
// the returned report.
type HTTPScorer struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

func NewHTTPScorer(endpoint, userAgent string, client *http.Client) *HTTPScorer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPScorer{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    client,
	}
}

func (s *HTTPScorer) Analyze(ctx context.Context, target string, r Reporter) (Fields, error) {
	r.Progress("Preparing request", 1, remoteSteps)
	norm, err := NormalizeURL(target)
	if err != nil {
		r.Debug("ERROR: " + err.Error())
		return nil, err
	}
	if norm != target {
		r.Debug("Normalized target to " + norm)
	}

	form := url.Values{"url": {norm}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json, text/html;q=0.9, text/plain;q=0.8")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	r.Progress("Submitting to RateMySite", 2, remoteSteps)
	r.Debug(fmt.Sprintf("Submitting %s to %s", norm, s.endpoint))
	resp, err := s.client.Do(req)
	if err != nil {
		r.Debug("ERROR: request failed: " + err.Error())
		return nil, fmt.Errorf("submit %s: %w", norm, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		r.Debug(fmt.Sprintf("Backend returned status %d", resp.StatusCode))
		return nil, fmt.Errorf("ratemysite status %d: %s", resp.StatusCode, snippet(body, 200))
	}

	r.Progress("Parsing output", 3, remoteSteps)
	text := reportText(resp.Header.Get("Content-Type"), body)
	r.Debug(fmt.Sprintf("Extracted %d characters of result text", len(text)))
	if text == "" {
		r.Debug("No result text found in backend response")
		return nil, ErrNoResult
	}

	fields := ParseFields(norm, text)
	r.Progress("Done", remoteSteps, remoteSteps)
	return fields, nil
}

// reportText turns a backend response body into plain report text.
func reportText(contentType string, body []byte) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/json":
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err == nil {
			for _, k := range []string{"report", "result", "text", "output"} {
				if v, ok := doc[k].(string); ok {
					return strings.TrimSpace(v)
				}
			}
		}
		return strings.TrimSpace(string(body))
	case "text/html", "application/xhtml+xml":
		return htmlText(string(body))
	default:
		return strings.TrimSpace(string(body))
	}
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// htmlText returns the visible text of an HTML document, one line per block
// element. Script and style contents are skipped.
func htmlText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseBlankLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skip++
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				continue
			}
			if s := b.String(); s != "" && s[len(s)-1] != '\n' {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func snippet(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
