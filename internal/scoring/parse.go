package scoring

import (
	"regexp"
	"strings"
)

const missing = "-"

type fieldKind int

const (
	scoreField fieldKind = iota
	lineField
	blockField
)

type fieldSpec struct {
	key      string
	kind     fieldKind
	patterns []*regexp.Regexp
}

func compile(kind fieldKind, labels ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(labels))
	for _, l := range labels {
		q := regexp.QuoteMeta(l)
		var expr string
		switch kind {
		case scoreField:
			expr = `(?i)` + q + `\s*[:\-]?\s*(\d{1,3})`
		case lineField:
			expr = `(?i)` + q + `\s*[:\-]?\s*([^\n]+)`
		case blockField:
			expr = `(?is)` + q + `\s*[:\-]?\s*(.+?)(?:\n\s*\n|\n[A-Z][^\n]{0,60}:\s|$)`
		}
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

func field(key string, kind fieldKind, labels ...string) fieldSpec {
	return fieldSpec{key: key, kind: kind, patterns: compile(kind, labels...)}
}

// fieldSpecs lists, per row, the labels tried in order against the raw
// report text.
var fieldSpecs = []fieldSpec{
	field("Company", lineField, "Company", "Site Name", "Website Name"),
	field("Overall Score", scoreField, "Overall Score", "Score", "Total Score"),
	field("Description of Website", blockField, "Description of Website", "Description", "Site Description"),
	field("Consumer Score", scoreField, "Consumer Score", "Customer Score", "End-user Score"),
	field("Developer Score", scoreField, "Developer Score", "Engineer Score", "Dev Score"),
	field("Investor Score", scoreField, "Investor Score"),
	field("Clarity Score", scoreField, "Clarity Score", "Readability Score"),
	field("Visual Design Score", scoreField, "Visual Design Score", "Design Score"),
	field("UX Score", scoreField, "UX Score", "Usability Score"),
	field("Trust Score", scoreField, "Trust Score", "Credibility Score"),
	field("Value Prop Score", scoreField, "Value Prop Score", "Value Proposition Score"),
}

func (f fieldSpec) extract(raw string) string {
	for _, re := range f.patterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return missing
}

// ParseFields extracts the comparison fields from a free-text report.
// Fields that cannot be located are set to "-".
func ParseFields(target, raw string) Fields {
	out := make(Fields, len(fieldSpecs)+2)
	for _, f := range fieldSpecs {
		out[f.key] = f.extract(raw)
	}
	out["URL"] = target
	out[RawKey] = raw
	return out
}
