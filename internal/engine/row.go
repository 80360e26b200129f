package engine

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Row is one record from an uploaded file: normalized column name to raw
// string value. An empty string is treated as an absent value.
type Row map[string]string

// Sheet is one named sheet of a workbook upload.
type Sheet struct {
	Name string
	Rows []Row
}

// NormalizeHeader converts a raw column header to its canonical form:
// trimmed, lower-cased, with runs of whitespace and dashes collapsed to a
// single underscore. "School Code" and "school-code" both become
// "school_code".
func NormalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '-' || r == '_' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// Get returns the first non-empty value among the named columns, trimmed.
// Returns "" when none of the columns carry a value.
func (r Row) Get(names ...string) string {
	for _, n := range names {
		if v, ok := r[n]; ok {
			v = strings.TrimSpace(v)
			if v != "" {
				return v
			}
		}
	}
	return ""
}

// Has reports whether any of the named columns carries a non-empty value.
func (r Row) Has(names ...string) bool {
	return r.Get(names...) != ""
}

// Bool parses truthy values the way the upload format spells them:
// "true", "1", "yes" and "y" (case-insensitive) are true, everything else
// is false.
func (r Row) Bool(names ...string) bool {
	switch strings.ToLower(r.Get(names...)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}

// BoolDefaultTrue is the inverse convention used for is_active style
// columns: anything except an explicit "false" is true.
func (r Row) BoolDefaultTrue(names ...string) bool {
	return !strings.EqualFold(r.Get(names...), "false")
}

// Int parses an integer column, falling back to def on absence or garbage.
func (r Row) Int(def int, names ...string) int {
	v := r.Get(names...)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Float parses a float column, falling back to def on absence or garbage.
func (r Row) Float(def float64, names ...string) float64 {
	v := r.Get(names...)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// dateLayouts are the formats accepted for date columns. ISO first since
// that is what the templates produce; slash and dot forms cover hand-edited
// files.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"2.1.2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// ParseDate parses a date string against the accepted layouts. The zero
// time and false are returned for empty or unparseable input.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Date parses a date column, returning nil when absent or unparseable.
func (r Row) Date(names ...string) *time.Time {
	if t, ok := ParseDate(r.Get(names...)); ok {
		return &t
	}
	return nil
}

// DateOr parses a date column with a fallback for absent or bad values.
func (r Row) DateOr(def time.Time, names ...string) time.Time {
	if t, ok := ParseDate(r.Get(names...)); ok {
		return t
	}
	return def
}

// SplitList parses a list column. A JSON array is accepted as-is; anything
// else is treated as a comma-separated list. Empty items are dropped.
func SplitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var arr []string
		if err := json.Unmarshal([]byte(s), &arr); err == nil {
			return arr
		}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
