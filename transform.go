package phishetl

import (
	"strings"
	"time"
)

// submissionLayouts are tried in order when parsing submission_time. They
// cover the ISO-8601 shapes the feed publishes: with or without offset
// (colon optional), "T" or space separated, seconds optional, and a bare date.
var submissionLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// truthy is the fixed set of verified tokens, compared after lower-casing.
var truthy = map[string]struct{}{
	"yes":  {},
	"y":    {},
	"true": {},
}

// Transformer maps one feed Row to a Record. It holds no state besides its
// clock and is safe for concurrent use.
type Transformer struct {
	now func() time.Time
}

// NewTransformer returns a Transformer stamping IngestedAt with the UTC wall
// clock.
func NewTransformer() *Transformer {
	return &Transformer{now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the clock used for IngestedAt.
func (t *Transformer) WithClock(now func() time.Time) *Transformer {
	if now != nil {
		t.now = now
	}
	return t
}

// Transform normalizes a row. ok is false when phish_id or url is empty after
// trimming; that is the only reason a row is skipped. Optional fields degrade
// instead of failing: an unparseable submission_time becomes nil and any
// verified value outside the truthy set becomes false.
func (t *Transformer) Transform(row Row) (rec Record, ok bool) {
	id := strings.TrimSpace(row.Value(ColumnPhishID))
	link := strings.TrimSpace(row.Value(ColumnURL))
	if id == "" || link == "" {
		return Record{}, false
	}

	rec = Record{
		ID:         id,
		URL:        link,
		Verified:   ParseVerified(row.Value(ColumnVerified)),
		IngestedAt: t.now(),
	}
	if ts, ok := ParseSubmissionTime(row.Value(ColumnSubmissionTime)); ok {
		rec.SubmittedAt = &ts
	}
	return rec, true
}

// ParseVerified reports whether v, lower-cased, is "yes", "y" or "true".
func ParseVerified(v string) bool {
	_, ok := truthy[strings.ToLower(v)]
	return ok
}

// ParseSubmissionTime parses the feed's timestamp format. Values without an
// offset are taken as UTC.
func ParseSubmissionTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range submissionLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
