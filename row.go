package phishetl

import "strings"

// Header maps feed column names to positions. Built once per stream from the
// first line of the feed.
type Header struct {
	names []string
	index map[string]int
}

// NewHeader builds a Header from the column names of the first feed line.
// Names are trimmed and a leading UTF-8 byte order mark is dropped. When a
// name repeats, the first occurrence wins.
func NewHeader(columns []string) *Header {
	h := &Header{
		names: make([]string, len(columns)),
		index: make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if i == 0 {
			c = strings.TrimPrefix(c, "\ufeff")
		}
		c = strings.TrimSpace(c)
		h.names[i] = c
		if _, dup := h.index[c]; !dup {
			h.index[c] = i
		}
	}
	return h
}

// Has reports whether the feed declares the column.
func (h *Header) Has(column string) bool {
	_, ok := h.index[column]
	return ok
}

// Columns returns the column names in feed order.
func (h *Header) Columns() []string {
	return append([]string(nil), h.names...)
}

// Missing returns the columns from want that the header does not declare.
func (h *Header) Missing(want ...string) []string {
	var out []string
	for _, c := range want {
		if !h.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Row binds the values of one feed line to a Header.
func (h *Header) Row(line int, values []string) Row {
	return Row{header: h, values: values, line: line}
}

// Row is one line of the feed. Values are reached by column name through Get;
// columns the header does not declare, and trailing columns missing from a
// short line, are reported as absent rather than empty.
type Row struct {
	header *Header
	values []string
	line   int
}

// Get returns the raw value of a column and whether the row carries it.
func (r Row) Get(column string) (string, bool) {
	if r.header == nil {
		return "", false
	}
	i, ok := r.header.index[column]
	if !ok || i >= len(r.values) {
		return "", false
	}
	return r.values[i], true
}

// Value returns the raw value of a column, or "" when absent.
func (r Row) Value(column string) string {
	v, _ := r.Get(column)
	return v
}

// Line is the 1-based line number of the row in the feed (the header is line 1).
func (r Row) Line() int { return r.line }
