// Package query builds request bodies for the catalog's structured query
// language: `fields ...; search "..."; where ...; sort ... asc|desc; limit N;`.
package query

import (
	"strconv"
	"strings"
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// MaxLimit is the largest page the catalog accepts.
const MaxLimit = 500

// Builder accumulates clauses; String renders them in a fixed clause order so
// equal builders always produce equal query text.
type Builder struct {
	search    string
	hasSearch bool
	fields    []string
	where     []string
	sortField string
	sortOrder Order
	limit     int
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) Fields(fields ...string) *Builder {
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field != "" {
			b.fields = append(b.fields, field)
		}
	}
	return b
}

// Search sets the native full-text clause. The text is quoted and escaped.
func (b *Builder) Search(text string) *Builder {
	b.search = text
	b.hasSearch = true
	return b
}

// Where adds a predicate; multiple predicates are joined with `&`.
func (b *Builder) Where(predicate string) *Builder {
	predicate = strings.TrimSpace(predicate)
	if predicate != "" {
		b.where = append(b.where, predicate)
	}
	return b
}

func (b *Builder) Sort(field string, order Order) *Builder {
	b.sortField = strings.TrimSpace(field)
	if order != Asc {
		order = Desc
	}
	b.sortOrder = order
	return b
}

func (b *Builder) Limit(limit int) *Builder {
	b.limit = limit
	return b
}

func (b *Builder) String() string {
	var sb strings.Builder
	if b.hasSearch {
		sb.WriteString("search ")
		sb.WriteString(Quote(b.search))
		sb.WriteString("; ")
	}
	sb.WriteString("fields ")
	if len(b.fields) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(b.fields, ", "))
	}
	sb.WriteString(";")
	if len(b.where) > 0 {
		sb.WriteString(" where ")
		sb.WriteString(strings.Join(b.where, " & "))
		sb.WriteString(";")
	}
	if b.sortField != "" {
		sb.WriteString(" sort ")
		sb.WriteString(b.sortField)
		sb.WriteString(" ")
		sb.WriteString(string(b.sortOrder))
		sb.WriteString(";")
	}
	if b.limit > 0 {
		sb.WriteString(" limit ")
		sb.WriteString(strconv.Itoa(b.limit))
		sb.WriteString(";")
	}
	return sb.String()
}

// Quote wraps text in double quotes, escaping backslashes and quotes.
func Quote(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + 2)
	sb.WriteByte('"')
	for _, r := range text {
		switch r {
		case '\\', '"':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

// ClampLimit bounds a caller-supplied limit to [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
