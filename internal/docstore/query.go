package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Direction is the sort direction of an ordered query.
type Direction int

const (
	Asc Direction = iota
	Desc
)

type filter struct {
	field  string
	value  any
	values []any
	in     bool
}

type order struct {
	field string
	dir   Direction
}

// Query describes a read over one collection. The builder methods return
// copies, so a Query can be shared and extended safely.
type Query struct {
	collection string
	filters    []filter
	order      *order
	limit      int
}

// From starts a query over a collection.
func From(collection string) Query { return Query{collection: collection} }

// Where adds an equality filter.
func (q Query) Where(field string, value any) Query {
	q.filters = append(append([]filter{}, q.filters...), filter{field: field, value: value})
	return q
}

// WhereIn adds a set-membership filter. At most MaxInValues values are
// accepted when the query runs.
func WhereIn[T any](q Query, field string, values []T) Query {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	q.filters = append(append([]filter{}, q.filters...), filter{field: field, values: vs, in: true})
	return q
}

// OrderBy sets the result ordering.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.order = &order{field: field, dir: dir}
	return q
}

// Limit caps the number of results; n <= 0 means no limit.
func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// Collection returns the queried collection.
func (q Query) Collection() string { return q.collection }

// Ordered reports whether the query has an explicit ordering.
func (q Query) Ordered() bool { return q.order != nil }

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.collection)
	for _, f := range q.filters {
		if f.in {
			fmt.Fprintf(&b, " %s in %v", f.field, f.values)
		} else {
			fmt.Fprintf(&b, " %s == %v", f.field, f.value)
		}
	}
	if q.order != nil {
		dir := "asc"
		if q.order.dir == Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order by %s %s", q.order.field, dir)
	}
	if q.limit > 0 {
		fmt.Fprintf(&b, " limit %d", q.limit)
	}
	return b.String()
}

// Index is a declared composite index: equality fields followed by the
// ordered field.
type Index struct {
	Collection string
	Fields     []string
}

// DefaultIndexes are the composite indexes a standard deployment declares.
var DefaultIndexes = []Index{
	{Collection: "messages", Fields: []string{"chatId", "timestamp"}},
	{Collection: "chats", Fields: []string{"ownerUid", "updatedAt"}},
	{Collection: "chats", Fields: []string{"businessId", "updatedAt"}},
	{Collection: "requests", Fields: []string{"businessId", "createdAt"}},
}

// ParseIndexes parses "col:field,field;col:field,field". An empty string
// yields no indexes.
func ParseIndexes(s string) ([]Index, error) {
	var out []Index
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		col, fields, ok := strings.Cut(part, ":")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return nil, fmt.Errorf("docstore: bad index spec %q", part)
		}
		var fs []string
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fs = append(fs, f)
			}
		}
		if len(fs) < 2 {
			return nil, fmt.Errorf("docstore: index %q needs at least two fields", part)
		}
		out = append(out, Index{Collection: col, Fields: fs})
	}
	return out, nil
}

// validate checks value-list sizes and composite index coverage.
func (q Query) validate(indexes []Index) error {
	if q.collection == "" {
		return ErrInvalidQuery
	}
	for _, f := range q.filters {
		if f.in && len(f.values) > MaxInValues {
			return fmt.Errorf("%w: %d > %d", ErrTooManyValues, len(f.values), MaxInValues)
		}
	}
	if q.order == nil || len(q.filters) == 0 {
		return nil
	}
	needed := map[string]struct{}{}
	for _, f := range q.filters {
		if f.field != q.order.field {
			needed[f.field] = struct{}{}
		}
	}
	if len(needed) == 0 {
		return nil
	}
	for _, ix := range indexes {
		if ix.Collection != q.collection || len(ix.Fields) != len(needed)+1 {
			continue
		}
		if ix.Fields[len(ix.Fields)-1] != q.order.field {
			continue
		}
		covered := true
		for _, f := range ix.Fields[:len(ix.Fields)-1] {
			if _, ok := needed[f]; !ok {
				covered = false
				break
			}
		}
		if covered {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrIndexRequired, q)
}

// sortDocs orders docs by the query ordering, breaking ties by creation
// time and id so results are stable.
func (q Query) sortDocs(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if q.order != nil {
			c := compareValues(docs[i].Data[q.order.field], docs[j].Data[q.order.field])
			if c != 0 {
				if q.order.dir == Desc {
					return c > 0
				}
				return c < 0
			}
		}
		if !docs[i].CreateTime.Equal(docs[j].CreateTime) {
			return docs[i].CreateTime.Before(docs[j].CreateTime)
		}
		return docs[i].ID < docs[j].ID
	})
}

// typeRank orders values of different kinds: null < bool < number <
// timestamp < string < other.
func typeRank(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, int, int64, json.Number:
		return 2
	case time.Time:
		return 3
	case string:
		if _, ok := parseTime(val); ok {
			return 3
		}
		return 4
	default:
		return 5
	}
}

func parseTime(s string) (time.Time, bool) {
	if len(s) < len("2006-01-02T15:04:05Z") || s[4] != '-' {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// toInt reports v as an exact integer when it is one.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		tt, _ := parseTime(t)
		return tt
	}
	return time.Time{}
}

// compareValues returns -1, 0 or 1.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		if ia, ok := toInt(a); ok {
			if ib, ok := toInt(b); ok {
				switch {
				case ia < ib:
					return -1
				case ia > ib:
					return 1
				}
				return 0
			}
		}
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		ta, tb := toTime(a), toTime(b)
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		}
		return 0
	case 4:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

// Chunk splits values into consecutive slices of at most size elements.
func Chunk[T any](values []T, size int) [][]T {
	if size <= 0 {
		size = MaxInValues
	}
	var out [][]T
	for len(values) > 0 {
		n := size
		if len(values) < n {
			n = len(values)
		}
		out = append(out, values[:n:n])
		values = values[n:]
	}
	return out
}

// QueryIn runs q once per chunk of values with a WhereIn(field, chunk)
// filter, in parallel, and concatenates the results in chunk order.
func QueryIn[T any](ctx context.Context, st Store, q Query, field string, values []T) ([]Document, error) {
	chunks := Chunk(values, MaxInValues)
	results := make([][]Document, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, chunk := range chunks {
		g.Go(func() error {
			docs, err := st.Query(gctx, WhereIn(q, field, chunk))
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Document
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
