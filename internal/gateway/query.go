// Package gateway is the client of the hosted backend: a PostgREST-style
// query API, realtime change feeds and S3-compatible object storage. The
// rest of the app never talks to the network directly; it composes Query
// values and hands them to a Client.
package gateway

import (
	"context"
	"strconv"

	"citymeet/mobile/internal/models"
)

// Row is a single record as returned by the backend, keyed by column name.
type Row map[string]any

// Op is a filter operator understood by the backend.
type Op string

const (
	OpEq       Op = "eq"
	OpIlike    Op = "ilike" // case-insensitive substring match
	OpGte      Op = "gte"
	OpLte      Op = "lte"
	OpOverlaps Op = "ov" // array overlap (set intersection non-empty)
	OpIn       Op = "in"
)

// Cond is one column predicate.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

// OrGroup is a disjunction of predicates. A row matches the group when any
// of its conditions match; the group as a whole is ANDed with the rest of
// the query.
type OrGroup struct {
	Conds []Cond
}

type OrderKey struct {
	Column string
	Desc   bool
}

// Query is a composed read against one collection. Columns is the backend's
// select expression and may include embedded joins and count aggregates,
// e.g. "id,title,profiles(username),comments(count)".
type Query struct {
	Collection string
	Columns    string
	Conds      []Cond
	Or         []OrGroup
	Order      []OrderKey
	Single     bool
}

func NewQuery(collection, columns string) Query {
	return Query{Collection: collection, Columns: columns}
}

func (q Query) Eq(column string, value any) Query {
	q.Conds = append(q.Conds, Cond{Column: column, Op: OpEq, Value: value})
	return q
}

func (q Query) Ilike(column, substring string) Query {
	q.Conds = append(q.Conds, Cond{Column: column, Op: OpIlike, Value: substring})
	return q
}

func (q Query) Gte(column string, value any) Query {
	q.Conds = append(q.Conds, Cond{Column: column, Op: OpGte, Value: value})
	return q
}

func (q Query) Lte(column string, value any) Query {
	q.Conds = append(q.Conds, Cond{Column: column, Op: OpLte, Value: value})
	return q
}

func (q Query) Overlaps(column string, values []string) Query {
	q.Conds = append(q.Conds, Cond{Column: column, Op: OpOverlaps, Value: values})
	return q
}

func (q Query) In(column string, values []string) Query {
	q.Conds = append(q.Conds, Cond{Column: column, Op: OpIn, Value: values})
	return q
}

func (q Query) OrWhere(group OrGroup) Query {
	q.Or = append(q.Or, group)
	return q
}

func (q Query) OrderBy(column string, desc bool) Query {
	q.Order = append(q.Order, OrderKey{Column: column, Desc: desc})
	return q
}

// One marks the query as expecting exactly one row.
func (q Query) One() Query {
	q.Single = true
	return q
}

// ChangeKind is the type of a realtime row notification.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// Change is one realtime notification. Row carries the new row for inserts
// and updates; Old carries the previous row (often just its key columns)
// for deletes.
type Change struct {
	Kind ChangeKind
	Row  Row
	Old  Row
}

// Subscription is a live change feed for a filtered subset of a collection.
// Close must be called when the consumer goes away.
type Subscription interface {
	Changes() <-chan Change
	Close()
}

// Client is the full gateway surface the app depends on.
type Client interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Insert(ctx context.Context, collection string, rows []Row) error
	Update(ctx context.Context, collection string, patch Row, conds []Cond) error
	Delete(ctx context.Context, collection string, conds []Cond) error

	// Session returns the current signed-in session, or nil when anonymous.
	Session(ctx context.Context) (*models.Session, error)

	// Subscribe opens a change feed for rows of collection matching filter,
	// e.g. "event_id=eq.42". buffer sizes the delivery channel.
	Subscribe(ctx context.Context, collection, filter string, buffer int) (Subscription, error)
}

// ID extracts the row's id column as a string, tolerating numeric ids.
func (r Row) ID() string {
	return r.String("id")
}

// String reads a column as a string, rendering numeric ids the way the
// backend would (no exponent, no trailing zeroes).
func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}
