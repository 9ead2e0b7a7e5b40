// Package gatewaytest provides an in-memory gateway.Client for tests. It
// evaluates composed queries against seeded rows with the same predicate
// semantics the backend applies, and exposes hand-driven change feeds so
// tests control realtime delivery ordering.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"citymeet/mobile/internal/gateway"
	"citymeet/mobile/internal/models"

	"github.com/google/uuid"
)

type Fake struct {
	mu     sync.Mutex
	tables map[string][]gateway.Row
	unique map[string][][]string
	subs   map[string][]*FakeSubscription

	SessionValue *models.Session
	SessionErr   error

	// Hooks for error injection and race orchestration. All are optional.
	BeforeSelect func(q gateway.Query)
	SelectErr    func(q gateway.Query) error
	InsertErr    func(collection string) error
	UpdateErr    func(collection string) error
	DeleteErr    func(collection string) error

	InsertedRows map[string][]gateway.Row
}

func New() *Fake {
	return &Fake{
		tables:       make(map[string][]gateway.Row),
		unique:       make(map[string][][]string),
		subs:         make(map[string][]*FakeSubscription),
		InsertedRows: make(map[string][]gateway.Row),
	}
}

// Seed appends rows to a collection without uniqueness checks.
func (f *Fake) Seed(collection string, rows ...gateway.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[collection] = append(f.tables[collection], rows...)
}

// Unique declares a uniqueness constraint; Insert violating it fails with a
// duplicate-key APIError, like the backend would.
func (f *Fake) Unique(collection string, columns ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unique[collection] = append(f.unique[collection], columns)
}

// Rows returns the current contents of a collection.
func (f *Fake) Rows(collection string) []gateway.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Row(nil), f.tables[collection]...)
}

func (f *Fake) Select(ctx context.Context, q gateway.Query) ([]gateway.Row, error) {
	if f.BeforeSelect != nil {
		f.BeforeSelect(q)
	}
	if f.SelectErr != nil {
		if err := f.SelectErr(q); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	var matched []gateway.Row
	for _, row := range f.tables[q.Collection] {
		if matchesQuery(row, q) {
			matched = append(matched, row)
		}
	}
	f.mu.Unlock()

	sortRows(matched, q.Order)
	if q.Single {
		if len(matched) == 0 {
			return nil, gateway.NotFound(q.Collection)
		}
		return matched[:1], nil
	}
	return matched, nil
}

func (f *Fake) Insert(ctx context.Context, collection string, rows []gateway.Row) error {
	if f.InsertErr != nil {
		if err := f.InsertErr(collection); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		for _, constraint := range f.unique[collection] {
			for _, existing := range f.tables[collection] {
				if sameKey(existing, row, constraint) {
					return gateway.Conflict(collection)
				}
			}
		}
		if row.ID() == "" {
			row["id"] = uuid.NewString()
		}
		f.tables[collection] = append(f.tables[collection], row)
		f.InsertedRows[collection] = append(f.InsertedRows[collection], row)
	}
	return nil
}

func (f *Fake) Update(ctx context.Context, collection string, patch gateway.Row, conds []gateway.Cond) error {
	if f.UpdateErr != nil {
		if err := f.UpdateErr(collection); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.tables[collection] {
		if matchesConds(row, conds) {
			for column, value := range patch {
				row[column] = value
			}
		}
	}
	return nil
}

func (f *Fake) Delete(ctx context.Context, collection string, conds []gateway.Cond) error {
	if f.DeleteErr != nil {
		if err := f.DeleteErr(collection); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tables[collection][:0]
	for _, row := range f.tables[collection] {
		if !matchesConds(row, conds) {
			kept = append(kept, row)
		}
	}
	f.tables[collection] = kept
	return nil
}

func (f *Fake) Session(ctx context.Context) (*models.Session, error) {
	return f.SessionValue, f.SessionErr
}

func (f *Fake) Subscribe(ctx context.Context, collection, filter string, buffer int) (gateway.Subscription, error) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &FakeSubscription{Collection: collection, Filter: filter, ch: make(chan gateway.Change, buffer)}
	f.mu.Lock()
	f.subs[collection] = append(f.subs[collection], sub)
	f.mu.Unlock()
	return sub, nil
}

// Subscriptions returns the feeds opened against a collection.
func (f *Fake) Subscriptions(collection string) []*FakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSubscription(nil), f.subs[collection]...)
}

type FakeSubscription struct {
	Collection string
	Filter     string

	mu     sync.Mutex
	ch     chan gateway.Change
	closed bool
}

func (s *FakeSubscription) Changes() <-chan gateway.Change { return s.ch }

func (s *FakeSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Closed reports whether the consumer released the feed.
func (s *FakeSubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Push delivers a change to the consumer, blocking until accepted.
func (s *FakeSubscription) Push(change gateway.Change) {
	s.ch <- change
}

func matchesQuery(row gateway.Row, q gateway.Query) bool {
	if !matchesConds(row, q.Conds) {
		return false
	}
	for _, group := range q.Or {
		matched := false
		for _, cond := range group.Conds {
			if matchesCond(row, cond) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func matchesConds(row gateway.Row, conds []gateway.Cond) bool {
	for _, cond := range conds {
		if !matchesCond(row, cond) {
			return false
		}
	}
	return true
}

func matchesCond(row gateway.Row, cond gateway.Cond) bool {
	value, ok := row[cond.Column]
	if !ok {
		return false
	}
	switch cond.Op {
	case gateway.OpEq:
		return literal(value) == literal(cond.Value)
	case gateway.OpIlike:
		return strings.Contains(strings.ToLower(literal(value)), strings.ToLower(literal(cond.Value)))
	case gateway.OpGte:
		return compare(value, cond.Value) >= 0
	case gateway.OpLte:
		return compare(value, cond.Value) <= 0
	case gateway.OpOverlaps:
		have := stringSet(value)
		for _, want := range stringSlice(cond.Value) {
			if _, ok := have[want]; ok {
				return true
			}
		}
		return false
	case gateway.OpIn:
		for _, want := range stringSlice(cond.Value) {
			if literal(value) == want {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func sameKey(a, b gateway.Row, columns []string) bool {
	for _, column := range columns {
		if literal(a[column]) != literal(b[column]) {
			return false
		}
	}
	return true
}

func sortRows(rows []gateway.Row, order []gateway.OrderKey) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range order {
			c := compare(rows[i][key.Column], rows[j][key.Column])
			if c == 0 {
				continue
			}
			if key.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// compare orders two values numerically when both parse as numbers, else
// lexicographically. ISO dates and HH:MM:SS times order correctly as
// strings.
func compare(a, b any) int {
	as, bs := literal(a), literal(b)
	af, aerr := strconv.ParseFloat(as, 64)
	bf, berr := strconv.ParseFloat(bs, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(as, bs)
}

func literal(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func stringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, literal(item))
		}
		return out
	default:
		return nil
	}
}

func stringSet(value any) map[string]struct{} {
	out := make(map[string]struct{})
	for _, item := range stringSlice(value) {
		out[item] = struct{}{}
	}
	return out
}
