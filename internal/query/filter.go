// Package query translates a structured event filter into a single composed
// gateway query.
package query

import (
	"strings"

	"citymeet/mobile/internal/gateway"
)

// Price slider bounds mirrored from the UI; the defaults make the
// always-applied price predicates a no-op.
const (
	MinPriceDefault = 0
	MaxPriceDefault = 1000
)

// EventColumns is the select expression used for every event fetch: base
// columns, the organizer profile join and the comment count aggregate.
const EventColumns = "id,title,description,date,end_date,time,location,city,event_price,image_url,category_ids,latitude,longitude,profiles(username,avatar_url),comments(count)"

// FilterSpec is the full search/filter state of the event list. Zero
// values mean "no restriction" except the price bounds, which always apply.
type FilterSpec struct {
	SearchText  string
	CategoryIDs []string
	City        string
	Date        string // exact calendar date, YYYY-MM-DD
	MinTime     string // inclusive, HH:MM
	MaxTime     string // inclusive, HH:MM
	MinPrice    float64
	MaxPrice    float64
}

// DefaultFilter returns the unrestricted spec (full price range).
func DefaultFilter() FilterSpec {
	return FilterSpec{MinPrice: MinPriceDefault, MaxPrice: MaxPriceDefault}
}

// Build composes the remote query. Search text is split on whitespace and
// every word becomes substring predicates against title, description and
// location, all joined into one disjunction: a record matches if ANY word
// matches ANY of the three fields. That is the shipped policy, not
// AND-of-words.
func (f FilterSpec) Build() gateway.Query {
	q := gateway.NewQuery("events", EventColumns)

	if len(f.CategoryIDs) > 0 {
		q = q.Overlaps("category_ids", f.CategoryIDs)
	}

	if words := strings.Fields(strings.TrimSpace(f.SearchText)); len(words) > 0 {
		group := gateway.OrGroup{}
		for _, word := range words {
			group.Conds = append(group.Conds,
				gateway.Cond{Column: "title", Op: gateway.OpIlike, Value: word},
				gateway.Cond{Column: "description", Op: gateway.OpIlike, Value: word},
				gateway.Cond{Column: "location", Op: gateway.OpIlike, Value: word},
			)
		}
		q = q.OrWhere(group)
	}

	if f.City != "" {
		q = q.Ilike("city", f.City)
	}
	if f.Date != "" {
		q = q.Eq("date", f.Date)
	}
	if f.MinTime != "" {
		q = q.Gte("time", f.MinTime)
	}
	if f.MaxTime != "" {
		q = q.Lte("time", f.MaxTime)
	}

	q = q.Gte("event_price", f.MinPrice)
	q = q.Lte("event_price", f.MaxPrice)

	// Date then time is the only defined ordering; ties beyond that are
	// left to the backend.
	return q.OrderBy("date", false).OrderBy("time", false)
}
