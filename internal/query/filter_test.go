package query

import (
	"context"
	"testing"

	"citymeet/mobile/internal/gateway"
	"citymeet/mobile/internal/gateway/gatewaytest"
)

func seedEvents(fake *gatewaytest.Fake) {
	fake.Seed("events",
		gateway.Row{
			"id": "e1", "title": "Kyiv Meetup", "description": "Networking evening",
			"location": "Hub Central", "city": "Kyiv", "date": "2025-06-10",
			"time": "18:00:00", "event_price": float64(0),
			"category_ids": []string{"c-tech"},
		},
		gateway.Row{
			"id": "e2", "title": "Jazz Night", "description": "Live tech demos and music",
			"location": "River Stage", "city": "Lviv", "date": "2025-06-09",
			"time": "20:00:00", "event_price": float64(250),
			"category_ids": []string{"c-music"},
		},
		gateway.Row{
			"id": "e3", "title": "Open Air Cinema", "description": "Classic films",
			"location": "Park Lane", "city": "Kyiv", "date": "2025-06-10",
			"time": "21:30:00", "event_price": float64(120),
			"category_ids": []string{"c-art", "c-film"},
		},
	)
}

// TestSearchMatchesAnyWordInAnyField verifies that search text is split
// into words and a record matches when any word hits any of title,
// description or location.
func TestSearchMatchesAnyWordInAnyField(t *testing.T) {
	fake := gatewaytest.New()
	seedEvents(fake)

	spec := DefaultFilter()
	spec.SearchText = "tech kyiv"
	rows, err := fake.Select(context.Background(), spec.Build())
	if err != nil {
		t.Fatalf("select error: %v", err)
	}

	// "kyiv" hits e1's title, "tech" hits e2's description; e3 matches
	// neither word in any field.
	ids := rowIDs(rows)
	if len(ids) != 2 {
		t.Fatalf("expected 2 events, got %d (%v)", len(ids), ids)
	}
	if ids[0] != "e2" || ids[1] != "e1" {
		t.Fatalf("unexpected result set %v", ids)
	}
}

// TestSearchIsCaseInsensitiveSubstring verifies that a word matches in the
// middle of a field regardless of case.
func TestSearchIsCaseInsensitiveSubstring(t *testing.T) {
	fake := gatewaytest.New()
	seedEvents(fake)

	spec := DefaultFilter()
	spec.SearchText = "MEET"
	rows, err := fake.Select(context.Background(), spec.Build())
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	ids := rowIDs(rows)
	if len(ids) != 1 || ids[0] != "e1" {
		t.Fatalf("expected [e1], got %v", ids)
	}
}

// TestCategoryFilterUsesSetIntersection verifies that an event matches when
// it carries at least one of the selected categories.
func TestCategoryFilterUsesSetIntersection(t *testing.T) {
	fake := gatewaytest.New()
	seedEvents(fake)

	spec := DefaultFilter()
	spec.CategoryIDs = []string{"c-music", "c-art"}
	rows, err := fake.Select(context.Background(), spec.Build())
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	ids := rowIDs(rows)
	if len(ids) != 2 {
		t.Fatalf("expected 2 events, got %v", ids)
	}
	if ids[0] != "e2" || ids[1] != "e3" {
		t.Fatalf("unexpected result set %v", ids)
	}
}

// TestPriceBoundsAreInclusiveAndAlwaysApplied verifies that events priced
// exactly at the bounds are kept and that out-of-range events are dropped
// even with an otherwise empty filter.
func TestPriceBoundsAreInclusiveAndAlwaysApplied(t *testing.T) {
	fake := gatewaytest.New()
	seedEvents(fake)

	spec := DefaultFilter()
	spec.MinPrice = 120
	spec.MaxPrice = 250
	rows, err := fake.Select(context.Background(), spec.Build())
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	ids := rowIDs(rows)
	if len(ids) != 2 || ids[0] != "e2" || ids[1] != "e3" {
		t.Fatalf("expected [e2 e3], got %v", ids)
	}

	// The default 0..1000 range keeps everything.
	rows, err = fake.Select(context.Background(), DefaultFilter().Build())
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected all 3 events under default bounds, got %d", len(rows))
	}
}

// TestTimeBoundsAreInclusive verifies the start/end time window keeps
// events exactly on its edges.
func TestTimeBoundsAreInclusive(t *testing.T) {
	fake := gatewaytest.New()
	seedEvents(fake)

	spec := DefaultFilter()
	spec.MinTime = "18:00:00"
	spec.MaxTime = "20:00:00"
	rows, err := fake.Select(context.Background(), spec.Build())
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	ids := rowIDs(rows)
	if len(ids) != 2 || ids[0] != "e2" || ids[1] != "e1" {
		t.Fatalf("expected [e2 e1], got %v", ids)
	}
}

// TestCityAndDateFilters verifies city substring matching combined with the
// exact date predicate.
func TestCityAndDateFilters(t *testing.T) {
	fake := gatewaytest.New()
	seedEvents(fake)

	spec := DefaultFilter()
	spec.City = "kyi"
	spec.Date = "2025-06-10"
	rows, err := fake.Select(context.Background(), spec.Build())
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	ids := rowIDs(rows)
	if len(ids) != 2 || ids[0] != "e1" || ids[1] != "e3" {
		t.Fatalf("expected [e1 e3], got %v", ids)
	}
}

// TestResultsOrderedByDateThenTime verifies the fixed ascending ordering.
func TestResultsOrderedByDateThenTime(t *testing.T) {
	fake := gatewaytest.New()
	seedEvents(fake)

	rows, err := fake.Select(context.Background(), DefaultFilter().Build())
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	ids := rowIDs(rows)
	want := []string{"e2", "e1", "e3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}
}

// TestBuildComposesSingleDisjunction verifies the query shape: all search
// words land in one OR group while the other predicates stay conjunctive.
func TestBuildComposesSingleDisjunction(t *testing.T) {
	spec := FilterSpec{
		SearchText:  "jazz park",
		CategoryIDs: []string{"c-music"},
		City:        "Kyiv",
		MinPrice:    MinPriceDefault,
		MaxPrice:    MaxPriceDefault,
	}
	q := spec.Build()

	if len(q.Or) != 1 {
		t.Fatalf("expected 1 OR group, got %d", len(q.Or))
	}
	// Two words across three fields.
	if len(q.Or[0].Conds) != 6 {
		t.Fatalf("expected 6 disjuncts, got %d", len(q.Or[0].Conds))
	}
	// overlaps + city + both price bounds.
	if len(q.Conds) != 4 {
		t.Fatalf("expected 4 conjunctive predicates, got %d", len(q.Conds))
	}
	if len(q.Order) != 2 || q.Order[0].Column != "date" || q.Order[1].Column != "time" {
		t.Fatalf("unexpected ordering %v", q.Order)
	}
	if q.Order[0].Desc || q.Order[1].Desc {
		t.Fatalf("ordering must be ascending")
	}
}

func rowIDs(rows []gateway.Row) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID())
	}
	return ids
}
