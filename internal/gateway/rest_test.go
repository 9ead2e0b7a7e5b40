package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"citymeet/mobile/internal/config"
)

type captured struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

func newTestRest(t *testing.T, status int, response string, accessToken string) (*RestClient, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.Query()
		got.header = r.Header.Clone()
		got.body = string(body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	cfg := config.GatewayConfig{BaseURL: server.URL, APIKey: "anon-key", AccessToken: accessToken}
	return NewRestClient(cfg, nil, server.Client(), nil), got
}

// TestSelectRendersComposedQuery verifies predicate, disjunction and
// ordering rendering for a representative filter.
func TestSelectRendersComposedQuery(t *testing.T) {
	client, got := newTestRest(t, http.StatusOK, "[]", "")

	q := NewQuery("events", "id,title").
		Overlaps("category_ids", []string{"c1", "c2"}).
		Ilike("city", "kyiv").
		Eq("date", "2025-06-10").
		Gte("event_price", float64(0)).
		Lte("event_price", float64(1000)).
		OrWhere(OrGroup{Conds: []Cond{
			{Column: "title", Op: OpIlike, Value: "jazz"},
			{Column: "description", Op: OpIlike, Value: "jazz"},
		}}).
		OrderBy("date", false).
		OrderBy("time", false)

	if _, err := client.Select(context.Background(), q); err != nil {
		t.Fatalf("select error: %v", err)
	}

	if got.path != "/rest/v1/events" {
		t.Fatalf("unexpected path %s", got.path)
	}
	checks := map[string]string{
		"select":       "id,title",
		"category_ids": "ov.{c1,c2}",
		"city":         "ilike.*kyiv*",
		"date":         "eq.2025-06-10",
		"or":           "(title.ilike.*jazz*,description.ilike.*jazz*)",
		"order":        "date.asc,time.asc",
	}
	for param, want := range checks {
		if v := got.query.Get(param); v != want {
			t.Fatalf("param %s: expected %q, got %q", param, want, v)
		}
	}
	prices := got.query["event_price"]
	if len(prices) != 2 || prices[0] != "gte.0" || prices[1] != "lte.1000" {
		t.Fatalf("price bounds wrong: %v", prices)
	}
}

// TestSelectSingleUsesObjectAccept verifies the single-row accept header
// and row decoding.
func TestSelectSingleUsesObjectAccept(t *testing.T) {
	client, got := newTestRest(t, http.StatusOK, `{"id":"e1","title":"Meetup"}`, "")

	rows, err := client.Select(context.Background(), NewQuery("events", "id,title").Eq("id", "e1").One())
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	if got.header.Get("Accept") != "application/vnd.pgrst.object+json" {
		t.Fatalf("missing single-object accept header")
	}
	if len(rows) != 1 || rows[0].ID() != "e1" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

// TestAuthHeadersFallBackToAPIKey verifies the bearer token is the access
// token when present and the api key otherwise.
func TestAuthHeadersFallBackToAPIKey(t *testing.T) {
	client, got := newTestRest(t, http.StatusOK, "[]", "")
	if _, err := client.Select(context.Background(), NewQuery("events", "id")); err != nil {
		t.Fatalf("select error: %v", err)
	}
	if got.header.Get("apikey") != "anon-key" {
		t.Fatalf("apikey header missing")
	}
	if got.header.Get("Authorization") != "Bearer anon-key" {
		t.Fatalf("expected api key bearer, got %q", got.header.Get("Authorization"))
	}

	client, got = newTestRest(t, http.StatusOK, "[]", "user-token")
	if _, err := client.Select(context.Background(), NewQuery("events", "id")); err != nil {
		t.Fatalf("select error: %v", err)
	}
	if got.header.Get("Authorization") != "Bearer user-token" {
		t.Fatalf("expected user bearer, got %q", got.header.Get("Authorization"))
	}
}

// TestInsertSendsMinimalReturnPreference verifies the write request shape.
func TestInsertSendsMinimalReturnPreference(t *testing.T) {
	client, got := newTestRest(t, http.StatusCreated, "", "")

	err := client.Insert(context.Background(), "user_bookmarks", []Row{{"user_id": "u1", "event_id": "e1"}})
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}
	if got.method != http.MethodPost || got.path != "/rest/v1/user_bookmarks" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if got.header.Get("Prefer") != "return=minimal" {
		t.Fatalf("missing return preference")
	}
	if !strings.Contains(got.body, `"event_id":"e1"`) {
		t.Fatalf("payload incomplete: %s", got.body)
	}
}

// TestDeleteRendersConds verifies delete predicates land in the query
// string.
func TestDeleteRendersConds(t *testing.T) {
	client, got := newTestRest(t, http.StatusNoContent, "", "")

	conds := []Cond{
		{Column: "user_id", Op: OpEq, Value: "u1"},
		{Column: "event_id", Op: OpEq, Value: "e1"},
	}
	if err := client.Delete(context.Background(), "user_bookmarks", conds); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if got.method != http.MethodDelete {
		t.Fatalf("unexpected method %s", got.method)
	}
	if got.query.Get("user_id") != "eq.u1" || got.query.Get("event_id") != "eq.e1" {
		t.Fatalf("conds not rendered: %v", got.query)
	}
}

// TestErrorResponsesClassify verifies backend error payloads map onto the
// classification helpers.
func TestErrorResponsesClassify(t *testing.T) {
	client, _ := newTestRest(t, http.StatusConflict, `{"code":"23505","message":"duplicate key"}`, "")
	err := client.Insert(context.Background(), "comment_likes", []Row{{"user_id": "u1"}})
	if !IsConflict(err) {
		t.Fatalf("expected conflict classification, got %v", err)
	}
	if IsNotFound(err) {
		t.Fatalf("conflict must not classify as not-found")
	}

	client, _ = newTestRest(t, http.StatusNotAcceptable, `{"code":"PGRST116","message":"no rows"}`, "")
	_, err = client.Select(context.Background(), NewQuery("profiles", "id").Eq("id", "u1").One())
	if !IsNotFound(err) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}

// TestSessionAnonymousPaths verifies that a missing or rejected token
// resolves to no session without an error.
func TestSessionAnonymousPaths(t *testing.T) {
	client, _ := newTestRest(t, http.StatusOK, "{}", "")
	sess, err := client.Session(context.Background())
	if err != nil || sess != nil {
		t.Fatalf("tokenless client should be anonymous, got %v / %v", sess, err)
	}

	client, _ = newTestRest(t, http.StatusUnauthorized, "", "expired-token")
	sess, err = client.Session(context.Background())
	if err != nil || sess != nil {
		t.Fatalf("rejected token should be anonymous, got %v / %v", sess, err)
	}
}

// TestSessionReturnsUser verifies the signed-in session payload.
func TestSessionReturnsUser(t *testing.T) {
	client, got := newTestRest(t, http.StatusOK, `{"id":"u1","email":"alice@example.com"}`, "user-token")

	sess, err := client.Session(context.Background())
	if err != nil {
		t.Fatalf("session error: %v", err)
	}
	if got.path != "/auth/v1/user" {
		t.Fatalf("unexpected path %s", got.path)
	}
	if sess == nil || sess.UserID != "u1" || sess.Email != "alice@example.com" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if sess.AccessToken != "user-token" {
		t.Fatalf("access token not carried on session")
	}
}
