package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hutracker/internal/burndown"
	"hutracker/internal/config"
	"hutracker/internal/db"
	"hutracker/internal/domain"
	"hutracker/internal/engine"
	"hutracker/internal/migrate"
	"hutracker/internal/rollup"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Calendar.Timezone = "UTC"
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String() + "/v0",
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func (s *testServer) createCheckout(t *testing.T) domain.Initiative {
	t.Helper()
	res, data := s.do(t, http.MethodPost, "/initiatives", map[string]any{
		"name": "Checkout", "start_date": "2024-07-01", "due_date": "2024-07-26", "sprint_days": 10,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create initiative: %d %s", res.StatusCode, data)
	}
	var ini domain.Initiative
	if err := json.Unmarshal(data, &ini); err != nil {
		t.Fatalf("unmarshal initiative: %v", err)
	}
	return ini
}

func TestItemLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ini := srv.createCheckout(t)

	res, data := srv.do(t, http.MethodPost, "/initiatives/"+ini.ID+"/items", map[string]any{
		"Title": "Login", "Original Estimate": 18, "Completed Work": 5,
		"Start Date": "2024-07-01", "Due Date": "2024-07-05", "Sprint": "1",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add item: %d %s", res.StatusCode, data)
	}
	var item domain.WorkItem
	_ = json.Unmarshal(data, &item)
	if item.CompletedWork != 0 || item.RemainingWork != 18 || item.Sprint != "1" {
		t.Fatalf("unexpected item %+v", item)
	}

	res, data = srv.do(t, http.MethodPatch, "/items/"+item.ID, map[string]any{"field": "Completed Work", "value": "9"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("edit item: %d %s", res.StatusCode, data)
	}
	_ = json.Unmarshal(data, &item)
	if item.RemainingWork != 9 {
		t.Fatalf("remaining should follow completed work, got %v", item.RemainingWork)
	}

	res, data = srv.do(t, http.MethodGet, "/initiatives/"+ini.ID+"/summary?today=2024-07-03", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary: %d %s", res.StatusCode, data)
	}
	var sum rollup.InitiativeSummary
	_ = json.Unmarshal(data, &sum)
	if sum.TotalSprints != 2 || sum.TotalOriginal != 18 || sum.CompletionPercent != 50 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	res, data = srv.do(t, http.MethodGet, "/initiatives/"+ini.ID+"/burndown?today=2024-07-03&sprint=1&baseline=36", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("burndown: %d %s", res.StatusCode, data)
	}
	var bd burndown.Result
	_ = json.Unmarshal(data, &bd)
	if len(bd.Points) == 0 || bd.Points[0].Baseline == nil || *bd.Points[0].Baseline != 36 {
		t.Fatalf("baseline should start the ideal line: %s", data)
	}

	res, data = srv.do(t, http.MethodGet, "/initiatives/"+ini.ID+"/reports?today=2024-07-03", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"deviation":"Ahead"`) {
		t.Fatalf("reports: %d %s", res.StatusCode, data)
	}

	res, data = srv.do(t, http.MethodGet, "/initiatives/"+ini.ID+"/sprints", nil)
	if res.StatusCode != http.StatusOK || string(bytes.TrimSpace(data)) != `["General","1","2"]` {
		t.Fatalf("sprints: %d %s", res.StatusCode, data)
	}

	res, data = srv.do(t, http.MethodDelete, "/items/"+item.ID, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete item: %d %s", res.StatusCode, data)
	}

	res, data = srv.do(t, http.MethodGet, "/events?initiative="+ini.ID+"&entity_kind=item", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, data)
	}
	var evts []EventResponse
	_ = json.Unmarshal(data, &evts)
	if len(evts) != 3 || evts[0].Type != "item.deleted" || evts[2].ActorID != "tester" {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestImportReplacesItems(t *testing.T) {
	srv := newTestServer(t)
	ini := srv.createCheckout(t)

	table := `[
  ["Title", "Original Estimate", "Completed Work", "Sprint", "Due Date", "State"],
  ["Login", 20, 20, 1, "2024-07-12", "Done"],
  ["Cart", 30, 10, 1, "2024-07-12", "In Progress"],
  ["Search", 10, 0, 2, "2024-07-30", "ToDo"]
]`
	res, data := srv.do(t, http.MethodPut, "/initiatives/"+ini.ID+"/items", table)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import: %d %s", res.StatusCode, data)
	}
	var out ImportResponse
	_ = json.Unmarshal(data, &out)
	if out.Count != 3 || !out.Items[2].IsAdditional || out.Items[0].Initiative != "Checkout" {
		t.Fatalf("unexpected import %+v", out)
	}

	res, data = srv.do(t, http.MethodGet, "/totals", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("totals: %d %s", res.StatusCode, data)
	}
	var totals []rollup.Totals
	_ = json.Unmarshal(data, &totals)
	if len(totals) != 1 || totals[0].Original != 60 || totals[0].Remaining != 30 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	res, data = srv.do(t, http.MethodPut, "/initiatives/"+ini.ID+"/items", `[{"Title": "ok"}, {"Title": "bad", "Original Estimate": "abc"}]`)
	if res.StatusCode != http.StatusBadRequest || !strings.Contains(string(data), `"index":1`) {
		t.Fatalf("invalid rows must be reported: %d %s", res.StatusCode, data)
	}
	res, data = srv.do(t, http.MethodPut, "/initiatives/"+ini.ID+"/items", `{"name": "not rows"}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("non collection import: %d %s", res.StatusCode, data)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	ini := srv.createCheckout(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing initiative", http.MethodGet, "/initiatives/nope", nil, http.StatusNotFound, "not_found"},
		{"duplicate initiative", http.MethodPost, "/initiatives", map[string]any{"name": "Checkout"}, http.StatusConflict, "conflict"},
		{"missing title", http.MethodPost, "/initiatives/" + ini.ID + "/items", map[string]any{"Original Estimate": 3}, http.StatusBadRequest, "validation_error"},
		{"bad today", http.MethodGet, "/initiatives/" + ini.ID + "/summary?today=someday", nil, http.StatusBadRequest, "validation_error"},
		{"bad baseline", http.MethodGet, "/initiatives/" + ini.ID + "/burndown?baseline=-2", nil, http.StatusBadRequest, "validation_error"},
		{"missing item", http.MethodPatch, "/items/nope", map[string]any{"field": "title", "value": "x"}, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := srv.do(t, tc.method, tc.path, tc.body)
			if res.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, res.StatusCode, data)
			}
			var env struct {
				Error apiErrorBody `json:"error"`
			}
			if err := json.Unmarshal(data, &env); err != nil || env.Error.Code != tc.code {
				t.Fatalf("expected code %q, got %s", tc.code, data)
			}
		})
	}
}

func TestHealthAndOpenAPI(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodGet, "/health", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "ok") {
		t.Fatalf("health: %d %s", res.StatusCode, data)
	}
	res, data = srv.do(t, http.MethodGet, "/openapi.json", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "/initiatives/{id}/burndown") {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
}

func TestViewRoutesBindPathAndToday(t *testing.T) {
	srv := newTestServer(t)
	srv.createCheckout(t)
	res, data := srv.do(t, http.MethodPost, "/initiatives/Checkout/items", map[string]any{
		"Title": "Login", "Original Estimate": 18, "Start Date": "2024-07-01", "Due Date": "2024-07-05", "Sprint": "1",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add item: %d %s", res.StatusCode, data)
	}

	for _, view := range []string{"summary", "burndown", "reports", "sprints"} {
		t.Run(view, func(t *testing.T) {
			res, data := srv.do(t, http.MethodGet, "/initiatives/Checkout/"+view+"?today=2024-07-03", nil)
			if res.StatusCode != http.StatusOK {
				t.Fatalf("%s by name: %d %s", view, res.StatusCode, data)
			}
		})
	}

	cases := []struct {
		today string
		want  string
	}{
		{"2024-07-03", `"deviation":"Ahead"`},
		{"2024-07-10", `"deviation":"Delayed"`},
	}
	for _, tc := range cases {
		res, data := srv.do(t, http.MethodGet, "/initiatives/Checkout/reports?today="+tc.today, nil)
		if res.StatusCode != http.StatusOK || !strings.Contains(string(data), tc.want) {
			t.Fatalf("today=%s: expected %s, got %d %s", tc.today, tc.want, res.StatusCode, data)
		}
	}
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv := newTestServer(t)
	const n = 8
	bodies := make(chan string, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := srv.client.Get(srv.URL + "/openapi.json")
			if err != nil {
				errs <- err
				return
			}
			defer res.Body.Close()
			data, err := io.ReadAll(res.Body)
			if err != nil {
				errs <- err
				return
			}
			bodies <- string(data)
		}()
	}
	wg.Wait()
	close(bodies)
	close(errs)
	for err := range errs {
		t.Fatalf("openapi request: %v", err)
	}
	var first string
	for b := range bodies {
		if first == "" {
			first = b
		}
		if b == "" || b != first {
			t.Fatalf("every request should serve the same document")
		}
	}
}

func TestWebhookDelivery(t *testing.T) {
	srv := newTestServer(t)
	srv.createCheckout(t)

	var (
		mu       sync.Mutex
		received []string
		sigs     []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r.Header.Get("X-Hutracker-Event"))
		sigs = append(sigs, r.Header.Get("X-Hutracker-Signature")+"|"+sign("s3cret", body))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.WebhookConfig{URL: hook.URL, Events: []string{"initiative.created"}, Secret: "s3cret"}
	d := &webhookDispatcher{engine: srv.Engine, webhooks: []config.WebhookConfig{cfg}, client: hook.Client()}
	ctx := context.Background()

	// the first pass only pins the cursor at the end of the log
	d.dispatchAll(ctx)
	if len(received) != 0 {
		t.Fatalf("existing events must not be replayed, got %v", received)
	}

	srv.do(t, http.MethodPost, "/initiatives", map[string]any{"name": "Search"})
	srv.do(t, http.MethodPatch, "/initiatives/Search", map[string]any{"field": "sprint_days", "value": 5})
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "initiative.created" {
		t.Fatalf("expected one filtered delivery, got %v", received)
	}
	parts := strings.SplitN(sigs[0], "|", 2)
	if parts[0] != "sha256="+parts[1] {
		t.Fatalf("signature mismatch: %s", sigs[0])
	}
	cur, err := srv.Engine.Repo.WebhookCursor(ctx, hook.URL)
	last, _ := srv.Engine.Repo.LatestEventID(ctx)
	if err != nil || cur != last {
		t.Fatalf("cursor should advance past filtered events: %d vs %d (%v)", cur, last, err)
	}
}
