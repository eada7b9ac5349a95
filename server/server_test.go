package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/engine"
	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/fingerprint"
	"github.com/groupline/feedsim/backend/generate"
	"github.com/groupline/feedsim/backend/history"
	"github.com/groupline/feedsim/backend/joiner"
	"github.com/groupline/feedsim/backend/persona"
	"github.com/groupline/feedsim/backend/pool"
	"github.com/groupline/feedsim/backend/store"
	"github.com/groupline/feedsim/backend/testutil"
)

// newTestDeps wires a full dependency graph on the in-memory store. Auth and
// rate limiting envs are cleared so each test opts into them explicitly.
func newTestDeps(t *testing.T) Deps {
	t.Helper()
	for _, k := range []string{"ADMIN_USERNAME", "ADMIN_PASSWORD", "ADMIN_TOKEN", "RATE_LIMIT_REQUESTS_PER_IP", "RATE_LIMIT_ENABLED", "ENV", "CORS_PERMISSIVE"} {
		t.Setenv(k, "")
	}

	st := store.NewMemory()
	fp := fingerprint.NewStore(context.Background(), st, fingerprint.Options{})
	identity := persona.NewGenerator(testutil.SeededRand(1))
	gen := generate.NewGenerator(fp, identity, testutil.SeededRand(2))
	p := pool.New(gen, pool.Config{Min: 5, Target: 10, TickFloor: 2})
	view := feed.NewView(feed.Config{ViewportHeight: 600, NearBottomPx: 120, ScrollHidePx: 100})
	eng := engine.New(engine.Config{}, p, gen, view)
	presence := joiner.NewPresence(joiner.PresenceConfig{Members: 100, Online: 40, OnlineMin: 10, OnlineMax: 90})
	sim := joiner.New(joiner.Config{HistoryKeep: 100}, view, identity, presence, st)

	return Deps{
		Store:    st,
		View:     view,
		Pool:     p,
		Engine:   eng,
		Joiner:   sim,
		Presence: presence,
		Seeder:   &history.Seeder{Gen: gen, ChunkSize: 160, Yield: time.Millisecond},
		Prints:   fp,
		Config:   config.Config{SeedMinPerDay: 2, SeedMaxPerDay: 2},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, Deps) {
	t.Helper()
	deps := newTestDeps(t)
	srv := httptest.NewServer(NewMux(context.Background(), deps))
	t.Cleanup(srv.Close)
	return srv, deps
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Fatalf("missing correlation ID header")
	}
}

func TestReadyz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ready" {
		t.Fatalf("status = %q, want ready", body["status"])
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["engine_running"] != false || body["joiner_running"] != false {
		t.Fatalf("schedulers should start stopped: %v", body)
	}
	if body["members"] != float64(100) || body["online"] != float64(40) {
		t.Fatalf("presence counts = %v / %v", body["members"], body["online"])
	}
	for _, key := range []string{"pool_size", "rendered_nodes", "unseen", "indicator", "fingerprints"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("status missing %q", key)
		}
	}
}

func TestStatusMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestPostMessageOutgoing(t *testing.T) {
	srv, deps := newTestServer(t)
	resp, err := http.Post(srv.URL+"/messages", "application/json",
		bytes.NewBufferString(`{"text":"checking in from the road"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["id"] == "" {
		t.Fatalf("missing message id")
	}
	if deps.View.Len() == 0 {
		t.Fatalf("message not rendered")
	}
}

func TestPostMessageCustomName(t *testing.T) {
	srv, deps := newTestServer(t)
	resp, err := http.Post(srv.URL+"/messages", "application/json",
		bytes.NewBufferString(`{"name":"Dispatch","text":"rollout starts at noon"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var found bool
	for _, n := range deps.View.Snapshot(10) {
		if n.Type == feed.NodeMessage && n.Message.Kind == feed.KindOutgoing {
			found = true
			if n.Message.Persona.Name != "Dispatch" {
				t.Fatalf("persona = %q, want Dispatch", n.Message.Persona.Name)
			}
		}
	}
	if !found {
		t.Fatalf("outgoing node not rendered")
	}
}

func TestPostMessageBroadcast(t *testing.T) {
	srv, deps := newTestServer(t)
	resp, err := http.Post(srv.URL+"/messages", "application/json",
		bytes.NewBufferString(`{"kind":"broadcast","image":"assets/signal.jpg","caption":"BTC/USD H1 long\nEntry 64200"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var found bool
	for _, n := range deps.View.Snapshot(10) {
		if n.Type == feed.NodeMessage && n.Message.Kind == feed.KindBroadcast {
			found = true
			if n.Message.Text != "BTC/USD H1 long" {
				t.Fatalf("broadcast text = %q, want first caption line", n.Message.Text)
			}
			if n.Message.Persona.Name == "" || n.Message.Persona.Name == "You" {
				t.Fatalf("broadcast persona = %q, want admin", n.Message.Persona.Name)
			}
		}
	}
	if !found {
		t.Fatalf("broadcast node not rendered")
	}
}

func TestPostMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, payload := range []string{`{}`, `{"kind":"carrier-pigeon","text":"hi"}`, `not json`} {
		resp, err := http.Post(srv.URL+"/messages", "application/json", bytes.NewBufferString(payload))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %q: status = %d, want 400", payload, resp.StatusCode)
		}
	}
}

func TestFeedSnapshot(t *testing.T) {
	srv, deps := newTestServer(t)
	base := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := deps.View.AppendOne(persona.Persona{Name: "Marcus T."}, "steady gains today",
			feed.AppendOptions{Timestamp: base.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(srv.URL + "/feed?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var nodes []feed.Node
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("snapshot = %d nodes, want 2", len(nodes))
	}
}

func TestScrollAndSeen(t *testing.T) {
	srv, deps := newTestServer(t)
	id, err := deps.View.AppendOne(persona.Persona{Name: "Lena K."}, "locked in profits",
		feed.AppendOptions{Timestamp: time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/feed/scroll", "application/json", bytes.NewBufferString(`{"top":0}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scroll status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/feed/seen", "application/json",
		bytes.NewBufferString(`{"id":"`+id+`"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["seen"].(float64) < 1 {
		t.Fatalf("seen = %v, want >= 1", body["seen"])
	}

	resp, err = http.Post(srv.URL+"/feed/seen", "application/json", bytes.NewBufferString(`{"id":"nope"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", resp.StatusCode)
	}
}

func TestAdminAuthToken(t *testing.T) {
	deps := newTestDeps(t)
	t.Setenv("ADMIN_TOKEN", "sekrit")
	srv := httptest.NewServer(NewMux(context.Background(), deps))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/admin/pool")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/pool", nil)
	req.Header.Set("X-Admin-Token", "sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d, want 200", resp.StatusCode)
	}

	// open endpoints are never gated
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz behind auth: %d", resp.StatusCode)
	}
}

func TestAdminRateLimit(t *testing.T) {
	deps := newTestDeps(t)
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "2")
	srv := httptest.NewServer(NewMux(context.Background(), deps))
	defer srv.Close()

	var last int
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/admin/pool")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last)
	}
}

func TestAdminPoolEnsure(t *testing.T) {
	srv, deps := newTestServer(t)
	resp, err := http.Post(srv.URL+"/admin/pool/ensure?min=4", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["size"].(float64) < 4 {
		t.Fatalf("pool size = %v, want >= 4", body["size"])
	}
	if deps.Pool.Size() < 4 {
		t.Fatalf("pool not topped up: %d", deps.Pool.Size())
	}
}

func TestAdminSeed(t *testing.T) {
	srv, deps := newTestServer(t)
	payload := `{"start":"2025-06-10T00:00:00Z","end":"2025-06-12T00:00:00Z","minPerDay":2,"maxPerDay":2}`
	resp, err := http.Post(srv.URL+"/admin/seed", "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["posted"].(float64) != 4 {
		t.Fatalf("posted = %v, want 4", body["posted"])
	}
	if deps.View.Len() < 4 {
		t.Fatalf("seeded messages not rendered: %d", deps.View.Len())
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/messages", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("permissive CORS header missing")
	}
}
