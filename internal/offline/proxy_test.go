package offline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type upstreamFixture struct {
	srv  *httptest.Server
	hits map[string]*atomic.Int64
}

func newUpstream(t *testing.T) *upstreamFixture {
	t.Helper()
	f := &upstreamFixture{hits: map[string]*atomic.Int64{}}
	for _, p := range []string{"/", "/offline", "/style.css", "/v1/events", "/v1/events/e1/checkin"} {
		f.hits[p] = &atomic.Int64{}
	}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := f.hits[r.URL.Path]; ok {
			c.Add(1)
		}
		switch r.URL.Path {
		case "/offline":
			w.Write([]byte("offline page"))
		case "/v1/events":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok","data":[]}`))
		default:
			w.Write([]byte("content of " + r.URL.Path))
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func newTestProxy(t *testing.T, upstream string, queue *ActionQueue) *Proxy {
	t.Helper()
	log := zerolog.Nop()
	p, err := NewProxy(Config{
		Upstream:     upstream,
		APIPrefix:    "/v1/",
		CacheVersion: "v1",
		ShellRoutes:  []string{"/", "/offline"},
	}, queue, &log)
	if err != nil {
		t.Fatalf("failed to build proxy: %v", err)
	}
	return p
}

func doGet(t *testing.T, p *Proxy, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	return rec
}

func TestInstallWarmsShell(t *testing.T) {
	up := newUpstream(t)
	p := newTestProxy(t, up.srv.URL, nil)

	p.Install(context.Background())

	if got := p.staticCache().len(); got != 2 {
		t.Fatalf("expected 2 warmed routes, got %d", got)
	}

	// A warmed route is served without touching the upstream again.
	before := up.hits["/"].Load()
	rec := doGet(t, p, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if up.hits["/"].Load() != before {
		t.Fatal("cache-first hit must not reach the upstream")
	}
}

func TestStaticMissFetchesThenCaches(t *testing.T) {
	up := newUpstream(t)
	p := newTestProxy(t, up.srv.URL, nil)

	for i := 0; i < 3; i++ {
		rec := doGet(t, p, "/style.css", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if got := up.hits["/style.css"].Load(); got != 1 {
		t.Fatalf("expected one upstream fetch, got %d", got)
	}
}

func TestNavigationFallsBackToOfflinePage(t *testing.T) {
	up := newUpstream(t)
	p := newTestProxy(t, up.srv.URL, nil)
	p.Install(context.Background())
	up.srv.Close()

	nav := http.Header{"Accept": {"text/html,application/xhtml+xml"}}
	rec := doGet(t, p, "/some-uncached-page", nav)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "offline page") {
		t.Fatalf("expected offline fallback, got %d %q", rec.Code, rec.Body.String())
	}

	// Non-navigation requests get the raw failure.
	rec = doGet(t, p, "/other.css", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for non-navigation miss, got %d", rec.Code)
	}
}

func TestAPIIsNetworkFirst(t *testing.T) {
	up := newUpstream(t)
	p := newTestProxy(t, up.srv.URL, nil)

	for i := 0; i < 2; i++ {
		rec := doGet(t, p, "/v1/events", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if got := up.hits["/v1/events"].Load(); got != 2 {
		t.Fatalf("network-first must hit the upstream every time, got %d", got)
	}
}

func TestAPIStalenessWindow(t *testing.T) {
	up := newUpstream(t)
	p := newTestProxy(t, up.srv.URL, nil)

	start := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)
	now := start
	p.now = func() time.Time { return now }

	if rec := doGet(t, p, "/v1/events", nil); rec.Code != http.StatusOK {
		t.Fatalf("seed fetch failed: %d", rec.Code)
	}
	up.srv.Close()

	// Just inside the window: cached copy served, capture stamp exposed.
	now = start.Add(5*time.Minute - time.Second)
	rec := doGet(t, p, "/v1/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cached response inside the window, got %d", rec.Code)
	}
	if rec.Header().Get(CachedAtHeader) == "" {
		t.Fatal("cached API responses carry the capture timestamp")
	}

	// Just past the window: expired, failure propagates.
	now = start.Add(5*time.Minute + time.Second)
	rec = doGet(t, p, "/v1/events", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 past the window, got %d", rec.Code)
	}
}

func TestAPIKeyIsPerUser(t *testing.T) {
	up := newUpstream(t)
	p := newTestProxy(t, up.srv.URL, nil)

	u1 := http.Header{"X-User-ID": {"u1"}}
	u2 := http.Header{"X-User-ID": {"u2"}}

	doGet(t, p, "/v1/events", u1)
	up.srv.Close()

	// u2 never fetched: nothing cached under their key.
	rec := doGet(t, p, "/v1/events", u2)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("one user's cache must not serve another, got %d", rec.Code)
	}
	rec = doGet(t, p, "/v1/events", u1)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner should still get their cached copy, got %d", rec.Code)
	}
}

func TestMutationPassthroughAndQueue(t *testing.T) {
	up := newUpstream(t)
	log := zerolog.Nop()
	queue, err := OpenActionQueue(filepath.Join(t.TempDir(), "queue.db"), &log)
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	defer queue.Close()

	p := newTestProxy(t, up.srv.URL, queue)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/events/e1/checkin", strings.NewReader(`{"status":"going"}`))
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(); rec.Code != http.StatusOK {
		t.Fatalf("online mutation must pass through, got %d", rec.Code)
	}
	if got := up.hits["/v1/events/e1/checkin"].Load(); got != 1 {
		t.Fatalf("expected mutation at upstream, got %d", got)
	}

	up.srv.Close()
	rec := post()
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("offline mutation reports unavailability, got %d", rec.Code)
	}
	if rec.Header().Get("X-Queued-Action") == "" {
		t.Fatal("offline mutation must be queued for background sync")
	}

	actions, err := queue.List(context.Background())
	if err != nil {
		t.Fatalf("failed to list queue: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 queued action, got %d", len(actions))
	}
	if actions[0].Method != http.MethodPost || actions[0].UserID != "u1" {
		t.Fatalf("queued action lost its identity: %+v", actions[0])
	}
	if !strings.Contains(string(actions[0].Body), "going") {
		t.Fatal("queued action must keep its body")
	}
}

func TestSkipWaitingSwapsCacheVersion(t *testing.T) {
	up := newUpstream(t)
	p := newTestProxy(t, up.srv.URL, nil)
	p.Install(context.Background())
	p.Activate()

	req := httptest.NewRequest(http.MethodPost, messagePath, strings.NewReader(`{"type":"SKIP_WAITING","version":"v2"}`))
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if p.Version() != "v2" {
		t.Fatalf("expected version v2, got %s", p.Version())
	}

	// Old caches are gone from the registry.
	p.registry.mu.Lock()
	_, oldThere := p.registry.caches[staticCachePrefix+"v1"]
	p.registry.mu.Unlock()
	if oldThere {
		t.Fatal("activation must purge the previous cache version")
	}

	req = httptest.NewRequest(http.MethodPost, messagePath, strings.NewReader(`{"type":"NUDGE"}`))
	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown message types are rejected, got %d", rec.Code)
	}
}
