package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bailacheck/internal/model"
)

func newTestSession(t *testing.T, srv *httptest.Server, userID string) *SearchSession {
	t.Helper()
	log := zerolog.Nop()
	s := NewSearchSession(newTestClient(t, srv, userID), &log)
	s.SetDebounce(20 * time.Millisecond)
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type relationsPayload struct {
	Friendships    []model.Friendship    `json:"friendships"`
	FriendRequests []model.FriendRequest `json:"friend_requests"`
}

func searchServer(t *testing.T, profiles []model.UserProfile, relations relationsPayload, searches *atomic.Int64) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/profiles/search", func(w http.ResponseWriter, r *http.Request) {
		if searches != nil {
			searches.Add(1)
		}
		writeOK(w, profiles)
	})
	mux.HandleFunc("/v1/relations", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, relations)
	})
	return httptest.NewServer(mux)
}

func TestSearchShortQueryResets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("short queries must not reach the network")
	}))
	defer srv.Close()

	s := newTestSession(t, srv, "u1")
	s.Search(context.Background(), "s")

	if s.State() != SearchIdle {
		t.Fatalf("expected Idle for short query, got %v", s.State())
	}
	if len(s.Results()) != 0 {
		t.Fatal("short query clears results")
	}
	time.Sleep(50 * time.Millisecond) // past the debounce window
}

func TestSearchDebounceCollapsesKeystrokes(t *testing.T) {
	var searches atomic.Int64
	srv := searchServer(t, []model.UserProfile{{ID: "p1", FullName: "Salomé"}}, relationsPayload{}, &searches)
	defer srv.Close()

	s := newTestSession(t, srv, "u1")
	ctx := context.Background()

	// Three quick keystrokes inside the debounce window.
	s.Search(ctx, "sa")
	s.Search(ctx, "sal")
	s.Search(ctx, "salo")

	if s.State() != SearchDebouncing {
		t.Fatalf("expected Debouncing while typing, got %v", s.State())
	}

	waitFor(t, time.Second, func() bool { return s.State() == SearchResult })
	if got := searches.Load(); got != 1 {
		t.Fatalf("expected one network search for the final query, got %d", got)
	}
	if len(s.Results()) != 1 {
		t.Fatalf("expected 1 result, got %d", len(s.Results()))
	}
}

func TestSearchCacheHitSkipsNetwork(t *testing.T) {
	var searches atomic.Int64
	srv := searchServer(t, []model.UserProfile{{ID: "p1", FullName: "Anna"}}, relationsPayload{}, &searches)
	defer srv.Close()

	s := newTestSession(t, srv, "u1")
	ctx := context.Background()

	s.Search(ctx, "anna")
	waitFor(t, time.Second, func() bool { return s.State() == SearchResult })

	// Reset, then repeat the query: served from the bounded cache.
	s.Search(ctx, "")
	s.Search(ctx, "anna")
	waitFor(t, time.Second, func() bool { return s.State() == SearchResult && len(s.Results()) == 1 })

	if got := searches.Load(); got != 1 {
		t.Fatalf("expected cached repeat to skip the network, got %d searches", got)
	}
}

func TestSearchAnnotatesRelations(t *testing.T) {
	profiles := []model.UserProfile{
		{ID: "anna"},
		{ID: "bruno"},
		{ID: "carla"},
		{ID: "dora"},
	}
	relations := relationsPayload{
		Friendships: []model.Friendship{
			{ID: "fr1", UserID: "u1", FriendID: "anna"},
		},
		FriendRequests: []model.FriendRequest{
			{ID: "req1", RequesterID: "u1", ReceiverID: "bruno", Status: model.RequestPending},
			{ID: "req2", RequesterID: "carla", ReceiverID: "u1", Status: model.RequestPending},
			{ID: "req3", RequesterID: "u1", ReceiverID: "dora", Status: model.RequestDeclined},
		},
	}
	srv := searchServer(t, profiles, relations, nil)
	defer srv.Close()

	s := newTestSession(t, srv, "u1")
	s.Search(context.Background(), "da")
	waitFor(t, time.Second, func() bool { return s.State() == SearchResult })

	results := s.Results()
	if len(results) != 4 {
		t.Fatalf("expected 4 annotated results, got %d", len(results))
	}

	byID := make(map[string]UserWithFriendStatus)
	for _, r := range results {
		byID[r.ID] = r
	}

	if byID["anna"].FriendStatus != Friends {
		t.Fatalf("anna should be a friend, got %s", byID["anna"].FriendStatus)
	}
	if byID["bruno"].FriendStatus != FriendPendingSent || byID["bruno"].FriendRequestID != "req1" {
		t.Fatalf("bruno should be pending_sent req1, got %+v", byID["bruno"])
	}
	if byID["carla"].FriendStatus != FriendPendingReceived || byID["carla"].FriendRequestID != "req2" {
		t.Fatalf("carla should be pending_received req2, got %+v", byID["carla"])
	}
	// Declined requests do not count as pending.
	if byID["dora"].FriendStatus != FriendNone {
		t.Fatalf("dora should be none, got %s", byID["dora"].FriendStatus)
	}
}

func TestSendFriendRequestPatchesResults(t *testing.T) {
	profiles := []model.UserProfile{{ID: "dora"}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/profiles/search", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, profiles)
	})
	mux.HandleFunc("/v1/relations", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, relationsPayload{})
	})
	mux.HandleFunc("/v1/friends/requests", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]string{"id": "req-new"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestSession(t, srv, "u1")
	s.Search(context.Background(), "dora")
	waitFor(t, time.Second, func() bool { return s.State() == SearchResult })

	if err := s.SendFriendRequest(context.Background(), "dora"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	results := s.Results()
	if results[0].FriendStatus != FriendPendingSent || results[0].FriendRequestID != "req-new" {
		t.Fatalf("expected optimistic pending_sent patch, got %+v", results[0])
	}
}

func TestFriendActionsSerialized(t *testing.T) {
	release := make(chan struct{})
	var posts atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/friends/requests", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		<-release
		writeOK(w, map[string]string{"id": "req-new"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestSession(t, srv, "u1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.SendFriendRequest(context.Background(), "dora")
	}()

	waitFor(t, time.Second, func() bool { return s.IsPerformingAction() })

	// A second action while one is in flight is dropped.
	if err := s.SendFriendRequest(context.Background(), "elena"); err != nil {
		t.Fatalf("dropped action must not error: %v", err)
	}

	close(release)
	<-done

	if got := posts.Load(); got != 1 {
		t.Fatalf("expected a single request while action in flight, got %d", got)
	}
	if s.IsPerformingAction() {
		t.Fatal("performing flag must clear after the action finishes")
	}
}
