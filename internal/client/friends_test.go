package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bailacheck/internal/model"
	"bailacheck/internal/querycache"
)

func TestFetchFriendsAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("anonymous friends fetch must not reach the network")
	}))
	defer srv.Close()

	sync := NewFriendsSync(newTestClient(t, srv, ""), querycache.New())
	friends, err := sync.FetchFriends(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if friends != nil {
		t.Fatal("anonymous fetch returns nothing")
	}
}

func TestFetchFriendsEventsGrouping(t *testing.T) {
	now := time.Now()
	later := now.Add(24 * time.Hour)
	sooner := now.Add(2 * time.Hour)

	anna := &model.UserProfile{ID: "f1", FullName: "Anna"}
	bruno := &model.UserProfile{ID: "f2", FullName: "Bruno"}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/friends", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, []model.Friendship{
			{ID: "fr1", UserID: "u1", FriendID: "f1", Friend: anna},
			{ID: "fr2", UserID: "u1", FriendID: "f2", Friend: bruno},
		})
	})
	mux.HandleFunc("/v1/checkins/by-users", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "f1,f2" {
			t.Errorf("expected friend ids f1,f2, got %q", got)
		}
		writeOK(w, []model.EventCheckin{
			{ID: "c1", UserID: "f1", EventID: "e1", Status: model.CheckinGoing,
				Event: &model.Event{ID: "e1", Title: "Salsa Night", DateTime: later}, User: anna},
			{ID: "c2", UserID: "f2", EventID: "e1", Status: model.CheckinInterested,
				Event: &model.Event{ID: "e1", Title: "Salsa Night", DateTime: later}, User: bruno},
			{ID: "c3", UserID: "f2", EventID: "e2", Status: model.CheckinGoing,
				Event: &model.Event{ID: "e2", Title: "Bachata Social", DateTime: sooner}, User: bruno},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sync := NewFriendsSync(newTestClient(t, srv, "u1"), querycache.New())
	events, err := sync.FetchFriendsEvents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 grouped events, got %d", len(events))
	}

	// Sorted ascending by date: e2 first.
	if events[0].ID != "e2" || events[1].ID != "e1" {
		t.Fatalf("expected [e2 e1], got [%s %s]", events[0].ID, events[1].ID)
	}

	e1 := events[1]
	if len(e1.FriendsGoing) != 1 || e1.FriendsGoing[0].ID != "f1" {
		t.Fatalf("e1 going partition wrong: %+v", e1.FriendsGoing)
	}
	if len(e1.FriendsInterested) != 1 || e1.FriendsInterested[0].ID != "f2" {
		t.Fatalf("e1 interested partition wrong: %+v", e1.FriendsInterested)
	}

	// The viewer's own status never comes from friends' checkins.
	if e1.CheckinStatus != nil {
		t.Fatal("friends' checkins must not set the viewer's status")
	}
}

func TestFetchFriendsEventsNoFriends(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/friends", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, []model.Friendship{})
	})
	mux.HandleFunc("/v1/checkins/by-users", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no friends means no checkin fetch")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sync := NewFriendsSync(newTestClient(t, srv, "u1"), querycache.New())
	events, err := sync.FetchFriendsEvents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty list, got %d", len(events))
	}
}

func TestRemoveFriendInvalidatesFriendsOnly(t *testing.T) {
	var friendFetches, requestFetches atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/friends", func(w http.ResponseWriter, r *http.Request) {
		friendFetches.Add(1)
		writeOK(w, []model.Friendship{{ID: "fr1", UserID: "u1", FriendID: "f1"}})
	})
	mux.HandleFunc("/v1/friends/requests", func(w http.ResponseWriter, r *http.Request) {
		requestFetches.Add(1)
		writeOK(w, []model.FriendRequest{})
	})
	mux.HandleFunc("/v1/friends/f1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		writeOK(w, nil)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := querycache.New()
	sync := NewFriendsSync(newTestClient(t, srv, "u1"), cache)

	if _, err := sync.FetchFriends(context.Background()); err != nil {
		t.Fatalf("seed friends failed: %v", err)
	}
	if _, err := sync.FetchFriendRequests(context.Background()); err != nil {
		t.Fatalf("seed requests failed: %v", err)
	}

	if err := sync.RemoveFriend(context.Background(), "f1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	// Friends list refetches, requests stay cached.
	if _, err := sync.FetchFriends(context.Background()); err != nil {
		t.Fatalf("refetch friends failed: %v", err)
	}
	if _, err := sync.FetchFriendRequests(context.Background()); err != nil {
		t.Fatalf("refetch requests failed: %v", err)
	}
	if got := friendFetches.Load(); got != 2 {
		t.Fatalf("expected friends refetch after removal, got %d fetches", got)
	}
	if got := requestFetches.Load(); got != 1 {
		t.Fatalf("removal must not touch the requests cache, got %d fetches", got)
	}
}
