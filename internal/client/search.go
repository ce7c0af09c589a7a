package client

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"bailacheck/internal/model"
)

type SearchState int

const (
	SearchIdle SearchState = iota
	SearchDebouncing
	SearchFetching
	SearchResult
)

type FriendStatus string

const (
	FriendNone            FriendStatus = "none"
	FriendPendingSent     FriendStatus = "pending_sent"
	FriendPendingReceived FriendStatus = "pending_received"
	Friends               FriendStatus = "friends"
)

type UserWithFriendStatus struct {
	model.UserProfile
	FriendStatus    FriendStatus `json:"friend_status"`
	FriendRequestID string       `json:"friend_request_id,omitempty"`
}

const (
	minQueryLen     = 2
	defaultDebounce = 300 * time.Millisecond
	searchCacheSize = 10
)

// SearchSession is one debounced, cancellable search over user profiles.
// Keystrokes restart the debounce timer; a superseded in-flight request is
// cancelled and its abort swallowed; repeated queries and cached queries
// never reach the network.
type SearchSession struct {
	client   *Client
	log      *zerolog.Logger
	debounce time.Duration

	mu           sync.Mutex
	state        SearchState
	currentQuery string
	results      []UserWithFriendStatus
	cache        *boundedCache
	timer        *time.Timer
	cancel       context.CancelFunc

	performing atomic.Bool

	// OnUpdate, when set, runs after every state or result change.
	OnUpdate func()
}

func NewSearchSession(client *Client, log *zerolog.Logger) *SearchSession {
	return &SearchSession{
		client:   client,
		log:      log,
		debounce: defaultDebounce,
		cache:    newBoundedCache(searchCacheSize),
	}
}

// SetDebounce overrides the debounce delay, mainly for tests.
func (s *SearchSession) SetDebounce(d time.Duration) { s.debounce = d }

func (s *SearchSession) State() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SearchSession) IsSearching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SearchDebouncing || s.state == SearchFetching
}

func (s *SearchSession) Results() []UserWithFriendStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UserWithFriendStatus, len(s.results))
	copy(out, s.results)
	return out
}

// Search feeds one keystroke's worth of input into the session. Queries
// shorter than two characters reset the session to Idle.
func (s *SearchSession) Search(ctx context.Context, query string) {
	trimmed := strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if s.client.UserID() == "" || len(trimmed) < minQueryLen {
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.state = SearchIdle
		s.results = nil
		s.currentQuery = ""
		s.mu.Unlock()
		s.notify()
		return
	}

	s.state = SearchDebouncing
	s.timer = time.AfterFunc(s.debounce, func() {
		s.runSearch(ctx, trimmed)
	})
	s.mu.Unlock()
	s.notify()
}

func (s *SearchSession) runSearch(ctx context.Context, query string) {
	s.mu.Lock()

	// Identical to the previously issued query: nothing to do.
	if s.currentQuery == query {
		s.state = SearchResult
		s.mu.Unlock()
		s.notify()
		return
	}

	if cached, ok := s.cache.get(query); ok {
		s.results = cached
		s.currentQuery = query
		s.state = SearchResult
		s.mu.Unlock()
		s.notify()
		return
	}

	if s.cancel != nil {
		s.cancel()
	}
	cctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.currentQuery = query
	s.state = SearchFetching
	s.mu.Unlock()
	s.notify()

	annotated, err := s.fetchAnnotated(cctx, query)

	s.mu.Lock()
	if cctx.Err() != nil {
		// Superseded by a newer query; that search owns the session now.
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel = nil
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Str("query", query).Msg("user search failed")
			s.results = nil
		}
		s.state = SearchResult
		s.mu.Unlock()
		s.notify()
		return
	}

	s.results = annotated
	s.state = SearchResult
	s.cache.put(query, annotated)
	s.mu.Unlock()
	s.notify()
}

func (s *SearchSession) fetchAnnotated(ctx context.Context, query string) ([]UserWithFriendStatus, error) {
	var profiles []model.UserProfile
	if err := s.client.get(ctx, "/v1/profiles/search", url.Values{"q": {query}}, &profiles); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return []UserWithFriendStatus{}, nil
	}

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}

	// Relations are looked up for exactly the candidate id set.
	var relations struct {
		Friendships    []model.Friendship    `json:"friendships"`
		FriendRequests []model.FriendRequest `json:"friend_requests"`
	}
	if err := s.client.get(ctx, "/v1/relations", url.Values{"ids": {strings.Join(ids, ",")}}, &relations); err != nil {
		return nil, err
	}

	self := s.client.UserID()
	friendSet := make(map[string]bool)
	for _, f := range relations.Friendships {
		friendSet[f.FriendID] = true
	}
	sent := make(map[string]string)
	received := make(map[string]string)
	for _, fr := range relations.FriendRequests {
		if fr.Status != model.RequestPending {
			continue
		}
		if fr.RequesterID == self {
			sent[fr.ReceiverID] = fr.ID
		} else if fr.ReceiverID == self {
			received[fr.RequesterID] = fr.ID
		}
	}

	annotated := make([]UserWithFriendStatus, 0, len(profiles))
	for _, p := range profiles {
		u := UserWithFriendStatus{UserProfile: p, FriendStatus: FriendNone}
		switch {
		case friendSet[p.ID]:
			u.FriendStatus = Friends
		case sent[p.ID] != "":
			u.FriendStatus = FriendPendingSent
			u.FriendRequestID = sent[p.ID]
		case received[p.ID] != "":
			u.FriendStatus = FriendPendingReceived
			u.FriendRequestID = received[p.ID]
		}
		annotated = append(annotated, u)
	}
	return annotated, nil
}

// SendFriendRequest sends a request to receiverID and optimistically patches
// the result list. Actions are serialized: a second action while one is in
// flight is a no-op.
func (s *SearchSession) SendFriendRequest(ctx context.Context, receiverID string) error {
	if !s.performing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.performing.Store(false)

	var created struct {
		ID string `json:"id"`
	}
	if err := s.client.post(ctx, "/v1/friends/requests", map[string]string{"receiver_id": receiverID}, &created); err != nil {
		s.log.Error().Err(err).Msg("failed to send friend request")
		return err
	}

	s.patchResult(receiverID, FriendPendingSent, created.ID)
	return nil
}

func (s *SearchSession) AcceptFriendRequest(ctx context.Context, requestID, requesterID string) error {
	if !s.performing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.performing.Store(false)

	if err := s.client.post(ctx, "/v1/friends/requests/accept", map[string]string{"request_id": requestID}, nil); err != nil {
		s.log.Error().Err(err).Msg("failed to accept friend request")
		return err
	}

	s.patchResult(requesterID, Friends, "")
	return nil
}

func (s *SearchSession) DeclineFriendRequest(ctx context.Context, requestID, requesterID string) error {
	if !s.performing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.performing.Store(false)

	if err := s.client.post(ctx, "/v1/friends/requests/decline", map[string]string{"request_id": requestID}, nil); err != nil {
		s.log.Error().Err(err).Msg("failed to decline friend request")
		return err
	}

	s.patchResult(requesterID, FriendNone, "")
	return nil
}

func (s *SearchSession) IsPerformingAction() bool { return s.performing.Load() }

func (s *SearchSession) patchResult(userID string, status FriendStatus, requestID string) {
	s.mu.Lock()
	for i := range s.results {
		if s.results[i].ID == userID {
			s.results[i].FriendStatus = status
			s.results[i].FriendRequestID = requestID
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *SearchSession) notify() {
	if s.OnUpdate != nil {
		s.OnUpdate()
	}
}

// boundedCache maps query strings to annotated results, evicting the
// oldest entry once full.
type boundedCache struct {
	max     int
	order   []string
	entries map[string][]UserWithFriendStatus
}

func newBoundedCache(max int) *boundedCache {
	return &boundedCache{max: max, entries: make(map[string][]UserWithFriendStatus)}
}

func (c *boundedCache) get(query string) ([]UserWithFriendStatus, bool) {
	results, ok := c.entries[query]
	return results, ok
}

func (c *boundedCache) put(query string, results []UserWithFriendStatus) {
	if _, exists := c.entries[query]; !exists {
		c.order = append(c.order, query)
		if len(c.order) > c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
	c.entries[query] = results
}
