package client

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"bailacheck/internal/model"
	"bailacheck/internal/querycache"
)

const (
	opFriends        = "friends"
	opFriendRequests = "friendRequests"
	opFriendsEvents  = "friendsEvents"

	// Friendships change rarely; pending requests are time-sensitive and
	// there is no push channel for them, so they re-poll on a short window.
	friendsStaleAfter  = 5 * time.Minute
	requestsStaleAfter = 1 * time.Minute
	friendsGCAfter     = 30 * time.Minute

	friendsEventsStaleAfter = 1 * time.Minute
)

// FriendsSync fetches friendships, pending requests, and the events the
// user's friends are going to.
type FriendsSync struct {
	client *Client
	cache  *querycache.Cache
}

func NewFriendsSync(client *Client, cache *querycache.Cache) *FriendsSync {
	return &FriendsSync{client: client, cache: cache}
}

func (s *FriendsSync) friendsKey() querycache.Key {
	return querycache.Key{Op: opFriends, UserID: s.client.UserID()}
}

func (s *FriendsSync) FetchFriends(ctx context.Context) ([]model.Friendship, error) {
	if s.client.UserID() == "" {
		return nil, nil
	}

	data, err := s.cache.Do(ctx, s.friendsKey(), friendsStaleAfter, friendsGCAfter, func(ctx context.Context) (any, error) {
		var friendships []model.Friendship
		if err := s.client.get(ctx, "/v1/friends", nil, &friendships); err != nil {
			return nil, err
		}
		return friendships, nil
	})
	if err != nil {
		return nil, err
	}
	return data.([]model.Friendship), nil
}

// FetchFriendRequests returns pending requests received by the user.
func (s *FriendsSync) FetchFriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	if s.client.UserID() == "" {
		return nil, nil
	}

	key := querycache.Key{Op: opFriendRequests, UserID: s.client.UserID()}
	data, err := s.cache.Do(ctx, key, requestsStaleAfter, friendsGCAfter, func(ctx context.Context) (any, error) {
		var requests []model.FriendRequest
		if err := s.client.get(ctx, "/v1/friends/requests", nil, &requests); err != nil {
			return nil, err
		}
		return requests, nil
	})
	if err != nil {
		return nil, err
	}
	return data.([]model.FriendRequest), nil
}

// FetchFriendsEvents resolves the friend ids, fetches every (checkin,
// event, user) triple for them restricted to future active events, and
// groups the triples per event with the contributing friends partitioned
// into going and interested. An event none of the friends checked into does
// not appear at all. The viewer's own status is left nil: friends' checkins
// never promote it.
func (s *FriendsSync) FetchFriendsEvents(ctx context.Context) ([]model.EventWithCheckinStatus, error) {
	if s.client.UserID() == "" {
		return nil, nil
	}

	key := querycache.Key{Op: opFriendsEvents, UserID: s.client.UserID()}
	data, err := s.cache.Do(ctx, key, friendsEventsStaleAfter, friendsGCAfter, func(ctx context.Context) (any, error) {
		friendships, err := s.FetchFriends(ctx)
		if err != nil {
			return nil, err
		}
		if len(friendships) == 0 {
			return []model.EventWithCheckinStatus{}, nil
		}

		ids := make([]string, 0, len(friendships))
		for _, f := range friendships {
			ids = append(ids, f.FriendID)
		}

		query := url.Values{"ids": {strings.Join(ids, ",")}}
		var checkins []model.EventCheckin
		if err := s.client.get(ctx, "/v1/checkins/by-users", query, &checkins); err != nil {
			return nil, err
		}

		return groupFriendsEvents(checkins), nil
	})
	if err != nil {
		return nil, err
	}
	return data.([]model.EventWithCheckinStatus), nil
}

func groupFriendsEvents(checkins []model.EventCheckin) []model.EventWithCheckinStatus {
	byEvent := make(map[string]*model.EventWithCheckinStatus)
	for _, c := range checkins {
		if c.Event == nil {
			continue
		}
		item, ok := byEvent[c.Event.ID]
		if !ok {
			item = &model.EventWithCheckinStatus{Event: *c.Event}
			byEvent[c.Event.ID] = item
		}
		if c.Status == model.CheckinGoing {
			item.FriendsGoing = append(item.FriendsGoing, c.User)
		} else {
			item.FriendsInterested = append(item.FriendsInterested, c.User)
		}
	}

	events := make([]model.EventWithCheckinStatus, 0, len(byEvent))
	for _, item := range byEvent {
		events = append(events, *item)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].DateTime.Before(events[j].DateTime)
	})
	return events
}

// RemoveFriend deletes both directional rows and invalidates the friends
// cache only; requests and events are untouched.
func (s *FriendsSync) RemoveFriend(ctx context.Context, friendID string) error {
	if err := s.client.delete(ctx, "/v1/friends/"+url.PathEscape(friendID)); err != nil {
		return err
	}
	s.cache.Invalidate(s.friendsKey())
	return nil
}

// StartRequestPolling re-polls pending requests on their staleness window.
func (s *FriendsSync) StartRequestPolling(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(requestsStaleAfter)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cache.InvalidateOp(opFriendRequests)
				if _, err := s.FetchFriendRequests(ctx); err != nil {
					continue
				}
			}
		}
	}()
}
