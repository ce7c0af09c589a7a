package client

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"bailacheck/internal/apperr"
	"bailacheck/internal/model"
	"bailacheck/internal/querycache"
)

const (
	opEvents         = "events"
	opUserCheckins   = "userCheckins"
	opUpcomingEvents = "upcomingUserEvents"

	eventsStaleAfter = 2 * time.Minute
	eventsGCAfter    = 15 * time.Minute
	eventsRepoll     = 5 * time.Minute

	upcomingStaleAfter = 3 * time.Minute
	upcomingGCAfter    = 10 * time.Minute
)

// ToggleOutcome reports what a checkin toggle did; Status is nil when the
// checkin was removed.
type ToggleOutcome struct {
	Action string  `json:"action"`
	Status *string `json:"status"`
}

// EventSync merges events, the user's own checkins, and the aggregate
// checkin counts into one denormalized list, and keeps the cache coherent
// across checkin toggles.
type EventSync struct {
	client *Client
	cache  *querycache.Cache
}

func NewEventSync(client *Client, cache *querycache.Cache) *EventSync {
	return &EventSync{client: client, cache: cache}
}

func (s *EventSync) eventsKey() querycache.Key {
	return querycache.Key{Op: opEvents, UserID: s.client.UserID()}
}

// FetchEvents issues three logically-parallel reads and merges them. Any
// failure aborts the whole fetch: callers get a complete list or none.
func (s *EventSync) FetchEvents(ctx context.Context) ([]model.EventWithCheckinStatus, error) {
	data, err := s.cache.Do(ctx, s.eventsKey(), eventsStaleAfter, eventsGCAfter, func(ctx context.Context) (any, error) {
		return s.fetchEvents(ctx)
	})
	if err != nil {
		return nil, err
	}
	return data.([]model.EventWithCheckinStatus), nil
}

func (s *EventSync) fetchEvents(ctx context.Context) ([]model.EventWithCheckinStatus, error) {
	var (
		events   []model.Event
		checkins []model.EventCheckin
		summary  []model.CheckinSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.client.get(gctx, "/v1/events", nil, &events)
	})
	g.Go(func() error {
		// Empty for anonymous users; the merge then leaves every status nil.
		return s.client.get(gctx, "/v1/checkins", nil, &checkins)
	})
	g.Go(func() error {
		return s.client.get(gctx, "/v1/checkins/summary", nil, &summary)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeEvents(events, checkins, summary), nil
}

// mergeEvents combines the three reads by key, so the result does not
// depend on completion order. Every fetched event gets a zero-seeded count
// before actual counts are applied; counts for events outside the fetched
// list are dropped.
func mergeEvents(events []model.Event, userCheckins []model.EventCheckin, summary []model.CheckinSummary) []model.EventWithCheckinStatus {
	statusByEvent := make(map[string]string, len(userCheckins))
	for _, c := range userCheckins {
		statusByEvent[c.EventID] = c.Status
	}

	counts := make(map[string]*model.CheckinCount, len(events))
	for _, e := range events {
		counts[e.ID] = &model.CheckinCount{}
	}
	for _, s := range summary {
		c, ok := counts[s.EventID]
		if !ok {
			continue
		}
		switch s.Status {
		case model.CheckinGoing:
			c.Going++
		case model.CheckinInterested:
			c.Interested++
		}
	}

	merged := make([]model.EventWithCheckinStatus, 0, len(events))
	for _, e := range events {
		item := model.EventWithCheckinStatus{Event: e, CheckinCount: *counts[e.ID]}
		if status, ok := statusByEvent[e.ID]; ok {
			item.CheckinStatus = &status
		}
		merged = append(merged, item)
	}
	return merged
}

// ToggleCheckin flips the user's checkin for an event and applies the
// optimistic patch plus invalidation: the cached entry is adjusted in place
// for immediate feedback, then the broader caches are marked stale so the
// next read reconciles any drift from concurrent writers.
func (s *EventSync) ToggleCheckin(ctx context.Context, eventID, status string) (*ToggleOutcome, error) {
	if s.client.UserID() == "" {
		return nil, apperr.New(apperr.KindAuth, "User must be authenticated")
	}

	var outcome ToggleOutcome
	err := s.client.post(ctx, "/v1/events/"+url.PathEscape(eventID)+"/checkin",
		map[string]string{"status": status}, &outcome)
	if err != nil {
		return nil, err
	}

	s.cache.Patch(s.eventsKey(), func(data any) any {
		events, ok := data.([]model.EventWithCheckinStatus)
		if !ok {
			return data
		}
		patched := make([]model.EventWithCheckinStatus, len(events))
		copy(patched, events)
		for i := range patched {
			if patched[i].ID != eventID {
				continue
			}
			adjustCount(&patched[i].CheckinCount, patched[i].CheckinStatus, -1)
			adjustCount(&patched[i].CheckinCount, outcome.Status, +1)
			patched[i].CheckinStatus = outcome.Status
		}
		return patched
	})

	s.cache.InvalidateOp(opEvents)
	s.cache.InvalidateOp(opUserCheckins)

	return &outcome, nil
}

func adjustCount(c *model.CheckinCount, status *string, delta int) {
	if status == nil {
		return
	}
	switch *status {
	case model.CheckinGoing:
		c.Going += delta
	case model.CheckinInterested:
		c.Interested += delta
	}
}

// FetchUserCheckins returns the user's checkins with their events, newest
// first.
func (s *EventSync) FetchUserCheckins(ctx context.Context) ([]model.EventCheckin, error) {
	if s.client.UserID() == "" {
		return nil, nil
	}

	key := querycache.Key{Op: opUserCheckins, UserID: s.client.UserID()}
	data, err := s.cache.Do(ctx, key, eventsStaleAfter, eventsGCAfter, func(ctx context.Context) (any, error) {
		var checkins []model.EventCheckin
		if err := s.client.get(ctx, "/v1/me/checkins", nil, &checkins); err != nil {
			return nil, err
		}
		return checkins, nil
	})
	if err != nil {
		return nil, err
	}
	return data.([]model.EventCheckin), nil
}

// FetchUpcomingUserEvents returns the user's future checked-in events,
// soonest first, with zero counts.
func (s *EventSync) FetchUpcomingUserEvents(ctx context.Context) ([]model.EventWithCheckinStatus, error) {
	if s.client.UserID() == "" {
		return nil, nil
	}

	key := querycache.Key{Op: opUpcomingEvents, UserID: s.client.UserID()}
	data, err := s.cache.Do(ctx, key, upcomingStaleAfter, upcomingGCAfter, func(ctx context.Context) (any, error) {
		var checkins []model.EventCheckin
		if err := s.client.get(ctx, "/v1/me/upcoming", nil, &checkins); err != nil {
			return nil, err
		}

		events := make([]model.EventWithCheckinStatus, 0, len(checkins))
		for _, c := range checkins {
			if c.Event == nil {
				continue
			}
			status := c.Status
			events = append(events, model.EventWithCheckinStatus{
				Event:         *c.Event,
				CheckinStatus: &status,
			})
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return data.([]model.EventWithCheckinStatus), nil
}

// StartBackgroundRefresh periodically marks the event list stale and
// refetches it, the polling substitute for a push channel.
func (s *EventSync) StartBackgroundRefresh(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(eventsRepoll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cache.InvalidateOp(opEvents)
				if _, err := s.FetchEvents(ctx); err != nil {
					// Next read retries; background refresh stays quiet.
					continue
				}
			}
		}
	}()
}
