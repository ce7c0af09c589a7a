package model

import "time"

const (
	CheckinGoing      = "going"
	CheckinInterested = "interested"
)

const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

type Event struct {
	ID               string    `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	Description      string    `db:"description,omitempty" json:"description,omitempty"`
	DateTime         time.Time `db:"date_time" json:"date_time"`
	VenueName        string    `db:"venue_name" json:"venue_name"`
	VenueAddress     string    `db:"venue_address" json:"venue_address"`
	DanceStyles      []string  `db:"dance_styles" json:"dance_styles"`
	EntryPrice       *float64  `db:"entry_price" json:"entry_price"`
	OrganizerName    string    `db:"organizer_name,omitempty" json:"organizer_name,omitempty"`
	OrganizerContact string    `db:"organizer_contact,omitempty" json:"organizer_contact,omitempty"`
	ImageURL         string    `db:"image_url,omitempty" json:"image_url,omitempty"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// EventCheckin is unique per (user, event); the status toggles between
// going and interested, never both at once.
type EventCheckin struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	EventID     string    `db:"event_id" json:"event_id"`
	Status      string    `db:"status" json:"status"`
	CheckedInAt time.Time `db:"checked_in_at" json:"checked_in_at"`

	Event *Event       `db:"-" json:"event,omitempty"`
	User  *UserProfile `db:"-" json:"user,omitempty"`
}

type UserProfile struct {
	ID               string    `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	FullName         string    `db:"full_name,omitempty" json:"full_name,omitempty"`
	Bio              string    `db:"bio,omitempty" json:"bio,omitempty"`
	Location         string    `db:"location,omitempty" json:"location,omitempty"`
	InstagramHandle  string    `db:"instagram_handle,omitempty" json:"instagram_handle,omitempty"`
	DancePreferences []string  `db:"dance_preferences" json:"dance_preferences"`
	AvatarURL        string    `db:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Friendship is one half of a symmetric pair: every accepted friendship is
// stored as A->B and B->A so "my friends" stays a single-directional query.
// Absence of the mirror row is a data-integrity bug, not a valid state.
type Friendship struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	FriendID  string    `db:"friend_id" json:"friend_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Friend *UserProfile `db:"-" json:"friend,omitempty"`
}

type FriendRequest struct {
	ID          string    `db:"id" json:"id"`
	RequesterID string    `db:"requester_id" json:"requester_id"`
	ReceiverID  string    `db:"receiver_id" json:"receiver_id"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	Requester *UserProfile `db:"-" json:"requester,omitempty"`
}

// CheckinCount is the per-event aggregate over all users.
type CheckinCount struct {
	Going      int `json:"going"`
	Interested int `json:"interested"`
}

// CheckinSummary is one (event_id, status) pair from the full checkin table,
// the raw material for building count maps on the client.
type CheckinSummary struct {
	EventID string `db:"event_id" json:"event_id"`
	Status  string `db:"status" json:"status"`
}

// EventWithCheckinStatus is the denormalized view the sync layer hands to
// callers. Computed in memory per fetch, never persisted.
type EventWithCheckinStatus struct {
	Event
	CheckinStatus     *string        `json:"checkin_status"`
	CheckinCount      CheckinCount   `json:"checkin_count"`
	FriendsGoing      []*UserProfile `json:"friends_going,omitempty"`
	FriendsInterested []*UserProfile `json:"friends_interested,omitempty"`
}
