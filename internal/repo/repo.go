package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"bailacheck/internal/model"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrRequestNotFound  = errors.New("friend request not found")
	ErrDuplicateRequest = errors.New("duplicate friend request")
)

// ToggleResult reports what a checkin toggle did. Status is nil when the
// existing checkin was removed.
type ToggleResult struct {
	Action string  `json:"action"`
	Status *string `json:"status"`
}

type Repository interface {
	ListActiveEvents(ctx context.Context) ([]model.Event, error)
	ListUserCheckins(ctx context.Context, userID string) ([]model.EventCheckin, error)
	ListCheckinSummary(ctx context.Context) ([]model.CheckinSummary, error)
	ToggleCheckinTx(ctx context.Context, userID, eventID, status string) (*ToggleResult, error)
	ListUserCheckinsWithEvents(ctx context.Context, userID string) ([]model.EventCheckin, error)
	ListUpcomingUserCheckins(ctx context.Context, userID string, now time.Time) ([]model.EventCheckin, error)

	GetProfile(ctx context.Context, id string) (*model.UserProfile, error)
	UpsertProfile(ctx context.Context, p *model.UserProfile) error
	SearchProfiles(ctx context.Context, selfID, query string, limit int) ([]model.UserProfile, error)

	ListFriendships(ctx context.Context, userID string) ([]model.Friendship, error)
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
	ListFriendCheckins(ctx context.Context, friendIDs []string, now time.Time) ([]model.EventCheckin, error)
	RemoveFriendships(ctx context.Context, userID, friendID string) error

	ListPendingRequests(ctx context.Context, receiverID string) ([]model.FriendRequest, error)
	CreateFriendRequest(ctx context.Context, requesterID, receiverID string) (string, error)
	AcceptFriendRequestTx(ctx context.Context, requestID, receiverID string) (string, error)
	DeclineFriendRequest(ctx context.Context, requestID, receiverID string) error
	ListRelations(ctx context.Context, userID string, candidateIDs []string) ([]model.Friendship, []model.FriendRequest, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func (r *repository) ListActiveEvents(ctx context.Context) ([]model.Event, error) {
	query := `
		SELECT id, title, description, date_time, venue_name, venue_address,
		       dance_styles, entry_price, organizer_name, organizer_contact,
		       image_url, is_active, created_at, updated_at
		FROM events
		WHERE is_active
		ORDER BY date_time ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.DateTime, &e.VenueName, &e.VenueAddress,
			pq.Array(&e.DanceStyles), &e.EntryPrice, &e.OrganizerName, &e.OrganizerContact,
			&e.ImageURL, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (r *repository) ListUserCheckins(ctx context.Context, userID string) ([]model.EventCheckin, error) {
	query := `
		SELECT id, user_id, event_id, status, checked_in_at
		FROM event_checkins
		WHERE user_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user checkins: %w", err)
	}
	defer rows.Close()

	var checkins []model.EventCheckin
	for rows.Next() {
		var c model.EventCheckin
		if err := rows.Scan(&c.ID, &c.UserID, &c.EventID, &c.Status, &c.CheckedInAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkin: %w", err)
		}
		checkins = append(checkins, c)
	}

	return checkins, rows.Err()
}

func (r *repository) ListCheckinSummary(ctx context.Context) ([]model.CheckinSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT event_id, status FROM event_checkins`)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkin summary: %w", err)
	}
	defer rows.Close()

	var summary []model.CheckinSummary
	for rows.Next() {
		var s model.CheckinSummary
		if err := rows.Scan(&s.EventID, &s.Status); err != nil {
			return nil, fmt.Errorf("failed to scan checkin summary: %w", err)
		}
		summary = append(summary, s)
	}

	return summary, rows.Err()
}

// ToggleCheckinTx applies the toggle rules in one transaction: same status
// removes the row, a different status updates it in place, no row inserts
// one. The existing row is locked so two concurrent toggles for the same
// (user, event) pair serialize instead of producing two statuses.
func (r *repository) ToggleCheckinTx(ctx context.Context, userID, eventID, status string) (*ToggleResult, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var active bool
	if err := tx.QueryRowContext(ctx, `SELECT is_active FROM events WHERE id = $1`, eventID).Scan(&active); err != nil || !active {
		_ = tx.Rollback()
		return nil, ErrEventNotFound
	}

	var existingStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM event_checkins
		WHERE user_id = $1 AND event_id = $2
		FOR UPDATE
	`, userID, eventID).Scan(&existingStatus)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_checkins (user_id, event_id, status)
			VALUES ($1, $2, $3)
		`, userID, eventID, status); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to create checkin: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit checkin: %w", err)
		}
		return &ToggleResult{Action: "created", Status: &status}, nil

	case err != nil:
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to look up checkin: %w", err)

	case existingStatus == status:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM event_checkins WHERE user_id = $1 AND event_id = $2
		`, userID, eventID); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to remove checkin: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit checkin removal: %w", err)
		}
		return &ToggleResult{Action: "removed", Status: nil}, nil

	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE event_checkins SET status = $3, checked_in_at = NOW()
			WHERE user_id = $1 AND event_id = $2
		`, userID, eventID, status); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to update checkin: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit checkin update: %w", err)
		}
		return &ToggleResult{Action: "updated", Status: &status}, nil
	}
}

func (r *repository) ListUserCheckinsWithEvents(ctx context.Context, userID string) ([]model.EventCheckin, error) {
	query := `
		SELECT c.id, c.user_id, c.event_id, c.status, c.checked_in_at,
		       e.id, e.title, e.description, e.date_time, e.venue_name, e.venue_address,
		       e.dance_styles, e.entry_price, e.organizer_name, e.organizer_contact,
		       e.image_url, e.is_active, e.created_at, e.updated_at
		FROM event_checkins c
		JOIN events e ON e.id = c.event_id
		WHERE c.user_id = $1
		ORDER BY c.checked_in_at DESC
	`
	return r.queryCheckinEventRows(ctx, query, userID)
}

func (r *repository) ListUpcomingUserCheckins(ctx context.Context, userID string, now time.Time) ([]model.EventCheckin, error) {
	query := `
		SELECT c.id, c.user_id, c.event_id, c.status, c.checked_in_at,
		       e.id, e.title, e.description, e.date_time, e.venue_name, e.venue_address,
		       e.dance_styles, e.entry_price, e.organizer_name, e.organizer_contact,
		       e.image_url, e.is_active, e.created_at, e.updated_at
		FROM event_checkins c
		JOIN events e ON e.id = c.event_id
		WHERE c.user_id = $1 AND e.is_active AND e.date_time >= $2
		ORDER BY e.date_time ASC
	`
	return r.queryCheckinEventRows(ctx, query, userID, now)
}

func (r *repository) queryCheckinEventRows(ctx context.Context, query string, args ...any) ([]model.EventCheckin, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkins with events: %w", err)
	}
	defer rows.Close()

	var checkins []model.EventCheckin
	for rows.Next() {
		var c model.EventCheckin
		var e model.Event
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.EventID, &c.Status, &c.CheckedInAt,
			&e.ID, &e.Title, &e.Description, &e.DateTime, &e.VenueName, &e.VenueAddress,
			pq.Array(&e.DanceStyles), &e.EntryPrice, &e.OrganizerName, &e.OrganizerContact,
			&e.ImageURL, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan checkin row: %w", err)
		}
		c.Event = &e
		checkins = append(checkins, c)
	}

	return checkins, rows.Err()
}

func (r *repository) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	query := `
		SELECT id, email, full_name, bio, location, instagram_handle,
		       dance_preferences, avatar_url, created_at, updated_at
		FROM profiles WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var p model.UserProfile
	if err := row.Scan(
		&p.ID, &p.Email, &p.FullName, &p.Bio, &p.Location, &p.InstagramHandle,
		pq.Array(&p.DancePreferences), &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

// UpsertProfile creates the profile row on first save and updates it after,
// matching the lazy profile creation of the app.
func (r *repository) UpsertProfile(ctx context.Context, p *model.UserProfile) error {
	query := `
		INSERT INTO profiles (id, email, full_name, bio, location, instagram_handle, dance_preferences, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			bio = EXCLUDED.bio,
			location = EXCLUDED.location,
			instagram_handle = EXCLUDED.instagram_handle,
			dance_preferences = EXCLUDED.dance_preferences,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	row := r.db.Master.QueryRowContext(ctx, query,
		p.ID, p.Email, p.FullName, p.Bio, p.Location, p.InstagramHandle,
		pq.Array(p.DancePreferences), p.AvatarURL,
	)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *repository) SearchProfiles(ctx context.Context, selfID, query string, limit int) ([]model.UserProfile, error) {
	sqlQuery := `
		SELECT id, email, full_name, bio, location, instagram_handle,
		       dance_preferences, avatar_url, created_at, updated_at
		FROM profiles
		WHERE id <> $1 AND (full_name ILIKE $2 OR email ILIKE $2)
		ORDER BY full_name ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, sqlQuery, selfID, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.UserProfile
	for rows.Next() {
		var p model.UserProfile
		if err := rows.Scan(
			&p.ID, &p.Email, &p.FullName, &p.Bio, &p.Location, &p.InstagramHandle,
			pq.Array(&p.DancePreferences), &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

func (r *repository) ListFriendships(ctx context.Context, userID string) ([]model.Friendship, error) {
	query := `
		SELECT f.id, f.user_id, f.friend_id, f.created_at,
		       p.id, p.email, p.full_name, p.bio, p.location, p.instagram_handle,
		       p.dance_preferences, p.avatar_url, p.created_at, p.updated_at
		FROM friendships f
		JOIN profiles p ON p.id = f.friend_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get friendships: %w", err)
	}
	defer rows.Close()

	var friendships []model.Friendship
	for rows.Next() {
		var f model.Friendship
		var p model.UserProfile
		if err := rows.Scan(
			&f.ID, &f.UserID, &f.FriendID, &f.CreatedAt,
			&p.ID, &p.Email, &p.FullName, &p.Bio, &p.Location, &p.InstagramHandle,
			pq.Array(&p.DancePreferences), &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan friendship: %w", err)
		}
		f.Friend = &p
		friendships = append(friendships, f)
	}

	return friendships, rows.Err()
}

func (r *repository) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT friend_id FROM friendships WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get friend ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *repository) ListFriendCheckins(ctx context.Context, friendIDs []string, now time.Time) ([]model.EventCheckin, error) {
	if len(friendIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT c.id, c.user_id, c.event_id, c.status, c.checked_in_at,
		       e.id, e.title, e.description, e.date_time, e.venue_name, e.venue_address,
		       e.dance_styles, e.entry_price, e.organizer_name, e.organizer_contact,
		       e.image_url, e.is_active, e.created_at, e.updated_at,
		       p.id, p.email, p.full_name, p.bio, p.location, p.instagram_handle,
		       p.dance_preferences, p.avatar_url, p.created_at, p.updated_at
		FROM event_checkins c
		JOIN events e ON e.id = c.event_id
		JOIN profiles p ON p.id = c.user_id
		WHERE c.user_id = ANY($1) AND e.is_active AND e.date_time >= $2
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(friendIDs), now)
	if err != nil {
		return nil, fmt.Errorf("failed to get friend checkins: %w", err)
	}
	defer rows.Close()

	var checkins []model.EventCheckin
	for rows.Next() {
		var c model.EventCheckin
		var e model.Event
		var p model.UserProfile
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.EventID, &c.Status, &c.CheckedInAt,
			&e.ID, &e.Title, &e.Description, &e.DateTime, &e.VenueName, &e.VenueAddress,
			pq.Array(&e.DanceStyles), &e.EntryPrice, &e.OrganizerName, &e.OrganizerContact,
			&e.ImageURL, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
			&p.ID, &p.Email, &p.FullName, &p.Bio, &p.Location, &p.InstagramHandle,
			pq.Array(&p.DancePreferences), &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan friend checkin: %w", err)
		}
		c.Event = &e
		c.User = &p
		checkins = append(checkins, c)
	}

	return checkins, rows.Err()
}

// RemoveFriendships deletes both directional rows in one statement so the
// symmetry invariant survives the removal.
func (r *repository) RemoveFriendships(ctx context.Context, userID, friendID string) error {
	query := `
		DELETE FROM friendships
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`
	if _, err := r.db.Master.ExecContext(ctx, query, userID, friendID); err != nil {
		return fmt.Errorf("failed to remove friendships: %w", err)
	}
	return nil
}

func (r *repository) ListPendingRequests(ctx context.Context, receiverID string) ([]model.FriendRequest, error) {
	query := `
		SELECT fr.id, fr.requester_id, fr.receiver_id, fr.status, fr.created_at, fr.updated_at,
		       p.id, p.email, p.full_name, p.bio, p.location, p.instagram_handle,
		       p.dance_preferences, p.avatar_url, p.created_at, p.updated_at
		FROM friend_requests fr
		JOIN profiles p ON p.id = fr.requester_id
		WHERE fr.receiver_id = $1 AND fr.status = 'pending'
		ORDER BY fr.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to get friend requests: %w", err)
	}
	defer rows.Close()

	var requests []model.FriendRequest
	for rows.Next() {
		var fr model.FriendRequest
		var p model.UserProfile
		if err := rows.Scan(
			&fr.ID, &fr.RequesterID, &fr.ReceiverID, &fr.Status, &fr.CreatedAt, &fr.UpdatedAt,
			&p.ID, &p.Email, &p.FullName, &p.Bio, &p.Location, &p.InstagramHandle,
			pq.Array(&p.DancePreferences), &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		fr.Requester = &p
		requests = append(requests, fr)
	}

	return requests, rows.Err()
}

func (r *repository) CreateFriendRequest(ctx context.Context, requesterID, receiverID string) (string, error) {
	query := `
		INSERT INTO friend_requests (requester_id, receiver_id)
		VALUES ($1, $2)
		RETURNING id
	`

	var id string
	if err := r.db.Master.QueryRowContext(ctx, query, requesterID, receiverID).Scan(&id); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return "", ErrDuplicateRequest
		}
		return "", fmt.Errorf("failed to create friend request: %w", err)
	}
	return id, nil
}

// AcceptFriendRequestTx marks the request accepted and inserts both
// friendship rows in one transaction, so there is no window with an
// accepted request and a missing friendship.
func (r *repository) AcceptFriendRequestTx(ctx context.Context, requestID, receiverID string) (string, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var requesterID string
	err = tx.QueryRowContext(ctx, `
		SELECT requester_id FROM friend_requests
		WHERE id = $1 AND receiver_id = $2 AND status = 'pending'
		FOR UPDATE
	`, requestID, receiverID).Scan(&requesterID)
	if err != nil {
		_ = tx.Rollback()
		return "", ErrRequestNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE friend_requests SET status = 'accepted', updated_at = NOW() WHERE id = $1
	`, requestID); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("failed to accept friend request: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO friendships (user_id, friend_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT (user_id, friend_id) DO NOTHING
	`, receiverID, requesterID); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("failed to create friendships: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit friend request acceptance: %w", err)
	}

	return requesterID, nil
}

func (r *repository) DeclineFriendRequest(ctx context.Context, requestID, receiverID string) error {
	query := `
		UPDATE friend_requests SET status = 'declined', updated_at = NOW()
		WHERE id = $1 AND receiver_id = $2 AND status = 'pending'
		RETURNING id
	`

	var id string
	if err := r.db.Master.QueryRowContext(ctx, query, requestID, receiverID).Scan(&id); err != nil {
		return ErrRequestNotFound
	}
	return nil
}

// ListRelations returns the friendships and friend requests that connect
// userID with any of the candidate ids. The lookup is restricted to the
// candidate set, not a full-table scan.
func (r *repository) ListRelations(ctx context.Context, userID string, candidateIDs []string) ([]model.Friendship, []model.FriendRequest, error) {
	if len(candidateIDs) == 0 {
		return nil, nil, nil
	}

	frRows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, friend_id, created_at
		FROM friendships
		WHERE user_id = $1 AND friend_id = ANY($2)
	`, userID, pq.Array(candidateIDs))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get friendships for relations: %w", err)
	}
	defer frRows.Close()

	var friendships []model.Friendship
	for frRows.Next() {
		var f model.Friendship
		if err := frRows.Scan(&f.ID, &f.UserID, &f.FriendID, &f.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan friendship relation: %w", err)
		}
		friendships = append(friendships, f)
	}
	if err := frRows.Err(); err != nil {
		return nil, nil, err
	}

	reqRows, err := r.db.QueryContext(ctx, `
		SELECT id, requester_id, receiver_id, status, created_at, updated_at
		FROM friend_requests
		WHERE status = 'pending'
		  AND ((requester_id = $1 AND receiver_id = ANY($2))
		    OR (receiver_id = $1 AND requester_id = ANY($2)))
	`, userID, pq.Array(candidateIDs))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get friend requests for relations: %w", err)
	}
	defer reqRows.Close()

	var requests []model.FriendRequest
	for reqRows.Next() {
		var fr model.FriendRequest
		if err := reqRows.Scan(&fr.ID, &fr.RequesterID, &fr.ReceiverID, &fr.Status, &fr.CreatedAt, &fr.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan request relation: %w", err)
		}
		requests = append(requests, fr)
	}

	return friendships, requests, reqRows.Err()
}
