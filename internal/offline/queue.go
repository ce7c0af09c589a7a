package offline

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// PendingAction is one recorded offline mutation, keyed by action id.
type PendingAction struct {
	ID        string
	Method    string
	URL       string
	UserID    string
	Body      []byte
	CreatedAt time.Time
	Retries   int
}

// ActionQueue is the durable pending-actions store behind background sync.
// Mutations that fail at the network level are recorded here and replayed
// once the upstream is reachable again.
type ActionQueue struct {
	db  *sql.DB
	log *zerolog.Logger
}

func OpenActionQueue(path string, log *zerolog.Logger) (*ActionQueue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open action queue: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping action queue: %w", err)
	}

	schema := `
    CREATE TABLE IF NOT EXISTS pending_actions (
        id TEXT PRIMARY KEY,
        method TEXT NOT NULL,
        url TEXT NOT NULL,
        user_id TEXT NOT NULL DEFAULT '',
        body BLOB,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        retries INTEGER NOT NULL DEFAULT 0
    );`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create pending_actions table: %w", err)
	}

	return &ActionQueue{db: db, log: log}, nil
}

func (q *ActionQueue) Close() error { return q.db.Close() }

func (q *ActionQueue) Enqueue(ctx context.Context, method, url, userID string, body []byte) (string, error) {
	id := newActionID()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_actions (id, method, url, user_id, body)
		VALUES (?, ?, ?, ?, ?)
	`, id, method, url, userID, body)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue action: %w", err)
	}

	q.log.Info().Str("action_id", id).Str("method", method).Str("url", url).Msg("offline action recorded")
	return id, nil
}

func (q *ActionQueue) List(ctx context.Context) ([]PendingAction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, method, url, user_id, body, created_at, retries
		FROM pending_actions
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending actions: %w", err)
	}
	defer rows.Close()

	var actions []PendingAction
	for rows.Next() {
		var a PendingAction
		if err := rows.Scan(&a.ID, &a.Method, &a.URL, &a.UserID, &a.Body, &a.CreatedAt, &a.Retries); err != nil {
			return nil, fmt.Errorf("failed to scan pending action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (q *ActionQueue) Remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove pending action: %w", err)
	}
	return nil
}

func (q *ActionQueue) bumpRetries(ctx context.Context, id string) {
	if _, err := q.db.ExecContext(ctx, `UPDATE pending_actions SET retries = retries + 1 WHERE id = ?`, id); err != nil {
		q.log.Warn().Err(err).Str("action_id", id).Msg("failed to bump retry count")
	}
}

// Replay attempts every pending action in order and removes the ones that
// reach the upstream. A failed attempt stays queued for the next pass.
func (q *ActionQueue) Replay(ctx context.Context, httpc *http.Client) {
	actions, err := q.List(ctx)
	if err != nil {
		q.log.Error().Err(err).Msg("background sync failed to read queue")
		return
	}

	for _, a := range actions {
		req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, strings.NewReader(string(a.Body)))
		if err != nil {
			q.log.Error().Err(err).Str("action_id", a.ID).Msg("dropping malformed pending action")
			_ = q.Remove(ctx, a.ID)
			continue
		}
		if len(a.Body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		if a.UserID != "" {
			req.Header.Set("X-User-ID", a.UserID)
		}

		resp, err := httpc.Do(req)
		if err != nil {
			q.bumpRetries(ctx, a.ID)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		// Any upstream verdict counts as synced; only unreachability keeps
		// the action queued.
		if err := q.Remove(ctx, a.ID); err != nil {
			q.log.Warn().Err(err).Str("action_id", a.ID).Msg("failed to remove synced action")
			continue
		}
		q.log.Info().Str("action_id", a.ID).Int("status", resp.StatusCode).Msg("offline action synced")
	}
}

// StartSync replays the queue on the given interval until ctx is done.
func (q *ActionQueue) StartSync(ctx context.Context, httpc *http.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.Replay(ctx, httpc)
			}
		}
	}()
}

func newActionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("action-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
