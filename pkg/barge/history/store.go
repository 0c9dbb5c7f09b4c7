// Package history implements the SQLite-backed conversation store consumed
// by the attention scheduler: one active conversation per origin, an
// append-only turn log, and a cron-driven retention sweep.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver.

	"github.com/jholhewres/barge/pkg/barge/attention"
)

// DefaultMaxTurns bounds the history snapshot handed to decision calls.
const DefaultMaxTurns = 100

// Store persists conversations and turns in SQLite. It implements
// attention.HistorySource.
type Store struct {
	db       *sql.DB
	maxTurns int
	logger   *slog.Logger
}

// Open opens or creates the history database at dbPath.
func Open(dbPath string, maxTurns int, logger *slog.Logger) (*Store, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{
		db:       db,
		maxTurns: maxTurns,
		logger:   logger.With("component", "history"),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			origin     TEXT NOT NULL,
			persona_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_origin
			ON conversations(origin, updated_at);

		CREATE TABLE IF NOT EXISTS turns (
			conversation_id TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			user_msg        TEXT NOT NULL,
			assistant_msg   TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------- attention.HistorySource ----------

// CurrentConversationID returns the most recently updated conversation for
// an origin, or ok=false when the origin has no history yet.
func (s *Store) CurrentConversationID(ctx context.Context, origin string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM conversations
		WHERE origin = ?
		ORDER BY updated_at DESC
		LIMIT 1`, origin).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("current conversation for %q: %w", origin, err)
	}
	return id, true, nil
}

// Conversation loads the newest maxTurns turns plus the persona id.
func (s *Store) Conversation(ctx context.Context, origin, id string) (attention.Snapshot, error) {
	var personaID string
	err := s.db.QueryRowContext(ctx, `
		SELECT persona_id FROM conversations
		WHERE id = ? AND origin = ?`, id, origin).Scan(&personaID)
	if err == sql.ErrNoRows {
		return attention.Snapshot{}, fmt.Errorf("conversation %q not found", id)
	}
	if err != nil {
		return attention.Snapshot{}, fmt.Errorf("load conversation %q: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_msg, assistant_msg, created_at FROM (
			SELECT seq, user_msg, assistant_msg, created_at FROM turns
			WHERE conversation_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC`, id, s.maxTurns)
	if err != nil {
		return attention.Snapshot{}, fmt.Errorf("load turns for %q: %w", id, err)
	}
	defer rows.Close()

	snapshot := attention.Snapshot{
		ConversationID: id,
		PersonaID:      personaID,
	}
	for rows.Next() {
		var turn attention.Turn
		var createdAt string
		if err := rows.Scan(&turn.User, &turn.Assistant, &createdAt); err != nil {
			return attention.Snapshot{}, fmt.Errorf("scan turn: %w", err)
		}
		turn.At, _ = time.Parse(time.RFC3339, createdAt)
		snapshot.History = append(snapshot.History, turn)
	}
	return snapshot, rows.Err()
}

// AppendExchange records one user/assistant exchange on a conversation and
// bumps its updated_at. An empty id starts a fresh conversation for the
// origin, so the first-ever exchange on an origin seeds its history.
func (s *Store) AppendExchange(ctx context.Context, origin, id, userMsg, assistantMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if id == "" {
		id = uuid.NewString()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, origin, persona_id, created_at, updated_at)
			VALUES (?, ?, '', ?, ?)`, id, origin, now, now)
		if err != nil {
			return fmt.Errorf("start conversation for %q: %w", origin, err)
		}
		s.logger.Debug("conversation started", "origin", origin, "id", id)
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE conversations SET updated_at = ?
			WHERE id = ? AND origin = ?`, now, id, origin)
		if err != nil {
			return fmt.Errorf("touch conversation %q: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("conversation %q not found", id)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (conversation_id, seq, user_msg, assistant_msg, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE conversation_id = ?), ?, ?, ?)`,
		id, id, userMsg, assistantMsg, now)
	if err != nil {
		return fmt.Errorf("append turn to %q: %w", id, err)
	}

	return tx.Commit()
}

// ---------- Management ----------

// StartConversation creates a fresh conversation for an origin and returns
// its id. The host calls this when a brand-new chat begins.
func (s *Store) StartConversation(ctx context.Context, origin, personaID string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, origin, persona_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, id, origin, personaID, now, now)
	if err != nil {
		return "", fmt.Errorf("start conversation for %q: %w", origin, err)
	}

	s.logger.Debug("conversation started", "origin", origin, "id", id)
	return id, nil
}

// PruneIdle deletes conversations (and their turns) not updated within the
// retention window. Returns the number of conversations removed.
func (s *Store) PruneIdle(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM turns WHERE conversation_id IN (
			SELECT id FROM conversations WHERE updated_at < ?
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune turns: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM conversations WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune conversations: %w", err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}
