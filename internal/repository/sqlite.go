package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/raglinehq/ragline/internal/domain"
)

// SQLiteStore implements SessionStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ SessionStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite session store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_active_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			run_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON conversation_turns(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			degraded INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			prompt_tokens INTEGER,
			completion_tokens INTEGER,
			total_tokens INTEGER,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at, last_active_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.CreatedAt, &session.LastActiveAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates a new one.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	now := time.Now()
	session = &domain.Session{
		SessionID:    sessionID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, last_active_at) VALUES (?, ?, ?)`,
		session.SessionID, session.CreatedAt, session.LastActiveAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// AppendTurn appends a conversation turn and bumps the session's
// last-active time.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (turn_id, session_id, run_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.SessionID, nullString(turn.RunID), turn.Role, turn.Content, turn.CreatedAt)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET last_active_at = ? WHERE session_id = ?`,
		turn.CreatedAt, turn.SessionID)
	return err
}

// GetRecentTurns retrieves the last N turns of a session in chronological
// order.
func (s *SQLiteStore) GetRecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, session_id, run_id, role, content, created_at
		 FROM conversation_turns
		 WHERE session_id = ?
		 ORDER BY created_at DESC, turn_id DESC
		 LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	// Reverse newest-first into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// GetTurns retrieves turns for a session, oldest first.
func (s *SQLiteStore) GetTurns(ctx context.Context, sessionID string, limit int, before string) ([]domain.ConversationTurn, error) {
	query := `SELECT turn_id, session_id, run_id, role, content, created_at FROM conversation_turns WHERE session_id = ?`
	args := []interface{}{sessionID}

	if before != "" {
		// The cursor is a turn ID; page on that turn's timestamp since IDs
		// themselves carry no ordering.
		query += ` AND created_at < (SELECT created_at FROM conversation_turns WHERE turn_id = ?)`
		args = append(args, before)
	}

	query += ` ORDER BY created_at ASC, turn_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]domain.ConversationTurn, error) {
	var turns []domain.ConversationTurn
	for rows.Next() {
		var turn domain.ConversationTurn
		var runID sql.NullString
		if err := rows.Scan(&turn.TurnID, &turn.SessionID, &runID, &turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, err
		}
		if runID.Valid {
			turn.RunID = runID.String
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// CreateRun creates a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, session_id, mode, status, degraded, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.SessionID, run.Mode, run.Status, run.Degraded, run.StartedAt)
	return err
}

// GetRun retrieves a run by ID. Returns nil when not found.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	var errMsg sql.NullString
	var endedAt sql.NullTime
	var promptTokens, completionTokens, totalTokens sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, session_id, mode, status, degraded, error, prompt_tokens, completion_tokens, total_tokens, started_at, ended_at
		 FROM runs WHERE run_id = ?`,
		runID).Scan(&run.RunID, &run.SessionID, &run.Mode, &run.Status, &run.Degraded,
		&errMsg, &promptTokens, &completionTokens, &totalTokens, &run.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	if totalTokens.Valid {
		run.Usage = &domain.UsageData{
			PromptTokens:     int(promptTokens.Int64),
			CompletionTokens: int(completionTokens.Int64),
			TotalTokens:      int(totalTokens.Int64),
		}
	}
	return &run, nil
}

// UpdateRunStatus updates the status of a run.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE run_id = ?`,
		status, runID)
	return err
}

// UpdateRunCompleted moves a run to a terminal state.
func (s *SQLiteStore) UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, degraded bool, errMsg string, usage *domain.UsageData) error {
	now := time.Now()
	var promptTokens, completionTokens, totalTokens sql.NullInt64
	if usage != nil {
		promptTokens = sql.NullInt64{Int64: int64(usage.PromptTokens), Valid: true}
		completionTokens = sql.NullInt64{Int64: int64(usage.CompletionTokens), Valid: true}
		totalTokens = sql.NullInt64{Int64: int64(usage.TotalTokens), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, degraded = ?, error = ?, prompt_tokens = ?, completion_tokens = ?, total_tokens = ?, ended_at = ? WHERE run_id = ?`,
		status, degraded, nullString(errMsg), promptTokens, completionTokens, totalTokens, now, runID)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
