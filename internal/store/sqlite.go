package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultRecentLimit is used when RecentChains is called with limit <= 0.
const DefaultRecentLimit = 10

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes write transactions to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; foreign keys for step cascade.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS decision_chains (
		chain_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		context TEXT NOT NULL,
		final_decision TEXT,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chains_created ON decision_chains(created_at);

	CREATE TABLE IF NOT EXISTS decision_steps (
		step_id TEXT PRIMARY KEY,
		chain_id TEXT NOT NULL REFERENCES decision_chains(chain_id) ON DELETE CASCADE,
		step_number INTEGER NOT NULL,
		reasoning TEXT NOT NULL,
		decision TEXT NOT NULL,
		next_actions TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_steps_chain ON decision_steps(chain_id, step_number);

	CREATE TABLE IF NOT EXISTS sessions (
		namespace TEXT NOT NULL,
		session_id TEXT NOT NULL,
		history_json TEXT NOT NULL,
		last_response TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, session_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction: commit on success, rollback otherwise.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("transaction rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// withRetry retries op on SQLite lock conflicts with exponential backoff.
func withRetry(ctx context.Context, name string, op func() error) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
		slog.Debug("sqlite operation conflicted, retrying",
			"op", name,
			"attempt", i+1,
			"delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// SaveChain upserts chain and its steps in one transaction.
func (s *SQLiteStore) SaveChain(ctx context.Context, chain *domain.DecisionChain) (string, error) {
	if chain == nil {
		return "", errors.New("save chain: nil chain")
	}
	if chain.ChainID == "" {
		chain.ChainID = uuid.NewString()
	}
	status := chain.Status
	if status == "" {
		status = domain.ChainInProgress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	err := withRetry(ctx, "save_chain", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			var final any
			if chain.FinalDecision != nil {
				final = *chain.FinalDecision
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO decision_chains (chain_id, title, context, final_decision, status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(chain_id) DO UPDATE SET
					title = excluded.title,
					context = excluded.context,
					final_decision = excluded.final_decision,
					status = excluded.status,
					updated_at = excluded.updated_at`,
				chain.ChainID, chain.Title, chain.Context, final, string(status), now, now)
			if err != nil {
				return fmt.Errorf("upsert chain: %w", err)
			}

			for i := range chain.Steps {
				step := &chain.Steps[i]
				if step.StepID == "" {
					step.StepID = uuid.NewString()
				}
				if err := upsertStep(ctx, tx, chain.ChainID, step, now); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return chain.ChainID, nil
}

func upsertStep(ctx context.Context, tx *sql.Tx, chainID string, step *domain.DecisionStep, now int64) error {
	actions := step.NextActions
	if actions == nil {
		actions = []string{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode next actions: %w", err)
	}
	meta := step.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO decision_steps (step_id, chain_id, step_number, reasoning, decision, next_actions, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(step_id) DO UPDATE SET
			step_number = excluded.step_number,
			reasoning = excluded.reasoning,
			decision = excluded.decision,
			next_actions = excluded.next_actions,
			metadata = excluded.metadata`,
		step.StepID, chainID, step.StepNumber, step.Reasoning, step.Decision,
		string(actionsJSON), string(metaJSON), now)
	if err != nil {
		return fmt.Errorf("upsert step %d: %w", step.StepNumber, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChain(row rowScanner) (*domain.DecisionChain, error) {
	var c domain.DecisionChain
	var final sql.NullString
	var status string
	if err := row.Scan(&c.ChainID, &c.Title, &c.Context, &final, &status); err != nil {
		return nil, err
	}
	if final.Valid {
		v := final.String
		c.FinalDecision = &v
	}
	c.Status = domain.ChainStatus(status)
	return &c, nil
}

func loadSteps(ctx context.Context, tx *sql.Tx, chainID string) ([]domain.DecisionStep, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT step_id, step_number, reasoning, decision, next_actions, metadata
		FROM decision_steps WHERE chain_id = ? ORDER BY step_number ASC`, chainID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	steps := []domain.DecisionStep{}
	for rows.Next() {
		var st domain.DecisionStep
		var actionsJSON, metaJSON string
		if err := rows.Scan(&st.StepID, &st.StepNumber, &st.Reasoning, &st.Decision, &actionsJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(actionsJSON), &st.NextActions); err != nil {
			return nil, fmt.Errorf("decode next actions: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &st.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if st.NextActions == nil {
			st.NextActions = []string{}
		}
		if st.Metadata == nil {
			st.Metadata = map[string]any{}
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// GetChain retrieves a chain by id, or nil when it does not exist.
func (s *SQLiteStore) GetChain(ctx context.Context, chainID string) (*domain.DecisionChain, error) {
	var chain *domain.DecisionChain
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT chain_id, title, context, final_decision, status
			FROM decision_chains WHERE chain_id = ?`, chainID)
		c, err := scanChain(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("scan chain row: %w", err)
		}
		if c.Steps, err = loadSteps(ctx, tx, c.ChainID); err != nil {
			return err
		}
		chain = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// RecentChains returns up to limit chains ordered by creation time, newest
// first.
func (s *SQLiteStore) RecentChains(ctx context.Context, limit int) ([]*domain.DecisionChain, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	chains := []*domain.DecisionChain{}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT chain_id, title, context, final_decision, status
			FROM decision_chains ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query recent chains: %w", err)
		}
		for rows.Next() {
			c, err := scanChain(rows)
			if err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan chain row: %w", err)
			}
			chains = append(chains, c)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("iterate chains: %w", err)
		}
		_ = rows.Close()

		for _, c := range chains {
			if c.Steps, err = loadSteps(ctx, tx, c.ChainID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chains, nil
}

// DeleteChain removes a chain and its steps.
func (s *SQLiteStore) DeleteChain(ctx context.Context, chainID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted bool
	err := withRetry(ctx, "delete_chain", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM decision_steps WHERE chain_id = ?`, chainID); err != nil {
				return fmt.Errorf("delete steps: %w", err)
			}
			res, err := tx.ExecContext(ctx, `DELETE FROM decision_chains WHERE chain_id = ?`, chainID)
			if err != nil {
				return fmt.Errorf("delete chain: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("chain rows affected: %w", err)
			}
			deleted = n > 0
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete chain %s: %w", chainID, err)
	}
	return deleted, nil
}

// GetSession retrieves session state, or nil when none is stored.
func (s *SQLiteStore) GetSession(ctx context.Context, namespace, sessionID string) (*domain.SessionState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT history_json, last_response, updated_at
		FROM sessions WHERE namespace = ? AND session_id = ?`, namespace, sessionID)

	var historyJSON string
	var st domain.SessionState
	var updatedAt int64
	err := row.Scan(&historyJSON, &st.LastResponse, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &st.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	st.SessionID = sessionID
	st.UpdatedAt = time.UnixMilli(updatedAt)
	return &st, nil
}

// SaveSession replaces session state.
func (s *SQLiteStore) SaveSession(ctx context.Context, namespace string, state *domain.SessionState) error {
	history := state.History
	if history == nil {
		history = []domain.Message{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return withRetry(ctx, "save_session", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (namespace, session_id, history_json, last_response, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(namespace, session_id) DO UPDATE SET
				history_json = excluded.history_json,
				last_response = excluded.last_response,
				updated_at = excluded.updated_at`,
			namespace, state.SessionID, string(historyJSON), state.LastResponse,
			time.Now().UnixMilli(), updated.UnixMilli())
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
}

// DeleteSession removes session state.
// Retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) DeleteSession(ctx context.Context, namespace, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted bool
	err := withRetry(ctx, "delete_session", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE namespace = ? AND session_id = ?`, namespace, sessionID)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("session rows affected: %w", err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
