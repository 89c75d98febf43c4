package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"postflow/internal/models"
)

// ErrConflict reports a stale session write: another request saved the
// user's state between our load and our save.
var ErrConflict = errors.New("session state version conflict")

// Store persists sessions, history, personas and posts.
type Store struct {
	db *sql.DB
}

// NewStore builds a store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for wiring (auth shares it).
func (s *Store) DB() *sql.DB {
	return s.db
}

// LoadSession returns the persisted conversation state for the user.
// sql.ErrNoRows means the user has never spoken.
func (s *Store) LoadSession(ctx context.Context, userID int64) (*models.SessionState, error) {
	var (
		state   models.SessionState
		phase   string
		answers string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, phase, question_index, answers, completed, version, updated_at
		 FROM chat_states WHERE user_id = ?`, userID,
	).Scan(&state.UserID, &phase, &state.QuestionIndex, &answers, &state.Completed, &state.Version, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	state.Phase = models.Phase(phase)
	state.Answers = make(map[string]string)
	if answers != "" {
		if err := json.Unmarshal([]byte(answers), &state.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return &state, nil
}

// SaveTurn commits one completed interaction: the updated session state plus
// the history entries produced while handling it, all or nothing. The state
// version is checked and bumped; a stale version yields ErrConflict and
// nothing is written.
func (s *Store) SaveTurn(ctx context.Context, state *models.SessionState, entries []models.HistoryEntry) error {
	if state == nil {
		return errors.New("session state is required")
	}
	answers, err := json.Marshal(state.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if state.Version == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chat_states (user_id, phase, question_index, answers, completed, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?)`,
			state.UserID, string(state.Phase), state.QuestionIndex, string(answers), state.Completed, now,
		)
		if err != nil {
			if isDuplicateKey(err) {
				// Concurrent first message already created the row.
				err = ErrConflict
				return err
			}
			err = fmt.Errorf("save session: %w", err)
			return err
		}
		state.Version = 1
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`UPDATE chat_states SET phase = ?, question_index = ?, answers = ?, completed = ?,
			 version = version + 1, updated_at = ? WHERE user_id = ? AND version = ?`,
			string(state.Phase), state.QuestionIndex, string(answers), state.Completed, now,
			state.UserID, state.Version,
		)
		if err != nil {
			err = fmt.Errorf("save session: %w", err)
			return err
		}
		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			err = fmt.Errorf("session rows affected: %w", err)
			return err
		}
		if affected == 0 {
			err = ErrConflict
			return err
		}
		state.Version++
	}
	state.UpdatedAt = now

	for _, entry := range entries {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_history (user_id, message, sender, created_at) VALUES (?, ?, ?, ?)`,
			entry.UserID, entry.Message, string(entry.Sender), now,
		); err != nil {
			err = fmt.Errorf("append history: %w", err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

// AppendHistory writes a single ledger entry outside a turn (the reset
// announcement, regenerated post content).
func (s *Store) AppendHistory(ctx context.Context, entry models.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_id, message, sender, created_at) VALUES (?, ?, ?, ?)`,
		entry.UserID, entry.Message, string(entry.Sender), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns the full ordered ledger for a user.
func (s *Store) History(ctx context.Context, userID int64) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, message, sender, created_at FROM chat_history
		 WHERE user_id = ? ORDER BY id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var (
			e      models.HistoryEntry
			sender string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Message, &sender, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Sender = models.Sender(sender)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// isDuplicateKey reports whether err is a primary-key or unique constraint
// violation. Other constraint failures (foreign keys) are real errors.
func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// ResetSession drops the user's conversation state. The next inbound message
// starts the interview over; history and prior personas are kept.
func (s *Store) ResetSession(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_states WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}
