// Package store persists conversations and their ordered steps in SQLite,
// and answers the aggregate queries the context manager seeds fresh
// contexts with.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"convoke"
)

const conversationSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	user_query    TEXT NOT NULL,
	state         TEXT NOT NULL,
	context       TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_steps (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	step_id         INTEGER NOT NULL,
	step_type       TEXT NOT NULL,
	llm_request     TEXT,
	llm_response    TEXT,
	tool_calls      TEXT NOT NULL,
	results         TEXT,
	status          TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_steps_conversation
	ON conversation_steps(conversation_id, step_id);
`

// SQLiteStore implements ConversationStore over a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens (creating if necessary) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func Open(path string, options ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, convoke.NewStorageError("open", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, convoke.NewStorageError("open", err)
	}
	if _, err := db.Exec(conversationSchema); err != nil {
		db.Close()
		return nil, convoke.NewStorageError("initialize", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// DB exposes the underlying handle so collaborators (e.g. the summary
// source) can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save writes the header and all steps in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, conv *convoke.Conversation) error {
	contextJSON, err := json.Marshal(conv.Context)
	if err != nil {
		return convoke.NewSerializationError("storage", "conversation context", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return convoke.NewStorageError("save", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_query, state, context, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserQuery, string(conv.State), string(contextJSON),
		formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt))
	if err != nil {
		return convoke.NewStorageError("save", err)
	}

	if err := insertSteps(ctx, tx, conv.ID, conv.Steps); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return convoke.NewStorageError("save", err)
	}
	return nil
}

// Load returns the conversation with its steps ordered by step id, or nil
// when no such conversation exists.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*convoke.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_query, state, context, created_at, updated_at
		 FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT step_id, step_type, llm_request, llm_response, tool_calls, results, status, created_at
		 FROM conversation_steps WHERE conversation_id = ? ORDER BY step_id`, id)
	if err != nil {
		return nil, convoke.NewStorageError("load", err)
	}
	defer rows.Close()

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		conv.Steps = append(conv.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, convoke.NewStorageError("load", err)
	}
	return conv, nil
}

// Update rewrites the header and replaces the full step list. Steps are
// append-and-upgrade, so the replacement is a delete-then-reinsert inside
// one transaction; a partial update would risk a torn step list.
func (s *SQLiteStore) Update(ctx context.Context, conv *convoke.Conversation) error {
	contextJSON, err := json.Marshal(conv.Context)
	if err != nil {
		return convoke.NewSerializationError("storage", "conversation context", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return convoke.NewStorageError("update", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE conversations SET state = ?, context = ?, updated_at = ? WHERE id = ?`,
		string(conv.State), string(contextJSON), formatTime(conv.UpdatedAt), conv.ID)
	if err != nil {
		return convoke.NewStorageError("update", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return convoke.NewStorageError("update", err)
	}
	if affected == 0 {
		return convoke.NewStorageError("update", fmt.Errorf("conversation %s does not exist", conv.ID))
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_steps WHERE conversation_id = ?`, conv.ID); err != nil {
		return convoke.NewStorageError("update", err)
	}
	if err := insertSteps(ctx, tx, conv.ID, conv.Steps); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return convoke.NewStorageError("update", err)
	}
	return nil
}

// Delete removes the conversation and, via the foreign key, its steps.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return convoke.NewStorageError("delete", err)
	}
	return nil
}

// List returns up to limit conversations ordered by updated_at descending.
// Steps are omitted for efficiency.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]convoke.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_query, state, context, created_at, updated_at
		 FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, convoke.NewStorageError("list", err)
	}
	defer rows.Close()

	var conversations []convoke.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, convoke.NewStorageError("list", err)
	}
	return conversations, nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, conversationID string, steps []convoke.ConversationStep) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO conversation_steps
		 (conversation_id, step_id, step_type, llm_request, llm_response, tool_calls, results, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return convoke.NewStorageError("save", err)
	}
	defer stmt.Close()

	for _, step := range steps {
		toolCalls := step.ToolCalls
		if toolCalls == nil {
			toolCalls = []convoke.ToolExecution{}
		}
		toolCallsJSON, err := json.Marshal(toolCalls)
		if err != nil {
			return convoke.NewSerializationError("storage", "tool calls", err)
		}

		var resultsJSON interface{}
		if step.Results != nil {
			data, err := json.Marshal(step.Results)
			if err != nil {
				return convoke.NewSerializationError("storage", "step results", err)
			}
			resultsJSON = string(data)
		}

		_, err = stmt.ExecContext(ctx,
			conversationID, step.StepID, string(step.StepType),
			step.LLMRequest, step.LLMResponse, string(toolCallsJSON),
			resultsJSON, string(step.Status), formatTime(step.CreatedAt))
		if err != nil {
			return convoke.NewStorageError("save", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*convoke.Conversation, error) {
	var conv convoke.Conversation
	var state, contextJSON, createdAt, updatedAt string

	if err := row.Scan(&conv.ID, &conv.UserQuery, &state, &contextJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, convoke.NewStorageError("load", err)
	}

	conv.State = convoke.ConversationState(state)
	if err := json.Unmarshal([]byte(contextJSON), &conv.Context); err != nil {
		return nil, convoke.NewStorageError("load", convoke.NewSerializationError("storage", "conversation context", err))
	}

	var err error
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, convoke.NewStorageError("load", err)
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, convoke.NewStorageError("load", err)
	}
	return &conv, nil
}

func scanStep(rows *sql.Rows) (convoke.ConversationStep, error) {
	var step convoke.ConversationStep
	var stepType, toolCallsJSON, status, createdAt string
	var llmRequest, llmResponse, resultsJSON sql.NullString

	err := rows.Scan(&step.StepID, &stepType, &llmRequest, &llmResponse,
		&toolCallsJSON, &resultsJSON, &status, &createdAt)
	if err != nil {
		return step, convoke.NewStorageError("load", err)
	}

	step.StepType = convoke.StepType(stepType)
	step.Status = convoke.StepStatus(status)
	if llmRequest.Valid {
		step.LLMRequest = &llmRequest.String
	}
	if llmResponse.Valid {
		step.LLMResponse = &llmResponse.String
	}
	if err := json.Unmarshal([]byte(toolCallsJSON), &step.ToolCalls); err != nil {
		return step, convoke.NewStorageError("load", convoke.NewSerializationError("storage", "tool calls", err))
	}
	if resultsJSON.Valid {
		step.Results = &convoke.StepResult{}
		if err := json.Unmarshal([]byte(resultsJSON.String), step.Results); err != nil {
			return step, convoke.NewStorageError("load", convoke.NewSerializationError("storage", "step results", err))
		}
	}
	if step.CreatedAt, err = parseTime(createdAt); err != nil {
		return step, convoke.NewStorageError("load", err)
	}
	return step, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
