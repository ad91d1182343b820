// Package storage is the local audit store: gate rejections, conversation
// turns and clarification state waiting for the user's follow-up.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/plumeline/plumeline/models"
)

// ErrNoPendingClarification is returned when a follow-up arrives with no
// clarification on file for the conversation.
var ErrNoPendingClarification = errors.New("no pending clarification for conversation")

// AuditStore persists audit records in a local sqlite database
type AuditStore struct {
	db *sql.DB
}

// PendingClarification is the saved state of a question awaiting answers
type PendingClarification struct {
	ConversationID string
	Query          *models.Query
	Entities       *models.ExtractedEntities
	MissingFields  []string
	CreatedAt      time.Time
}

// Open creates or opens the audit database and runs the schema
func Open(path string) (*AuditStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}

	s := &AuditStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *AuditStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rejections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		language TEXT NOT NULL,
		confidence REAL NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_turns_conversation
		ON conversation_turns(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS pending_clarifications (
		conversation_id TEXT PRIMARY KEY,
		query_json TEXT NOT NULL,
		entities_json TEXT NOT NULL,
		missing_fields_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS expansion_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic TEXT NOT NULL,
		documents_ingested INTEGER NOT NULL,
		sources_succeeded INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run audit schema: %w", err)
	}
	return nil
}

// RecordRejection persists a domain gate rejection
func (s *AuditStore) RecordRejection(ctx context.Context, query, language string, confidence float64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejections (query, language, confidence, reason) VALUES (?, ?, ?, ?)`,
		query, language, confidence, reason)
	return err
}

// SaveTurn appends one answered (question, answer) pair to a conversation
func (s *AuditStore) SaveTurn(ctx context.Context, conversationID, question, answer string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (conversation_id, question, answer) VALUES (?, ?, ?)`,
		conversationID, question, answer)
	return err
}

// History returns the most recent turns of a conversation, oldest first
func (s *AuditStore) History(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT question, answer, created_at FROM conversation_turns
		 WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		if err := rows.Scan(&t.Question, &t.Answer, &t.AskedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// SavePendingClarification stores the question state while the user answers.
// A newer clarification for the same conversation replaces the old one.
func (s *AuditStore) SavePendingClarification(ctx context.Context, p *PendingClarification) error {
	queryJSON, err := json.Marshal(p.Query)
	if err != nil {
		return err
	}
	entitiesJSON, err := json.Marshal(p.Entities)
	if err != nil {
		return err
	}
	fieldsJSON, err := json.Marshal(p.MissingFields)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_clarifications (conversation_id, query_json, entities_json, missing_fields_json)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
		   query_json = excluded.query_json,
		   entities_json = excluded.entities_json,
		   missing_fields_json = excluded.missing_fields_json,
		   created_at = CURRENT_TIMESTAMP`,
		p.ConversationID, string(queryJSON), string(entitiesJSON), string(fieldsJSON))
	return err
}

// TakePendingClarification loads and removes the pending state for a
// conversation. The removal is unconditional so a failed resume cannot leave
// stale state that shadows the next question.
func (s *AuditStore) TakePendingClarification(ctx context.Context, conversationID string) (*PendingClarification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT query_json, entities_json, missing_fields_json, created_at
		 FROM pending_clarifications WHERE conversation_id = ?`, conversationID)

	var queryJSON, entitiesJSON, fieldsJSON string
	p := &PendingClarification{ConversationID: conversationID}
	if err := row.Scan(&queryJSON, &entitiesJSON, &fieldsJSON, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPendingClarification
		}
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_clarifications WHERE conversation_id = ?`, conversationID); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(queryJSON), &p.Query); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(entitiesJSON), &p.Entities); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &p.MissingFields); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordExpansion persists the outcome of a knowledge expansion run
func (s *AuditStore) RecordExpansion(ctx context.Context, topic string, report *models.ExpansionReport) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expansion_runs (topic, documents_ingested, sources_succeeded) VALUES (?, ?, ?)`,
		topic, report.DocumentsIngested, report.SourcesSucceeded)
	return err
}

// Ping probes the database for the health surface
func (s *AuditStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle
func (s *AuditStore) Close() error {
	return s.db.Close()
}
