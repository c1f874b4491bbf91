// Package audit provides the audit_events table: a durable trail of
// override lifecycle changes, anomaly interlock actions and dropped
// offline commands.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity types recorded in the trail.
const (
	EntityOverride = "override"
	EntityAnomaly  = "anomaly"
	EntityCommand  = "command"
)

// Page size bounds for List.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Event represents a single audit trail entry.
type Event struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit events to return. Zero fields match
// everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	Limit      int // default 50, capped at 200
	Offset     int
}

// normalise clamps pagination into range.
func (f *Filter) normalise() {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// where builds the parameterised WHERE clause for the filter. The
// clause text comes only from fixed fragments; values travel as args.
func (f Filter) where() (string, []any) {
	var clauses []string
	var args []any

	for _, c := range []struct {
		clause string
		value  string
	}{
		{"action = ?", f.Action},
		{"entity_type = ?", f.EntityType},
		{"entity_id = ?", f.EntityID},
	} {
		if c.value != "" {
			clauses = append(clauses, c.clause)
			args = append(args, c.value)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// ListResult contains one page of audit events.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository defines the interface for audit trail operations.
type Repository interface {
	Create(ctx context.Context, event *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository persists audit events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit trail repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an audit event, generating ID and CreatedAt when
// unset.
func (r *SQLiteRepository) Create(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = "aud-" + uuid.NewString()[:8]
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	details, err := encodeDetails(event.Details)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, action, entity_type, entity_id, actor, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Action, event.EntityType,
		orNull(event.EntityID), orNull(event.Actor),
		details,
		event.CreatedAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// List returns one page of events matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter.normalise()
	where, args := filter.where()

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_events " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit events: %w", err)
	}

	pageQuery := "SELECT id, action, entity_type, entity_id, actor, details, created_at FROM audit_events " +
		where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, pageQuery, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var event Event
	var entityID, actor, details sql.NullString
	var createdAt string

	if err := rows.Scan(&event.ID, &event.Action, &event.EntityType,
		&entityID, &actor, &details, &createdAt); err != nil {
		return Event{}, fmt.Errorf("scanning audit event: %w", err)
	}

	event.EntityID = entityID.String
	event.Actor = actor.String
	if details.String != "" {
		// Stored details were marshalled by Create; a decode failure
		// means a hand-edited row, which we surface as no details.
		var decoded map[string]any
		if json.Unmarshal([]byte(details.String), &decoded) == nil {
			event.Details = decoded
		}
	}

	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("parsing audit event timestamp %q: %w", createdAt, err)
	}
	event.CreatedAt = ts

	return event, nil
}

// encodeDetails marshals the details map for the nullable TEXT
// column.
func encodeDetails(details map[string]any) (any, error) {
	if details == nil {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshalling audit details: %w", err)
	}
	return string(b), nil
}

// orNull maps empty strings to NULL for nullable TEXT columns.
func orNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
