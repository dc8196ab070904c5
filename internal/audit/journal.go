package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Journal actions.
const (
	ActionCreate      = "create"
	ActionImport      = "import"
	ActionUpdate      = "update"
	ActionDelete      = "delete"
	ActionEntityAdd   = "entity.add"
	ActionEntityEdit  = "entity.update"
	ActionEntityMove  = "entity.move"
	ActionEntityDrop  = "entity.remove"
	ActionEntityLearn = "entity.learn"
	ActionRPC         = "rpc"
)

// ErrInvalidEntry is returned by Record for entries without an action or control.
var ErrInvalidEntry = errors.New("audit: entry needs action and control_id")

// Entry is one journal line.
type Entry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	ControlID string         `json:"control_id"`
	EntityID  string         `json:"entity_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter selects journal entries. Zero fields match everything.
type Filter struct {
	Action    string
	ControlID string
	Limit     int
	Offset    int
}

// Page is one page of List results, newest first.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Journal stores and lists entries.
type Journal interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*Page, error)
}

// SQLiteJournal is a Journal on the control_journal table.
type SQLiteJournal struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteJournal creates a journal on db.
func NewSQLiteJournal(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Record inserts e, filling in ID and CreatedAt when empty.
func (j *SQLiteJournal) Record(ctx context.Context, e *Entry) error {
	if e.Action == "" || e.ControlID == "" {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = "jrn-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now()
	}

	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling journal details: %w", err)
		}
		details = string(b)
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO control_journal (id, action, control_id, entity_id, request_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.ControlID,
		nullable(e.EntityID), nullable(e.RequestID), details,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching f, newest first.
func (j *SQLiteJournal) List(ctx context.Context, f Filter) (*Page, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultLimit
	case f.Limit > maxLimit:
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		conds []string
		args  []any
	)
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.ControlID != "" {
		conds = append(conds, "control_id = ?")
		args = append(args, f.ControlID)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM control_journal " + where //nolint:gosec // placeholders only
	if err := j.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := "SELECT id, action, control_id, entity_id, request_id, details, created_at FROM control_journal " + //nolint:gosec // placeholders only
		where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := j.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}

	return &Page{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                            Entry
		entityID, requestID, details sql.NullString
		createdAt                    string
	)
	if err := rows.Scan(&e.ID, &e.Action, &e.ControlID, &entityID, &requestID, &details, &createdAt); err != nil {
		return e, fmt.Errorf("scanning journal entry: %w", err)
	}
	e.EntityID = entityID.String
	e.RequestID = requestID.String
	if details.Valid && details.String != "" {
		// Unreadable details are dropped rather than failing the page.
		_ = json.Unmarshal([]byte(details.String), &e.Details) //nolint:errcheck
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return e, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}
