package control

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// Repository defines the interface for control persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
}

// controlColumns is the SELECT column list for control queries.
const controlColumns = `id, kind, name, rotary_actions, model, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a control by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + controlColumns + ` FROM controls WHERE id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrControlNotFound
		}
		return nil, fmt.Errorf("querying control by id: %w", err)
	}
	return rec, nil
}

// List retrieves all controls ordered by name then ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	query := `SELECT ` + controlColumns + ` FROM controls ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying controls: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning control: %w", scanErr)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating controls: %w", err)
	}
	return records, nil
}

// Create inserts a new control.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	modelJSON, err := json.Marshal(rec.Storage)
	if err != nil {
		return fmt.Errorf("marshalling model: %w", err)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO controls (id, kind, name, rotary_actions, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Kind),
		rec.Name,
		boolToInt(rec.RotaryActions),
		string(modelJSON),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrControlExists
		}
		return fmt.Errorf("inserting control: %w", err)
	}
	return nil
}

// Update replaces the stored model of an existing control.
func (r *SQLiteRepository) Update(ctx context.Context, rec *Record) error {
	modelJSON, err := json.Marshal(rec.Storage)
	if err != nil {
		return fmt.Errorf("marshalling model: %w", err)
	}

	rec.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE controls SET
			name = ?, rotary_actions = ?, model = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rec.Name,
		boolToInt(rec.RotaryActions),
		string(modelJSON),
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating control: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrControlNotFound
	}
	return nil
}

// Delete removes a control by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM controls WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting control: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrControlNotFound
	}
	return nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var kind, modelJSON, createdAt, updatedAt string
	var rotary int

	err := scanner.Scan(
		&rec.ID,
		&kind,
		&rec.Name,
		&rotary,
		&modelJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = pool.Kind(kind)
	rec.RotaryActions = rotary != 0

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		rec.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		rec.UpdatedAt = t
	}

	if modelJSON != "" && modelJSON != "{}" {
		if jsonErr := json.Unmarshal([]byte(modelJSON), &rec.Storage); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling model: %w", jsonErr)
		}
	}

	return &rec, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
