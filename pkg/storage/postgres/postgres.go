// Package postgres provides a PostgreSQL implementation of transport.RepairStore.
// It uses pgx/v5 for connection pooling and JSONB for the attempt history.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/storage"
	"github.com/rhuss/remedy/pkg/transport"
)

// Store is a PostgreSQL-backed RepairStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements transport.RepairStore at compile time.
var _ transport.RepairStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveRepair persists a new repair.
func (s *Store) SaveRepair(ctx context.Context, rep *api.Repair) error {
	tenantID := storage.GetTenant(ctx)

	historyJSON, errorJSON, err := marshalRepairColumns(rep)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO repairs (
			id, tenant_id, status, final_code, max_retries,
			history, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		rep.ID, tenantID, string(rep.Status), rep.FinalCode, rep.MaxRetries,
		historyJSON, nullJSON(errorJSON), rep.CreatedAt,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting repair: %w", err)
	}

	return nil
}

// GetRepair retrieves a repair by ID, excluding soft-deleted repairs.
func (s *Store) GetRepair(ctx context.Context, id string) (*api.Repair, error) {
	tenantID := storage.GetTenant(ctx)

	query := `
		SELECT id, status, final_code, max_retries, history, error, created_at
		FROM repairs
		WHERE id = $1 AND deleted_at IS NULL
	`
	args := []any{id}

	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	rep, err := scanRepair(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying repair: %w", err)
	}

	return rep, nil
}

// UpdateRepair replaces the mutable columns of a stored repair. Repairs
// are created in progress and updated once the loop reaches a terminal
// status.
func (s *Store) UpdateRepair(ctx context.Context, rep *api.Repair) error {
	tenantID := storage.GetTenant(ctx)

	historyJSON, errorJSON, err := marshalRepairColumns(rep)
	if err != nil {
		return err
	}

	query := `
		UPDATE repairs
		SET status = $1, final_code = $2, history = $3, error = $4, updated_at = now()
		WHERE id = $5 AND deleted_at IS NULL
	`
	args := []any{string(rep.Status), rep.FinalCode, historyJSON, nullJSON(errorJSON), rep.ID}

	if tenantID != "" {
		query += " AND tenant_id = $6"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating repair: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// DeleteRepair soft-deletes a repair by setting deleted_at.
func (s *Store) DeleteRepair(ctx context.Context, id string) error {
	tenantID := storage.GetTenant(ctx)

	query := "UPDATE repairs SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL"
	args := []any{time.Now(), id}

	if tenantID != "" {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting repair: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ListRepairs returns a paginated list of stored repairs filtered by
// tenant and optionally by status. Pagination is keyset-based on
// (created_at, id).
func (s *Store) ListRepairs(ctx context.Context, opts transport.ListOptions) (*transport.RepairList, error) {
	tenantID := storage.GetTenant(ctx)

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, status, final_code, max_retries, history, error, created_at
		FROM repairs
		WHERE deleted_at IS NULL
	`)
	var args []any

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if tenantID != "" {
		sb.WriteString(" AND tenant_id = " + next(tenantID))
	}
	if opts.Status != "" {
		sb.WriteString(" AND status = " + next(opts.Status))
	}

	asc := opts.Order == "asc"
	cmpAfter, cmpBefore := "<", ">"
	if asc {
		cmpAfter, cmpBefore = ">", "<"
	}

	if opts.After != "" {
		p := next(opts.After)
		sb.WriteString(fmt.Sprintf(
			" AND (created_at, id) %s (SELECT created_at, id FROM repairs WHERE id = %s)",
			cmpAfter, p,
		))
	} else if opts.Before != "" {
		p := next(opts.Before)
		sb.WriteString(fmt.Sprintf(
			" AND (created_at, id) %s (SELECT created_at, id FROM repairs WHERE id = %s)",
			cmpBefore, p,
		))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	dir := "DESC"
	if asc {
		dir = "ASC"
	}
	// Fetch one extra row to determine has_more.
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT %s", dir, dir, next(limit+1)))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing repairs: %w", err)
	}
	defer rows.Close()

	var repairs []*api.Repair
	for rows.Next() {
		rep, err := scanRepair(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning repair row: %w", err)
		}
		repairs = append(repairs, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating repair rows: %w", err)
	}

	hasMore := len(repairs) > limit
	if hasMore {
		repairs = repairs[:limit]
	}

	result := &transport.RepairList{
		Object:  "list",
		Data:    repairs,
		HasMore: hasMore,
	}
	if len(repairs) > 0 {
		result.FirstID = repairs[0].ID
		result.LastID = repairs[len(repairs)-1].ID
	}
	if result.Data == nil {
		result.Data = []*api.Repair{}
	}

	return result, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRepair reads one repair row into an api.Repair.
func scanRepair(row rowScanner) (*api.Repair, error) {
	var rep api.Repair
	var status string
	var historyJSON []byte
	var errorJSON *[]byte

	err := row.Scan(
		&rep.ID, &status, &rep.FinalCode, &rep.MaxRetries,
		&historyJSON, &errorJSON, &rep.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rep.Object = "repair"
	rep.Status = api.RepairStatus(status)

	if err := json.Unmarshal(historyJSON, &rep.History); err != nil {
		return nil, fmt.Errorf("unmarshaling history: %w", err)
	}

	if errorJSON != nil {
		var apiErr api.APIError
		if err := json.Unmarshal(*errorJSON, &apiErr); err == nil {
			rep.Error = &apiErr
		}
	}

	return &rep, nil
}

// marshalRepairColumns serializes the JSONB columns of a repair.
func marshalRepairColumns(rep *api.Repair) (historyJSON, errorJSON []byte, err error) {
	history := rep.History
	if history == nil {
		history = []api.AttemptRecord{}
	}
	historyJSON, err = json.Marshal(history)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling history: %w", err)
	}

	if rep.Error != nil {
		errorJSON, err = json.Marshal(rep.Error)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling error: %w", err)
		}
	}

	return historyJSON, errorJSON, nil
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
