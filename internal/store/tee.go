package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const teeColumns = `id, name, type, enabled, url, method, headers, file_path, custom_handler, filter, retries, timeout_ms, created_at, updated_at`

func scanTee(row scanner) (TeeDestination, error) {
	var t TeeDestination
	var headers, filter sql.NullString
	var url, method, filePath, handler sql.NullString
	var createdAt, updatedAt int64
	var enabled int
	if err := row.Scan(&t.ID, &t.Name, &t.Type, &enabled, &url, &method, &headers, &filePath, &handler, &filter,
		&t.Retries, &t.TimeoutMs, &createdAt, &updatedAt); err != nil {
		return TeeDestination{}, err
	}
	t.Enabled = enabled != 0
	t.URL = url.String
	t.Method = method.String
	t.FilePath = filePath.String
	t.CustomHandler = handler.String
	if headers.Valid {
		_ = json.Unmarshal([]byte(headers.String), &t.Headers)
	}
	if filter.Valid {
		_ = json.Unmarshal([]byte(filter.String), &t.Filter)
	}
	t.CreatedAt = time.UnixMilli(createdAt)
	t.UpdatedAt = time.UnixMilli(updatedAt)
	return t, nil
}

// ListTeeDestinations returns all configured tee sinks.
func (s *Store) ListTeeDestinations(ctx context.Context) ([]TeeDestination, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+teeColumns+` FROM tee_destinations ORDER BY name ASC`)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()
	var out []TeeDestination
	for rows.Next() {
		t, err := scanTee(rows)
		if err != nil {
			return nil, wrapStorage(err)
		}
		out = append(out, t)
	}
	return out, wrapStorage(rows.Err())
}

// ListEnabledTeeDestinations returns only enabled sinks, used by C9's tee fan-out.
func (s *Store) ListEnabledTeeDestinations(ctx context.Context) ([]TeeDestination, error) {
	all, err := s.ListTeeDestinations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TeeDestination, 0, len(all))
	for _, t := range all {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetTeeDestination fetches a single sink by id.
func (s *Store) GetTeeDestination(ctx context.Context, id string) (TeeDestination, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+teeColumns+` FROM tee_destinations WHERE id = ?`, id)
	t, err := scanTee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TeeDestination{}, fmt.Errorf("%w: tee destination %s", ErrNotFound, id)
	}
	return t, wrapStorage(err)
}

// TeeDestinationInput is the payload accepted by CreateTeeDestination.
type TeeDestinationInput struct {
	Name          string
	Type          string
	Enabled       bool
	URL           string
	Method        string
	Headers       map[string]string
	FilePath      string
	CustomHandler string
	Filter        TeeFilter
	Retries       int
	TimeoutMs     int
}

func (in TeeDestinationInput) validate() error {
	switch in.Type {
	case "webhook":
		if in.URL == "" {
			return fmt.Errorf("%w: webhook tee destination requires url", ErrValidation)
		}
	case "file":
		if in.FilePath == "" {
			return fmt.Errorf("%w: file tee destination requires filePath", ErrValidation)
		}
	case "custom":
		if in.CustomHandler == "" {
			return fmt.Errorf("%w: custom tee destination requires customHandler", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown tee destination type %q", ErrValidation, in.Type)
	}
	return nil
}

// CreateTeeDestination validates and inserts a tee sink.
func (s *Store) CreateTeeDestination(ctx context.Context, in TeeDestinationInput) (TeeDestination, error) {
	if err := in.validate(); err != nil {
		return TeeDestination{}, err
	}
	if in.TimeoutMs <= 0 {
		in.TimeoutMs = 5000
	}
	if in.TimeoutMs > 30000 {
		in.TimeoutMs = 30000
	}
	now := time.Now()
	t := TeeDestination{
		ID: uuid.NewString(), Name: in.Name, Type: in.Type, Enabled: in.Enabled,
		URL: in.URL, Method: in.Method, Headers: in.Headers, FilePath: in.FilePath,
		CustomHandler: in.CustomHandler, Filter: in.Filter, Retries: in.Retries, TimeoutMs: in.TimeoutMs,
		CreatedAt: now, UpdatedAt: now,
	}
	headers, _ := json.Marshal(t.Headers)
	filter, _ := json.Marshal(t.Filter)
	_, err := s.db.ExecContext(ctx, `INSERT INTO tee_destinations
		(id, name, type, enabled, url, method, headers, file_path, custom_handler, filter, retries, timeout_ms, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.Type, boolToInt(t.Enabled), t.URL, t.Method, string(headers), t.FilePath, t.CustomHandler,
		string(filter), t.Retries, t.TimeoutMs, now.UnixMilli(), now.UnixMilli())
	return t, wrapStorage(err)
}

// TeeDestinationPatch is a partial update; nil fields are left unchanged.
type TeeDestinationPatch struct {
	Name          *string
	Enabled       *bool
	URL           *string
	Method        *string
	Headers       map[string]string
	FilePath      *string
	CustomHandler *string
	Filter        *TeeFilter
	Retries       *int
	TimeoutMs     *int
}

// UpdateTeeDestination applies a partial update to a tee sink.
func (s *Store) UpdateTeeDestination(ctx context.Context, id string, patch TeeDestinationPatch) (TeeDestination, error) {
	t, err := s.GetTeeDestination(ctx, id)
	if err != nil {
		return TeeDestination{}, err
	}

	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Enabled != nil {
		t.Enabled = *patch.Enabled
	}
	if patch.URL != nil {
		t.URL = *patch.URL
	}
	if patch.Method != nil {
		t.Method = *patch.Method
	}
	if patch.Headers != nil {
		t.Headers = patch.Headers
	}
	if patch.FilePath != nil {
		t.FilePath = *patch.FilePath
	}
	if patch.CustomHandler != nil {
		t.CustomHandler = *patch.CustomHandler
	}
	if patch.Filter != nil {
		t.Filter = *patch.Filter
	}
	if patch.Retries != nil {
		t.Retries = *patch.Retries
	}
	if patch.TimeoutMs != nil {
		t.TimeoutMs = *patch.TimeoutMs
		if t.TimeoutMs <= 0 {
			t.TimeoutMs = 5000
		}
		if t.TimeoutMs > 30000 {
			t.TimeoutMs = 30000
		}
	}
	in := TeeDestinationInput{
		Name: t.Name, Type: t.Type, Enabled: t.Enabled, URL: t.URL, Method: t.Method,
		Headers: t.Headers, FilePath: t.FilePath, CustomHandler: t.CustomHandler,
		Filter: t.Filter, Retries: t.Retries, TimeoutMs: t.TimeoutMs,
	}
	if err := in.validate(); err != nil {
		return TeeDestination{}, err
	}
	t.UpdatedAt = time.Now()

	headers, _ := json.Marshal(t.Headers)
	filter, _ := json.Marshal(t.Filter)
	_, err = s.db.ExecContext(ctx, `UPDATE tee_destinations SET
		name=?, enabled=?, url=?, method=?, headers=?, file_path=?, custom_handler=?, filter=?, retries=?, timeout_ms=?, updated_at=?
		WHERE id=?`,
		t.Name, boolToInt(t.Enabled), t.URL, t.Method, string(headers), t.FilePath, t.CustomHandler,
		string(filter), t.Retries, t.TimeoutMs, t.UpdatedAt.UnixMilli(), id,
	)
	if err != nil {
		return TeeDestination{}, wrapStorage(err)
	}
	return t, nil
}

// DeleteTeeDestination removes a tee sink.
func (s *Store) DeleteTeeDestination(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tee_destinations WHERE id = ?`, id)
	if err != nil {
		return false, wrapStorage(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetTeeDestinationEnabled toggles a sink's enabled flag.
func (s *Store) SetTeeDestinationEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tee_destinations SET enabled=?, updated_at=? WHERE id=?`,
		boolToInt(enabled), time.Now().UnixMilli(), id)
	return wrapStorage(err)
}
