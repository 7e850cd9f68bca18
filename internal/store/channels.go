package store

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

func channelCacheKey(id string) string { return "channel:id:" + id }

// ListChannels returns every channel ordered by (priority DESC, name ASC).
func (s *Store) ListChannels(ctx context.Context) ([]Channel, error) {
	return s.queryChannels(ctx, "1=1")
}

// ListEnabledChannels returns only channels with status = enabled.
func (s *Store) ListEnabledChannels(ctx context.Context) ([]Channel, error) {
	return s.queryChannels(ctx, fmt.Sprintf("status = '%s'", ChannelEnabled))
}

func (s *Store) queryChannels(ctx context.Context, where string) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE `+where+` ORDER BY priority DESC, name ASC`)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, wrapStorage(err)
		}
		out = append(out, c)
	}
	return out, wrapStorage(rows.Err())
}

// GetChannel fetches a channel by id, consulting the row cache first.
func (s *Store) GetChannel(ctx context.Context, id string) (Channel, error) {
	if v, ok := s.rows.get(channelCacheKey(id)); ok {
		return v.(Channel), nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Channel{}, fmt.Errorf("%w: channel %s", ErrNotFound, id)
	}
	if err != nil {
		return Channel{}, wrapStorage(err)
	}
	s.rows.set(channelCacheKey(id), c)
	return c, nil
}

// ChannelInput is the payload accepted by CreateChannel. UpdateChannel takes
// a ChannelPatch instead, whose nil pointer fields mean "leave unchanged".
type ChannelInput struct {
	Name         string
	Type         string
	BaseURL      string
	APIKey       string
	Models       []string
	Priority     int
	Weight       float64
	Transformers []TransformerRef
}

// CreateChannel validates and inserts a new channel.
func (s *Store) CreateChannel(ctx context.Context, in ChannelInput) (Channel, error) {
	if in.Name == "" || in.Type == "" || len(in.Models) == 0 {
		return Channel{}, fmt.Errorf("%w: name, type and at least one model are required", ErrValidation)
	}
	if in.Weight <= 0 {
		in.Weight = 1
	}
	now := time.Now()
	c := Channel{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Type:         in.Type,
		BaseURL:      in.BaseURL,
		APIKey:       in.APIKey,
		Models:       in.Models,
		Priority:     in.Priority,
		Weight:       in.Weight,
		Status:       ChannelEnabled,
		Transformers: in.Transformers,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	models, _ := json.Marshal(c.Models)
	transformers, _ := json.Marshal(c.Transformers)
	_, err := s.db.ExecContext(ctx, `INSERT INTO channels
		(id, name, type, base_url, api_key, models, priority, weight, status, transformers, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Type, c.BaseURL, c.APIKey, string(models), c.Priority, c.Weight, c.Status, string(transformers),
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return Channel{}, fmt.Errorf("%w: channel name %q already exists", ErrConflict, c.Name)
		}
		return Channel{}, wrapStorage(err)
	}
	return c, nil
}

// ChannelPatch is a partial update; nil fields are left unchanged.
type ChannelPatch struct {
	Name         *string
	BaseURL      *string
	APIKey       *string
	Models       []string
	Priority     *int
	Weight       *float64
	Status       *ChannelStatus
	Transformers []TransformerRef
}

// UpdateChannel applies a partial update and invalidates the row cache.
func (s *Store) UpdateChannel(ctx context.Context, id string, patch ChannelPatch) (Channel, error) {
	c, err := s.GetChannel(ctx, id)
	if err != nil {
		return Channel{}, err
	}

	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.BaseURL != nil {
		c.BaseURL = *patch.BaseURL
	}
	if patch.APIKey != nil {
		c.APIKey = *patch.APIKey
	}
	if patch.Models != nil {
		c.Models = patch.Models
	}
	if patch.Priority != nil {
		c.Priority = *patch.Priority
	}
	if patch.Weight != nil {
		c.Weight = *patch.Weight
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.Transformers != nil {
		c.Transformers = patch.Transformers
	}
	c.UpdatedAt = time.Now()

	models, _ := json.Marshal(c.Models)
	transformers, _ := json.Marshal(c.Transformers)
	_, err = s.db.ExecContext(ctx, `UPDATE channels SET
		name=?, base_url=?, api_key=?, models=?, priority=?, weight=?, status=?, transformers=?, updated_at=?
		WHERE id=?`,
		c.Name, c.BaseURL, c.APIKey, string(models), c.Priority, c.Weight, c.Status, string(transformers),
		c.UpdatedAt.UnixMilli(), id,
	)
	if err != nil {
		return Channel{}, wrapStorage(err)
	}
	s.rows.invalidate(channelCacheKey(id))
	return c, nil
}

// DeleteChannel removes a channel (and cascades its request logs).
func (s *Store) DeleteChannel(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return false, wrapStorage(err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		// The connection does not enable SQLite foreign keys, so the schema's
		// ON DELETE CASCADE is applied here explicitly.
		if _, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE channel_id = ?`, id); err != nil {
			return false, wrapStorage(err)
		}
	}
	s.rows.invalidate(channelCacheKey(id))
	return n > 0, nil
}

// IncrementChannelUsage atomically bumps request/success/failure counters
// and lastUsedAt, per spec §4.1.
func (s *Store) IncrementChannelUsage(ctx context.Context, id string, success bool) error {
	col := "failure_count"
	if success {
		col = "success_count"
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE channels SET
		request_count = request_count + 1,
		%s = %s + 1,
		last_used_at = ?
		WHERE id = ?`, col, col), time.Now().UnixMilli(), id)
	s.rows.invalidate(channelCacheKey(id))
	return wrapStorage(err)
}

// SetChannelFailureState records a failure and (optionally) transitions the
// channel's status, used by the CircuitBreaker (C6).
func (s *Store) SetChannelFailureState(ctx context.Context, id string, consecutiveFailures int, status ChannelStatus, until *time.Time) error {
	var untilMs any
	if until != nil {
		untilMs = until.UnixMilli()
	}
	col := "circuit_breaker_until"
	if status == ChannelRateLimited {
		col = "rate_limited_until"
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE channels SET
		consecutive_failures = ?, status = ?, last_failure_time = ?, %s = ?
		WHERE id = ?`, col),
		consecutiveFailures, status, time.Now().UnixMilli(), untilMs, id)
	s.rows.invalidate(channelCacheKey(id))
	return wrapStorage(err)
}

// ResetChannelBreaker clears failure state and re-enables the channel.
func (s *Store) ResetChannelBreaker(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE channels SET
		consecutive_failures = 0, status = ?, circuit_breaker_until = NULL, rate_limited_until = NULL
		WHERE id = ?`, ChannelEnabled, id)
	s.rows.invalidate(channelCacheKey(id))
	return wrapStorage(err)
}

const channelColumns = `id, name, type, base_url, api_key, models, priority, weight, status, transformers,
	request_count, success_count, failure_count, consecutive_failures,
	last_failure_time, circuit_breaker_until, rate_limited_until, last_used_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (Channel, error) {
	var (
		c                                                       Channel
		models, transformers                                    string
		lastFailure, cbUntil, rlUntil, lastUsed                  sql.NullInt64
		createdAt, updatedAt                                     int64
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Type, &c.BaseURL, &c.APIKey, &models, &c.Priority, &c.Weight, &c.Status, &transformers,
		&c.RequestCount, &c.SuccessCount, &c.FailureCount, &c.ConsecutiveFailures,
		&lastFailure, &cbUntil, &rlUntil, &lastUsed, &createdAt, &updatedAt,
	)
	if err != nil {
		return Channel{}, err
	}
	_ = json.Unmarshal([]byte(models), &c.Models)
	_ = json.Unmarshal([]byte(transformers), &c.Transformers)
	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	if lastFailure.Valid {
		t := time.UnixMilli(lastFailure.Int64)
		c.LastFailureTime = &t
	}
	if cbUntil.Valid {
		t := time.UnixMilli(cbUntil.Int64)
		c.CircuitBreakerUntil = &t
	}
	if rlUntil.Valid {
		t := time.UnixMilli(rlUntil.Int64)
		c.RateLimitedUntil = &t
	}
	if lastUsed.Valid {
		t := time.UnixMilli(lastUsed.Int64)
		c.LastUsedAt = &t
	}
	return c, nil
}
