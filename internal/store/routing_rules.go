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

func ruleCacheKey(id string) string { return "rule:id:" + id }

const ruleColumns = `id, name, type, condition, target_channel, target_model, priority, enabled, created_at, updated_at`

func scanRule(row scanner) (RoutingRule, error) {
	var r RoutingRule
	var condition string
	var targetModel sql.NullString
	var createdAt, updatedAt int64
	var enabled int
	if err := row.Scan(&r.ID, &r.Name, &r.Type, &condition, &r.TargetChannel, &targetModel, &r.Priority, &enabled, &createdAt, &updatedAt); err != nil {
		return RoutingRule{}, err
	}
	_ = json.Unmarshal([]byte(condition), &r.Condition)
	r.TargetModel = targetModel.String
	r.Enabled = enabled != 0
	r.CreatedAt = time.UnixMilli(createdAt)
	r.UpdatedAt = time.UnixMilli(updatedAt)
	return r, nil
}

// ListRoutingRules returns all rules ordered by priority DESC.
func (s *Store) ListRoutingRules(ctx context.Context) ([]RoutingRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM routing_rules ORDER BY priority DESC, created_at ASC`)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()
	var out []RoutingRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, wrapStorage(err)
		}
		out = append(out, r)
	}
	return out, wrapStorage(rows.Err())
}

// ListEnabledRoutingRules returns only enabled rules, priority DESC, used by
// the SmartRouter's reload path.
func (s *Store) ListEnabledRoutingRules(ctx context.Context) ([]RoutingRule, error) {
	all, err := s.ListRoutingRules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoutingRule, 0, len(all))
	for _, r := range all {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetRoutingRule fetches a rule by id, consulting the row cache first.
func (s *Store) GetRoutingRule(ctx context.Context, id string) (RoutingRule, error) {
	if v, ok := s.rows.get(ruleCacheKey(id)); ok {
		return v.(RoutingRule), nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM routing_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RoutingRule{}, fmt.Errorf("%w: routing rule %s", ErrNotFound, id)
	}
	if err != nil {
		return RoutingRule{}, wrapStorage(err)
	}
	s.rows.set(ruleCacheKey(id), r)
	return r, nil
}

// RoutingRuleInput is the payload accepted by CreateRoutingRule.
type RoutingRuleInput struct {
	Name          string
	Type          string
	Condition     RuleCondition
	TargetChannel string
	TargetModel   string
	Priority      int
	Enabled       bool
}

// CreateRoutingRule validates and inserts a new rule.
func (s *Store) CreateRoutingRule(ctx context.Context, in RoutingRuleInput) (RoutingRule, error) {
	if in.Condition.IsEmpty() {
		return RoutingRule{}, fmt.Errorf("%w: at least one condition field is required", ErrValidation)
	}
	if in.Name == "" || in.TargetChannel == "" {
		return RoutingRule{}, fmt.Errorf("%w: name and targetChannel are required", ErrValidation)
	}
	now := time.Now()
	r := RoutingRule{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Type:          in.Type,
		Condition:     in.Condition,
		TargetChannel: in.TargetChannel,
		TargetModel:   in.TargetModel,
		Priority:      in.Priority,
		Enabled:       in.Enabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	cond, _ := json.Marshal(r.Condition)
	_, err := s.db.ExecContext(ctx, `INSERT INTO routing_rules
		(id, name, type, condition, target_channel, target_model, priority, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Type, string(cond), r.TargetChannel, r.TargetModel, r.Priority, boolToInt(r.Enabled),
		now.UnixMilli(), now.UnixMilli(),
	)
	return r, wrapStorage(err)
}

// RoutingRulePatch is a partial update; nil fields are left unchanged.
type RoutingRulePatch struct {
	Name          *string
	Condition     *RuleCondition
	TargetChannel *string
	TargetModel   *string
	Priority      *int
	Enabled       *bool
}

// UpdateRoutingRule applies a partial update.
func (s *Store) UpdateRoutingRule(ctx context.Context, id string, patch RoutingRulePatch) (RoutingRule, error) {
	r, err := s.GetRoutingRule(ctx, id)
	if err != nil {
		return RoutingRule{}, err
	}
	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.Condition != nil {
		r.Condition = *patch.Condition
	}
	if patch.TargetChannel != nil {
		r.TargetChannel = *patch.TargetChannel
	}
	if patch.TargetModel != nil {
		r.TargetModel = *patch.TargetModel
	}
	if patch.Priority != nil {
		r.Priority = *patch.Priority
	}
	if patch.Enabled != nil {
		r.Enabled = *patch.Enabled
	}
	r.UpdatedAt = time.Now()

	cond, _ := json.Marshal(r.Condition)
	_, err = s.db.ExecContext(ctx, `UPDATE routing_rules SET
		name=?, condition=?, target_channel=?, target_model=?, priority=?, enabled=?, updated_at=?
		WHERE id=?`,
		r.Name, string(cond), r.TargetChannel, r.TargetModel, r.Priority, boolToInt(r.Enabled), r.UpdatedAt.UnixMilli(), id)
	if err != nil {
		return RoutingRule{}, wrapStorage(err)
	}
	s.rows.invalidate(ruleCacheKey(id))
	return r, nil
}

// SetRoutingRuleEnabled toggles a rule's enabled flag (the /enable and /disable routes).
func (s *Store) SetRoutingRuleEnabled(ctx context.Context, id string, enabled bool) (RoutingRule, error) {
	return s.UpdateRoutingRule(ctx, id, RoutingRulePatch{Enabled: &enabled})
}

// DeleteRoutingRule removes a rule.
func (s *Store) DeleteRoutingRule(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = ?`, id)
	if err != nil {
		return false, wrapStorage(err)
	}
	n, _ := res.RowsAffected()
	s.rows.invalidate(ruleCacheKey(id))
	return n > 0, nil
}
