package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inboxagent/internal/model"
)

var ErrRuleNotFound = errors.New("rule not found")

type RuleRepository struct {
	db *pgxpool.Pool
}

func NewRuleRepository(db *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `
        id, name, description, source_type, conditions, action, action_params,
        priority, is_active, created_from_decision_id, match_count,
        last_matched_at, created_at, updated_at
`

func (r *RuleRepository) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	query := `SELECT ` + ruleColumns + `
        FROM rules
        WHERE is_active = TRUE
        ORDER BY priority DESC, created_at ASC, id ASC`
	return r.queryRules(ctx, query)
}

func (r *RuleRepository) List(ctx context.Context) ([]model.Rule, error) {
	query := `SELECT ` + ruleColumns + `
        FROM rules
        ORDER BY priority DESC, created_at ASC, id ASC`
	return r.queryRules(ctx, query)
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]model.Rule, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (r *RuleRepository) Get(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1`
	rule, err := scanRule(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

func (r *RuleRepository) InsertRule(ctx context.Context, rule *model.Rule) error {
	params, err := marshalActionParams(rule.ActionParams)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO rules (
            id, name, description, source_type, conditions, action,
            action_params, priority, is_active, created_from_decision_id,
            match_count, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, NOW(), NOW())
    `
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	_, err = r.db.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.SourceType,
		rule.Conditions,
		rule.Action,
		params,
		rule.Priority,
		rule.IsActive,
		rule.CreatedFromDecisionID,
	)
	return err
}

func (r *RuleRepository) Update(ctx context.Context, rule *model.Rule) error {
	params, err := marshalActionParams(rule.ActionParams)
	if err != nil {
		return err
	}
	query := `
        UPDATE rules
        SET name = $2, description = $3, source_type = $4, conditions = $5,
            action = $6, action_params = $7, priority = $8, is_active = $9,
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.SourceType,
		rule.Conditions,
		rule.Action,
		params,
		rule.Priority,
		rule.IsActive,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// MinActivePriority reports the lowest priority among active rules, so
// learned rules can slot in below every hand-written one.
func (r *RuleRepository) MinActivePriority(ctx context.Context) (int, bool, error) {
	var min *int
	err := r.db.QueryRow(ctx, `SELECT MIN(priority) FROM rules WHERE is_active = TRUE`).Scan(&min)
	if err != nil {
		return 0, false, err
	}
	if min == nil {
		return 0, false, nil
	}
	return *min, true, nil
}

// IncrementMatch bumps the match counter after a match produced a decision.
func (r *RuleRepository) IncrementMatch(ctx context.Context, ruleID string) error {
	id, err := uuid.Parse(ruleID)
	if err != nil {
		return fmt.Errorf("invalid rule id %q: %w", ruleID, err)
	}
	_, err = r.db.Exec(ctx,
		`UPDATE rules SET match_count = match_count + 1, last_matched_at = NOW() WHERE id = $1`,
		id,
	)
	return err
}

func marshalActionParams(p *model.ActionParams) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal action_params: %w", err)
	}
	return b, nil
}

func scanRule(row pgx.Row) (*model.Rule, error) {
	var rule model.Rule
	var params []byte
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.SourceType,
		&rule.Conditions,
		&rule.Action,
		&params,
		&rule.Priority,
		&rule.IsActive,
		&rule.CreatedFromDecisionID,
		&rule.MatchCount,
		&rule.LastMatchedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		var p model.ActionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("unmarshal action_params: %w", err)
		}
		rule.ActionParams = &p
	}
	return &rule, nil
}
