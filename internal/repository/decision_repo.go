package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inboxagent/internal/decision"
	"inboxagent/internal/model"
)

type DecisionRepository struct {
	db *pgxpool.Pool
}

func NewDecisionRepository(db *pgxpool.Pool) *DecisionRepository {
	return &DecisionRepository{db: db}
}

const decisionColumns = `
        id, source_type, source_id, source_external_id, sender, decision_type,
        proposed_action, reasoning, reasoning_details, confidence, status,
        applied_rule_id, result_id, user_feedback, retry_count,
        created_at, reviewed_at, executed_at
`

// InsertIfAbsent persists the decision unless a non-terminal one already
// exists for the same (source_type, source_external_id). Terminal rows are
// audit history and do not block a fresh decision. The partial unique
// index makes the race window safe: the loser of a concurrent insert reads
// the winner's row.
func (r *DecisionRepository) InsertIfAbsent(ctx context.Context, d *model.Decision) (*model.Decision, bool, error) {
	action, err := json.Marshal(d.ProposedAction)
	if err != nil {
		return nil, false, fmt.Errorf("marshal proposed_action: %w", err)
	}
	details, err := json.Marshal(d.ReasoningDetails)
	if err != nil {
		return nil, false, fmt.Errorf("marshal reasoning_details: %w", err)
	}

	query := `
        INSERT INTO decisions (
            id, source_type, source_id, source_external_id, sender, decision_type,
            proposed_action, reasoning, reasoning_details, confidence, status,
            applied_rule_id, user_feedback, retry_count, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '', 0, $13)
        ON CONFLICT (source_type, source_external_id)
            WHERE status NOT IN ('executed', 'rejected', 'ignored')
            DO NOTHING
        RETURNING id
    `
	var insertedID uuid.UUID
	err = r.db.QueryRow(ctx, query,
		d.ID,
		d.SourceType,
		d.SourceID,
		d.SourceExternalID,
		d.Sender,
		d.DecisionType,
		action,
		d.Reasoning,
		details,
		d.Confidence,
		d.Status,
		d.AppliedRuleID,
		d.CreatedAt,
	).Scan(&insertedID)

	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Conflict path: fetch the open decision that owns this source key.
	existing, err := r.findOpenBySourceKey(ctx, d.SourceType, d.SourceExternalID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *DecisionRepository) findOpenBySourceKey(ctx context.Context, sourceType model.SourceType, externalID string) (*model.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions
        WHERE source_type = $1 AND source_external_id = $2
          AND status NOT IN ('executed', 'rejected', 'ignored')
        ORDER BY created_at DESC
        LIMIT 1`
	row := r.db.QueryRow(ctx, query, sourceType, externalID)
	return scanDecision(row)
}

func (r *DecisionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE id = $1`
	d, err := scanDecision(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, decision.ErrNotFound
	}
	return d, err
}

func (r *DecisionRepository) List(ctx context.Context, f decision.Filter) ([]model.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions`
	args := []any{}
	where := ""

	if f.Status != "" {
		args = append(args, f.Status)
		where = ` WHERE status = $` + strconv.Itoa(len(args))
	} else {
		// Ignored decisions are noise for review surfaces unless asked for.
		where = ` WHERE status <> 'ignored'`
	}
	if f.SourceType != "" {
		args = append(args, f.SourceType)
		where += ` AND source_type = $` + strconv.Itoa(len(args))
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += where + ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// CompareAndSetStatus is the CAS step behind every lifecycle transition.
// Rows not currently in `from` are left untouched and reported as false.
func (r *DecisionRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to model.DecisionStatus, stamp decision.StatusStamp) (bool, error) {
	var action []byte
	if stamp.Action != nil {
		var err error
		action, err = json.Marshal(stamp.Action)
		if err != nil {
			return false, fmt.Errorf("marshal proposed_action: %w", err)
		}
	}

	query := `
        UPDATE decisions
        SET status = $3,
            reviewed_at = COALESCE($4, reviewed_at),
            executed_at = COALESCE($5, executed_at),
            user_feedback = CASE WHEN $6 <> '' THEN $6 ELSE user_feedback END,
            result_id = COALESCE($7, result_id),
            proposed_action = COALESCE($8, proposed_action),
            retry_count = retry_count + $9
        WHERE id = $1 AND status = $2
    `
	tag, err := r.db.Exec(ctx, query,
		id,
		from,
		to,
		stamp.ReviewedAt,
		stamp.ExecutedAt,
		stamp.Feedback,
		stamp.ResultID,
		action,
		stamp.RetryDelta,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DecisionRepository) Stats(ctx context.Context) (model.DecisionStats, error) {
	query := `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE status = 'proposed'),
            COUNT(*) FILTER (WHERE status = 'approved'),
            COUNT(*) FILTER (WHERE status = 'rejected'),
            COUNT(*) FILTER (WHERE status = 'auto_approved'),
            COUNT(*) FILTER (WHERE status = 'executed'),
            COUNT(*) FILTER (WHERE status = 'failed'),
            COUNT(*) FILTER (WHERE status = 'ignored'),
            COALESCE(AVG(confidence), 0)
        FROM decisions
    `
	var s model.DecisionStats
	err := r.db.QueryRow(ctx, query).Scan(
		&s.Total,
		&s.Pending,
		&s.Approved,
		&s.Rejected,
		&s.AutoApproved,
		&s.Executed,
		&s.Failed,
		&s.Ignored,
		&s.AverageConfidence,
	)
	return s, err
}

func scanDecision(row pgx.Row) (*model.Decision, error) {
	var d model.Decision
	var action, details []byte
	err := row.Scan(
		&d.ID,
		&d.SourceType,
		&d.SourceID,
		&d.SourceExternalID,
		&d.Sender,
		&d.DecisionType,
		&action,
		&d.Reasoning,
		&details,
		&d.Confidence,
		&d.Status,
		&d.AppliedRuleID,
		&d.ResultID,
		&d.UserFeedback,
		&d.RetryCount,
		&d.CreatedAt,
		&d.ReviewedAt,
		&d.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(action) > 0 {
		if err := json.Unmarshal(action, &d.ProposedAction); err != nil {
			return nil, fmt.Errorf("unmarshal proposed_action: %w", err)
		}
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &d.ReasoningDetails); err != nil {
			return nil, fmt.Errorf("unmarshal reasoning_details: %w", err)
		}
	}
	return &d, nil
}
