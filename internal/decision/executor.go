package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inboxagent/internal/model"
	"inboxagent/pkg/circuitbreaker"
	"inboxagent/pkg/metrics"
	"inboxagent/pkg/util"
)

// TodoStore is the execution target for create_todo decisions.
type TodoStore interface {
	Insert(ctx context.Context, todo *model.Todo) (uuid.UUID, error)
}

// Archiver archives the source item (e.g. in the mailbox). Best-effort:
// archival failure is logged and does not revert the decision.
type Archiver interface {
	Archive(ctx context.Context, sourceType model.SourceType, externalID string) error
}

// Executor consumes decision.execute events and carries out approved
// decisions, with bounded retries and a circuit breaker around the
// collaborators.
type Executor struct {
	recorder   *Recorder
	todos      TodoStore
	archiver   Archiver
	retries    *util.RetryCounter
	breaker    *circuitbreaker.CircuitBreaker
	maxRetries int
	logger     *zap.Logger
}

func NewExecutor(
	recorder *Recorder,
	todos TodoStore,
	archiver Archiver,
	retries *util.RetryCounter,
	maxRetries int,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		recorder:   recorder,
		todos:      todos,
		archiver:   archiver,
		retries:    retries,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// HandleExecute is the MQ handler for decision.execute. Returning an error
// nacks and requeues the message; nil acks it. Permanently failed
// decisions are acked so they stop cycling, with the failure kept on the
// decision row.
func (e *Executor) HandleExecute(ctx context.Context, data json.RawMessage) error {
	var p ExecutePayload
	if err := json.Unmarshal(data, &p); err != nil {
		// 消息格式错误，不可重试
		e.logger.Error("invalid decision.execute payload", zap.Error(err))
		return nil
	}
	id, err := uuid.Parse(p.DecisionID)
	if err != nil {
		e.logger.Error("invalid decision id in payload", zap.String("decision_id", p.DecisionID))
		return nil
	}

	return e.Execute(ctx, id)
}

// Execute runs one decision. Idempotent: decisions that already left the
// executable states are skipped.
func (e *Executor) Execute(ctx context.Context, id uuid.UUID) error {
	d, err := e.recorder.Get(ctx, id)
	if err != nil {
		e.logger.Error("decision lookup failed", zap.String("decision_id", id.String()), zap.Error(err))
		return err
	}

	switch d.Status {
	case model.StatusApproved, model.StatusAutoApproved, model.StatusFailed:
	default:
		e.logger.Debug("decision not executable, skipping",
			zap.String("decision_id", id.String()),
			zap.String("status", string(d.Status)),
		)
		return nil
	}

	resultID, execErr := e.carryOut(ctx, d)
	if execErr == nil {
		if _, err := e.recorder.Transition(ctx, id, EventExecute, TransitionOpts{ResultID: resultID}); err != nil {
			return err
		}
		return nil
	}

	return e.recordFailure(ctx, d, execErr)
}

// carryOut performs the side effect for the decision type. Only todo
// creation produces a result id.
func (e *Executor) carryOut(ctx context.Context, d *model.Decision) (*uuid.UUID, error) {
	switch d.DecisionType {
	case model.DecisionCreateTodo:
		var todoID uuid.UUID
		err := e.breaker.Execute(func() error {
			decisionID := d.ID
			var err error
			todoID, err = e.todos.Insert(ctx, &model.Todo{
				Title:       d.ProposedAction.TodoTitle,
				Description: d.ProposedAction.TodoDescription,
				Source:      d.SourceType,
				SourceID:    d.SourceExternalID,
				DueDate:     d.ProposedAction.DueDate,
				CategoryID:  d.ProposedAction.CategoryID,
				DecisionID:  &decisionID,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: create todo: %v", ErrExecution, err)
		}
		return &todoID, nil

	case model.DecisionArchive:
		err := e.breaker.Execute(func() error {
			return e.archiver.Archive(ctx, d.SourceType, d.SourceExternalID)
		})
		if err != nil {
			// 归档尽力而为：记录但不算执行失败
			e.logger.Warn("source archival failed, decision still executed",
				zap.String("decision_id", d.ID.String()),
				zap.Error(err),
			)
		}
		return nil, nil

	case model.DecisionIgnore, model.DecisionDefer, model.DecisionCategorize,
		model.DecisionSetDueDate, model.DecisionUpdateTodo:
		// No collaborator side effect yet; executing just closes the loop.
		return nil, nil
	}

	return nil, fmt.Errorf("%w: unknown decision type %q", ErrExecution, d.DecisionType)
}

// recordFailure transitions to Failed and bounds the retries through the
// shared retry counter, so redeliveries across worker restarts still stop
// at the limit. After exhaustion the failure stays permanently on the
// audit trail.
func (e *Executor) recordFailure(ctx context.Context, d *model.Decision, execErr error) error {
	if _, err := e.recorder.Transition(ctx, d.ID, EventFail, TransitionOpts{Feedback: execErr.Error()}); err != nil {
		e.logger.Error("failed to record execution failure",
			zap.String("decision_id", d.ID.String()),
			zap.Error(err),
		)
	}

	key := util.FormatRetryKey("executor", d.ID.String())
	count, err := e.retries.IncrementAndGet(ctx, key)
	if err != nil {
		// Redis 不可用时保守处理：不再重试，避免无限循环
		e.logger.Warn("retry counter unavailable, giving up on decision",
			zap.String("decision_id", d.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	if count > int64(e.maxRetries) {
		e.logger.Error("decision permanently failed after retries",
			zap.String("decision_id", d.ID.String()),
			zap.Int64("attempts", count),
			zap.Error(execErr),
		)
		return nil
	}

	metrics.IncrementExecutionRetry(string(d.DecisionType))
	backoff := time.Duration(1<<uint(count-1)) * time.Second
	e.logger.Warn("decision execution failed, will retry",
		zap.String("decision_id", d.ID.String()),
		zap.Int64("attempt", count),
		zap.Duration("backoff", backoff),
		zap.Error(execErr),
	)

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return ctx.Err()
	}
	return execErr
}
