package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inboxagent/internal/model"
	"inboxagent/pkg/metrics"
)

// Event names a lifecycle transition request.
type Event string

const (
	EventApprove Event = "approve"
	EventReject  Event = "reject"
	EventExecute Event = "execute"
	EventFail    Event = "fail"
)

// transitions is the full lifecycle table. Anything absent is illegal.
// Failed stays retryable here; the executor bounds the retries and decides
// when Failed becomes final.
var transitions = map[model.DecisionStatus]map[Event]model.DecisionStatus{
	model.StatusProposed: {
		EventApprove: model.StatusApproved,
		EventReject:  model.StatusRejected,
	},
	model.StatusApproved: {
		EventExecute: model.StatusExecuted,
		EventFail:    model.StatusFailed,
	},
	model.StatusAutoApproved: {
		EventExecute: model.StatusExecuted,
		EventFail:    model.StatusFailed,
	},
	model.StatusFailed: {
		EventExecute: model.StatusExecuted,
		EventFail:    model.StatusFailed,
	},
}

// TransitionOpts carries the mutable companions of a transition. Only
// these fields of a decision ever change after creation.
type TransitionOpts struct {
	Feedback string
	ResultID *uuid.UUID
	// Modifications amends the proposed action. Honored on approve only;
	// the reviewer's edit replaces the whole action payload.
	Modifications *model.ProposedAction
}

// Filter narrows List calls on the review surface.
type Filter struct {
	Status     model.DecisionStatus
	SourceType model.SourceType
	Limit      int
}

// StatusStamp tells the store which timestamps a transition sets.
type StatusStamp struct {
	ReviewedAt *time.Time
	ExecutedAt *time.Time
	Feedback   string
	ResultID   *uuid.UUID
	Action     *model.ProposedAction
	RetryDelta int
}

// Store is the persistence boundary the recorder owns. InsertIfAbsent and
// CompareAndSetStatus must be atomic with respect to concurrent callers.
type Store interface {
	// InsertIfAbsent persists d unless a non-terminal decision already
	// exists for (source_type, source_external_id). Returns the stored
	// decision and whether this call created it.
	InsertIfAbsent(ctx context.Context, d *model.Decision) (*model.Decision, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Decision, error)
	List(ctx context.Context, f Filter) ([]model.Decision, error)
	// CompareAndSetStatus moves id from `from` to `to` and applies the
	// stamp, returning false when the row was not in `from` anymore.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to model.DecisionStatus, stamp StatusStamp) (bool, error)
	Stats(ctx context.Context) (model.DecisionStats, error)
}

// Recorder owns decision creation and every lifecycle transition.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Create persists a new decision idempotently. A duplicate while a
// non-terminal decision holds the same source key returns that decision
// with created=false; once the holder reaches a terminal status a new
// decision may open under the key.
func (r *Recorder) Create(ctx context.Context, d *model.Decision) (*model.Decision, bool, error) {
	if d.Confidence < 0 || d.Confidence > 1 {
		return nil, false, fmt.Errorf("confidence %f out of [0,1], refusing to persist", d.Confidence)
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	stored, created, err := r.store.InsertIfAbsent(ctx, d)
	if err != nil {
		return nil, false, fmt.Errorf("insert decision: %w", err)
	}
	if !created {
		r.logger.Debug("duplicate decision attempt, returning existing",
			zap.String("source_external_id", d.SourceExternalID),
			zap.String("existing_id", stored.ID.String()),
		)
		return stored, false, nil
	}

	metrics.IncrementDecisionCreated(string(stored.Status))
	return stored, true, nil
}

// Transition applies ev to the decision, stamping reviewed_at/executed_at
// as the event requires. Illegal events fail with ErrIllegalTransition and
// leave state untouched, including under concurrent review.
func (r *Recorder) Transition(ctx context.Context, id uuid.UUID, ev Event, opts TransitionOpts) (*model.Decision, error) {
	d, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, ok := transitions[d.Status][ev]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s decision %s", ErrIllegalTransition, ev, d.Status, id)
	}

	now := time.Now().UTC()
	stamp := StatusStamp{Feedback: opts.Feedback, ResultID: opts.ResultID}
	switch ev {
	case EventApprove, EventReject:
		stamp.ReviewedAt = &now
		if ev == EventApprove {
			stamp.Action = opts.Modifications
		}
	case EventExecute:
		stamp.ExecutedAt = &now
	case EventFail:
		stamp.RetryDelta = 1
	}

	swapped, err := r.store.CompareAndSetStatus(ctx, id, d.Status, next, stamp)
	if err != nil {
		return nil, fmt.Errorf("transition decision: %w", err)
	}
	if !swapped {
		// 状态被并发修改，重新按表判定
		return nil, fmt.Errorf("%w: %s raced on decision %s", ErrIllegalTransition, ev, id)
	}

	metrics.IncrementDecisionTransition(string(ev), string(next))
	r.logger.Info("decision transitioned",
		zap.String("decision_id", id.String()),
		zap.String("event", string(ev)),
		zap.String("from", string(d.Status)),
		zap.String("to", string(next)),
	)

	return r.store.Get(ctx, id)
}

// Get exposes store lookup for the review surface.
func (r *Recorder) Get(ctx context.Context, id uuid.UUID) (*model.Decision, error) {
	return r.store.Get(ctx, id)
}

// List exposes filtered listing for the review surface.
func (r *Recorder) List(ctx context.Context, f Filter) ([]model.Decision, error) {
	return r.store.List(ctx, f)
}

// Stats summarizes the audit trail.
func (r *Recorder) Stats(ctx context.Context) (model.DecisionStats, error) {
	return r.store.Stats(ctx)
}
