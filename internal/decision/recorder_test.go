package decision

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inboxagent/internal/model"
)

// memStore is an in-memory Store with the same atomicity guarantees the
// SQL implementation provides.
type memStore struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*model.Decision
	bySource  map[string]uuid.UUID
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{
		byID:     make(map[uuid.UUID]*model.Decision),
		bySource: make(map[string]uuid.UUID),
	}
}

func sourceKey(d *model.Decision) string {
	return string(d.SourceType) + ":" + d.SourceExternalID
}

func (s *memStore) InsertIfAbsent(ctx context.Context, d *model.Decision) (*model.Decision, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, false, s.insertErr
	}
	if id, ok := s.bySource[sourceKey(d)]; ok && !s.byID[id].Status.Terminal() {
		existing := *s.byID[id]
		return &existing, false, nil
	}
	cp := *d
	s.byID[d.ID] = &cp
	s.bySource[sourceKey(d)] = d.ID
	out := cp
	return &out, true, nil
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) List(ctx context.Context, f Filter) ([]model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Decision
	for _, d := range s.byID {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.Status == "" && d.Status == model.StatusIgnored {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (s *memStore) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to model.DecisionStatus, stamp StatusStamp) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	if stamp.ReviewedAt != nil {
		d.ReviewedAt = stamp.ReviewedAt
	}
	if stamp.ExecutedAt != nil {
		d.ExecutedAt = stamp.ExecutedAt
	}
	if stamp.Feedback != "" {
		d.UserFeedback = stamp.Feedback
	}
	if stamp.ResultID != nil {
		d.ResultID = stamp.ResultID
	}
	if stamp.Action != nil {
		d.ProposedAction = *stamp.Action
	}
	d.RetryCount += stamp.RetryDelta
	return true, nil
}

func (s *memStore) Stats(ctx context.Context) (model.DecisionStats, error) {
	return model.DecisionStats{}, nil
}

func newDecision(status model.DecisionStatus) *model.Decision {
	return &model.Decision{
		SourceType:       model.SourceEmail,
		SourceExternalID: uuid.NewString(),
		Sender:           "alice@corp.com",
		DecisionType:     model.DecisionCreateTodo,
		Confidence:       0.7,
		Status:           status,
	}
}

func TestCreateFillsIDAndTimestamp(t *testing.T) {
	r := NewRecorder(newMemStore(), zap.NewNop())

	d, created, err := r.Create(context.Background(), newDecision(model.StatusProposed))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, d.ID)
	assert.False(t, d.CreatedAt.IsZero())
}

func TestCreateRejectsOutOfRangeConfidence(t *testing.T) {
	r := NewRecorder(newMemStore(), zap.NewNop())

	for _, confidence := range []float64{-0.01, 1.01} {
		d := newDecision(model.StatusProposed)
		d.Confidence = confidence
		_, _, err := r.Create(context.Background(), d)
		assert.Error(t, err)
	}
}

func TestCreateIsIdempotentPerSourceKey(t *testing.T) {
	r := NewRecorder(newMemStore(), zap.NewNop())

	first := newDecision(model.StatusProposed)
	stored, created, err := r.Create(context.Background(), first)
	require.NoError(t, err)
	require.True(t, created)

	dup := newDecision(model.StatusProposed)
	dup.SourceExternalID = first.SourceExternalID
	dup.Confidence = 0.2

	again, created, err := r.Create(context.Background(), dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID, "duplicate returns the existing decision")
	assert.Equal(t, 0.7, again.Confidence)
}

func TestCreateAfterTerminalDecisionOpensANewOne(t *testing.T) {
	r := NewRecorder(newMemStore(), zap.NewNop())

	first := newDecision(model.StatusProposed)
	stored, created, err := r.Create(context.Background(), first)
	require.NoError(t, err)
	require.True(t, created)

	_, err = r.Transition(context.Background(), stored.ID, EventReject, TransitionOpts{})
	require.NoError(t, err)

	// The rejected row is history; a re-ingested signal gets a fresh
	// proposal under the same source key.
	again := newDecision(model.StatusProposed)
	again.SourceExternalID = first.SourceExternalID

	fresh, created, err := r.Create(context.Background(), again)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, stored.ID, fresh.ID)

	// A non-terminal decision still blocks.
	_, err = r.Transition(context.Background(), fresh.ID, EventApprove, TransitionOpts{})
	require.NoError(t, err)

	dup := newDecision(model.StatusProposed)
	dup.SourceExternalID = first.SourceExternalID
	blocked, created, err := r.Create(context.Background(), dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, fresh.ID, blocked.ID)
}

func TestCreateConcurrentDuplicatesProduceOneDecision(t *testing.T) {
	r := NewRecorder(newMemStore(), zap.NewNop())
	externalID := "msg-race"

	const n = 16
	results := make([]*model.Decision, n)
	createdFlags := make([]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := newDecision(model.StatusProposed)
			d.SourceExternalID = externalID
			stored, created, err := r.Create(context.Background(), d)
			assert.NoError(t, err)
			results[i] = stored
			createdFlags[i] = created
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < n; i++ {
		if createdFlags[i] {
			createdCount++
		}
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, 1, createdCount, "exactly one goroutine wins the insert")
}

func TestTransitionTable(t *testing.T) {
	legal := []struct {
		from model.DecisionStatus
		ev   Event
		to   model.DecisionStatus
	}{
		{model.StatusProposed, EventApprove, model.StatusApproved},
		{model.StatusProposed, EventReject, model.StatusRejected},
		{model.StatusAutoApproved, EventExecute, model.StatusExecuted},
		{model.StatusAutoApproved, EventFail, model.StatusFailed},
		{model.StatusApproved, EventExecute, model.StatusExecuted},
		{model.StatusApproved, EventFail, model.StatusFailed},
		{model.StatusFailed, EventExecute, model.StatusExecuted},
		{model.StatusFailed, EventFail, model.StatusFailed},
	}

	for _, tc := range legal {
		t.Run(string(tc.from)+"_"+string(tc.ev), func(t *testing.T) {
			store := newMemStore()
			r := NewRecorder(store, zap.NewNop())
			d, _, err := r.Create(context.Background(), newDecision(tc.from))
			require.NoError(t, err)

			got, err := r.Transition(context.Background(), d.ID, tc.ev, TransitionOpts{})
			require.NoError(t, err)
			assert.Equal(t, tc.to, got.Status)
		})
	}
}

func TestTransitionIllegalEventsLeaveStateUntouched(t *testing.T) {
	illegal := []struct {
		from model.DecisionStatus
		ev   Event
	}{
		{model.StatusProposed, EventExecute},
		{model.StatusProposed, EventFail},
		{model.StatusExecuted, EventApprove},
		{model.StatusExecuted, EventExecute},
		{model.StatusRejected, EventApprove},
		{model.StatusRejected, EventExecute},
		{model.StatusIgnored, EventApprove},
		{model.StatusApproved, EventApprove},
		// auto-approved decisions skip manual review entirely
		{model.StatusAutoApproved, EventReject},
	}

	for _, tc := range illegal {
		t.Run(string(tc.from)+"_"+string(tc.ev), func(t *testing.T) {
			store := newMemStore()
			r := NewRecorder(store, zap.NewNop())
			d, _, err := r.Create(context.Background(), newDecision(tc.from))
			require.NoError(t, err)

			_, err = r.Transition(context.Background(), d.ID, tc.ev, TransitionOpts{})
			assert.ErrorIs(t, err, ErrIllegalTransition)

			after, err := store.Get(context.Background(), d.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.from, after.Status, "illegal transition must not move state")
		})
	}
}

func TestTransitionStampsTimestamps(t *testing.T) {
	store := newMemStore()
	r := NewRecorder(store, zap.NewNop())

	d, _, err := r.Create(context.Background(), newDecision(model.StatusProposed))
	require.NoError(t, err)

	approved, err := r.Transition(context.Background(), d.ID, EventApprove, TransitionOpts{Feedback: "looks right"})
	require.NoError(t, err)
	require.NotNil(t, approved.ReviewedAt)
	assert.Nil(t, approved.ExecutedAt)
	assert.Equal(t, "looks right", approved.UserFeedback)

	resultID := uuid.New()
	executed, err := r.Transition(context.Background(), d.ID, EventExecute, TransitionOpts{ResultID: &resultID})
	require.NoError(t, err)
	require.NotNil(t, executed.ExecutedAt)
	require.NotNil(t, executed.ResultID)
	assert.Equal(t, resultID, *executed.ResultID)
}

func TestTransitionApproveAppliesModifications(t *testing.T) {
	store := newMemStore()
	r := NewRecorder(store, zap.NewNop())

	d, _, err := r.Create(context.Background(), newDecision(model.StatusProposed))
	require.NoError(t, err)

	due := time.Date(2026, 3, 6, 23, 59, 0, 0, time.UTC)
	mods := &model.ProposedAction{TodoTitle: "Edited title", DueDate: &due}

	approved, err := r.Transition(context.Background(), d.ID, EventApprove, TransitionOpts{Modifications: mods})
	require.NoError(t, err)
	assert.Equal(t, "Edited title", approved.ProposedAction.TodoTitle)
	require.NotNil(t, approved.ProposedAction.DueDate)
	assert.Equal(t, due, *approved.ProposedAction.DueDate)
}

func TestTransitionFailIncrementsRetryCount(t *testing.T) {
	store := newMemStore()
	r := NewRecorder(store, zap.NewNop())

	d, _, err := r.Create(context.Background(), newDecision(model.StatusApproved))
	require.NoError(t, err)

	failed, err := r.Transition(context.Background(), d.ID, EventFail, TransitionOpts{Feedback: "boom"})
	require.NoError(t, err)
	assert.Equal(t, 1, failed.RetryCount)

	failed, err = r.Transition(context.Background(), d.ID, EventFail, TransitionOpts{})
	require.NoError(t, err)
	assert.Equal(t, 2, failed.RetryCount)
}

func TestTransitionUnknownDecision(t *testing.T) {
	r := NewRecorder(newMemStore(), zap.NewNop())
	_, err := r.Transition(context.Background(), uuid.New(), EventApprove, TransitionOpts{})
	assert.ErrorIs(t, err, ErrNotFound)
}
