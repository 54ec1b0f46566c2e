package decision

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inboxagent/internal/model"
)

type fakeTodoStore struct {
	inserted []*model.Todo
	err      error
}

func (f *fakeTodoStore) Insert(ctx context.Context, todo *model.Todo) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	todo.ID = uuid.New()
	f.inserted = append(f.inserted, todo)
	return todo.ID, nil
}

type fakeArchiver struct {
	archived []string
	err      error
}

func (f *fakeArchiver) Archive(ctx context.Context, sourceType model.SourceType, externalID string) error {
	if f.err != nil {
		return f.err
	}
	f.archived = append(f.archived, externalID)
	return nil
}

func newExecutorFixture() (*Executor, *memStore, *fakeTodoStore, *fakeArchiver) {
	store := newMemStore()
	todos := &fakeTodoStore{}
	archiver := &fakeArchiver{}
	exec := NewExecutor(NewRecorder(store, zap.NewNop()), todos, archiver, nil, 3, zap.NewNop())
	return exec, store, todos, archiver
}

func approvedDecision(decisionType model.DecisionType) *model.Decision {
	return &model.Decision{
		ID:               uuid.New(),
		SourceType:       model.SourceEmail,
		SourceExternalID: uuid.NewString(),
		Sender:           "alice@corp.com",
		DecisionType:     decisionType,
		ProposedAction:   model.ProposedAction{TodoTitle: "Review budget"},
		Confidence:       0.8,
		Status:           model.StatusApproved,
	}
}

func TestExecuteCreateTodo(t *testing.T) {
	exec, store, todos, _ := newExecutorFixture()
	d, _, err := NewRecorder(store, zap.NewNop()).Create(context.Background(), approvedDecision(model.DecisionCreateTodo))
	require.NoError(t, err)

	require.NoError(t, exec.Execute(context.Background(), d.ID))

	require.Len(t, todos.inserted, 1)
	assert.Equal(t, "Review budget", todos.inserted[0].Title)
	require.NotNil(t, todos.inserted[0].DecisionID)
	assert.Equal(t, d.ID, *todos.inserted[0].DecisionID)

	after, err := store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, after.Status)
	require.NotNil(t, after.ResultID, "todo id lands on the decision")
	require.NotNil(t, after.ExecutedAt)
}

func TestExecuteArchiveFailureIsBestEffort(t *testing.T) {
	exec, store, _, archiver := newExecutorFixture()
	archiver.err = errors.New("mailbox unavailable")

	d, _, err := NewRecorder(store, zap.NewNop()).Create(context.Background(), approvedDecision(model.DecisionArchive))
	require.NoError(t, err)

	require.NoError(t, exec.Execute(context.Background(), d.ID))

	after, err := store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, after.Status, "archive is best-effort")
}

func TestExecuteSkipsNonExecutableStatuses(t *testing.T) {
	for _, status := range []model.DecisionStatus{
		model.StatusProposed, model.StatusExecuted, model.StatusRejected, model.StatusIgnored,
	} {
		exec, store, todos, _ := newExecutorFixture()
		d := approvedDecision(model.DecisionCreateTodo)
		d.Status = status
		stored, _, err := NewRecorder(store, zap.NewNop()).Create(context.Background(), d)
		require.NoError(t, err)

		require.NoError(t, exec.Execute(context.Background(), stored.ID), "status %s", status)
		assert.Empty(t, todos.inserted, "status %s must not execute", status)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	exec, store, todos, _ := newExecutorFixture()
	d, _, err := NewRecorder(store, zap.NewNop()).Create(context.Background(), approvedDecision(model.DecisionCreateTodo))
	require.NoError(t, err)

	require.NoError(t, exec.Execute(context.Background(), d.ID))
	require.NoError(t, exec.Execute(context.Background(), d.ID), "second delivery is a no-op")
	assert.Len(t, todos.inserted, 1)
}

func TestHandleExecuteBadPayloadIsAcked(t *testing.T) {
	exec, _, _, _ := newExecutorFixture()

	assert.NoError(t, exec.HandleExecute(context.Background(), json.RawMessage(`not json`)),
		"unparseable payloads must not requeue forever")
	assert.NoError(t, exec.HandleExecute(context.Background(), json.RawMessage(`{"decision_id":"not-a-uuid"}`)))
}

func TestHandleExecuteUnknownDecision(t *testing.T) {
	exec, _, _, _ := newExecutorFixture()

	payload, _ := json.Marshal(ExecutePayload{DecisionID: uuid.NewString()})
	assert.Error(t, exec.HandleExecute(context.Background(), payload),
		"unknown ids requeue until the decision row is visible")
}
