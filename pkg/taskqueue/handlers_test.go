package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRunner 模拟文档向量化
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, docID string) error {
	args := m.Called(ctx, docID)
	return args.Error(0)
}

func (m *MockRunner) Reprocess(ctx context.Context, docID string) error {
	args := m.Called(ctx, docID)
	return args.Error(0)
}

func newIngestTask(t *testing.T, docID string, payload interface{}) *Task {
	t.Helper()
	raw, err := MarshalPayload(payload)
	require.NoError(t, err)
	return &Task{ID: "task-1", Type: TaskIngestDocument, DocumentID: docID, Payload: raw}
}

func TestIngestHandler(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	t.Run("task types", func(t *testing.T) {
		h := NewIngestHandler(new(MockRunner), logger)
		assert.Equal(t, []TaskType{TaskIngestDocument}, h.GetTaskTypes())
	})

	t.Run("run", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, "doc-1").Return(nil).Once()
		h := NewIngestHandler(runner, logger)

		result, err := h.ProcessTask(context.Background(), newIngestTask(t, "doc-1", IngestPayload{DocumentID: "doc-1"}))
		require.NoError(t, err)

		res, ok := result.(IngestResult)
		require.True(t, ok)
		assert.Equal(t, "doc-1", res.DocumentID)
		assert.False(t, res.Reprocess)
		runner.AssertExpectations(t)
		runner.AssertNotCalled(t, "Reprocess", mock.Anything, mock.Anything)
	})

	t.Run("reprocess", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Reprocess", mock.Anything, "doc-2").Return(nil).Once()
		h := NewIngestHandler(runner, logger)

		result, err := h.ProcessTask(context.Background(), newIngestTask(t, "doc-2", IngestPayload{DocumentID: "doc-2", Reprocess: true}))
		require.NoError(t, err)
		assert.True(t, result.(IngestResult).Reprocess)
		runner.AssertExpectations(t)
	})

	t.Run("document id falls back to task", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, "doc-3").Return(nil).Once()
		h := NewIngestHandler(runner, logger)

		_, err := h.ProcessTask(context.Background(), newIngestTask(t, "doc-3", IngestPayload{}))
		require.NoError(t, err)
		runner.AssertExpectations(t)
	})

	t.Run("runner error is returned", func(t *testing.T) {
		runErr := errors.New("embedding provider error: boom")
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, "doc-4").Return(runErr).Once()
		h := NewIngestHandler(runner, logger)

		result, err := h.ProcessTask(context.Background(), newIngestTask(t, "doc-4", IngestPayload{DocumentID: "doc-4"}))
		assert.ErrorIs(t, err, runErr)
		assert.Equal(t, "doc-4", result.(IngestResult).DocumentID)
	})

	t.Run("invalid payload", func(t *testing.T) {
		h := NewIngestHandler(new(MockRunner), logger)

		_, err := h.ProcessTask(context.Background(), &Task{ID: "t", Payload: json.RawMessage(`{not json`)})
		assert.ErrorIs(t, err, ErrInvalidPayload)

		_, err = h.ProcessTask(context.Background(), &Task{ID: "t"})
		assert.ErrorIs(t, err, ErrInvalidPayload)

		_, err = h.ProcessTask(context.Background(), &Task{ID: "t", Payload: json.RawMessage(`{}`)})
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}
