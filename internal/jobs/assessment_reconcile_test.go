package jobs

import (
	"context"
	"errors"
	"testing"

	"calma_backend/internal/assessment"
	"calma_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockAssessmentService is a mock implementation of assessment.Service.
type MockAssessmentService struct {
	mock.Mock
}

func (m *MockAssessmentService) Record(ctx context.Context, answers, userID string) (string, error) {
	args := m.Called(ctx, answers, userID)
	return args.String(0), args.Error(1)
}

func (m *MockAssessmentService) Defer(ctx context.Context, email, answers, userID string, cause error) error {
	args := m.Called(ctx, email, answers, userID, cause)
	return args.Error(0)
}

func (m *MockAssessmentService) ReconcilePending(ctx context.Context) (assessment.ReconcileResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(assessment.ReconcileResult), args.Error(1)
}

func TestAssessmentReconcileJob_RunOnce(t *testing.T) {
	svc := new(MockAssessmentService)
	want := assessment.ReconcileResult{Recorded: 2, Unresolved: 1}
	svc.On("ReconcilePending", mock.Anything).Return(want, nil).Once()

	job := NewAssessmentReconcileJob(svc, zap.NewNop(), &config.Config{})
	got, err := job.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, want, got)
	svc.AssertExpectations(t)
}

func TestAssessmentReconcileJob_RunOnceReportsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	svc := new(MockAssessmentService)
	dbDown := errors.New("db down")
	svc.On("ReconcilePending", mock.Anything).Return(assessment.ReconcileResult{}, dbDown).Once()

	job := NewAssessmentReconcileJob(svc, zap.New(core), &config.Config{})
	_, err := job.RunOnce(context.Background())

	assert.ErrorIs(t, err, dbDown)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Assessment reconcile run failed", logs.All()[0].Message)
}

func TestAssessmentReconcileJob_SetupAndStart(t *testing.T) {
	t.Run("empty schedule disables the job", func(t *testing.T) {
		job := NewAssessmentReconcileJob(new(MockAssessmentService), zap.NewNop(), &config.Config{})
		assert.NoError(t, job.SetupAndStart())
		job.Stop()
	})

	t.Run("invalid schedule is rejected", func(t *testing.T) {
		job := NewAssessmentReconcileJob(new(MockAssessmentService), zap.NewNop(), &config.Config{
			AssessmentReconcileSchedule: "every so often",
		})
		assert.Error(t, job.SetupAndStart())
	})

	t.Run("valid schedule starts", func(t *testing.T) {
		job := NewAssessmentReconcileJob(new(MockAssessmentService), zap.NewNop(), &config.Config{
			AssessmentReconcileSchedule: "@every 1h",
		})
		require.NoError(t, job.SetupAndStart())
		job.Stop()
	})
}

func TestCronLogger_OddKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewCronLogger(zap.New(core))

	l.Info("schedule", "entry", 1, "dangling")
	l.Error(errors.New("boom"), "job panicked")

	require.Equal(t, 2, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.EqualValues(t, 1, fields["entry"])
	assert.Equal(t, "MISSING_VALUE", fields["dangling"])
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
}
