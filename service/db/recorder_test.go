package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/distadmin/service/metrics"
	"github.com/brojonat/distadmin/service/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockHistoryStore struct {
	mock.Mock
}

func (m *mockHistoryStore) CreateRun(ctx context.Context, params CreateRunParams) (*Run, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Run), args.Error(1)
}

func (m *mockHistoryStore) FinishRun(ctx context.Context, params FinishRunParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockHistoryStore) RecordOutcome(ctx context.Context, params RecordOutcomeParams) (*Outcome, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Outcome), args.Error(1)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := new(mockHistoryStore)
	rec := NewRecorder(store, metrics.NewMetrics(prometheus.NewRegistry()))

	run := reconcile.Run{
		ID:        "run-1",
		Operation: reconcile.OperationSpec{Kind: reconcile.KindSetClawbackReceiver, Value: "Owner"},
		Target:    "TokenAccount",
		Mode:      "offline",
		Source:    "directory trees",
		StartedAt: started,
	}
	store.On("CreateRun", ctx, CreateRunParams{
		ID:        "run-1",
		Kind:      "set_clawback_receiver",
		Target:    "TokenAccount",
		Mode:      "offline",
		Source:    "directory trees",
		StartedAt: started,
	}).Return(&Run{ID: "run-1"}, nil)
	require.NoError(t, rec.StartRun(ctx, run))

	result := reconcile.Result{
		RunID:     "run-1",
		Kind:      reconcile.KindSetClawbackReceiver,
		Target:    "TokenAccount",
		Version:   4,
		Address:   "PDA",
		Outcome:   reconcile.OutcomePrinted,
		Message:   "base58message",
		Attempts:  1,
		Timestamp: started,
	}
	msg := "base58message"
	store.On("RecordOutcome", ctx, RecordOutcomeParams{
		RunID:      "run-1",
		Kind:       "set_clawback_receiver",
		Target:     "TokenAccount",
		Version:    4,
		Address:    "PDA",
		Outcome:    "printed",
		Message:    &msg,
		Attempts:   1,
		RecordedAt: started,
	}).Return(&Outcome{ID: 1}, nil)
	require.NoError(t, rec.RecordOutcome(ctx, result))

	report := reconcile.NewReport(run)
	report.Add(result)
	report.FinishedAt = started.Add(time.Second)
	store.On("FinishRun", ctx, FinishRunParams{
		ID:         "run-1",
		FinishedAt: started.Add(time.Second),
		Total:      1,
		Failed:     0,
		Counts:     map[string]int{"printed": 1},
	}).Return(errors.New("connection refused"))
	assert.EqualError(t, rec.FinishRun(ctx, report), "connection refused")

	store.AssertExpectations(t)
}

func TestOptional(t *testing.T) {
	assert.Nil(t, optional(""))
	require.NotNil(t, optional("x"))
	assert.Equal(t, "x", *optional("x"))
}
