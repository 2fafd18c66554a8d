package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettlement struct {
	settlementdomain.Service

	transitions []settlementdomain.TransitionRequest
	err         error
	sweepLimit  int
}

func (f *fakeSettlement) Transition(_ context.Context, req settlementdomain.TransitionRequest) (*settlementdomain.TransitionResult, error) {
	f.transitions = append(f.transitions, req)
	if f.err != nil {
		return nil, f.err
	}
	return &settlementdomain.TransitionResult{
		Order: orderdomain.Order{OrderNumber: "EVT-0001", Status: req.Target},
		From:  orderdomain.OrderStatusPending,
	}, nil
}

func (f *fakeSettlement) ExpireOverdue(_ context.Context, _ time.Time, limit int) (int, error) {
	f.sweepLimit = limit
	return 2, nil
}

func execute(t *testing.T, svc *fakeSettlement, args ...string) (string, error) {
	t.Helper()
	run := func(ctx context.Context, fn func(context.Context, settlementdomain.Service) error) error {
		return fn(ctx, svc)
	}
	cmd := newRootCmd(run)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMarkPaidByOrderNumber(t *testing.T) {
	svc := &fakeSettlement{}
	out, err := execute(t, svc, "mark-paid", "EVT-0001", "--amount", "150000", "--currency", "IDR", "--actor", "admin:finance", "--reason", "bank transfer")
	require.NoError(t, err)

	require.Len(t, svc.transitions, 1)
	req := svc.transitions[0]
	assert.Equal(t, "EVT-0001", req.OrderNumber)
	assert.Nil(t, req.OrderID)
	assert.Equal(t, orderdomain.OrderStatusPaid, req.Target)
	assert.Equal(t, settlementdomain.SourceManual, req.Source)
	assert.Equal(t, "admin:finance", req.Actor)
	require.NotNil(t, req.Amount)
	assert.Equal(t, int64(150000), *req.Amount)
	require.NotNil(t, req.Currency)
	assert.Equal(t, "IDR", *req.Currency)
	assert.Contains(t, out, "EVT-0001: pending -> paid")
}

func TestMarkPaidWithoutAmountLeavesItUnchecked(t *testing.T) {
	svc := &fakeSettlement{}
	_, err := execute(t, svc, "mark-paid", "EVT-0001")
	require.NoError(t, err)
	assert.Nil(t, svc.transitions[0].Amount)
	assert.Nil(t, svc.transitions[0].Currency)
}

func TestRefundAndCancelByID(t *testing.T) {
	svc := &fakeSettlement{}
	id := uuid.New()

	_, err := execute(t, svc, "refund", id.String(), "--reason", "event cancelled")
	require.NoError(t, err)
	_, err = execute(t, svc, "cancel", id.String())
	require.NoError(t, err)

	require.Len(t, svc.transitions, 2)
	assert.Equal(t, orderdomain.OrderStatusRefunded, svc.transitions[0].Target)
	assert.Equal(t, "event cancelled", svc.transitions[0].Reason)
	assert.Equal(t, orderdomain.OrderStatusCancelled, svc.transitions[1].Target)
	require.NotNil(t, svc.transitions[1].OrderID)
	assert.Equal(t, id, *svc.transitions[1].OrderID)
	assert.Equal(t, "admin:ordersctl", svc.transitions[1].Actor)
}

func TestTransitionErrorsSurface(t *testing.T) {
	svc := &fakeSettlement{err: settlementdomain.ErrReconciliationMismatch}
	_, err := execute(t, svc, "mark-paid", "EVT-0001", "--amount", "1")
	assert.ErrorIs(t, err, settlementdomain.ErrReconciliationMismatch)

	svc = &fakeSettlement{err: settlementdomain.ErrAlreadyTerminal}
	_, err = execute(t, svc, "cancel", "EVT-0001")
	assert.ErrorIs(t, err, settlementdomain.ErrAlreadyTerminal)
}

func TestSweep(t *testing.T) {
	svc := &fakeSettlement{}
	out, err := execute(t, svc, "sweep", "--limit", "25")
	require.NoError(t, err)
	assert.Equal(t, 25, svc.sweepLimit)
	assert.Contains(t, out, "expired 2 orders")

	_, err = execute(t, svc, "sweep", "--limit", "0")
	assert.Error(t, err)
}

func TestMissingOrderArgument(t *testing.T) {
	_, err := execute(t, &fakeSettlement{}, "refund")
	assert.Error(t, err)
}
