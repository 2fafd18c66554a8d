package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerTryLockAndRelease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(true)
	mock.Regexp().ExpectSetNX("sweep:expire_orders", `.+`, time.Minute).SetVal(true)
	mock.Regexp().ExpectEvalSha(`.+`, []string{"sweep:expire_orders"}, `.+`).SetVal(int64(1))

	locker := NewLocker(client)
	token, ok, err := locker.TryLock(context.Background(), "sweep:expire_orders", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	require.NoError(t, locker.Release(context.Background(), "sweep:expire_orders", token))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerHeldElsewhere(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.Regexp().ExpectSetNX("sweep:expire_orders", `.+`, time.Minute).SetVal(false)

	_, ok, err := NewLocker(client).TryLock(context.Background(), "sweep:expire_orders", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerRejectsBadInput(t *testing.T) {
	var nilLocker *Locker
	_, _, err := nilLocker.TryLock(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, nilLocker.Release(context.Background(), "k", "t"))

	client, _ := redismock.NewClientMock()
	locker := NewLocker(client)
	_, _, err = locker.TryLock(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidLockKey)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidLockTTL)
}

func TestPing(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, Ping(context.Background(), client))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	err := Ping(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}
