package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationPGStore_WithDeviceLock(t *testing.T) {
	ctx := context.Background()
	noop := func(ports.VerificationLogTx) error { return nil }

	t.Run("begin error", func(t *testing.T) {
		store := NewVerificationPGStore(beginFunc(func(context.Context) (pgx.Tx, error) {
			return nil, errors.New("begin")
		}))
		require.Error(t, store.WithDeviceLock(ctx, 7, 100, noop))
	})

	t.Run("lock error", func(t *testing.T) {
		called := false
		store := NewVerificationPGStore(&txStub{execErr: errors.New("lock")})
		err := store.WithDeviceLock(ctx, 7, 100, func(ports.VerificationLogTx) error {
			called = true
			return nil
		})
		require.EqualError(t, err, "lock")
		assert.False(t, called)
	})

	t.Run("callback error skips commit", func(t *testing.T) {
		tx := &txStub{}
		store := NewVerificationPGStore(tx)
		err := store.WithDeviceLock(ctx, 7, 100, func(ports.VerificationLogTx) error { return errors.New("fn") })
		require.EqualError(t, err, "fn")
		assert.False(t, tx.committed)
	})

	t.Run("commit error", func(t *testing.T) {
		store := NewVerificationPGStore(&txStub{commitErr: errors.New("commit")})
		require.EqualError(t, store.WithDeviceLock(ctx, 7, 100, noop), "commit")
	})

	t.Run("locks the pair and commits", func(t *testing.T) {
		tx := &txStub{}
		store := NewVerificationPGStore(tx)
		require.NoError(t, store.WithDeviceLock(ctx, 7, 100, noop))
		require.Len(t, tx.execSQL, 1)
		assert.Contains(t, tx.execSQL[0], "pg_advisory_xact_lock")
		assert.Equal(t, "access.verification_logs:7:100", tx.execArgs[0][0])
		assert.True(t, tx.committed)
	})
}

func TestVerificationPGTx_FindRecent(t *testing.T) {
	ctx := context.Background()
	since := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	got, err := verificationPGTx{tx: &txStub{row: stubRow{err: pgx.ErrNoRows}}}.FindRecent(ctx, 7, 100, since)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = verificationPGTx{tx: &txStub{row: stubRow{err: errors.New("row")}}}.FindRecent(ctx, 7, 100, since)
	require.EqualError(t, err, "row")

	at := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	lat, lng := 52.1, 4.3
	got, err = verificationPGTx{tx: &txStub{row: stubRow{vals: []any{
		int64(9), int64(7), int64(100), at, "passed", "ok", &lat, &lng, (*float64)(nil), (*int64)(nil),
	}}}}.FindRecent(ctx, 7, 100, since)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.ID)
	assert.Equal(t, types.VerificationPassed, got.Status)
	assert.True(t, got.VerifiedAt.Equal(at))
	require.NotNil(t, got.GPS)
	assert.Equal(t, 52.1, got.GPS.Latitude)
	assert.Nil(t, got.GPS.Accuracy)
	assert.Nil(t, got.ActorUserID)
}

func TestVerificationPGTx_Insert(t *testing.T) {
	ctx := context.Background()
	log := &types.VerificationLog{TechnicianID: 7, DeviceID: 100, VerifiedAt: time.Now(), Status: types.VerificationPassed}

	_, err := verificationPGTx{tx: &txStub{row: stubRow{err: errors.New("row")}}}.Insert(ctx, log)
	require.Error(t, err)

	id, err := verificationPGTx{tx: &txStub{row: stubRow{vals: []any{int64(42)}}}}.Insert(ctx, log)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), log.ID)
}

func TestVerificationPGTx_Update(t *testing.T) {
	ctx := context.Background()
	acc := 3.5
	log := &types.VerificationLog{
		ID:         42,
		VerifiedAt: time.Now(),
		Status:     types.VerificationFailed,
		GPS:        &types.GPSSnapshot{Latitude: 1, Longitude: 2, Accuracy: &acc},
	}

	err := verificationPGTx{tx: &txStub{execErr: errors.New("exec")}}.Update(ctx, log)
	require.EqualError(t, err, "exec")

	err = verificationPGTx{tx: &txStub{execTag: pgconn.NewCommandTag("UPDATE 0")}}.Update(ctx, log)
	require.ErrorIs(t, err, ports.ErrVerificationNotFound)

	tx := &txStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	require.NoError(t, verificationPGTx{tx: tx}.Update(ctx, log))
	args := tx.execArgs[0]
	assert.Equal(t, int64(42), args[0])
	assert.Equal(t, "failed", args[2])
	assert.Equal(t, &acc, args[6])
}

func TestGPSColumns(t *testing.T) {
	lat, lng, acc := gpsColumns(nil)
	assert.Nil(t, lat)
	assert.Nil(t, lng)
	assert.Nil(t, acc)

	lat, lng, _ = gpsColumns(&types.GPSSnapshot{Latitude: 10, Longitude: 20})
	assert.Equal(t, 10.0, *lat)
	assert.Equal(t, 20.0, *lng)
}
