package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
)

type VerificationPGStore struct {
	pool pgBeginner
}

func NewVerificationPGStore(pool pgBeginner) ports.VerificationLogStore {
	return &VerificationPGStore{pool: pool}
}

// verificationLockKey namespaces the advisory locks taken by WithDeviceLock.
const verificationLockKey = "access.verification_logs"

func (s *VerificationPGStore) WithDeviceLock(ctx context.Context, technicianID int64, deviceID int64, fn func(tx ports.VerificationLogTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	// Transaction scoped; released on commit or rollback.
	lockName := fmt.Sprintf("%s:%d:%d", verificationLockKey, technicianID, deviceID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0));`, lockName); err != nil {
		return err
	}

	if err := fn(verificationPGTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type verificationPGTx struct {
	tx pgx.Tx
}

func (t verificationPGTx) FindRecent(ctx context.Context, technicianID int64, deviceID int64, since time.Time) (*types.VerificationLog, error) {
	var rec verificationRecord
	err := t.tx.QueryRow(ctx, `
SELECT
  id,
  technician_id,
  device_id,
  verified_at,
  status,
  notes,
  gps_latitude,
  gps_longitude,
  gps_accuracy,
  actor_user_id
FROM access.verification_logs
WHERE technician_id = $1::bigint
  AND device_id = $2::bigint
  AND verified_at >= $3::timestamptz
ORDER BY verified_at DESC, id DESC
LIMIT 1
`, technicianID, deviceID, since).Scan(
		&rec.ID,
		&rec.TechnicianID,
		&rec.DeviceID,
		&rec.VerifiedAt,
		&rec.Status,
		&rec.Notes,
		&rec.Latitude,
		&rec.Longitude,
		&rec.Accuracy,
		&rec.ActorUserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	log := rec.toLog()
	return &log, nil
}

func (t verificationPGTx) Insert(ctx context.Context, log *types.VerificationLog) (int64, error) {
	lat, lng, acc := gpsColumns(log.GPS)
	var id int64
	if err := t.tx.QueryRow(ctx, `
INSERT INTO access.verification_logs (
  technician_id, device_id, verified_at, status, notes, gps_latitude, gps_longitude, gps_accuracy, actor_user_id
) VALUES (
  $1::bigint, $2::bigint, $3::timestamptz, $4::text, $5::text, $6, $7, $8, $9::bigint
)
RETURNING id
`, log.TechnicianID, log.DeviceID, log.VerifiedAt, string(log.Status), log.Notes, lat, lng, acc, log.ActorUserID).Scan(&id); err != nil {
		return 0, err
	}
	log.ID = id
	return id, nil
}

func (t verificationPGTx) Update(ctx context.Context, log *types.VerificationLog) error {
	lat, lng, acc := gpsColumns(log.GPS)
	tag, err := t.tx.Exec(ctx, `
UPDATE access.verification_logs
SET verified_at = $2::timestamptz,
    status = $3::text,
    notes = $4::text,
    gps_latitude = $5,
    gps_longitude = $6,
    gps_accuracy = $7,
    actor_user_id = $8::bigint
WHERE id = $1::bigint
`, log.ID, log.VerifiedAt, string(log.Status), log.Notes, lat, lng, acc, log.ActorUserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("verification %d: %w", log.ID, ports.ErrVerificationNotFound)
	}
	return nil
}

type verificationRecord struct {
	ID           int64
	TechnicianID int64
	DeviceID     int64
	VerifiedAt   time.Time
	Status       string
	Notes        string
	Latitude     *float64
	Longitude    *float64
	Accuracy     *float64
	ActorUserID  *int64
}

func (rec verificationRecord) toLog() types.VerificationLog {
	log := types.VerificationLog{
		ID:           rec.ID,
		TechnicianID: rec.TechnicianID,
		DeviceID:     rec.DeviceID,
		VerifiedAt:   rec.VerifiedAt.UTC(),
		Status:       types.VerificationStatus(rec.Status),
		Notes:        rec.Notes,
		ActorUserID:  rec.ActorUserID,
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		log.GPS = &types.GPSSnapshot{Latitude: *rec.Latitude, Longitude: *rec.Longitude, Accuracy: rec.Accuracy}
	}
	return log
}

func gpsColumns(g *types.GPSSnapshot) (lat *float64, lng *float64, acc *float64) {
	if g == nil {
		return nil, nil, nil
	}
	la, lo := g.Latitude, g.Longitude
	return &la, &lo, g.Accuracy
}
