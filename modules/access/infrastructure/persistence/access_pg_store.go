package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccessPGStore serves the rule store, tenant directory, device directory and audit trail
// from the access schema.
type AccessPGStore struct {
	pool pgBeginner
}

func NewAccessPGStore(pool pgBeginner) *AccessPGStore {
	return &AccessPGStore{pool: pool}
}

var (
	_ ports.RuleStore       = (*AccessPGStore)(nil)
	_ ports.TenantDirectory = (*AccessPGStore)(nil)
	_ ports.DeviceDirectory = (*AccessPGStore)(nil)
	_ ports.AuditStore      = (*AccessPGStore)(nil)
)

func (s *AccessPGStore) GetActiveRestrictions(ctx context.Context, technicianID int64) ([]types.Restriction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT
  id,
  technician_id,
  device_id,
  tag_id,
  access_type,
  priority,
  is_permanent,
  valid_from,
  valid_until,
  status
FROM access.restrictions
WHERE technician_id = $1::bigint
  AND status = 'active'
ORDER BY id ASC
`, technicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Restriction
	var integrity *multierror.Error
	for rows.Next() {
		var rec restrictionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TechnicianID,
			&rec.DeviceID,
			&rec.TagID,
			&rec.AccessType,
			&rec.Priority,
			&rec.IsPermanent,
			&rec.ValidFrom,
			&rec.ValidUntil,
			&rec.Status,
		); err != nil {
			return nil, err
		}
		r, err := rec.toRestriction()
		if err != nil {
			integrity = multierror.Append(integrity, err)
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := integrity.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: technician %d: %w", ports.ErrRestrictionIntegrity, technicianID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AccessPGStore) GetTagDeviceMembers(ctx context.Context, tagID int64) ([]int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT entity_id
FROM access.tag_items
WHERE tag_id = $1::bigint
  AND entity_type = 'device'
ORDER BY entity_id ASC
`, tagID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AccessPGStore) GetTechniciansByReseller(ctx context.Context, resellerID int64, status types.Status) ([]types.Technician, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id, reseller_id, status, daily_limit
FROM access.technicians
WHERE reseller_id = $1::bigint
  AND status = $2::text
ORDER BY id ASC
`, resellerID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Technician
	for rows.Next() {
		var t types.Technician
		var st string
		if err := rows.Scan(&t.ID, &t.ResellerID, &st, &t.DailyLimit); err != nil {
			return nil, err
		}
		t.Status = types.Status(st)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AccessPGStore) ResolveDeviceID(ctx context.Context, imei string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var id int64
	if err := tx.QueryRow(ctx, `
SELECT id
FROM access.devices
WHERE imei = $1::text
LIMIT 1
`, imei).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("imei %s: %w", imei, ports.ErrDeviceNotFound)
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *AccessPGStore) AppendAuditEvent(ctx context.Context, ev types.AuditEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO access.audit_events (
  id, subject_kind, subject_id, reseller_id, imei, device_id, basis, reason, occurred_at
) VALUES (
  $1::uuid, $2::text, $3::bigint, $4::bigint, $5::text, $6::bigint, $7::text, $8::text, $9::timestamptz
)
`, ev.ID, ev.SubjectKind, ev.SubjectID, ev.ResellerID, ev.IMEI, ev.DeviceID, string(ev.Basis), ev.Reason, ev.OccurredAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type restrictionRecord struct {
	ID           int64
	TechnicianID int64
	DeviceID     *int64
	TagID        *int64
	AccessType   string
	Priority     int
	IsPermanent  bool
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	Status       string
}

func (rec restrictionRecord) toRestriction() (types.Restriction, error) {
	target, err := types.TargetFromColumns(rec.DeviceID, rec.TagID)
	if err != nil {
		return types.Restriction{}, fmt.Errorf("restriction %d: %w", rec.ID, err)
	}
	accessType, err := types.ParseAccessType(rec.AccessType)
	if err != nil {
		return types.Restriction{}, fmt.Errorf("restriction %d: %w", rec.ID, err)
	}
	return types.Restriction{
		ID:           rec.ID,
		TechnicianID: rec.TechnicianID,
		Target:       target,
		AccessType:   accessType,
		Priority:     rec.Priority,
		IsPermanent:  rec.IsPermanent,
		ValidFrom:    rec.ValidFrom,
		ValidUntil:   rec.ValidUntil,
		Status:       types.Status(rec.Status),
	}, nil
}
