package ports

import (
	"context"
	"errors"
	"time"

	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
)

var (
	ErrDeviceNotFound       = errors.New("device_not_found")
	ErrRestrictionIntegrity = errors.New("restriction_integrity")
	ErrVerificationNotFound = errors.New("verification_not_found")
)

// RuleStore supplies restriction rules and tag device membership.
// GetActiveRestrictions returns rows ordered by restriction id; callers still run the
// validity filter.
type RuleStore interface {
	GetActiveRestrictions(ctx context.Context, technicianID int64) ([]types.Restriction, error)
	GetTagDeviceMembers(ctx context.Context, tagID int64) ([]int64, error)
}

type TenantDirectory interface {
	GetTechniciansByReseller(ctx context.Context, resellerID int64, status types.Status) ([]types.Technician, error)
}

type DeviceDirectory interface {
	ResolveDeviceID(ctx context.Context, imei string) (int64, error)
}

type VerificationLogTx interface {
	FindRecent(ctx context.Context, technicianID int64, deviceID int64, since time.Time) (*types.VerificationLog, error)
	Insert(ctx context.Context, log *types.VerificationLog) (int64, error)
	Update(ctx context.Context, log *types.VerificationLog) error
}

// VerificationLogStore runs fn in one transaction that holds an exclusive lock for the
// (technician, device) pair, so find-then-write cannot interleave with another writer.
type VerificationLogStore interface {
	WithDeviceLock(ctx context.Context, technicianID int64, deviceID int64, fn func(tx VerificationLogTx) error) error
}

type AuditStore interface {
	AppendAuditEvent(ctx context.Context, ev types.AuditEvent) error
}
