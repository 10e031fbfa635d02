package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
)

// Auditor records access denials. It is called by the transport layer after a verdict;
// the resolver itself has no side effects.
type Auditor struct {
	store ports.AuditStore
	now   func() time.Time
}

func NewAuditor(store ports.AuditStore, now func() time.Time) Auditor {
	if now == nil {
		now = time.Now
	}
	return Auditor{store: store, now: now}
}

func (a Auditor) RecordDenial(ctx context.Context, capability types.Capability, imei string, d types.Decision) (types.AuditEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return types.AuditEvent{}, err
	}
	// Record the identifier the decision was made on.
	if normalized, err := NormalizeIMEI(imei); err == nil {
		imei = normalized
	}
	ev := types.AuditEvent{
		ID:          id.String(),
		SubjectKind: capability.SubjectKind(),
		IMEI:        imei,
		DeviceID:    d.DeviceID,
		Basis:       d.Basis,
		Reason:      d.Reason,
		OccurredAt:  a.now().UTC(),
	}
	switch c := capability.(type) {
	case types.TechnicianCapability:
		ev.SubjectID = c.TechnicianID
	case types.ResellerAdminCapability:
		ev.SubjectID = c.UserID
		resellerID := c.ResellerID
		ev.ResellerID = &resellerID
	case types.SuperAdminCapability:
		ev.SubjectID = c.UserID
	}
	if err := a.store.AppendAuditEvent(ctx, ev); err != nil {
		return types.AuditEvent{}, err
	}
	return ev, nil
}
