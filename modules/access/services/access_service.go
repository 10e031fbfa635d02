package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"github.com/jacksonlee411/fleet-console/pkg/httperr"
)

type AccessServiceOptions struct {
	// TimeGap is the verification dedupe window (TIME_GAP_HOURS).
	TimeGap time.Duration
	// Fanout bounds concurrent rule loads of the cumulative resolver.
	Fanout int
	Now    func() time.Time
}

// AccessService is the entry point of the IMEI access engine. Every call reads the
// stores afresh; nothing is cached between calls.
type AccessService struct {
	rules      ports.RuleStore
	devices    ports.DeviceDirectory
	cumulative cumulativeResolver
	dedupe     VerificationDeduplicator
	now        func() time.Time
}

func NewAccessService(rules ports.RuleStore, tenants ports.TenantDirectory, devices ports.DeviceDirectory, logs ports.VerificationLogStore, opts AccessServiceOptions) AccessService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return AccessService{
		rules:      rules,
		devices:    devices,
		cumulative: cumulativeResolver{rules: rules, tenants: tenants, fanout: opts.Fanout},
		dedupe:     NewVerificationDeduplicator(logs, opts.TimeGap),
		now:        now,
	}
}

// CheckAccess resolves a technician's own access to the device behind imei.
func (s AccessService) CheckAccess(ctx context.Context, technicianID int64, imei string) (types.Decision, error) {
	deviceID, err := s.resolveDevice(ctx, imei)
	if err != nil {
		return types.Decision{}, err
	}
	return s.checkTechnicianDevice(ctx, technicianID, deviceID)
}

func (s AccessService) checkTechnicianDevice(ctx context.Context, technicianID int64, deviceID int64) (types.Decision, error) {
	rows, err := s.rules.GetActiveRestrictions(ctx, technicianID)
	if err != nil {
		return types.Decision{}, fmt.Errorf("load restrictions of technician %d: %w", technicianID, err)
	}
	active := FilterActive(rows, s.now())
	return resolveSingle(ctx, newTagExpander(s.rules), active, deviceID)
}

// CheckAdminAccess resolves an administrator's access. A nil resellerID is a super-admin
// and is permitted every known device.
func (s AccessService) CheckAdminAccess(ctx context.Context, userID int64, resellerID *int64, imei string) (types.Decision, error) {
	deviceID, err := s.resolveDevice(ctx, imei)
	if err != nil {
		return types.Decision{}, err
	}
	if resellerID == nil {
		return types.Decision{HasAccess: true, DeviceID: deviceID, Basis: types.BasisSuperAdmin}, nil
	}
	return s.cumulative.resolve(ctx, *resellerID, deviceID, s.now())
}

// Authorize dispatches on the caller's capability.
func (s AccessService) Authorize(ctx context.Context, capability types.Capability, imei string) (types.Decision, error) {
	switch c := capability.(type) {
	case types.TechnicianCapability:
		return s.CheckAccess(ctx, c.TechnicianID, imei)
	case types.ResellerAdminCapability:
		resellerID := c.ResellerID
		return s.CheckAdminAccess(ctx, c.UserID, &resellerID, imei)
	case types.SuperAdminCapability:
		return s.CheckAdminAccess(ctx, c.UserID, nil, imei)
	default:
		return types.Decision{}, fmt.Errorf("unsupported capability %T", capability)
	}
}

// RecordVerification stores a verification for subjectID (a technician id, or
// types.AdminSubjectID for administrators) through the dedupe window.
func (s AccessService) RecordVerification(ctx context.Context, subjectID int64, deviceID int64, payload types.VerificationPayload, now time.Time) (int64, error) {
	return s.dedupe.Record(ctx, subjectID, deviceID, payload, now)
}

type VerificationResult struct {
	Decision       types.Decision
	VerificationID int64
}

// VerifyDevice checks access and, when granted, records the verification. A denied
// decision is returned with a zero VerificationID and nothing is written.
func (s AccessService) VerifyDevice(ctx context.Context, capability types.Capability, imei string, payload types.VerificationPayload) (VerificationResult, error) {
	d, err := s.Authorize(ctx, capability, imei)
	if err != nil {
		return VerificationResult{}, err
	}
	if !d.HasAccess {
		return VerificationResult{Decision: d}, nil
	}

	subjectID := types.AdminSubjectID
	switch c := capability.(type) {
	case types.TechnicianCapability:
		subjectID = c.TechnicianID
	case types.ResellerAdminCapability:
		userID := c.UserID
		payload.ActorUserID = &userID
	case types.SuperAdminCapability:
		userID := c.UserID
		payload.ActorUserID = &userID
	}

	id, err := s.RecordVerification(ctx, subjectID, d.DeviceID, payload, s.now())
	if err != nil {
		return VerificationResult{}, err
	}
	return VerificationResult{Decision: d, VerificationID: id}, nil
}

func (s AccessService) resolveDevice(ctx context.Context, imei string) (int64, error) {
	imei, err := NormalizeIMEI(imei)
	if err != nil {
		return 0, err
	}
	id, err := s.devices.ResolveDeviceID(ctx, imei)
	if err != nil {
		if errors.Is(err, ports.ErrDeviceNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("resolve device %s: %w", imei, err)
	}
	return id, nil
}

// NormalizeIMEI trims the identifier and checks it is 14 to 16 digits (IMEI, IMEI with
// check digit, IMEISV). An identifier of any other shape cannot name a device and reports
// ErrDeviceNotFound.
func NormalizeIMEI(raw string) (string, error) {
	imei := strings.TrimSpace(raw)
	if imei == "" {
		return "", httperr.NewBadRequest("imei is required")
	}
	if len(imei) < 14 || len(imei) > 16 {
		return "", fmt.Errorf("imei %q: %w", imei, ports.ErrDeviceNotFound)
	}
	for i := 0; i < len(imei); i++ {
		if imei[i] < '0' || imei[i] > '9' {
			return "", fmt.Errorf("imei %q: %w", imei, ports.ErrDeviceNotFound)
		}
	}
	return imei, nil
}
