package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"github.com/jacksonlee411/fleet-console/pkg/httperr"
)

const DefaultTimeGap = time.Hour

const maxNotesLen = 2000

// VerificationDeduplicator keeps at most one verification row per (subject, device) inside
// a rolling gap window. A hit inside the window overwrites the existing row and moves its
// verified_at forward.
type VerificationDeduplicator struct {
	store ports.VerificationLogStore
	gap   time.Duration
}

func NewVerificationDeduplicator(store ports.VerificationLogStore, gap time.Duration) VerificationDeduplicator {
	if gap <= 0 {
		gap = DefaultTimeGap
	}
	return VerificationDeduplicator{store: store, gap: gap}
}

func (d VerificationDeduplicator) Record(ctx context.Context, subjectID int64, deviceID int64, payload types.VerificationPayload, now time.Time) (int64, error) {
	payload, err := normalizeVerificationPayload(payload)
	if err != nil {
		return 0, err
	}
	if subjectID < 0 {
		return 0, httperr.NewBadRequest("invalid subject id")
	}
	if deviceID <= 0 {
		return 0, httperr.NewBadRequest("invalid device id")
	}

	now = now.UTC()
	var id int64
	err = d.store.WithDeviceLock(ctx, subjectID, deviceID, func(tx ports.VerificationLogTx) error {
		existing, err := tx.FindRecent(ctx, subjectID, deviceID, now.Add(-d.gap))
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Apply(payload, now)
			if err := tx.Update(ctx, existing); err != nil {
				return err
			}
			id = existing.ID
			return nil
		}

		log := &types.VerificationLog{TechnicianID: subjectID, DeviceID: deviceID}
		log.Apply(payload, now)
		newID, err := tx.Insert(ctx, log)
		if err != nil {
			return err
		}
		id = newID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record verification: %w", err)
	}
	return id, nil
}

func normalizeVerificationPayload(p types.VerificationPayload) (types.VerificationPayload, error) {
	p.Status = types.VerificationStatus(strings.ToLower(strings.TrimSpace(string(p.Status))))
	switch p.Status {
	case types.VerificationPassed, types.VerificationFailed:
	case "":
		return p, httperr.NewBadRequest("status is required")
	default:
		return p, httperr.NewBadRequestf("invalid status %q", p.Status)
	}

	p.Notes = strings.TrimSpace(p.Notes)
	if len(p.Notes) > maxNotesLen {
		return p, httperr.NewBadRequestf("notes exceed %d bytes", maxNotesLen)
	}

	if p.GPS != nil {
		lat, lng := p.GPS.Latitude, p.GPS.Longitude
		if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return p, httperr.NewBadRequest("invalid gps coordinates")
		}
		if p.GPS.Accuracy != nil && (math.IsNaN(*p.GPS.Accuracy) || *p.GPS.Accuracy < 0) {
			return p, httperr.NewBadRequest("invalid gps accuracy")
		}
	}
	return p, nil
}
