package services

import (
	"time"

	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
)

// FilterActive keeps the restrictions in effect at now, preserving input order.
// Non-permanent rows need both bounds; the window is inclusive on both ends.
func FilterActive(rows []types.Restriction, now time.Time) []types.Restriction {
	out := make([]types.Restriction, 0, len(rows))
	for _, r := range rows {
		if isActiveAt(r, now) {
			out = append(out, r)
		}
	}
	return out
}

func isActiveAt(r types.Restriction, now time.Time) bool {
	if r.Status != types.StatusActive {
		return false
	}
	if r.IsPermanent {
		return true
	}
	if r.ValidFrom == nil || r.ValidUntil == nil {
		return false
	}
	return !now.Before(*r.ValidFrom) && !now.After(*r.ValidUntil)
}
