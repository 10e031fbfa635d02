package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"golang.org/x/sync/errgroup"
)

const defaultFanout = 8

// cumulativeResolver answers administrative checks for a whole reseller. Unlike the
// per-technician resolver it does not use list modes: any allowed device anywhere makes
// the allow set authoritative, otherwise only denied devices are hidden.
type cumulativeResolver struct {
	rules   ports.RuleStore
	tenants ports.TenantDirectory
	fanout  int
}

func (c cumulativeResolver) resolve(ctx context.Context, resellerID int64, deviceID int64, now time.Time) (types.Decision, error) {
	techs, err := c.tenants.GetTechniciansByReseller(ctx, resellerID, types.StatusActive)
	if err != nil {
		return types.Decision{}, fmt.Errorf("list technicians of reseller %d: %w", resellerID, err)
	}
	if len(techs) == 0 {
		return types.Decision{HasAccess: true, DeviceID: deviceID, Mode: types.ModeUnrestricted, Basis: types.BasisUnrestricted}, nil
	}

	sets, err := c.loadActiveSets(ctx, techs, now)
	if err != nil {
		return types.Decision{}, err
	}
	for _, active := range sets {
		if len(active) == 0 {
			return types.Decision{HasAccess: true, DeviceID: deviceID, Mode: types.ModeUnrestricted, Basis: types.BasisUnrestricted}, nil
		}
	}

	tags := newTagExpander(c.rules)
	allowed := make(map[int64]struct{})
	denied := make(map[int64]struct{})
	for _, active := range sets {
		for _, r := range active {
			bucket := denied
			if r.AccessType == types.AccessAllow {
				bucket = allowed
			}
			if id, ok := r.Target.DeviceID(); ok {
				bucket[id] = struct{}{}
				continue
			}
			tagID, _ := r.Target.TagID()
			members, err := tags.devices(ctx, tagID)
			if err != nil {
				return types.Decision{}, err
			}
			for id := range members {
				bucket[id] = struct{}{}
			}
		}
	}

	d := types.Decision{DeviceID: deviceID, Basis: types.BasisCumulative}
	if len(allowed) > 0 {
		_, d.HasAccess = allowed[deviceID]
		d.Mode = types.ModeAllowList
		if !d.HasAccess {
			d.Reason = "device is not allowed for any technician of the reseller"
		}
		return d, nil
	}
	_, isDenied := denied[deviceID]
	d.HasAccess = !isDenied
	d.Mode = types.ModeDenyList
	if !d.HasAccess {
		d.Reason = "device is denied for the reseller's technicians"
	}
	return d, nil
}

// loadActiveSets fetches and filters every technician's rules; result order follows techs.
func (c cumulativeResolver) loadActiveSets(ctx context.Context, techs []types.Technician, now time.Time) ([][]types.Restriction, error) {
	out := make([][]types.Restriction, len(techs))
	g, gctx := errgroup.WithContext(ctx)
	limit := c.fanout
	if limit <= 0 {
		limit = defaultFanout
	}
	g.SetLimit(limit)
	for i, t := range techs {
		g.Go(func() error {
			rows, err := c.rules.GetActiveRestrictions(gctx, t.ID)
			if err != nil {
				return fmt.Errorf("load restrictions of technician %d: %w", t.ID, err)
			}
			out[i] = FilterActive(rows, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
