package services

import (
	"context"
	"fmt"

	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
)

// tagExpander resolves tag device membership at most once per tag for the lifetime of a
// single resolution call. It is not shared between calls and not safe for concurrent use.
type tagExpander struct {
	rules   ports.RuleStore
	members map[int64]map[int64]struct{}
}

func newTagExpander(rules ports.RuleStore) *tagExpander {
	return &tagExpander{rules: rules, members: make(map[int64]map[int64]struct{})}
}

func (e *tagExpander) devices(ctx context.Context, tagID int64) (map[int64]struct{}, error) {
	if set, ok := e.members[tagID]; ok {
		return set, nil
	}
	ids, err := e.rules.GetTagDeviceMembers(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("expand tag %d: %w", tagID, err)
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	e.members[tagID] = set
	return set, nil
}

func (e *tagExpander) contains(ctx context.Context, tagID int64, deviceID int64) (bool, error) {
	set, err := e.devices(ctx, tagID)
	if err != nil {
		return false, err
	}
	_, ok := set[deviceID]
	return ok, nil
}

// resolveSingle decides one technician's access to one device from its active rules.
// Direct device rules are consulted before tag rules; within each group the first row in
// retrieval order wins.
func resolveSingle(ctx context.Context, tags *tagExpander, active []types.Restriction, deviceID int64) (types.Decision, error) {
	mode := InferMode(active)
	if mode == types.ModeUnrestricted {
		return types.Decision{HasAccess: true, DeviceID: deviceID, Mode: mode, Basis: types.BasisUnrestricted}, nil
	}

	for _, r := range active {
		if id, ok := r.Target.DeviceID(); ok && id == deviceID {
			return ruleDecision(r, deviceID, mode, types.BasisDirect), nil
		}
	}

	for _, r := range active {
		tagID, ok := r.Target.TagID()
		if !ok {
			continue
		}
		hit, err := tags.contains(ctx, tagID, deviceID)
		if err != nil {
			return types.Decision{}, err
		}
		if hit {
			return ruleDecision(r, deviceID, mode, types.BasisTag), nil
		}
	}

	d := types.Decision{HasAccess: mode.DefaultAllows(), DeviceID: deviceID, Mode: mode, Basis: types.BasisDefault}
	if !d.HasAccess {
		d.Reason = "device is not in the technician's allowed devices"
	}
	return d, nil
}

func ruleDecision(r types.Restriction, deviceID int64, mode types.ListMode, basis types.DecisionBasis) types.Decision {
	d := types.Decision{
		HasAccess:     r.AccessType == types.AccessAllow,
		DeviceID:      deviceID,
		Mode:          mode,
		Basis:         basis,
		RestrictionID: r.ID,
	}
	if !d.HasAccess {
		if basis == types.BasisTag {
			d.Reason = fmt.Sprintf("device is denied by tag restriction %d", r.ID)
		} else {
			d.Reason = fmt.Sprintf("device is denied by restriction %d", r.ID)
		}
	}
	return d
}
