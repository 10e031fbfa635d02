package services

import "github.com/jacksonlee411/fleet-console/modules/access/domain/types"

// InferMode classifies an already filtered restriction set. A single allow row is enough
// to make unmatched devices default to deny, even when deny rows are present.
func InferMode(active []types.Restriction) types.ListMode {
	if len(active) == 0 {
		return types.ModeUnrestricted
	}
	for _, r := range active {
		if r.AccessType == types.AccessAllow {
			return types.ModeAllowList
		}
	}
	return types.ModeDenyList
}
