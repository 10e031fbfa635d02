package types

type ListMode string

const (
	ModeUnrestricted ListMode = "unrestricted"
	ModeAllowList    ListMode = "allow_list"
	ModeDenyList     ListMode = "deny_list"
)

// DefaultAllows reports the verdict for a device that matches no rule.
func (m ListMode) DefaultAllows() bool {
	return m != ModeAllowList
}

type DecisionBasis string

const (
	BasisUnrestricted DecisionBasis = "unrestricted"
	BasisDirect       DecisionBasis = "direct"
	BasisTag          DecisionBasis = "tag"
	BasisDefault      DecisionBasis = "default"
	BasisCumulative   DecisionBasis = "cumulative"
	BasisSuperAdmin   DecisionBasis = "super_admin"
)

type Decision struct {
	HasAccess     bool          `json:"has_access"`
	DeviceID      int64         `json:"device_id"`
	Reason        string        `json:"reason,omitempty"`
	Mode          ListMode      `json:"mode,omitempty"`
	Basis         DecisionBasis `json:"basis"`
	RestrictionID int64         `json:"restriction_id,omitempty"`
}
