package types

// Capability is what the caller is allowed to act as. It is decided once at the
// transport boundary; the engine never inspects role names.
type Capability interface {
	SubjectKind() string
	capability()
}

type TechnicianCapability struct {
	TechnicianID int64
}

// ResellerAdminCapability sees the cumulative view over the reseller's technicians.
type ResellerAdminCapability struct {
	UserID     int64
	ResellerID int64
}

// SuperAdminCapability is not bound to a reseller and is permitted every device.
type SuperAdminCapability struct {
	UserID int64
}

func (TechnicianCapability) SubjectKind() string    { return "technician" }
func (ResellerAdminCapability) SubjectKind() string { return "reseller_admin" }
func (SuperAdminCapability) SubjectKind() string    { return "super_admin" }

func (TechnicianCapability) capability()    {}
func (ResellerAdminCapability) capability() {}
func (SuperAdminCapability) capability()    {}
