package authz

const (
	RoleAnonymous     = "anonymous"
	RoleTechnician    = "technician"
	RoleResellerAdmin = "reseller-admin"
	RoleSuperadmin    = "superadmin"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

const DomainGlobal = "global"

const (
	ObjectDeviceAccess        = "device.access"
	ObjectDeviceVerifications = "device.verifications"
)
