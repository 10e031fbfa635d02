package types

type Technician struct {
	ID         int64
	ResellerID *int64
	Status     Status
	DailyLimit int
}

type TagScope string

const (
	TagScopeGlobal   TagScope = "global"
	TagScopeReseller TagScope = "reseller"
	TagScopeUser     TagScope = "user"
)

type EntityType string

const (
	EntityDevice     EntityType = "device"
	EntityTechnician EntityType = "technician"
	EntityReseller   EntityType = "reseller"
	EntityUser       EntityType = "user"
)

type Tag struct {
	ID    int64
	Name  string
	Scope TagScope
}

// TagItem binds an entity to a tag. Only device items take part in restriction expansion.
type TagItem struct {
	TagID      int64
	EntityType EntityType
	EntityID   int64
}

type Device struct {
	ID   int64
	IMEI string
}
