package types

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type AccessType string

const (
	AccessAllow AccessType = "allow"
	AccessDeny  AccessType = "deny"
)

func ParseAccessType(raw string) (AccessType, error) {
	switch AccessType(raw) {
	case AccessAllow, AccessDeny:
		return AccessType(raw), nil
	default:
		return "", fmt.Errorf("invalid access_type %q", raw)
	}
}

type TargetKind uint8

const (
	TargetDevice TargetKind = iota + 1
	TargetTag
)

func (k TargetKind) String() string {
	switch k {
	case TargetDevice:
		return "device"
	case TargetTag:
		return "tag"
	default:
		return "invalid"
	}
}

// Target is what a restriction points at: exactly one device or one tag.
// The zero value is not a valid target.
type Target struct {
	kind TargetKind
	id   int64
}

func DeviceTarget(deviceID int64) Target { return Target{kind: TargetDevice, id: deviceID} }

func TagTarget(tagID int64) Target { return Target{kind: TargetTag, id: tagID} }

var (
	errTargetBoth    = errors.New("restriction targets both a device and a tag")
	errTargetNeither = errors.New("restriction targets neither a device nor a tag")
)

// TargetFromColumns builds a Target from the nullable device_id / tag_id storage columns.
func TargetFromColumns(deviceID *int64, tagID *int64) (Target, error) {
	switch {
	case deviceID != nil && tagID != nil:
		return Target{}, errTargetBoth
	case deviceID != nil:
		return DeviceTarget(*deviceID), nil
	case tagID != nil:
		return TagTarget(*tagID), nil
	default:
		return Target{}, errTargetNeither
	}
}

func (t Target) Kind() TargetKind { return t.kind }

func (t Target) ID() int64 { return t.id }

func (t Target) Valid() bool { return t.kind == TargetDevice || t.kind == TargetTag }

// DeviceID returns the device id when the target is a device.
func (t Target) DeviceID() (int64, bool) {
	if t.kind != TargetDevice {
		return 0, false
	}
	return t.id, true
}

// TagID returns the tag id when the target is a tag.
func (t Target) TagID() (int64, bool) {
	if t.kind != TargetTag {
		return 0, false
	}
	return t.id, true
}

// Columns is the inverse of TargetFromColumns.
func (t Target) Columns() (deviceID *int64, tagID *int64) {
	id := t.id
	switch t.kind {
	case TargetDevice:
		return &id, nil
	case TargetTag:
		return nil, &id
	default:
		return nil, nil
	}
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.kind, t.id)
}

// Restriction is a single allow/deny rule of one technician.
// Priority is stored but not consulted by resolution; retrieval order decides ties.
type Restriction struct {
	ID           int64
	TechnicianID int64
	Target       Target
	AccessType   AccessType
	Priority     int
	IsPermanent  bool
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	Status       Status
}
