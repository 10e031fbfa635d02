package types

import "time"

// AdminSubjectID is the technician id recorded for administrative verifications.
// Admin rows are deduplicated by device only: two admins verifying the same device
// inside the gap window share one row.
const AdminSubjectID int64 = 0

type VerificationStatus string

const (
	VerificationPassed VerificationStatus = "passed"
	VerificationFailed VerificationStatus = "failed"
)

type GPSSnapshot struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

type VerificationPayload struct {
	Status      VerificationStatus
	Notes       string
	GPS         *GPSSnapshot
	ActorUserID *int64
}

type VerificationLog struct {
	ID           int64              `json:"id"`
	TechnicianID int64              `json:"technician_id"`
	DeviceID     int64              `json:"device_id"`
	VerifiedAt   time.Time          `json:"verified_at"`
	Status       VerificationStatus `json:"status"`
	Notes        string             `json:"notes"`
	GPS          *GPSSnapshot       `json:"gps,omitempty"`
	ActorUserID  *int64             `json:"actor_user_id,omitempty"`
}

// Apply overwrites the mutable fields of an existing log.
func (l *VerificationLog) Apply(p VerificationPayload, at time.Time) {
	l.Status = p.Status
	l.Notes = p.Notes
	l.GPS = p.GPS
	l.ActorUserID = p.ActorUserID
	l.VerifiedAt = at
}

type AuditEvent struct {
	ID          string
	SubjectKind string
	SubjectID   int64
	ResellerID  *int64
	IMEI        string
	DeviceID    int64
	Basis       DecisionBasis
	Reason      string
	OccurredAt  time.Time
}
