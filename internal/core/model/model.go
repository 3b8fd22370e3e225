package model

import (
	"time"
)

// PunchDirection is the half of an attendance session a client is asserting.
type PunchDirection string

const (
	DirectionIn  PunchDirection = "IN"
	DirectionOut PunchDirection = "OUT"
)

// PunchState is the lifecycle state of an attendance record for one day.
type PunchState string

const (
	StateNoRecord            PunchState = "NO_RECORD"
	StatePunchedIn           PunchState = "PUNCHED_IN"
	StateCompleted           PunchState = "COMPLETED"
	StatePunchedOutWithoutIn PunchState = "PUNCHED_OUT_WITHOUT_IN"
)

// ExportStatus defines the state of the payroll export processing.
type ExportStatus string

const (
	StatusExportPending    ExportStatus = "PENDING"
	StatusExportProcessing ExportStatus = "PROCESSING"
	StatusExportCompleted  ExportStatus = "COMPLETED"
	StatusExportFailed     ExportStatus = "FAILED"
)

// EmailStatus defines the state of the summary email processing.
type EmailStatus string

const (
	StatusEmailPending    EmailStatus = "PENDING"
	StatusEmailProcessing EmailStatus = "PROCESSING"
	StatusEmailCompleted  EmailStatus = "COMPLETED"
	StatusEmailFailed     EmailStatus = "FAILED"
)

// AttendanceRecord is the single row per (employee, calendar date). Date is
// midnight in the service's reference timezone. PunchOutTime, once set, is
// never cleared; a new day always means a new record.
type AttendanceRecord struct {
	ID               int64        `json:"id"`
	EmployeeID       string       `json:"employeeId"`
	Date             time.Time    `json:"date"`
	PunchInTime      *time.Time   `json:"punchInTime,omitempty"`
	PunchOutTime     *time.Time   `json:"punchOutTime,omitempty"`
	ExportStatus     ExportStatus `json:"exportStatus"`
	ExportRetryCount int          `json:"exportRetryCount"`
	EmailStatus      EmailStatus  `json:"emailStatus"`
	EmailRetryCount  int          `json:"emailRetryCount"`
}

// State derives the punch state from which time fields are set.
func (r *AttendanceRecord) State() PunchState {
	switch {
	case r == nil:
		return StateNoRecord
	case r.PunchInTime == nil && r.PunchOutTime == nil:
		return StateNoRecord
	case r.PunchOutTime == nil:
		return StatePunchedIn
	case r.PunchInTime == nil:
		return StatePunchedOutWithoutIn
	default:
		return StateCompleted
	}
}

// HoursWorked is the worked duration in hours, zero unless both punches exist.
func (r *AttendanceRecord) HoursWorked() float64 {
	if r.PunchInTime == nil || r.PunchOutTime == nil {
		return 0
	}
	return r.PunchOutTime.Sub(*r.PunchInTime).Hours()
}

// LocationSample is one client-observed position. Ephemeral; each new sample
// supersedes the previous one.
type LocationSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CapturedAt time.Time `json:"capturedAt"`
}

// OfficeGeofence is the circular boundary punches must originate from.
// Static configuration, read-only to the core.
type OfficeGeofence struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// IdentityProof records how the punching individual was authenticated before
// the intent reached the state machine.
type IdentityProof struct {
	Method   string
	Verified bool
}

// PunchIntent is one punch request. (EmployeeID, date, Direction) is the
// idempotency key: retrying the same intent never creates a second record or
// a second time value.
type PunchIntent struct {
	EmployeeID      string
	Direction       PunchDirection
	ClientTimestamp time.Time
	Location        *LocationSample
	Proof           IdentityProof
}
