package repository

import (
	"context"
	"errors"
	"time"

	"attendance.service/internal/core/model"
)

var (
	// ErrNotFound is returned when no record exists for the requested key.
	ErrNotFound = errors.New("attendance record not found")
	// ErrDuplicateRecord is returned when an insert collides with an existing
	// (employee_id, att_date) row.
	ErrDuplicateRecord = errors.New("attendance record already exists")
)

// Store is the read/write contract the state machine runs against, either
// directly or inside a punch transaction.
type Store interface {
	FindByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*model.AttendanceRecord, error)
	CreatePunch(ctx context.Context, record *model.AttendanceRecord) (int64, error)
	SetPunchOut(ctx context.Context, employeeID string, date time.Time, punchOut time.Time) error
}

// Repository is the full persistence contract. PunchTx serializes a
// read-modify-write per (employeeID, date) key; it is the only legal way to
// run a punch decision, and the state machine is the only writer path.
type Repository interface {
	Store

	PunchTx(ctx context.Context, employeeID string, date time.Time, fn func(Store) error) error
	ListByEmployeeAndMonth(ctx context.Context, employeeID string, month time.Month, year int) ([]model.AttendanceRecord, error)

	GetByID(ctx context.Context, id int64) (*model.AttendanceRecord, error)
	UpdateExportStatus(ctx context.Context, id int64, status model.ExportStatus, retryCount int) error
	UpdateEmailStatus(ctx context.Context, id int64, status model.EmailStatus, retryCount int) error
}

// DateKey normalizes a timestamp to its calendar-date key in the given
// reference timezone. Every punch-write, punch-read and history path must go
// through the same zone or "today" drifts between them.
func DateKey(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
