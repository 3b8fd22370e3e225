package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"attendance.service/internal/core/model"
	"attendance.service/internal/geofence"
	"attendance.service/internal/ports/messaging"
	"attendance.service/internal/ports/repository"
)

// Rejection reasons surfaced verbatim to the client.
const (
	MsgPunchInRecorded     = "punch-in recorded"
	MsgPunchOutRecorded    = "punch-out recorded"
	MsgPunchOutWithoutIn   = "punch-out recorded; no punch-in found for today"
	MsgAlreadyPunchedIn    = "punch-in already recorded for today"
	MsgAlreadyCompleted    = "attendance already completed for today"
	MsgOutsideGeofence     = "location is outside the office geofence"
	MsgStaleLocation       = "location sample is stale; refresh location and try again"
	MsgIdentityNotVerified = "identity proof failed; punch not recorded"
)

// Config is the immutable configuration the state machine is constructed
// with. Office location and timezone are passed in explicitly so multi-tenant
// offices and deterministic tests stay possible.
type Config struct {
	Geofence model.OfficeGeofence
	// PunchFreshness is the maximum location sample age accepted at punch
	// time. The boundary is closed: a sample aged exactly this much is fresh.
	PunchFreshness time.Duration
	// Timezone is the single reference timezone for "calendar date" across
	// punch-write, punch-read and history paths.
	Timezone *time.Location
}

// PunchResult is the authoritative outcome the client reconciles its local
// state from.
type PunchResult struct {
	Record  model.AttendanceRecord
	State   model.PunchState
	Message string
	// MissingPunchIn flags the degenerate punch-out-without-punch-in path so
	// the client can tell the user the in-time is missing.
	MissingPunchIn bool
}

// AttendanceService is the punch state machine. It is the only writer path
// for attendance records.
type AttendanceService struct {
	repo     repository.Repository
	producer messaging.Publisher
	cfg      Config
	now      func() time.Time
}

// NewAttendanceService wires the state machine with its repository, the event
// producer for completed days, and its static configuration.
func NewAttendanceService(repo repository.Repository, producer messaging.Publisher, cfg Config) *AttendanceService {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &AttendanceService{
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ProcessPunch validates the intent's preconditions, then runs the state
// transition inside a per-(employee, date) transaction. Preconditions that
// fail reject the punch without touching storage.
func (s *AttendanceService) ProcessPunch(ctx context.Context, intent model.PunchIntent) (*PunchResult, error) {
	if err := s.checkPreconditions(intent); err != nil {
		return nil, err
	}

	now := s.now().In(s.cfg.Timezone)
	date := repository.DateKey(now, s.cfg.Timezone)

	var result *PunchResult
	err := s.repo.PunchTx(ctx, intent.EmployeeID, date, func(store repository.Store) error {
		record, err := store.FindByEmployeeAndDate(ctx, intent.EmployeeID, date)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return ErrTransient(DomainAttendance, "failed to read attendance record", err)
		}

		result, err = s.transition(ctx, store, record, intent.EmployeeID, intent.Direction, date, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.State == model.StateCompleted {
		s.publishCompleted(ctx, result.Record)
	}
	return result, nil
}

// checkPreconditions enforces geofence, freshness and identity proof before
// any transition is attempted.
func (s *AttendanceService) checkPreconditions(intent model.PunchIntent) error {
	if intent.EmployeeID == "" {
		return ErrValidation("employeeID is required")
	}
	if intent.Direction != model.DirectionIn && intent.Direction != model.DirectionOut {
		return ErrValidation("direction must be IN or OUT")
	}
	if intent.Location == nil {
		return ErrValidation("location sample is required")
	}

	age := s.now().Sub(intent.Location.CapturedAt)
	if age > s.cfg.PunchFreshness {
		return ErrBusiness(DomainLocation, MsgStaleLocation)
	}
	if !geofence.IsWithin(*intent.Location, s.cfg.Geofence) {
		return ErrBusiness(DomainLocation, MsgOutsideGeofence)
	}
	if !intent.Proof.Verified {
		return ErrBusiness(DomainIdentity, MsgIdentityNotVerified)
	}
	return nil
}

// transition applies one punch to the current state. It runs with the
// (employee, date) key locked.
func (s *AttendanceService) transition(ctx context.Context, store repository.Store, record *model.AttendanceRecord, employeeID string, direction model.PunchDirection, date, now time.Time) (*PunchResult, error) {
	switch state := record.State(); state {
	case model.StateNoRecord:
		return s.createFirstPunch(ctx, store, employeeID, direction, date, now)

	case model.StatePunchedIn:
		if direction == model.DirectionIn {
			return nil, ErrBusiness(DomainAttendance, MsgAlreadyPunchedIn)
		}
		if err := store.SetPunchOut(ctx, record.EmployeeID, date, now); err != nil {
			return nil, ErrTransient(DomainAttendance, "failed to update punch-out record", err)
		}
		record.PunchOutTime = &now
		return &PunchResult{Record: *record, State: model.StateCompleted, Message: MsgPunchOutRecorded}, nil

	default:
		// Completed and PunchedOutWithoutIn are both terminal for the day.
		return nil, ErrBusiness(DomainAttendance, MsgAlreadyCompleted)
	}
}

func (s *AttendanceService) createFirstPunch(ctx context.Context, store repository.Store, employeeID string, direction model.PunchDirection, date, now time.Time) (*PunchResult, error) {
	rec := model.AttendanceRecord{EmployeeID: employeeID, Date: date}
	result := PunchResult{}

	switch direction {
	case model.DirectionIn:
		rec.PunchInTime = &now
		result.State = model.StatePunchedIn
		result.Message = MsgPunchInRecorded
	case model.DirectionOut:
		// Missed punch-in: recorded, terminal for the day, flagged.
		rec.PunchOutTime = &now
		result.State = model.StatePunchedOutWithoutIn
		result.Message = MsgPunchOutWithoutIn
		result.MissingPunchIn = true
	}

	if _, err := store.CreatePunch(ctx, &rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateRecord) {
			// Lost a create race: the other intent already holds the day.
			return nil, ErrBusiness(DomainAttendance, MsgAlreadyPunchedIn)
		}
		return nil, ErrTransient(DomainAttendance, "failed to create attendance record", err)
	}

	result.Record = rec
	return &result, nil
}

// publishCompleted emits payroll and email events for a completed day.
// Publishing failure is logged, never surfaced: the punch already committed.
func (s *AttendanceService) publishCompleted(ctx context.Context, record model.AttendanceRecord) {
	hours := record.HoursWorked()

	payrollEvent := messaging.PayrollEvent{
		AttendanceID: record.ID,
		EmployeeID:   record.EmployeeID,
		Date:         record.Date.Format("2006-01-02"),
		HoursWorked:  hours,
		PunchOutTime: *record.PunchOutTime,
	}
	if err := s.producer.PublishPayroll(ctx, payrollEvent); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("attendance_id", record.ID).Msg("Failed to publish payroll event")
	}

	emailEvent := messaging.EmailEvent{
		AttendanceID: record.ID,
		EmployeeID:   record.EmployeeID,
		HoursWorked:  hours,
		OccurredAt:   s.now(),
	}
	if err := s.producer.PublishEmail(ctx, emailEvent); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("attendance_id", record.ID).Msg("Failed to publish email event")
	}
}

// Location exposes the reference timezone so the API layer parses calendar
// dates in the same zone the state machine writes them in.
func (s *AttendanceService) Location() *time.Location {
	return s.cfg.Timezone
}

// GetByEmployeeAndDate reads one day's record for the attendance lookup
// endpoint. Missing records are reported via repository.ErrNotFound.
func (s *AttendanceService) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*model.AttendanceRecord, error) {
	return s.repo.FindByEmployeeAndDate(ctx, employeeID, repository.DateKey(date, s.cfg.Timezone))
}

// History lists an employee's records for one month, newest first.
func (s *AttendanceService) History(ctx context.Context, employeeID string, month time.Month, year int) ([]model.AttendanceRecord, error) {
	return s.repo.ListByEmployeeAndMonth(ctx, employeeID, month, year)
}
