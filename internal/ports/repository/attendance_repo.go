package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attendance.service/internal/core/model"
)

const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx so the same statements can
// run inside and outside a punch transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AttendanceRepository is the concrete implementation for a PostgreSQL
// database. The attendance_records table carries a unique index on
// (employee_id, att_date).
type AttendanceRepository struct {
	DB *sql.DB
	pgStore
}

// NewAttendanceRepository create new instance
func NewAttendanceRepository(db *sql.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db, pgStore: pgStore{q: db}}
}

// PunchTx runs fn inside a transaction whose reads lock the (employee, date)
// row, so only one concurrent punch observes a given state at decision time.
func (r *AttendanceRepository) PunchTx(ctx context.Context, employeeID string, date time.Time, fn func(Store) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin punch transaction: %w", err)
	}

	if err := fn(pgStore{q: tx, forUpdate: true}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit punch transaction: %w", err)
	}
	return nil
}

// ListByEmployeeAndMonth returns the employee's records for one month,
// newest date first.
func (r *AttendanceRepository) ListByEmployeeAndMonth(ctx context.Context, employeeID string, month time.Month, year int) ([]model.AttendanceRecord, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", employeeID))

	query := `SELECT id, employee_id, att_date, punch_in_time, punch_out_time,
	                 export_status, export_retry_count, email_status, email_retry_count
	          FROM attendance_records
	          WHERE employee_id = $1
	            AND att_date >= $2 AND att_date < $3
	          ORDER BY att_date DESC`

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	rows, err := r.DB.QueryContext(ctx, query, employeeID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// GetByID fetches a complete attendance record by its ID.
func (r *AttendanceRepository) GetByID(ctx context.Context, id int64) (*model.AttendanceRecord, error) {
	query := `SELECT id, employee_id, att_date, punch_in_time, punch_out_time,
	                 export_status, export_retry_count, email_status, email_retry_count
	          FROM attendance_records WHERE id = $1`

	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateExportStatus updates the status and retry count for a payroll export job.
func (r *AttendanceRepository) UpdateExportStatus(ctx context.Context, id int64, status model.ExportStatus, retryCount int) error {
	query := `UPDATE attendance_records SET export_status = $1, export_retry_count = $2 WHERE id = $3`
	_, err := r.DB.ExecContext(ctx, query, status, retryCount, id)
	return err
}

// UpdateEmailStatus updates the status and retry count for a summary email job.
func (r *AttendanceRepository) UpdateEmailStatus(ctx context.Context, id int64, status model.EmailStatus, retryCount int) error {
	query := `UPDATE attendance_records SET email_status = $1, email_retry_count = $2 WHERE id = $3`
	_, err := r.DB.ExecContext(ctx, query, status, retryCount, id)
	return err
}

// pgStore implements Store against either the pool or an open transaction.
type pgStore struct {
	q         querier
	forUpdate bool
}

// FindByEmployeeAndDate loads the single record for the key, locking it when
// running inside a punch transaction.
func (s pgStore) FindByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*model.AttendanceRecord, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", employeeID))

	query := `SELECT id, employee_id, att_date, punch_in_time, punch_out_time,
	                 export_status, export_retry_count, email_status, email_retry_count
	          FROM attendance_records
	          WHERE employee_id = $1 AND att_date = $2`
	if s.forUpdate {
		query += " FOR UPDATE"
	}

	rec, err := scanRecord(s.q.QueryRowContext(ctx, query, employeeID, date.Format("2006-01-02")))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreatePunch inserts the first punch of the day. The unique index turns a
// create race into ErrDuplicateRecord for the loser.
func (s pgStore) CreatePunch(ctx context.Context, record *model.AttendanceRecord) (int64, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", record.EmployeeID))

	query := `INSERT INTO attendance_records
	              (employee_id, att_date, punch_in_time, punch_out_time,
	               export_status, export_retry_count, email_status, email_retry_count)
	          VALUES ($1, $2, $3, $4, $5, 0, $6, 0) RETURNING id`

	var id int64
	err := s.q.QueryRowContext(ctx, query,
		record.EmployeeID, record.Date.Format("2006-01-02"),
		record.PunchInTime, record.PunchOutTime,
		model.StatusExportPending, model.StatusEmailPending,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateRecord
		}
		return 0, err
	}

	record.ID = id
	return id, nil
}

// SetPunchOut closes the day on an existing record.
func (s pgStore) SetPunchOut(ctx context.Context, employeeID string, date time.Time, punchOut time.Time) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", employeeID))

	query := `UPDATE attendance_records
	          SET punch_out_time = $1
	          WHERE employee_id = $2 AND att_date = $3`

	res, err := s.q.ExecContext(ctx, query, punchOut, employeeID, date.Format("2006-01-02"))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.AttendanceRecord, error) {
	rec := &model.AttendanceRecord{}
	var punchIn, punchOut sql.NullTime

	err := row.Scan(&rec.ID, &rec.EmployeeID, &rec.Date, &punchIn, &punchOut,
		&rec.ExportStatus, &rec.ExportRetryCount, &rec.EmailStatus, &rec.EmailRetryCount)
	if err != nil {
		return nil, err
	}

	if punchIn.Valid {
		t := punchIn.Time
		rec.PunchInTime = &t
	}
	if punchOut.Valid {
		t := punchOut.Time
		rec.PunchOutTime = &t
	}
	return rec, nil
}
