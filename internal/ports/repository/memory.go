package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"attendance.service/internal/core/model"
)

// InMemoryRepository implements Repository with a mutex-guarded map. It backs
// unit tests and local development; production uses AttendanceRepository.
type InMemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	records  map[string]*model.AttendanceRecord
	keyLocks map[string]*sync.Mutex
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		nextID:   1,
		records:  make(map[string]*model.AttendanceRecord),
		keyLocks: make(map[string]*sync.Mutex),
	}
}

func recordKey(employeeID string, date time.Time) string {
	return employeeID + "|" + date.Format("2006-01-02")
}

// PunchTx serializes fn per (employeeID, date) key, mirroring the row lock
// the Postgres implementation takes.
func (r *InMemoryRepository) PunchTx(ctx context.Context, employeeID string, date time.Time, fn func(Store) error) error {
	lock := r.keyLock(recordKey(employeeID, date))
	lock.Lock()
	defer lock.Unlock()
	return fn(r)
}

func (r *InMemoryRepository) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.keyLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.keyLocks[key] = l
	return l
}

func (r *InMemoryRepository) FindByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*model.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[recordKey(employeeID, date)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *InMemoryRepository) CreatePunch(ctx context.Context, record *model.AttendanceRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey(record.EmployeeID, record.Date)
	if _, exists := r.records[key]; exists {
		return 0, ErrDuplicateRecord
	}

	record.ID = r.nextID
	r.nextID++
	if record.ExportStatus == "" {
		record.ExportStatus = model.StatusExportPending
	}
	if record.EmailStatus == "" {
		record.EmailStatus = model.StatusEmailPending
	}

	cp := *record
	r.records[key] = &cp
	return record.ID, nil
}

func (r *InMemoryRepository) SetPunchOut(ctx context.Context, employeeID string, date time.Time, punchOut time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[recordKey(employeeID, date)]
	if !ok {
		return ErrNotFound
	}
	t := punchOut
	rec.PunchOutTime = &t
	return nil
}

func (r *InMemoryRepository) ListByEmployeeAndMonth(ctx context.Context, employeeID string, month time.Month, year int) ([]model.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.AttendanceRecord
	for _, rec := range r.records {
		if rec.EmployeeID != employeeID {
			continue
		}
		if rec.Date.Year() != year || rec.Date.Month() != month {
			continue
		}
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id int64) (*model.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) UpdateExportStatus(ctx context.Context, id int64, status model.ExportStatus, retryCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.ID == id {
			rec.ExportStatus = status
			rec.ExportRetryCount = retryCount
			return nil
		}
	}
	return ErrNotFound
}

func (r *InMemoryRepository) UpdateEmailStatus(ctx context.Context, id int64, status model.EmailStatus, retryCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.ID == id {
			rec.EmailStatus = status
			rec.EmailRetryCount = retryCount
			return nil
		}
	}
	return ErrNotFound
}
