package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance.service/internal/core/model"
	"attendance.service/internal/ports/messaging"
	"attendance.service/internal/ports/repository"
)

type fakePayrollAPI struct {
	calls int
	err   error
}

func (f *fakePayrollAPI) RecordAttendance(_ context.Context, _ messaging.PayrollEvent) error {
	f.calls++
	return f.err
}

func seedRecord(t *testing.T, repo repository.Repository) *model.AttendanceRecord {
	t.Helper()
	punchIn := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	punchOut := time.Date(2024, 3, 11, 17, 0, 0, 0, time.UTC)
	rec := model.AttendanceRecord{
		EmployeeID:   "emp-1",
		Date:         time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		PunchInTime:  &punchIn,
		PunchOutTime: &punchOut,
	}
	_, err := repo.CreatePunch(context.Background(), &rec)
	require.NoError(t, err)
	return &rec
}

func payrollMessage(t *testing.T, rec *model.AttendanceRecord) types.Message {
	t.Helper()
	body, err := json.Marshal(messaging.PayrollEvent{
		AttendanceID: rec.ID,
		EmployeeID:   rec.EmployeeID,
		Date:         rec.Date.Format("2006-01-02"),
		HoursWorked:  rec.HoursWorked(),
		PunchOutTime: *rec.PunchOutTime,
	})
	require.NoError(t, err)
	s := string(body)
	return types.Message{Body: &s, MessageId: aws.String("msg-1")}
}

func TestProcess_Success(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	rec := seedRecord(t, repo)
	api := &fakePayrollAPI{}
	p := NewProcessor(repo, api)

	retry, delay, err := p.Process(context.Background(), payrollMessage(t, rec))

	require.NoError(t, err)
	assert.False(t, retry)
	assert.Zero(t, delay)
	assert.Equal(t, 1, api.calls)

	updated, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExportCompleted, updated.ExportStatus)
	assert.Zero(t, updated.ExportRetryCount)
}

func TestProcess_SkipsAlreadyExported(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	rec := seedRecord(t, repo)
	require.NoError(t, repo.UpdateExportStatus(context.Background(), rec.ID, model.StatusExportCompleted, 0))

	api := &fakePayrollAPI{}
	p := NewProcessor(repo, api)

	retry, _, err := p.Process(context.Background(), payrollMessage(t, rec))

	require.NoError(t, err)
	assert.False(t, retry)
	assert.Zero(t, api.calls, "completed export must not call the payroll API again")
}

func TestProcess_APIFailureSchedulesRetryWithBackoff(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	rec := seedRecord(t, repo)
	api := &fakePayrollAPI{err: errors.New("payroll api returned non-successful status code: 503")}
	p := NewProcessor(repo, api)

	msg := payrollMessage(t, rec)

	retry, delay, err := p.Process(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, retry)
	assert.Equal(t, int32(20), delay) // 2^1 * 10

	retry, delay, err = p.Process(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, retry)
	assert.Equal(t, int32(40), delay) // 2^2 * 10

	updated, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExportPending, updated.ExportStatus)
	assert.Equal(t, 2, updated.ExportRetryCount)
}

func TestProcess_MalformedMessageIsNotRetried(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	p := NewProcessor(repo, &fakePayrollAPI{})

	body := "{not json"
	retry, _, err := p.Process(context.Background(), types.Message{Body: &body, MessageId: aws.String("msg-bad")})

	require.Error(t, err)
	assert.False(t, retry)
}

func TestCalculateBackoff_CapsAtOneHour(t *testing.T) {
	assert.Equal(t, int32(20), calculateBackoff(1))
	assert.Equal(t, int32(80), calculateBackoff(3))
	assert.Equal(t, int32(3600), calculateBackoff(12))
}
