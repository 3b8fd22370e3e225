package email

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

type fakeEmailService struct {
	sentTo []string
	err    error
}

func (f *fakeEmailService) SendAttendanceSummary(_ context.Context, to string, _ float64) error {
	f.sentTo = append(f.sentTo, to)
	return f.err
}

func seedRecord(t *testing.T, repo repository.Repository) *model.AttendanceRecord {
	t.Helper()
	punchIn := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	punchOut := time.Date(2024, 3, 11, 17, 30, 0, 0, time.UTC)
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

func emailMessage(t *testing.T, rec *model.AttendanceRecord) types.Message {
	t.Helper()
	body, err := json.Marshal(messaging.EmailEvent{
		AttendanceID: rec.ID,
		EmployeeID:   rec.EmployeeID,
		HoursWorked:  rec.HoursWorked(),
		OccurredAt:   *rec.PunchOutTime,
	})
	require.NoError(t, err)
	s := string(body)
	return types.Message{Body: &s, MessageId: aws.String("msg-1")}
}

func TestProcess_SendsSummaryEmail(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	rec := seedRecord(t, repo)
	svc := &fakeEmailService{}
	p := NewProcessor(svc, repo)

	retry, _, err := p.Process(context.Background(), emailMessage(t, rec))

	require.NoError(t, err)
	assert.False(t, retry)
	require.Len(t, svc.sentTo, 1)
	assert.Equal(t, "emp-1@company.com", svc.sentTo[0])

	updated, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEmailCompleted, updated.EmailStatus)
}

func TestProcess_SkipsWhenAlreadySent(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	rec := seedRecord(t, repo)
	require.NoError(t, repo.UpdateEmailStatus(context.Background(), rec.ID, model.StatusEmailCompleted, 0))

	svc := &fakeEmailService{}
	p := NewProcessor(svc, repo)

	retry, _, err := p.Process(context.Background(), emailMessage(t, rec))

	require.NoError(t, err)
	assert.False(t, retry)
	assert.Empty(t, svc.sentTo, "duplicate delivery must not send a second email")
}

func TestProcess_SendFailureSchedulesRetry(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	rec := seedRecord(t, repo)
	svc := &fakeEmailService{err: errors.New("ses throttled")}
	p := NewProcessor(svc, repo)

	retry, delay, err := p.Process(context.Background(), emailMessage(t, rec))

	require.Error(t, err)
	assert.True(t, retry)
	assert.Equal(t, int32(20), delay)

	updated, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEmailPending, updated.EmailStatus)
	assert.Equal(t, 1, updated.EmailRetryCount)
}

func TestProcess_MalformedMessageIsNotRetried(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	p := NewProcessor(&fakeEmailService{}, repo)

	body := "not even json"
	retry, _, err := p.Process(context.Background(), types.Message{Body: &body, MessageId: aws.String("msg-bad")})

	require.Error(t, err)
	assert.False(t, retry)
}
