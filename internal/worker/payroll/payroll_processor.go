package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"attendance.service/internal/core/model"
	"attendance.service/internal/ports/messaging"
	"attendance.service/internal/ports/repository"
	"attendance.service/internal/worker/payrollapi"
)

// PayrollProcessor handles jobs from the payroll queue, which involves calling
// the payroll export API. It uses a circuit breaker to avoid hammering the
// payroll system if it's having issues.
type PayrollProcessor struct {
	Repo       repository.Repository
	payrollAPI payrollapi.PayrollAPIClient
	cb         *gobreaker.CircuitBreaker
}

// NewProcessor creates a new processor for the payroll queue. It sets up a
// circuit breaker to protect the payroll API from being overwhelmed.
func NewProcessor(r repository.Repository, client payrollapi.PayrollAPIClient) *PayrollProcessor {
	settings := gobreaker.Settings{
		Name:        "Payroll-API",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if failure rate is bigger then 50% after at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
	}

	return &PayrollProcessor{
		Repo:       r,
		payrollAPI: client,
		cb:         gobreaker.NewCircuitBreaker(settings),
	}
}

// Process handles one message from the payroll queue. It calls the payroll API
// through the circuit breaker and schedules retries with exponential backoff.
func (p *PayrollProcessor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var event messaging.PayrollEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal payroll event")
		return false, 0, err // Do not retry on malformed message
	}

	log.Ctx(ctx).Info().
		Str("employee_id", event.EmployeeID).
		Float64("hours", event.HoursWorked).
		Msg("Processing payroll export")

	record, err := p.Repo.GetByID(ctx, event.AttendanceID)
	if err != nil {
		return true, 10, fmt.Errorf("failed to get record from db: %w", err)
	}

	// Redelivered message for an already exported day; ack and move on.
	if record.ExportStatus == model.StatusExportCompleted {
		return false, 0, nil
	}

	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.payrollAPI.RecordAttendance(ctx, event)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			log.Ctx(ctx).Warn().Msg("Circuit Breaker is OPEN; skipping payroll API call")
		}
		newCount := record.ExportRetryCount + 1
		p.Repo.UpdateExportStatus(ctx, event.AttendanceID, model.StatusExportPending, newCount)

		delay := calculateBackoff(newCount)
		return true, delay, err
	}

	err = p.Repo.UpdateExportStatus(ctx, event.AttendanceID, model.StatusExportCompleted, 0)
	return false, 0, err
}

// calculateBackoff determines how long to wait before retrying a failed job.
// It increases the delay exponentially with each retry.
func calculateBackoff(retryCount int) int32 {
	backoff := int32(math.Pow(2, float64(retryCount)) * 10)
	if backoff > 3600 {
		return 3600 // max at 1 hour
	}
	return backoff
}
