package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"attendance.service/internal/core/model"
)

// API is the slice of the attendance backend the coordinator talks to.
type API interface {
	MatchAndPunch(ctx context.Context, employeeID string, direction model.PunchDirection, image []byte, loc model.LocationSample) (MatchPunchResponse, error)
	History(ctx context.Context, employeeID string, month time.Month, year int) ([]model.AttendanceRecord, error)
}

// MatchPunchResponse is the server's verdict on a face-match punch attempt.
type MatchPunchResponse struct {
	Matched bool   `json:"matched"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// RetryableError marks a failure where resubmitting the same intent is safe:
// the server committed nothing.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// ServerRejectionError is a final server-side rejection of the punch attempt.
// Matched distinguishes a recognition failure from a matched-but-rejected
// punch (stale location, closed day); Message carries the server's reason.
type ServerRejectionError struct {
	StatusCode int
	Matched    bool
	Message    string
}

func (e *ServerRejectionError) Error() string {
	return fmt.Sprintf("server rejected punch (status %d): %s", e.StatusCode, e.Message)
}

// HTTPClient talks to the attendance backend.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient new HTTPClient. The timeout bounds a hung identity-proof
// upload so the UI can reset to a punchable state.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// MatchAndPunch uploads the capture and location proof; on a server-side
// match the punch is written in the same logical operation.
func (c *HTTPClient) MatchAndPunch(ctx context.Context, employeeID string, direction model.PunchDirection, image []byte, loc model.LocationSample) (MatchPunchResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", "capture.jpg")
	if err != nil {
		return MatchPunchResponse{}, fmt.Errorf("failed to build punch payload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return MatchPunchResponse{}, fmt.Errorf("failed to write image: %w", err)
	}
	_ = writer.WriteField("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	_ = writer.WriteField("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	_ = writer.WriteField("captured_at", loc.CapturedAt.Format(time.RFC3339))
	if err := writer.Close(); err != nil {
		return MatchPunchResponse{}, fmt.Errorf("failed to finalize punch payload: %w", err)
	}

	url := fmt.Sprintf("%s/face/match/%s?direction=%s", c.baseURL, employeeID, strings.ToLower(string(direction)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return MatchPunchResponse{}, fmt.Errorf("failed to create punch request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeout or connection failure: nothing is known to have committed.
		return MatchPunchResponse{}, &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return MatchPunchResponse{}, &RetryableError{Err: err}
	}
	if resp.StatusCode >= 500 {
		return MatchPunchResponse{}, &RetryableError{Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}

	var out MatchPunchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return MatchPunchResponse{}, fmt.Errorf("malformed punch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return MatchPunchResponse{}, &ServerRejectionError{
			StatusCode: resp.StatusCode,
			Matched:    out.Matched,
			Message:    out.Message,
		}
	}
	return out, nil
}

// History fetches the per-day records for one month. The backend uses
// 0-based months on this endpoint.
func (c *HTTPClient) History(ctx context.Context, employeeID string, month time.Month, year int) ([]model.AttendanceRecord, error) {
	url := fmt.Sprintf("%s/attendance/history?employeeID=%s&month=%d&year=%d",
		c.baseURL, employeeID, int(month)-1, year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create history request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request returned status %d", resp.StatusCode)
	}

	var records []model.AttendanceRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("malformed history response: %w", err)
	}
	return records, nil
}
