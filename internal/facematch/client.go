package facematch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"attendance.service/internal/core/model"
)

// Oracle is the external face-recognition capability. It is consulted as a
// black box returning a verdict; the embedding algorithm is out of scope.
type Oracle interface {
	CheckEnrolled(ctx context.Context, employeeID string) (bool, error)
	Register(ctx context.Context, employeeID string, image []byte) (RegisterResult, error)
	Match(ctx context.Context, employeeID string, image []byte, direction model.PunchDirection) (MatchResult, error)
}

// MatchResult is the oracle's verdict. Matched=false is a valid business
// result, not a transport failure.
type MatchResult struct {
	Matched bool   `json:"matched"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// RegisterResult is the outcome of a template enrollment. Re-registration
// overwrites the stored template, it never appends.
type RegisterResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TransportError marks a retryable network-level failure talking to the face
// process.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("face service transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError marks a non-JSON or otherwise unparseable response.
// Not retryable; surfaced to the user.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("face service returned malformed response: %v", e.Err)
}
func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Client talks to the face-recognition process over HTTP, behind a circuit
// breaker so a struggling recognizer does not get hammered.
type Client struct {
	client  *http.Client
	baseURL string
	cb      *gobreaker.CircuitBreaker
}

// NewClient new face service client for the given base URL.
func NewClient(baseURL string) *Client {
	settings := gobreaker.Settings{
		Name:        "Face-Service",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if failure rate is bigger then 50% after at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
	}

	return &Client{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// CheckEnrolled reports whether a face template already exists for the employee.
func (c *Client) CheckEnrolled(ctx context.Context, employeeID string) (bool, error) {
	var payload struct {
		Exists bool `json:"exists"`
	}
	url := fmt.Sprintf("%s/isAvailable/%s", c.baseURL, employeeID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return false, err
	}
	return payload.Exists, nil
}

// Register enrolls (or overwrites) the employee's face template.
func (c *Client) Register(ctx context.Context, employeeID string, image []byte) (RegisterResult, error) {
	var result RegisterResult
	url := fmt.Sprintf("%s/register/%s", c.baseURL, employeeID)
	if err := c.postImage(ctx, url, image, &result); err != nil {
		return RegisterResult{}, err
	}
	return result, nil
}

// Match verifies the image against the employee's stored template.
func (c *Client) Match(ctx context.Context, employeeID string, image []byte, direction model.PunchDirection) (MatchResult, error) {
	var result MatchResult
	url := fmt.Sprintf("%s/match/%s?direction=%s", c.baseURL, employeeID, strings.ToLower(string(direction)))
	if err := c.postImage(ctx, url, image, &result); err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create face service request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postImage(ctx context.Context, url string, image []byte, out interface{}) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", "capture.jpg")
	if err != nil {
		return fmt.Errorf("failed to build multipart payload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("failed to write image payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("failed to create face service request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req, out)
}

// do executes the request through the circuit breaker and decodes the JSON
// body. Business rejections (matched:false) come back as successful calls.
func (c *Client) do(req *http.Request, out interface{}) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, &TransportError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, &TransportError{Err: fmt.Errorf("face service returned status %d", resp.StatusCode)}
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransportError{Err: err}
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, &MalformedResponseError{Err: err}
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &TransportError{Err: err}
	}
	return err
}
