package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"attendance.service/internal/core"
	"attendance.service/internal/core/model"
	"attendance.service/internal/facematch"
	"attendance.service/internal/metrics"
	"attendance.service/internal/ports/repository"
)

const maxImageBytes = 10 << 20

var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type AttendanceHandler struct {
	Service *core.AttendanceService
	Oracle  facematch.Oracle
	Metrics *metrics.Metrics
}

// PunchRequest is the POST /attendance/punch body. Exactly one of the two
// time fields must be present; which one asserts the direction. The server
// records its own clock, not the client-supplied time value.
type PunchRequest struct {
	EmployeeID        string   `json:"employeeID"`
	Date              string   `json:"date"`
	PunchInTime       *string  `json:"punch_in_time,omitempty"`
	PunchOutTime      *string  `json:"punch_out_time,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	LocationCaptured  *string  `json:"location_captured_at,omitempty"`
	BiometricVerified bool     `json:"biometric_verified,omitempty"`
}

// PunchResponse is the uniform punch envelope.
type PunchResponse struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}

type attendanceTimes struct {
	PunchInTime  *string `json:"punch_in_time"`
	PunchOutTime *string `json:"punch_out_time"`
}

type historyEntry struct {
	Date         string  `json:"date"`
	PunchInTime  *string `json:"punchInTime"`
	PunchOutTime *string `json:"punchOutTime"`
}

type matchResponse struct {
	Matched bool   `json:"matched"`
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// Punch handles POST /attendance/punch.
func (h *AttendanceHandler) Punch(w http.ResponseWriter, r *http.Request) {
	var req PunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePunch(w, http.StatusBadRequest, false, "invalid request body")
		return
	}

	if req.EmployeeID == "" {
		writePunch(w, http.StatusBadRequest, false, "employeeID is required")
		return
	}
	if !dateFormat.MatchString(req.Date) {
		writePunch(w, http.StatusBadRequest, false, "date must match YYYY-MM-DD")
		return
	}
	if (req.PunchInTime == nil) == (req.PunchOutTime == nil) {
		writePunch(w, http.StatusBadRequest, false, "exactly one of punch_in_time and punch_out_time must be present")
		return
	}

	// The server's own clock decides "today"; a skewed client date is
	// rejected rather than silently reinterpreted.
	today := time.Now().In(h.Service.Location()).Format("2006-01-02")
	if req.Date != today {
		writePunch(w, http.StatusBadRequest, false, "date does not match the server calendar date")
		return
	}

	direction := model.DirectionIn
	if req.PunchOutTime != nil {
		direction = model.DirectionOut
	}

	intent := model.PunchIntent{
		EmployeeID:      req.EmployeeID,
		Direction:       direction,
		ClientTimestamp: time.Now(),
		Location:        locationFromPunch(req),
		Proof:           model.IdentityProof{Method: "biometric", Verified: req.BiometricVerified},
	}

	result, err := h.Service.ProcessPunch(r.Context(), intent)
	if err != nil {
		h.rejectPunch(w, r, err)
		return
	}

	h.Metrics.PunchesAccepted.WithLabelValues(strings.ToLower(string(direction))).Inc()
	writePunch(w, http.StatusOK, true, result.Message)
}

// GetAttendance handles GET /attendance?employeeID=&date=.
func (h *AttendanceHandler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employeeID")
	date := r.URL.Query().Get("date")

	if employeeID == "" {
		http.Error(w, "employeeID is required", http.StatusBadRequest)
		return
	}
	if !dateFormat.MatchString(date) {
		http.Error(w, "date must match YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	day, err := time.ParseInLocation("2006-01-02", date, h.Service.Location())
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	record, err := h.Service.GetByEmployeeAndDate(r.Context(), employeeID, day)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// No record yet: both times are null, not an error.
			writeJSON(w, http.StatusOK, attendanceTimes{})
			return
		}
		http.Error(w, "failed to read attendance record", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, attendanceTimes{
		PunchInTime:  clockString(record.PunchInTime),
		PunchOutTime: clockString(record.PunchOutTime),
	})
}

// GetHistory handles GET /attendance/history?employeeID=&month=0-11&year=.
func (h *AttendanceHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employeeID")
	if employeeID == "" {
		http.Error(w, "employeeID is required", http.StatusBadRequest)
		return
	}

	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 0 || month > 11 {
		http.Error(w, "month must be between 0 and 11", http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 1970 {
		http.Error(w, "year is invalid", http.StatusBadRequest)
		return
	}

	records, err := h.Service.History(r.Context(), employeeID, time.Month(month+1), year)
	if err != nil {
		http.Error(w, "failed to read attendance history", http.StatusInternalServerError)
		return
	}

	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			Date:         rec.Date.Format("2006-01-02"),
			PunchInTime:  clockString(rec.PunchInTime),
			PunchOutTime: clockString(rec.PunchOutTime),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// FaceAvailable handles GET /face/isAvailable/{userId}.
func (h *AttendanceHandler) FaceAvailable(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	exists, err := h.Oracle.CheckEnrolled(r.Context(), userID)
	if err != nil {
		h.writeOracleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// FaceRegister handles POST /face/register/{userId}.
func (h *AttendanceHandler) FaceRegister(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	image, ok := h.readImage(w, r)
	if !ok {
		return
	}

	result, err := h.Oracle.Register(r.Context(), userID, image)
	if err != nil {
		h.writeOracleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": result.Success, "message": result.Message})
}

// FaceMatch handles POST /face/match/{userId}?direction=. On a match, the
// punch write happens as part of the same logical operation.
func (h *AttendanceHandler) FaceMatch(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	direction, ok := parseDirection(r.URL.Query().Get("direction"))
	if !ok {
		http.Error(w, "direction must be in or out", http.StatusBadRequest)
		return
	}

	image, ok := h.readImage(w, r)
	if !ok {
		return
	}

	match, err := h.Oracle.Match(r.Context(), userID, image, direction)
	if err != nil {
		h.writeOracleError(w, r, err)
		return
	}
	if !match.Matched {
		h.Metrics.FaceMatches.WithLabelValues("not_matched").Inc()
		writeJSON(w, http.StatusUnauthorized, matchResponse{Matched: false, Message: match.Message})
		return
	}
	h.Metrics.FaceMatches.WithLabelValues("matched").Inc()

	intent := model.PunchIntent{
		EmployeeID:      userID,
		Direction:       direction,
		ClientTimestamp: time.Now(),
		Location:        locationFromForm(r),
		Proof:           model.IdentityProof{Method: "face", Verified: true},
	}

	result, err := h.Service.ProcessPunch(r.Context(), intent)
	if err != nil {
		// The face matched; the rejection message must keep its own domain
		// rather than reading as a recognition failure.
		status := statusForKind(core.KindOf(err))
		h.countRejection(err)
		writeJSON(w, status, matchResponse{Matched: true, Message: core.MessageOf(err), UserID: match.UserID})
		return
	}

	h.Metrics.PunchesAccepted.WithLabelValues(strings.ToLower(string(direction))).Inc()
	writeJSON(w, http.StatusOK, matchResponse{Matched: true, Message: result.Message, UserID: match.UserID})
}

func (h *AttendanceHandler) rejectPunch(w http.ResponseWriter, r *http.Request, err error) {
	h.countRejection(err)
	status := statusForKind(core.KindOf(err))
	if status >= http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Msg("Punch failed")
	}
	writePunch(w, status, false, core.MessageOf(err))
}

func (h *AttendanceHandler) countRejection(err error) {
	domain := core.DomainAttendance
	var ce *core.Error
	if errors.As(err, &ce) {
		domain = ce.Domain
	}
	h.Metrics.PunchesRejected.WithLabelValues(domain).Inc()
}

// writeOracleError maps the oracle failure taxonomy onto HTTP statuses:
// transport failures are retryable 5xx, malformed responses are surfaced as
// final 4xx.
func (h *AttendanceHandler) writeOracleError(w http.ResponseWriter, r *http.Request, err error) {
	var malformed *facematch.MalformedResponseError
	if errors.As(err, &malformed) {
		h.Metrics.FaceMatches.WithLabelValues("malformed").Inc()
		writeJSON(w, http.StatusBadRequest, matchResponse{Matched: false, Message: "face service returned an unreadable response"})
		return
	}

	h.Metrics.FaceMatches.WithLabelValues("transport_error").Inc()
	log.Ctx(r.Context()).Error().Err(err).Msg("Face service unreachable")
	writeJSON(w, http.StatusInternalServerError, matchResponse{Matched: false, Message: "face service unavailable, try again"})
}

func (h *AttendanceHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		http.Error(w, "expected multipart form with an image", http.StatusBadRequest)
		return nil, false
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image file is required", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		http.Error(w, "failed to read image", http.StatusBadRequest)
		return nil, false
	}
	return image, true
}

func locationFromPunch(req PunchRequest) *model.LocationSample {
	if req.Latitude == nil || req.Longitude == nil || req.LocationCaptured == nil {
		return nil
	}
	captured, err := time.Parse(time.RFC3339, *req.LocationCaptured)
	if err != nil {
		return nil
	}
	return &model.LocationSample{Latitude: *req.Latitude, Longitude: *req.Longitude, CapturedAt: captured}
}

func locationFromForm(r *http.Request) *model.LocationSample {
	lat, errLat := strconv.ParseFloat(r.FormValue("latitude"), 64)
	lon, errLon := strconv.ParseFloat(r.FormValue("longitude"), 64)
	captured, errAt := time.Parse(time.RFC3339, r.FormValue("captured_at"))
	if errLat != nil || errLon != nil || errAt != nil {
		return nil
	}
	return &model.LocationSample{Latitude: lat, Longitude: lon, CapturedAt: captured}
}

func parseDirection(raw string) (model.PunchDirection, bool) {
	switch strings.ToLower(raw) {
	case "in":
		return model.DirectionIn, true
	case "out":
		return model.DirectionOut, true
	default:
		return "", false
	}
}

func statusForKind(kind core.Kind) int {
	switch kind {
	case core.KindValidation, core.KindBusiness:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func clockString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("15:04")
	return &s
}

func writePunch(w http.ResponseWriter, status int, success bool, message string) {
	writeJSON(w, status, PunchResponse{StatusCode: status, Success: success, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
