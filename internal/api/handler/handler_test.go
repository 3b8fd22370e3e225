package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance.service/internal/api"
	"attendance.service/internal/api/handler"
	"attendance.service/internal/core"
	"attendance.service/internal/core/model"
	"attendance.service/internal/facematch"
	"attendance.service/internal/metrics"
	"attendance.service/internal/ports/repository"
)

type nopPublisher struct{}

func (nopPublisher) PublishPayroll(context.Context, interface{}) error { return nil }
func (nopPublisher) PublishEmail(context.Context, interface{}) error   { return nil }

type fakeOracle struct {
	enrolled bool
	match    facematch.MatchResult
	register facematch.RegisterResult
	err      error

	lastDirection model.PunchDirection
}

func (f *fakeOracle) CheckEnrolled(_ context.Context, _ string) (bool, error) {
	return f.enrolled, f.err
}

func (f *fakeOracle) Register(_ context.Context, _ string, _ []byte) (facematch.RegisterResult, error) {
	return f.register, f.err
}

func (f *fakeOracle) Match(_ context.Context, _ string, _ []byte, direction model.PunchDirection) (facematch.MatchResult, error) {
	f.lastDirection = direction
	return f.match, f.err
}

func newTestServer(t *testing.T, oracle *fakeOracle) (*httptest.Server, repository.Repository) {
	t.Helper()

	repo := repository.NewInMemoryRepository()
	svc := core.NewAttendanceService(repo, nopPublisher{}, core.Config{
		Geofence:       model.OfficeGeofence{Latitude: 40.0, Longitude: -74.0, RadiusMeters: 200},
		PunchFreshness: 5 * time.Minute,
		Timezone:       time.UTC,
	})

	h := &handler.AttendanceHandler{
		Service: svc,
		Oracle:  oracle,
		Metrics: metrics.NewWith(prometheus.NewRegistry()),
	}

	server := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(server.Close)
	return server, repo
}

func punchBody(direction string, verified bool) []byte {
	today := time.Now().UTC().Format("2006-01-02")
	nowStamp := time.Now().UTC().Format(time.RFC3339)
	timeField := "punch_in_time"
	if direction == "out" {
		timeField = "punch_out_time"
	}
	body := fmt.Sprintf(`{
		"employeeID": "emp-1",
		"date": %q,
		%q: %q,
		"latitude": 40.0,
		"longitude": -74.0,
		"location_captured_at": %q,
		"biometric_verified": %t
	}`, today, timeField, nowStamp, nowStamp, verified)
	return []byte(body)
}

func decodePunch(t *testing.T, resp *http.Response) handler.PunchResponse {
	t.Helper()
	var out handler.PunchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestPunch_FullDay(t *testing.T) {
	server, _ := newTestServer(t, &fakeOracle{})

	resp, err := http.Post(server.URL+"/attendance/punch", "application/json", bytes.NewReader(punchBody("in", true)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodePunch(t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, core.MsgPunchInRecorded, out.Message)

	resp, err = http.Post(server.URL+"/attendance/punch", "application/json", bytes.NewReader(punchBody("out", true)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out = decodePunch(t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, core.MsgPunchOutRecorded, out.Message)
}

func TestPunch_RejectsDuplicatePunchIn(t *testing.T) {
	server, _ := newTestServer(t, &fakeOracle{})

	resp, err := http.Post(server.URL+"/attendance/punch", "application/json", bytes.NewReader(punchBody("in", true)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(server.URL+"/attendance/punch", "application/json", bytes.NewReader(punchBody("in", true)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decodePunch(t, resp)
	assert.False(t, out.Success)
	assert.Equal(t, core.MsgAlreadyPunchedIn, out.Message)
}

func TestPunch_RejectsUnverifiedIdentity(t *testing.T) {
	server, _ := newTestServer(t, &fakeOracle{})

	resp, err := http.Post(server.URL+"/attendance/punch", "application/json", bytes.NewReader(punchBody("in", false)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, core.MsgIdentityNotVerified, decodePunch(t, resp).Message)
}

func TestPunch_ValidatesRequest(t *testing.T) {
	server, _ := newTestServer(t, &fakeOracle{})
	today := time.Now().UTC().Format("2006-01-02")

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing employee", fmt.Sprintf(`{"date": %q, "punch_in_time": "09:00"}`, today)},
		{"bad date format", `{"employeeID": "emp-1", "date": "11-03-2024", "punch_in_time": "09:00"}`},
		{"both time fields", fmt.Sprintf(`{"employeeID": "emp-1", "date": %q, "punch_in_time": "09:00", "punch_out_time": "17:00"}`, today)},
		{"neither time field", fmt.Sprintf(`{"employeeID": "emp-1", "date": %q}`, today)},
		{"date not today", `{"employeeID": "emp-1", "date": "2020-01-01", "punch_in_time": "09:00"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/attendance/punch", "application/json", strings.NewReader(tc.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetAttendance_ReturnsNullsWhenMissing(t *testing.T) {
	server, _ := newTestServer(t, &fakeOracle{})

	resp, err := http.Get(server.URL + "/attendance?employeeID=emp-1&date=2024-03-11")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]*string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Nil(t, out["punch_in_time"])
	assert.Nil(t, out["punch_out_time"])
}

func TestGetAttendance_ReturnsClockTimes(t *testing.T) {
	server, repo := newTestServer(t, &fakeOracle{})

	date := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	punchIn := time.Date(2024, 3, 11, 9, 4, 0, 0, time.UTC)
	rec := model.AttendanceRecord{EmployeeID: "emp-1", Date: date, PunchInTime: &punchIn}
	_, err := repo.CreatePunch(context.Background(), &rec)
	require.NoError(t, err)

	resp, err := http.Get(server.URL + "/attendance?employeeID=emp-1&date=2024-03-11")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]*string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out["punch_in_time"])
	assert.Equal(t, "09:04", *out["punch_in_time"])
	assert.Nil(t, out["punch_out_time"])
}

func TestGetAttendance_RejectsBadDate(t *testing.T) {
	server, _ := newTestServer(t, &fakeOracle{})

	resp, err := http.Get(server.URL + "/attendance?employeeID=emp-1&date=March-11")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetHistory_ZeroBasedMonth(t *testing.T) {
	server, repo := newTestServer(t, &fakeOracle{})

	punchIn := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	rec := model.AttendanceRecord{
		EmployeeID:  "emp-1",
		Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		PunchInTime: &punchIn,
	}
	_, err := repo.CreatePunch(context.Background(), &rec)
	require.NoError(t, err)

	// month=2 is March on the zero-based wire format.
	resp, err := http.Get(server.URL + "/attendance/history?employeeID=emp-1&month=2&year=2024")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-03-05", entries[0]["date"])

	resp, err = http.Get(server.URL + "/attendance/history?employeeID=emp-1&month=12&year=2024")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func multipartImage(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "capture.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake-jpeg-bytes"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFaceMatch_MatchRecordsPunch(t *testing.T) {
	oracle := &fakeOracle{match: facematch.MatchResult{Matched: true, Message: "match", UserID: "emp-1"}}
	server, repo := newTestServer(t, oracle)

	now := time.Now().UTC()
	body, contentType := multipartImage(t, map[string]string{
		"latitude":    "40.0",
		"longitude":   "-74.0",
		"captured_at": now.Format(time.RFC3339),
	})

	resp, err := http.Post(server.URL+"/face/match/emp-1?direction=in", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.DirectionIn, oracle.lastDirection)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["matched"])
	assert.Equal(t, core.MsgPunchInRecorded, out["message"])

	rec, err := repo.FindByEmployeeAndDate(context.Background(), "emp-1", repository.DateKey(now, time.UTC))
	require.NoError(t, err)
	assert.NotNil(t, rec.PunchInTime)
}

func TestFaceMatch_NoMatchIsUnauthorized(t *testing.T) {
	oracle := &fakeOracle{match: facematch.MatchResult{Matched: false, Message: "no match found"}}
	server, repo := newTestServer(t, oracle)

	now := time.Now().UTC()
	body, contentType := multipartImage(t, map[string]string{
		"latitude":    "40.0",
		"longitude":   "-74.0",
		"captured_at": now.Format(time.RFC3339),
	})

	resp, err := http.Post(server.URL+"/face/match/emp-1?direction=in", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = repo.FindByEmployeeAndDate(context.Background(), "emp-1", repository.DateKey(now, time.UTC))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFaceMatch_MatchedButOutsideGeofence(t *testing.T) {
	oracle := &fakeOracle{match: facematch.MatchResult{Matched: true, UserID: "emp-1"}}
	server, repo := newTestServer(t, oracle)

	now := time.Now().UTC()
	body, contentType := multipartImage(t, map[string]string{
		"latitude":    "41.0",
		"longitude":   "-74.0",
		"captured_at": now.Format(time.RFC3339),
	})

	resp, err := http.Post(server.URL+"/face/match/emp-1?direction=in", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	// Face did match; the rejection must read as a location problem.
	assert.Equal(t, true, out["matched"])
	assert.Equal(t, core.MsgOutsideGeofence, out["message"])

	_, err = repo.FindByEmployeeAndDate(context.Background(), "emp-1", repository.DateKey(now, time.UTC))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFaceMatch_BadDirection(t *testing.T) {
	server, _ := newTestServer(t, &fakeOracle{})

	body, contentType := multipartImage(t, nil)
	resp, err := http.Post(server.URL+"/face/match/emp-1?direction=sideways", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFaceMatch_OracleFailures(t *testing.T) {
	t.Run("transport error is 500", func(t *testing.T) {
		oracle := &fakeOracle{err: &facematch.TransportError{Err: fmt.Errorf("connection refused")}}
		server, _ := newTestServer(t, oracle)

		body, contentType := multipartImage(t, nil)
		resp, err := http.Post(server.URL+"/face/match/emp-1?direction=in", contentType, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("malformed response is 400", func(t *testing.T) {
		oracle := &fakeOracle{err: &facematch.MalformedResponseError{Err: fmt.Errorf("invalid character '<'")}}
		server, _ := newTestServer(t, oracle)

		body, contentType := multipartImage(t, nil)
		resp, err := http.Post(server.URL+"/face/match/emp-1?direction=in", contentType, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestFaceAvailable(t *testing.T) {
	server, _ := newTestServer(t, &fakeOracle{enrolled: true})

	resp, err := http.Get(server.URL + "/face/isAvailable/emp-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out["exists"])
}

func TestFaceRegister(t *testing.T) {
	oracle := &fakeOracle{register: facematch.RegisterResult{Success: true, Message: "registered"}}
	server, _ := newTestServer(t, oracle)

	body, contentType := multipartImage(t, nil)
	resp, err := http.Post(server.URL+"/face/register/emp-1", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["success"])
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, &fakeOracle{})

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
