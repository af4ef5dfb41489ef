package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/config"
	"github.com/Shivanand-hulikatti/event-checkin/internal/logging"
	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/repository"
	"github.com/Shivanand-hulikatti/event-checkin/internal/scancode"
	"github.com/Shivanand-hulikatti/event-checkin/internal/service"
)

const janeJSON = `{"name":"Jane Doe","age":25,"bloodGroup":"O+","gender":"female","job":"Nurse",` +
	`"area":"Salmiya","whatsappNumber":"99112233","email":"jane@example.com"}`

type testServer struct {
	handler http.Handler
	store   repository.Store
}

func newTestServer(t *testing.T, sheets SheetsSync) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := logging.Discard()
	svc := service.NewAttendeeService(store, scancode.NewGenerator(config.CodeConfig{
		Mode:     scancode.ModeJSON,
		ImageAPI: "https://api.qrserver.com/v1/create-qr-code/",
		Size:     250,
	}), logger, service.Options{})
	h := NewAttendeeHandler(svc, logger, Options{Sheets: sheets, SheetName: "Attendees"})
	return &testServer{
		handler: NewRouter(logger, RouterDependencies{
			Attendees:      h,
			Health:         store,
			AllowedOrigins: []string{"https://dashboard.example"},
		}),
		store: store,
	}
}

func (s *testServer) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T) model.Attendee {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/attendees", "application/json", []byte(janeJSON))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body = %s", rec.Code, rec.Body)
	}
	var a model.Attendee
	decodeBody(t, rec, &a)
	return a
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestRegisterJSON(t *testing.T) {
	srv := newTestServer(t, nil)
	a := srv.register(t)
	if a.ID == "" || a.Name != "Jane Doe" || a.CheckedInAt != nil {
		t.Fatalf("attendee = %+v", a)
	}
	if a.QRCodeURL == "" || a.CodePayload == "" {
		t.Fatalf("missing code fields: %+v", a)
	}
}

func TestRegisterForm(t *testing.T) {
	srv := newTestServer(t, nil)
	form := url.Values{
		"name":          {"Jane Doe"},
		"age":           {"25"},
		"bloodGroup":    {"O+"},
		"gender":        {"female"},
		"job":           {"Nurse"},
		"area":          {"Salmiya"},
		"contactNumber": {"99112233"},
		"email":         {"jane@example.com"},
	}
	rec := srv.do(t, http.MethodPost, "/attendees", "application/x-www-form-urlencoded", []byte(form.Encode()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var a model.Attendee
	decodeBody(t, rec, &a)
	if a.WhatsappNumber != "99112233" {
		t.Fatalf("whatsapp = %q", a.WhatsappNumber)
	}
}

func TestRegisterValidationFailure(t *testing.T) {
	srv := newTestServer(t, nil)
	body := strings.Replace(janeJSON, `"age":25`, `"age":0`, 1)
	rec := srv.do(t, http.MethodPost, "/attendees", "application/json", []byte(body))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var resp model.ValidationErrorResponse
	decodeBody(t, rec, &resp)
	if len(resp.Errors["age"]) != 1 || resp.Message == "" {
		t.Fatalf("response = %+v", resp)
	}

	all, err := srv.store.List(context.Background())
	if err != nil || len(all) != 0 {
		t.Fatalf("stored = %d, %v", len(all), err)
	}
}

func TestRegisterBadAgeIsFieldError(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, age := range []string{`""`, `"abc"`, `true`, `null`, `"25.5"`} {
		body := strings.Replace(janeJSON, `"age":25`, `"age":`+age, 1)
		rec := srv.do(t, http.MethodPost, "/attendees", "application/json", []byte(body))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("age %s: status = %d body = %s", age, rec.Code, rec.Body)
		}
		var resp model.ValidationErrorResponse
		decodeBody(t, rec, &resp)
		if len(resp.Errors["age"]) != 1 || resp.Errors["age"][0] != "Please enter a valid age." {
			t.Fatalf("age %s: errors = %v", age, resp.Errors)
		}
	}

	body := strings.Replace(janeJSON, `"age":25`, `"age":" 25 "`, 1)
	if rec := srv.do(t, http.MethodPost, "/attendees", "application/json", []byte(body)); rec.Code != http.StatusCreated {
		t.Fatalf("string age: status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestRegisterRejectsMalformedJSON(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, body := range []string{`{"name":`, `{"nickname":"x"}`} {
		rec := srv.do(t, http.MethodPost, "/attendees", "application/json", []byte(body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", body, rec.Code)
		}
	}
}

func TestCheckInOutcomes(t *testing.T) {
	srv := newTestServer(t, nil)
	a := srv.register(t)

	rec := srv.do(t, http.MethodPost, "/attendees/"+a.ID+"/checkin", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	var first model.CheckInResult
	decodeBody(t, rec, &first)
	if first.Outcome != model.OutcomeCheckedIn || first.Attendee == nil || first.Attendee.CheckedInAt == nil {
		t.Fatalf("first = %+v", first)
	}

	rec = srv.do(t, http.MethodPost, "/attendees/"+a.ID+"/checkin", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d", rec.Code)
	}
	var second model.CheckInResult
	decodeBody(t, rec, &second)
	if !second.AlreadyCheckedIn || second.Outcome != model.OutcomeAlreadyCheckedIn {
		t.Fatalf("second = %+v", second)
	}
	if !second.Attendee.CheckedInAt.Equal(*first.Attendee.CheckedInAt) {
		t.Fatal("second scan changed checkedInAt")
	}

	rec = srv.do(t, http.MethodPost, "/attendees/missing/checkin", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}
	var missing model.CheckInResult
	decodeBody(t, rec, &missing)
	if missing.Found || missing.Outcome != model.OutcomeNotFound {
		t.Fatalf("missing = %+v", missing)
	}
}

func TestScan(t *testing.T) {
	srv := newTestServer(t, nil)
	a := srv.register(t)

	body, _ := json.Marshal(model.CheckInRequest{Code: a.CodePayload})
	rec := srv.do(t, http.MethodPost, "/checkin", "application/json", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan status = %d body = %s", rec.Code, rec.Body)
	}
	var res model.CheckInResult
	decodeBody(t, rec, &res)
	if res.Outcome != model.OutcomeCheckedIn || res.Attendee.ID != a.ID {
		t.Fatalf("scan = %+v", res)
	}

	body, _ = json.Marshal(model.CheckInRequest{ID: a.ID})
	rec = srv.do(t, http.MethodPost, "/checkin", "application/json", body)
	decodeBody(t, rec, &res)
	if rec.Code != http.StatusOK || res.Outcome != model.OutcomeAlreadyCheckedIn {
		t.Fatalf("rescan = %d %+v", rec.Code, res)
	}

	tests := []struct {
		body string
		want int
	}{
		{`{"code":"{\"name\":\"x\"}"}`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`{"id":"missing"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := srv.do(t, http.MethodPost, "/checkin", "application/json", []byte(tt.body))
		if rec.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.body, rec.Code, tt.want)
		}
	}
}

func TestClearCheckIn(t *testing.T) {
	srv := newTestServer(t, nil)
	a := srv.register(t)
	srv.do(t, http.MethodPost, "/attendees/"+a.ID+"/checkin", "", nil)

	rec := srv.do(t, http.MethodDelete, "/attendees/"+a.ID+"/checkin", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	var cleared model.Attendee
	decodeBody(t, rec, &cleared)
	if cleared.CheckedInAt != nil {
		t.Fatal("check-in not cleared")
	}

	if rec := srv.do(t, http.MethodDelete, "/attendees/missing/checkin", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("clear missing status = %d", rec.Code)
	}
}

func TestGetAttendeeAndParticipant(t *testing.T) {
	srv := newTestServer(t, nil)
	a := srv.register(t)

	for _, path := range []string{"/attendees/" + a.ID, "/participant/" + a.ID} {
		rec := srv.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		var got model.Attendee
		decodeBody(t, rec, &got)
		if got.ID != a.ID {
			t.Fatalf("%s: id = %q", path, got.ID)
		}
	}
	if rec := srv.do(t, http.MethodGet, "/attendees/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}
}

func TestQRCodePNG(t *testing.T) {
	srv := newTestServer(t, nil)
	a := srv.register(t)

	rec := srv.do(t, http.MethodGet, "/attendees/"+a.ID+"/qr.png", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("body is not a png")
	}
}

func TestListAndStats(t *testing.T) {
	srv := newTestServer(t, nil)
	a := srv.register(t)
	srv.register(t)
	srv.do(t, http.MethodPost, "/attendees/"+a.ID+"/checkin", "", nil)

	rec := srv.do(t, http.MethodGet, "/attendees?status=checked_in", "", nil)
	var checked []model.Attendee
	decodeBody(t, rec, &checked)
	if rec.Code != http.StatusOK || len(checked) != 1 || checked[0].ID != a.ID {
		t.Fatalf("checked = %d %+v", rec.Code, checked)
	}

	rec = srv.do(t, http.MethodGet, "/attendees?q=salmiya", "", nil)
	var found []model.Attendee
	decodeBody(t, rec, &found)
	if len(found) != 2 {
		t.Fatalf("search = %d", len(found))
	}

	if rec := srv.do(t, http.MethodGet, "/attendees?status=maybe", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/attendees/stats", "", nil)
	var st model.Stats
	decodeBody(t, rec, &st)
	if st != (model.Stats{Total: 2, Registered: 1, CheckedIn: 1}) {
		t.Fatalf("stats = %+v", st)
	}
}

func multipartFile(t *testing.T, filename string, content []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return mw.FormDataContentType(), buf.Bytes()
}

func TestImportCSV(t *testing.T) {
	srv := newTestServer(t, nil)
	csv := "Full Name,Age,Blood Group,Gender,Job,Area in Kuwait,Whatsapp Number,Email address\n" +
		"Jane Doe,25,O+,female,Nurse,Salmiya,99112233,jane@example.com\n" +
		"J,25,O+,female,Nurse,Salmiya,99112233,jane@example.com\n"
	ct, body := multipartFile(t, "guests.csv", []byte(csv))

	rec := srv.do(t, http.MethodPost, "/attendees/import", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var res model.ImportResult
	decodeBody(t, rec, &res)
	if res.Accepted != 1 || len(res.Rejected) != 1 || res.Rejected[0].Row != 3 {
		t.Fatalf("result = %+v", res)
	}
}

func TestImportRejectsUnsupportedFile(t *testing.T) {
	srv := newTestServer(t, nil)
	ct, body := multipartFile(t, "guests.pdf", []byte("%PDF"))
	if rec := srv.do(t, http.MethodPost, "/attendees/import", ct, body); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodPost, "/attendees/import", "application/json", []byte(`{}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-multipart status = %d", rec.Code)
	}
}

func TestExportCSVAndXLSX(t *testing.T) {
	srv := newTestServer(t, nil)
	a := srv.register(t)

	rec := srv.do(t, http.MethodGet, "/attendees/export?format=csv", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("csv = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], a.ID+",Jane Doe,25,") {
		t.Fatalf("csv body = %q", rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, "/attendees/export", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Disposition"), "attendees.xlsx") {
		t.Fatalf("xlsx = %d %q", rec.Code, rec.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatal("xlsx body is not a zip archive")
	}

	if rec := srv.do(t, http.MethodGet, "/attendees/export?format=pdf", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("pdf status = %d", rec.Code)
	}
}

type fakeSheets struct {
	rows     []model.ImportRow
	readErr  error
	exported []model.Attendee
}

func (f *fakeSheets) ReadRows(context.Context, string) ([]model.ImportRow, error) {
	return f.rows, f.readErr
}

func (f *fakeSheets) ExportAttendees(_ context.Context, _ string, attendees []model.Attendee) error {
	f.exported = attendees
	return nil
}

func TestSheetsRoutes(t *testing.T) {
	disabled := newTestServer(t, nil)
	for _, path := range []string{"/attendees/import/sheets", "/attendees/export/sheets"} {
		if rec := disabled.do(t, http.MethodPost, path, "", nil); rec.Code != http.StatusNotFound {
			t.Fatalf("%s disabled status = %d", path, rec.Code)
		}
	}

	sheets := &fakeSheets{rows: []model.ImportRow{{
		Row: 2,
		Request: model.RegisterRequest{
			Name: "Jane Doe", Age: "25", BloodGroup: "O+", Gender: "female", Job: "Nurse",
			Area: "Salmiya", WhatsappNumber: "99112233", Email: "jane@example.com",
		},
	}}}
	srv := newTestServer(t, sheets)

	rec := srv.do(t, http.MethodPost, "/attendees/import/sheets", "", nil)
	var res model.ImportResult
	decodeBody(t, rec, &res)
	if rec.Code != http.StatusOK || res.Accepted != 1 {
		t.Fatalf("import = %d %+v", rec.Code, res)
	}

	rec = srv.do(t, http.MethodPost, "/attendees/export/sheets", "", nil)
	if rec.Code != http.StatusOK || len(sheets.exported) != 1 {
		t.Fatalf("export = %d, exported %d", rec.Code, len(sheets.exported))
	}

	sheets.readErr = errors.New("quota exceeded")
	if rec := srv.do(t, http.MethodPost, "/attendees/import/sheets", "", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("failing import status = %d", rec.Code)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	HealthCheck(logging.Discard(), downPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/attendees", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://dashboard.example" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/attendees", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign preflight = %d", rec.Code)
	}
}

func TestAccessLogIncludesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"})
	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["path"] != "/brew" || entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("entry = %v", entry)
	}
}
