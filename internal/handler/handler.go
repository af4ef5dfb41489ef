// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/repository"
	"github.com/Shivanand-hulikatti/event-checkin/internal/service"
	"github.com/Shivanand-hulikatti/event-checkin/internal/spreadsheet"
)

const (
	maxJSONBytes            = 1 << 20
	defaultMaxUploadBytes   = 10 << 20
	validationFailedMessage = "Validation failed. Please correct the errors and try again."
	invalidCodeMessage      = "Invalid QR Code. The scanned code does not contain valid user data."
	storageErrorMessage     = "a storage error occurred, please try again"
)

// SheetsSync is the Google Sheets surface used by the import/export routes.
type SheetsSync interface {
	ReadRows(ctx context.Context, sheet string) ([]model.ImportRow, error)
	ExportAttendees(ctx context.Context, sheet string, attendees []model.Attendee) error
}

// AttendeeHandler holds all HTTP handlers for the registration API.
type AttendeeHandler struct {
	svc            *service.AttendeeService
	logger         *slog.Logger
	sheets         SheetsSync
	sheetName      string
	maxUploadBytes int64
}

// Options configures optional handler features.
type Options struct {
	// Sheets enables the Google Sheets routes when non-nil.
	Sheets         SheetsSync
	SheetName      string
	MaxUploadBytes int64
}

// NewAttendeeHandler constructs an AttendeeHandler.
func NewAttendeeHandler(svc *service.AttendeeService, logger *slog.Logger, opts Options) *AttendeeHandler {
	h := &AttendeeHandler{
		svc:            svc,
		logger:         logger,
		sheets:         opts.Sheets,
		sheetName:      opts.SheetName,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = defaultMaxUploadBytes
	}
	return h
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps service errors to status codes in one place.
func (h *AttendeeHandler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, model.ValidationErrorResponse{
			Message: validationFailedMessage,
			Errors:  verr.Fields,
		})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "attendee not found")
	case errors.Is(err, service.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, invalidCodeMessage)
	case errors.Is(err, service.ErrStorage):
		writeError(w, http.StatusInternalServerError, storageErrorMessage)
	default:
		h.logger.Error("unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isForm(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// Register handles POST /attendees
// Accepts a JSON body or a submitted HTML form.
func (h *AttendeeHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if isForm(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
		if err := r.ParseMultipartForm(maxJSONBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			writeError(w, http.StatusBadRequest, "invalid form body: "+err.Error())
			return
		}
		req = model.RegisterRequest{
			Name:           r.FormValue("name"),
			Age:            model.AgeInput(strings.TrimSpace(r.FormValue("age"))),
			BloodGroup:     r.FormValue("bloodGroup"),
			Gender:         r.FormValue("gender"),
			Job:            r.FormValue("job"),
			Area:           r.FormValue("area"),
			WhatsappNumber: r.FormValue("whatsappNumber"),
			ContactNumber:  r.FormValue("contactNumber"),
			Email:          r.FormValue("email"),
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	a, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

// ListAttendees handles GET /attendees?q=&status=
func (h *AttendeeHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", model.StatusRegistered, model.StatusCheckedIn:
	default:
		writeError(w, http.StatusBadRequest, "status must be 'registered' or 'checked_in'")
		return
	}

	attendees, err := h.svc.List(r.Context(), model.ListFilter{
		Search: r.URL.Query().Get("q"),
		Status: status,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, attendees)
}

// Stats handles GET /attendees/stats
func (h *AttendeeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetAttendee handles GET /attendees/{id} and GET /participant/{id}
func (h *AttendeeHandler) GetAttendee(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// QRCode handles GET /attendees/{id}/qr.png
func (h *AttendeeHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	png, err := h.svc.QRCode(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename="qrcode-`+id+`.png"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// CheckIn handles POST /attendees/{id}/checkin
func (h *AttendeeHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CheckIn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeCheckInResult(w, res)
}

// Scan handles POST /checkin
// The body names the record directly ({"id"}) or carries the raw scanned
// code text ({"code"}).
func (h *AttendeeHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req model.CheckInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		res model.CheckInResult
		err error
	)
	switch {
	case strings.TrimSpace(req.ID) != "":
		res, err = h.svc.CheckIn(r.Context(), req.ID)
	case strings.TrimSpace(req.Code) != "":
		res, err = h.svc.CheckInCode(r.Context(), req.Code)
	default:
		writeError(w, http.StatusBadRequest, "id or code is required")
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeCheckInResult(w, res)
}

func writeCheckInResult(w http.ResponseWriter, res model.CheckInResult) {
	if !res.Found {
		writeJSON(w, http.StatusNotFound, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClearCheckIn handles DELETE /attendees/{id}/checkin
func (h *AttendeeHandler) ClearCheckIn(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.ClearCheckIn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Import handles POST /attendees/import
// Expects a multipart upload in the "file" field (.xlsx or .csv).
func (h *AttendeeHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	name := header.Filename
	if f := r.FormValue("format"); f != "" {
		name = f
	}
	format, err := spreadsheet.FormatFromName(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := spreadsheet.Parse(file, format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read spreadsheet: "+err.Error())
		return
	}

	h.writeImportResult(w, r, rows)
}

func (h *AttendeeHandler) writeImportResult(w http.ResponseWriter, r *http.Request, rows []model.ImportRow) {
	res, err := h.svc.ImportBatch(r.Context(), rows)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export handles GET /attendees/export?format=xlsx|csv
func (h *AttendeeHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = spreadsheet.FormatXLSX
	}
	format, err := spreadsheet.FormatFromName(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	attendees, err := h.svc.Export(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case spreadsheet.FormatCSV:
		contentType = "text/csv"
		err = spreadsheet.WriteCSV(&buf, attendees)
	default:
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = spreadsheet.WriteXLSX(&buf, attendees)
	}
	if err != nil {
		h.logger.Error("export failed", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="attendees.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, &buf)
}

// ImportSheets handles POST /attendees/import/sheets
func (h *AttendeeHandler) ImportSheets(w http.ResponseWriter, r *http.Request) {
	if h.sheets == nil {
		writeError(w, http.StatusNotFound, "google sheets integration is not configured")
		return
	}
	rows, err := h.sheets.ReadRows(r.Context(), h.sheetName)
	if err != nil {
		h.logger.Error("sheets import failed", "sheet", h.sheetName, "error", err)
		writeError(w, http.StatusBadGateway, "could not read from google sheets")
		return
	}
	h.writeImportResult(w, r, rows)
}

// ExportSheets handles POST /attendees/export/sheets
func (h *AttendeeHandler) ExportSheets(w http.ResponseWriter, r *http.Request) {
	if h.sheets == nil {
		writeError(w, http.StatusNotFound, "google sheets integration is not configured")
		return
	}
	attendees, err := h.svc.Export(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := h.sheets.ExportAttendees(r.Context(), h.sheetName, attendees); err != nil {
		h.logger.Error("sheets export failed", "sheet", h.sheetName, "error", err)
		writeError(w, http.StatusBadGateway, "could not write to google sheets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"exported": len(attendees)})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// Pinger is satisfied by repository.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles GET /health
func HealthCheck(logger *slog.Logger, p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				logger.Error("health probe failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
