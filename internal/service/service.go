// Package service implements registration, check-in and dashboard
// operations on top of a repository.Store.
//
// The service holds no mutable state of its own. Check-in correctness under
// concurrent scans comes entirely from Store.MarkCheckedIn, so any number of
// service instances may share one store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/repository"
	"github.com/Shivanand-hulikatti/event-checkin/internal/scancode"
)

// ErrStorage is the generic result for any backing-store failure. The
// cause is logged, never returned.
var ErrStorage = errors.New("storage error")

// ErrInvalidCode is returned when scanned text does not identify a record.
var ErrInvalidCode = scancode.ErrInvalidCode

const defaultStoreTimeout = 5 * time.Second

// Options tunes an AttendeeService.
type Options struct {
	// StoreTimeout bounds every store call. Defaults to 5s.
	StoreTimeout time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
	// NewID overrides id generation. Defaults to random UUIDs.
	NewID func() string
}

// AttendeeService orchestrates attendee operations.
type AttendeeService struct {
	store    repository.Store
	codes    *scancode.Generator
	logger   *slog.Logger
	validate *validator.Validate
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

// NewAttendeeService constructs an AttendeeService with its dependencies.
func NewAttendeeService(store repository.Store, codes *scancode.Generator, logger *slog.Logger, opts Options) *AttendeeService {
	s := &AttendeeService{
		store:    store,
		codes:    codes,
		logger:   logger,
		validate: newValidator(),
		timeout:  opts.StoreTimeout,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if s.timeout <= 0 {
		s.timeout = defaultStoreTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	return s
}

// clock returns the current time at the precision every store keeps.
func (s *AttendeeService) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *AttendeeService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// storageFailure logs the cause and returns the generic storage error.
func (s *AttendeeService) storageFailure(op, id string, err error) error {
	s.logger.Error("store operation failed", "op", op, "id", id, "error", err)
	return fmt.Errorf("%s: %w", op, ErrStorage)
}

// newAttendee assigns identity, timestamps and the code payload. The record
// is complete before it is written, so creation is one store write.
func (s *AttendeeService) newAttendee(p model.Profile, registeredAt time.Time) model.Attendee {
	id := s.newID()
	payload := s.codes.Payload(id)
	return model.Attendee{
		ID:           id,
		Profile:      p,
		CodePayload:  payload,
		QRCodeURL:    s.codes.ImageURL(payload),
		RegisteredAt: registeredAt,
	}
}

// Register validates a submission and persists a new attendee.
// Validation failures return a *ValidationError and write nothing.
func (s *AttendeeService) Register(ctx context.Context, req model.RegisterRequest) (*model.Attendee, error) {
	p, err := s.buildProfile(req)
	if err != nil {
		return nil, err
	}

	a := s.newAttendee(p, s.clock())

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.Create(sctx, a); err != nil {
		return nil, s.storageFailure("register", a.ID, err)
	}

	s.logger.Info("attendee registered", "id", a.ID)
	return &a, nil
}

// CheckIn applies the REGISTERED → CHECKED_IN transition to id. A record
// that is already checked in is reported, not modified.
func (s *AttendeeService) CheckIn(ctx context.Context, id string) (model.CheckInResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return notFoundResult(), nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	a, applied, err := s.store.MarkCheckedIn(sctx, id, s.clock())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundResult(), nil
		}
		return model.CheckInResult{}, s.storageFailure("check in", id, err)
	}

	if !applied {
		s.logger.Info("duplicate check-in", "id", id)
		return model.CheckInResult{
			Found:            true,
			AlreadyCheckedIn: true,
			Outcome:          model.OutcomeAlreadyCheckedIn,
			Message: fmt.Sprintf("This user has already been checked in at %s.",
				a.CheckedInAt.UTC().Format(time.RFC3339)),
			Attendee: a,
		}, nil
	}

	s.logger.Info("attendee checked in", "id", id)
	return model.CheckInResult{
		Found:    true,
		Outcome:  model.OutcomeCheckedIn,
		Message:  fmt.Sprintf("%s checked in successfully.", a.Name),
		Attendee: a,
	}, nil
}

// CheckInCode decodes scanned code text and checks in the record it names.
func (s *AttendeeService) CheckInCode(ctx context.Context, scanned string) (model.CheckInResult, error) {
	id, err := scancode.Decode(scanned)
	if err != nil {
		return model.CheckInResult{}, err
	}
	return s.CheckIn(ctx, id)
}

func notFoundResult() model.CheckInResult {
	return model.CheckInResult{
		Outcome: model.OutcomeNotFound,
		Message: "User not found.",
	}
}

// ClearCheckIn returns a record to the REGISTERED state.
func (s *AttendeeService) ClearCheckIn(ctx context.Context, id string) (*model.Attendee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, repository.ErrNotFound
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	a, err := s.store.SetCheckedIn(sctx, id, nil)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, s.storageFailure("clear check-in", id, err)
	}
	s.logger.Info("check-in cleared", "id", id)
	return a, nil
}

// Get returns a single attendee by id.
func (s *AttendeeService) Get(ctx context.Context, id string) (*model.Attendee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, repository.ErrNotFound
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	a, err := s.store.Get(sctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, s.storageFailure("get", id, err)
	}
	return a, nil
}

// QRCode renders the attendee's code payload as a PNG.
func (s *AttendeeService) QRCode(ctx context.Context, id string) ([]byte, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.codes.PNG(a.CodePayload)
}

// List returns attendees newest first, narrowed by f.
func (s *AttendeeService) List(ctx context.Context, f model.ListFilter) ([]model.Attendee, error) {
	all, err := s.all(ctx, "list")
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.Attendee, 0, len(all))
	for _, a := range all {
		switch f.Status {
		case model.StatusRegistered:
			if a.CheckedIn() {
				continue
			}
		case model.StatusCheckedIn:
			if !a.CheckedIn() {
				continue
			}
		}
		if term != "" && !matches(a, term) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func matches(a model.Attendee, term string) bool {
	for _, v := range []string{a.Name, a.Email, a.Job, a.Area, a.BloodGroup, a.Gender} {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return strings.Contains(a.WhatsappNumber, term)
}

// Stats counts registered and checked-in attendees.
func (s *AttendeeService) Stats(ctx context.Context) (model.Stats, error) {
	all, err := s.all(ctx, "stats")
	if err != nil {
		return model.Stats{}, err
	}
	st := model.Stats{Total: len(all)}
	for _, a := range all {
		if a.CheckedIn() {
			st.CheckedIn++
		} else {
			st.Registered++
		}
	}
	return st, nil
}

// Export returns every attendee for spreadsheet output.
func (s *AttendeeService) Export(ctx context.Context) ([]model.Attendee, error) {
	return s.all(ctx, "export")
}

func (s *AttendeeService) all(ctx context.Context, op string) ([]model.Attendee, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	all, err := s.store.List(sctx)
	if err != nil {
		return nil, s.storageFailure(op, "", err)
	}
	return all, nil
}

// ImportBatch registers every acceptable row in one store write. Rows with
// mapping problems or validation errors are reported, not fatal.
func (s *AttendeeService) ImportBatch(ctx context.Context, rows []model.ImportRow) (model.ImportResult, error) {
	res := model.ImportResult{Rejected: []model.RowRejection{}}
	registeredAt := s.clock()

	accepted := make([]model.Attendee, 0, len(rows))
	for _, row := range rows {
		if len(row.Problems) > 0 {
			res.Rejected = append(res.Rejected, model.RowRejection{
				Row:    row.Row,
				Reason: strings.Join(row.Problems, "; "),
			})
			continue
		}
		p, err := s.buildProfile(row.Request)
		if err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return model.ImportResult{}, err
			}
			res.Rejected = append(res.Rejected, model.RowRejection{
				Row:    row.Row,
				Reason: strings.Join(verr.Messages(), " "),
			})
			continue
		}
		accepted = append(accepted, s.newAttendee(p, registeredAt))
	}

	if len(accepted) > 0 {
		sctx, cancel := s.storeCtx(ctx)
		defer cancel()
		if err := s.store.CreateBatch(sctx, accepted); err != nil {
			return model.ImportResult{}, s.storageFailure("import", "", err)
		}
	}
	res.Accepted = len(accepted)

	s.logger.Info("import finished", "accepted", res.Accepted, "rejected", len(res.Rejected))
	return res, nil
}
