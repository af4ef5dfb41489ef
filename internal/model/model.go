// Package model defines the core domain types for the registration and
// check-in system.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// Profile is the attendee-supplied part of a record.
type Profile struct {
	Name           string `json:"name" bson:"name" validate:"min=2"`
	Age            int    `json:"age" bson:"age" validate:"gte=1"`
	BloodGroup     string `json:"bloodGroup" bson:"blood_group" validate:"required"`
	Gender         string `json:"gender" bson:"gender" validate:"required"`
	Job            string `json:"job" bson:"job" validate:"min=2"`
	Area           string `json:"area" bson:"area" validate:"min=2"`
	WhatsappNumber string `json:"whatsappNumber" bson:"whatsapp_number" validate:"min=8"`
	Email          string `json:"email" bson:"email" validate:"email"`
}

// Attendee is one registration plus its lifecycle timestamps.
type Attendee struct {
	ID string `json:"id"`
	Profile
	CodePayload  string     `json:"codePayload"`
	QRCodeURL    string     `json:"qrCodeUrl"`
	RegisteredAt time.Time  `json:"createdAt"`
	CheckedInAt  *time.Time `json:"checkedInAt"`
}

// CheckedIn reports whether the attendee is in the CHECKED_IN state.
func (a *Attendee) CheckedIn() bool {
	return a.CheckedInAt != nil
}

// Clone returns a copy that shares no pointers with a.
func (a Attendee) Clone() Attendee {
	if a.CheckedInAt != nil {
		t := *a.CheckedInAt
		a.CheckedInAt = &t
	}
	return a
}

// AgeInput is the age exactly as submitted. Any JSON scalar decodes into
// it, so a bad age surfaces as a validation error rather than a decode error.
type AgeInput string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (a *AgeInput) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*a = ""
	case string:
		*a = AgeInput(x)
	case json.Number:
		*a = AgeInput(x.String())
	case bool:
		*a = AgeInput(strconv.FormatBool(x))
	default:
		return errors.New("age must be a number or a string")
	}
	return nil
}

// RegisterRequest is the payload for creating a new attendee.
type RegisterRequest struct {
	Name           string   `json:"name"`
	Age            AgeInput `json:"age"`
	BloodGroup     string   `json:"bloodGroup"`
	Gender         string   `json:"gender"`
	Job            string   `json:"job"`
	Area           string   `json:"area"`
	WhatsappNumber string   `json:"whatsappNumber"`
	ContactNumber  string   `json:"contactNumber,omitempty"`
	Email          string   `json:"email"`
}

// CheckInRequest is the scanner payload: either a record id or the raw
// decoded code contents.
type CheckInRequest struct {
	ID   string `json:"id,omitempty"`
	Code string `json:"code,omitempty"`
}

// Check-in outcomes.
const (
	OutcomeCheckedIn        = "checked_in"
	OutcomeAlreadyCheckedIn = "already_checked_in"
	OutcomeNotFound         = "not_found"
)

// CheckInResult is the tri-state outcome of a check-in attempt.
type CheckInResult struct {
	Found            bool      `json:"found"`
	AlreadyCheckedIn bool      `json:"alreadyCheckedIn"`
	Outcome          string    `json:"outcome"`
	Message          string    `json:"message"`
	Attendee         *Attendee `json:"user,omitempty"`
}

// Attendee status filters.
const (
	StatusRegistered = "registered"
	StatusCheckedIn  = "checked_in"
)

// ListFilter narrows the dashboard listing.
type ListFilter struct {
	Search string
	Status string
}

// Stats summarises attendance.
type Stats struct {
	Total      int `json:"total"`
	Registered int `json:"registered"`
	CheckedIn  int `json:"checkedIn"`
}

// ImportRow is one spreadsheet row mapped onto a registration request.
// Problems lists row-level mapping failures found before validation.
type ImportRow struct {
	Row      int
	Request  RegisterRequest
	Problems []string
}

// RowRejection explains why an imported row was not registered.
type RowRejection struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Accepted int            `json:"accepted"`
	Rejected []RowRejection `json:"rejected"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse carries field-keyed messages back to the submitter.
type ValidationErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}
