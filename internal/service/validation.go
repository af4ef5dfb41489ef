package service

import (
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
)

// ValidationError carries field-keyed messages for a rejected profile.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// Messages returns every message in profile field order.
func (e *ValidationError) Messages() []string {
	var out []string
	for _, field := range profileFields {
		out = append(out, e.Fields[field]...)
	}
	return out
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	for _, existing := range e.Fields[field] {
		if existing == msg {
			return
		}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// profileFields is the submission order of the form, keyed by JSON name.
var profileFields = []string{
	"name", "age", "bloodGroup", "gender", "job", "area", "whatsappNumber", "email",
}

var fieldMessages = map[string]string{
	"name":           "Name must be at least 2 characters.",
	"age":            "Please enter a valid age.",
	"bloodGroup":     "Blood group is required.",
	"gender":         "Please select a gender.",
	"job":            "Job must be at least 2 characters.",
	"area":           "Area must be at least 2 characters.",
	"whatsappNumber": "Please enter a valid WhatsApp number.",
	"email":          "Please enter a valid email address.",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// buildProfile normalises a registration request and validates the result.
// It returns a *ValidationError when any field is rejected.
func (s *AttendeeService) buildProfile(req model.RegisterRequest) (model.Profile, error) {
	verr := &ValidationError{}

	contact := strings.TrimSpace(req.WhatsappNumber)
	if contact == "" {
		contact = strings.TrimSpace(req.ContactNumber)
	}
	p := model.Profile{
		Name:           strings.TrimSpace(req.Name),
		BloodGroup:     strings.TrimSpace(req.BloodGroup),
		Gender:         strings.TrimSpace(req.Gender),
		Job:            strings.TrimSpace(req.Job),
		Area:           strings.TrimSpace(req.Area),
		WhatsappNumber: contact,
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
	}

	age, ok := parseAge(string(req.Age))
	if !ok {
		verr.add("age", fieldMessages["age"])
	}
	p.Age = age

	if err := s.validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return model.Profile{}, err
		}
		for _, fe := range fieldErrs {
			field := fe.Field()
			msg, ok := fieldMessages[field]
			if !ok {
				msg = "Invalid value."
			}
			verr.add(field, msg)
		}
	}

	if len(verr.Fields) > 0 {
		return model.Profile{}, verr
	}
	return p, nil
}

// parseAge accepts whole numbers written as integers or as "25.0".
func parseAge(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
