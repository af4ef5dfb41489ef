// Package scancode builds the payload encoded into an attendee's QR code,
// links it to an image renderer and turns scanned text back into a record id.
package scancode

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	goqrcode "github.com/skip2/go-qrcode"

	"github.com/Shivanand-hulikatti/event-checkin/internal/config"
)

// Payload modes.
const (
	ModeJSON = "json"
	ModeURL  = "url"
)

const participantPath = "/participant/"

// ErrInvalidCode is returned when scanned text does not identify a record.
var ErrInvalidCode = errors.New("invalid code")

// Generator derives code payloads and image references for record ids.
type Generator struct {
	mode          string
	publicBaseURL string
	imageAPI      string
	size          int
}

// NewGenerator constructs a Generator from configuration.
func NewGenerator(cfg config.CodeConfig) *Generator {
	size := cfg.Size
	if size <= 0 {
		size = 250
	}
	return &Generator{
		mode:          cfg.Mode,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		imageAPI:      cfg.ImageAPI,
		size:          size,
	}
}

type jsonPayload struct {
	ID string `json:"id"`
}

// Payload returns the text encoded into the code for id.
func (g *Generator) Payload(id string) string {
	if g.mode == ModeURL {
		return g.publicBaseURL + participantPath + url.PathEscape(id)
	}
	b, _ := json.Marshal(jsonPayload{ID: id})
	return string(b)
}

// ImageURL returns a link to an external renderer that draws payload.
func (g *Generator) ImageURL(payload string) string {
	q := url.Values{}
	q.Set("size", strconv.Itoa(g.size)+"x"+strconv.Itoa(g.size))
	q.Set("data", payload)
	sep := "?"
	if strings.Contains(g.imageAPI, "?") {
		sep = "&"
	}
	return g.imageAPI + sep + q.Encode()
}

// PNG renders payload locally.
func (g *Generator) PNG(payload string) ([]byte, error) {
	png, err := goqrcode.Encode(payload, goqrcode.Medium, g.size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}

// Decode extracts a record id from scanned text. It accepts the JSON
// payload, a participant URL, or a bare id.
func Decode(scanned string) (string, error) {
	s := strings.TrimSpace(scanned)
	if s == "" {
		return "", ErrInvalidCode
	}

	if strings.HasPrefix(s, "{") {
		var p jsonPayload
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidCode, err)
		}
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return "", fmt.Errorf("%w: missing id", ErrInvalidCode)
		}
		return id, nil
	}

	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		idx := strings.LastIndex(u.Path, participantPath)
		if idx == -1 {
			return "", fmt.Errorf("%w: unexpected url path %q", ErrInvalidCode, u.Path)
		}
		rest := strings.Trim(u.Path[idx+len(participantPath):], "/")
		if rest == "" || strings.Contains(rest, "/") {
			return "", fmt.Errorf("%w: unexpected url path %q", ErrInvalidCode, u.Path)
		}
		return rest, nil
	}

	if strings.ContainsAny(s, " \t\r\n/{}\"") {
		return "", ErrInvalidCode
	}
	return s, nil
}
