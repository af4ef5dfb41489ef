// Package spreadsheet maps tabular files to registration requests and
// attendee records back to rows.
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
)

// ErrUnsupportedFormat is returned for file types other than CSV and XLSX.
var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// ErrNoHeader is returned when the input has no header row.
var ErrNoHeader = errors.New("spreadsheet has no header row")

// Formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// column describes one profile field and the headers that map to it.
type column struct {
	header  string
	aliases []string
	set     func(*model.RegisterRequest, string)
}

var columns = []column{
	{"Full Name", []string{"fullname", "name"}, func(r *model.RegisterRequest, v string) { r.Name = v }},
	{"Age", []string{"age"}, func(r *model.RegisterRequest, v string) { r.Age = model.AgeInput(v) }},
	{"Blood Group", []string{"bloodgroup"}, func(r *model.RegisterRequest, v string) { r.BloodGroup = v }},
	{"Gender", []string{"gender"}, func(r *model.RegisterRequest, v string) { r.Gender = v }},
	{"Job", []string{"job"}, func(r *model.RegisterRequest, v string) { r.Job = v }},
	{"Area in Kuwait", []string{"areainkuwait", "area"}, func(r *model.RegisterRequest, v string) { r.Area = v }},
	{"Whatsapp Number", []string{"whatsappnumber", "contactnumber"}, func(r *model.RegisterRequest, v string) { r.WhatsappNumber = v }},
	{"Email address", []string{"emailaddress", "email"}, func(r *model.RegisterRequest, v string) { r.Email = v }},
}

// ExportHeader is the column layout written by every exporter. Its profile
// columns use the import header names so exports can be re-imported.
var ExportHeader = []string{
	"ID", "Full Name", "Age", "Blood Group", "Gender", "Job", "Area in Kuwait",
	"Whatsapp Number", "Email address", "Registered At", "Checked In At", "QR Code URL",
}

// FormatFromName picks a format from a file name or an explicit format value.
func FormatFromName(name string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		ext = strings.ToLower(strings.TrimSpace(name))
	}
	switch ext {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, "xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Parse reads rows from r in the given format.
func Parse(r io.Reader, format string) ([]model.ImportRow, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatXLSX:
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return MapRows(records)
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, h)
}

// MapRows treats records[0] as the header and maps every following row.
// Unknown headers are ignored. A missing required header turns into a
// problem on every row rather than a failure of the whole input.
func MapRows(records [][]string) ([]model.ImportRow, error) {
	if len(records) == 0 {
		return nil, ErrNoHeader
	}
	header := records[0]
	if isBlank(header) {
		return nil, ErrNoHeader
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := index[key]; !dup && key != "" {
			index[key] = i
		}
	}

	positions := make([]int, len(columns))
	var missing []string
	for ci, c := range columns {
		positions[ci] = -1
		for _, alias := range c.aliases {
			if i, ok := index[alias]; ok {
				positions[ci] = i
				break
			}
		}
		if positions[ci] == -1 {
			missing = append(missing, fmt.Sprintf("missing column %q", c.header))
		}
	}

	rows := make([]model.ImportRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := model.ImportRow{Row: i + 2}
		for ci, c := range columns {
			if p := positions[ci]; p >= 0 && p < len(rec) {
				c.set(&row.Request, strings.TrimSpace(rec[p]))
			}
		}
		if len(missing) > 0 {
			row.Problems = append([]string(nil), missing...)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ExportRow renders one attendee in ExportHeader order.
func ExportRow(a model.Attendee) []string {
	checkedIn := ""
	if a.CheckedInAt != nil {
		checkedIn = a.CheckedInAt.UTC().Format(time.RFC3339)
	}
	return []string{
		a.ID,
		a.Name,
		strconv.Itoa(a.Age),
		a.BloodGroup,
		a.Gender,
		a.Job,
		a.Area,
		a.WhatsappNumber,
		a.Email,
		a.RegisteredAt.UTC().Format(time.RFC3339),
		checkedIn,
		a.QRCodeURL,
	}
}
