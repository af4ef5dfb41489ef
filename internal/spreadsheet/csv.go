package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
)

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	// Spreadsheet apps often prefix UTF-8 CSV with a byte order mark.
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = trimBOM(records[0][0])
	}
	return records, nil
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}

// WriteCSV writes attendees with ExportHeader as the first row.
func WriteCSV(w io.Writer, attendees []model.Attendee) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, a := range attendees {
		if err := cw.Write(ExportRow(a)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
