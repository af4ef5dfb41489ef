package sheets

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/spreadsheet"
)

func TestToStrings(t *testing.T) {
	got := toStrings([][]interface{}{
		{"Full Name", "Age"},
		{"Jane Doe", 25.0},
		{},
	})
	want := [][]string{{"Full Name", "Age"}, {"Jane Doe", "25"}, {}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("toStrings = %v, want %v", got, want)
	}
}

func TestToValues(t *testing.T) {
	a := model.Attendee{
		ID:           "id-1",
		Profile:      model.Profile{Name: "Jane Doe", Age: 25},
		RegisteredAt: time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC),
	}
	got := toValues([]model.Attendee{a})
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if len(got[0]) != len(spreadsheet.ExportHeader) || got[0][0] != "ID" {
		t.Fatalf("header = %v", got[0])
	}
	if got[1][0] != "id-1" || got[1][1] != "Jane Doe" || got[1][2] != "25" {
		t.Fatalf("row = %v", got[1])
	}
}

// Sheet values read back through the header mapping the same way a file does.
func TestExportedValuesMapBack(t *testing.T) {
	a := model.Attendee{
		ID: "id-1",
		Profile: model.Profile{
			Name: "Jane Doe", Age: 25, BloodGroup: "O+", Gender: "female", Job: "Nurse",
			Area: "Salmiya", WhatsappNumber: "99112233", Email: "jane@example.com",
		},
		RegisteredAt: time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC),
	}
	rows, err := spreadsheet.MapRows(toStrings(toValues([]model.Attendee{a})))
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if len(rows) != 1 || len(rows[0].Problems) != 0 || rows[0].Request.Email != "jane@example.com" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestNewRequiresCredentialsFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")
	if _, err := New(context.Background(), missing, "sheet-id"); err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}

func TestSheetRange(t *testing.T) {
	tests := []struct {
		sheet, cells, want string
	}{
		{"Attendees", "A:Z", "'Attendees'!A:Z"},
		{"Sheet 1", "A:Z", "'Sheet 1'!A:Z"},
		{"Guests' list", "A1", "'Guests'' list'!A1"},
	}
	for _, tt := range tests {
		if got := sheetRange(tt.sheet, tt.cells); got != tt.want {
			t.Errorf("sheetRange(%q, %q) = %q, want %q", tt.sheet, tt.cells, got, tt.want)
		}
	}
}
