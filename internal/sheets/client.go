// Package sheets imports registrations from and exports attendees to a
// Google Sheets spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/Shivanand-hulikatti/event-checkin/internal/spreadsheet"
)

// Client talks to one spreadsheet with service-account credentials.
type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
}

// New builds a Client from a service-account JSON key file.
func New(ctx context.Context, credentialsFile, spreadsheetID string) (*Client, error) {
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, fmt.Errorf("service account json: %w", err)
	}
	srv, err := sheetsv4.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheetsv4.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID}, nil
}

// SpreadsheetID returns the id of the spreadsheet the client targets.
func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

// ReadRows maps the sheet's rows through the spreadsheet header mapping.
func (c *Client) ReadRows(ctx context.Context, sheet string) ([]model.ImportRow, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, sheetRange(sheet, "A:Z")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return spreadsheet.MapRows(toStrings(resp.Values))
}

// ExportAttendees replaces the sheet's contents with the export layout.
func (c *Client) ExportAttendees(ctx context.Context, sheet string, attendees []model.Attendee) error {
	_, err := c.srv.Spreadsheets.Values.Clear(c.spreadsheetID, sheetRange(sheet, "A:Z"), &sheetsv4.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("clear sheet %q: %w", sheet, err)
	}

	vr := &sheetsv4.ValueRange{Values: toValues(attendees)}
	_, err = c.srv.Spreadsheets.Values.Update(c.spreadsheetID, sheetRange(sheet, "A1"), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write sheet %q: %w", sheet, err)
	}
	return nil
}

// sheetRange builds an A1 range for sheet. The name is always quoted so
// names with spaces or punctuation resolve; embedded quotes are doubled.
func sheetRange(sheet, cells string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

func toStrings(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		for j, cell := range row {
			out[i][j] = fmt.Sprint(cell)
		}
	}
	return out
}

func toValues(attendees []model.Attendee) [][]interface{} {
	out := make([][]interface{}, 0, len(attendees)+1)
	out = append(out, cells(spreadsheet.ExportHeader))
	for _, a := range attendees {
		out = append(out, cells(spreadsheet.ExportRow(a)))
	}
	return out
}

func cells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
