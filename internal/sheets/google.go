package sheets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleSink appends rows to a hosted spreadsheet using a service account.
type GoogleSink struct {
	SpreadsheetID string
	svc           *gsheets.Service

	mu    sync.Mutex
	ready map[string]bool
}

// NewGoogleSink authenticates with the service-account JSON at credentialsFile.
func NewGoogleSink(ctx context.Context, spreadsheetID, credentialsFile string) (*GoogleSink, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if credentialsFile == "" {
		return nil, fmt.Errorf("service account credentials file is required")
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(data, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := gsheets.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return NewGoogleSinkWithService(spreadsheetID, svc), nil
}

// NewGoogleSinkWithService wraps an existing client.
func NewGoogleSinkWithService(spreadsheetID string, svc *gsheets.Service) *GoogleSink {
	return &GoogleSink{SpreadsheetID: spreadsheetID, svc: svc, ready: map[string]bool{}}
}

func (s *GoogleSink) Name() string { return "google" }

func (s *GoogleSink) Append(ctx context.Context, row Row) error {
	if err := s.ensureSheet(ctx, row.Sheet, row.Header); err != nil {
		return err
	}
	vr := &gsheets.ValueRange{Values: [][]any{row.Values}}
	_, err := s.svc.Spreadsheets.Values.Append(s.SpreadsheetID, quoteRange(row.Sheet)+"!A1", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row to %q: %w", row.Sheet, err)
	}
	return nil
}

// ensureSheet creates the tab with its header row the first time it is seen.
func (s *GoogleSink) ensureSheet(ctx context.Context, title string, header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[title] {
		return nil
	}
	doc, err := s.svc.Spreadsheets.Get(s.SpreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("load spreadsheet: %w", err)
	}
	exists := false
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			exists = true
			break
		}
	}
	if !exists {
		req := &gsheets.BatchUpdateSpreadsheetRequest{Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{Properties: &gsheets.SheetProperties{Title: title}},
		}}}
		if _, err := s.svc.Spreadsheets.BatchUpdate(s.SpreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add sheet %q: %w", title, err)
		}
	}
	first, err := s.svc.Spreadsheets.Values.Get(s.SpreadsheetID, quoteRange(title)+"!1:1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %q: %w", title, err)
	}
	if len(first.Values) == 0 {
		cells := make([]any, len(header))
		for i, h := range header {
			cells[i] = h
		}
		vr := &gsheets.ValueRange{Values: [][]any{cells}}
		_, err := s.svc.Spreadsheets.Values.Update(s.SpreadsheetID, quoteRange(title)+"!A1", vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header of %q: %w", title, err)
		}
	}
	s.ready[title] = true
	return nil
}

func quoteRange(title string) string {
	out := []rune{'\''}
	for _, r := range title {
		if r == '\'' {
			out = append(out, '\'')
		}
		out = append(out, r)
	}
	return string(append(out, '\''))
}
