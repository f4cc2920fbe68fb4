package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"internfunnel/internal/domain"
	"internfunnel/internal/scoring"
)

func sampleResult() domain.QuestionnaireResult {
	return domain.QuestionnaireResult{
		ID:          "r1",
		Kind:        domain.KindQuiz,
		CandidateID: "12",
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		Answers:     map[string]int{"1": 4, "2": 5, "10": 3},
		TraitScores: domain.TraitScores{Extraversion: 4, Conscientiousness: 5, EmotionalStability: 3},
		CreatedAt:   "2026-01-02T03:04:05Z",
	}
}

func TestHeaderAndRow(t *testing.T) {
	m := scoring.Quiz()
	h := Header(m)
	require.Len(t, h, 6+5+10)
	assert.Equal(t, "Extraversion Score", h[6])
	assert.Equal(t, "Emotional Stability Score", h[10])
	assert.Equal(t, "Q1 - Networking", h[11])
	assert.Equal(t, "Q10 - Criticism Handling", h[20])
	assert.Equal(t, []string{"ATS Profile URL", "Video Interview URL"}, h[4:6])
	assert.Len(t, Header(scoring.Survey()), 6+5+30)

	row := BuildRow("Quiz", sampleResult(), m)
	require.Len(t, row.Values, len(h))
	assert.Equal(t, "Not provided", row.Values[4])
	assert.Equal(t, "4.00", row.Values[6])
	assert.Equal(t, "0.00", row.Values[9])
	assert.Equal(t, 4, row.Values[11])
	assert.Equal(t, "", row.Values[13])
	assert.Equal(t, 3, row.Values[20])

	assert.Equal(t, "Personality Quiz Responses", SheetTitle("Personality Quiz"))
}

func TestExcelSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	sink := NewExcelSink(path)
	m := scoring.Quiz()
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, BuildRow("Quiz Responses", sampleResult(), m)))
	second := sampleResult()
	second.Name = "Grace Hopper"
	require.NoError(t, sink.Append(ctx, BuildRow("Quiz Responses", second, m)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Quiz Responses"}, f.GetSheetList())
	rows, err := f.GetRows("Quiz Responses")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Timestamp", rows[0][0])
	assert.Equal(t, "Ada Lovelace", rows[1][2])
	assert.Equal(t, "Grace Hopper", rows[2][2])
}

func TestExportXLSX(t *testing.T) {
	survey := sampleResult()
	survey.Kind = domain.KindSurvey
	var buf bytes.Buffer
	err := ExportXLSX(&buf, []domain.QuestionnaireResult{sampleResult(), survey}, map[domain.QuestionnaireKind]Export{
		domain.KindQuiz:   {Sheet: "Quiz", Mapping: scoring.Quiz()},
		domain.KindSurvey: {Sheet: "Survey", Mapping: scoring.Survey()},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.ElementsMatch(t, []string{"Quiz", "Survey"}, f.GetSheetList())
	header, err := f.GetRows("Survey")
	require.NoError(t, err)
	assert.Len(t, header[0], 6+5+30)
}

type fakeSheetsAPI struct {
	mu       sync.Mutex
	sheets   []string
	header   bool
	appended [][]any
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheets.BatchUpdateSpreadsheetRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.sheets = append(f.sheets, req.Requests[0].AddSheet.Properties.Title)
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var vr gsheets.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values...)
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		f.header = true
		w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		if f.header {
			w.Write([]byte(`{"values":[["Timestamp"]]}`))
			return
		}
		w.Write([]byte(`{}`))
	case r.Method == http.MethodGet:
		props := make([]map[string]any, 0, len(f.sheets))
		for _, s := range f.sheets {
			props = append(props, map[string]any{"properties": map[string]any{"title": s}})
		}
		json.NewEncoder(w).Encode(map[string]any{"sheets": props})
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusBadRequest)
	}
}

func TestGoogleSinkCreatesSheetOnce(t *testing.T) {
	api := &fakeSheetsAPI{sheets: []string{"Sheet1"}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx := context.Background()
	svc, err := gsheets.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	sink := NewGoogleSinkWithService("sheet-id", svc)

	m := scoring.Quiz()
	require.NoError(t, sink.Append(ctx, BuildRow("Quiz Responses", sampleResult(), m)))
	require.NoError(t, sink.Append(ctx, BuildRow("Quiz Responses", sampleResult(), m)))

	assert.Equal(t, []string{"Sheet1", "Quiz Responses"}, api.sheets)
	assert.True(t, api.header)
	assert.Len(t, api.appended, 2)
	assert.Equal(t, "Ada Lovelace", api.appended[0][2])
}

func TestQuoteRange(t *testing.T) {
	assert.Equal(t, "'It''s'", quoteRange("It's"))
}
