package views

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/session"
)

func TestValidateUpload(t *testing.T) {
	pngHead := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	pdfHead := []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	tests := []struct {
		name     string
		declared string
		head     []byte
		want     string
		wantErr  bool
	}{
		{name: "png", declared: "image/png", want: domain.MIMETypePNG},
		{name: "jpeg with params", declared: "image/JPEG; charset=binary", want: domain.MIMETypeJPEG},
		{name: "jpg alias", declared: "image/jpg", want: domain.MIMETypeJPEG},
		{name: "pdf", declared: "application/pdf", want: domain.MIMETypePDF},
		{name: "sniff empty", declared: "", head: pngHead, want: domain.MIMETypePNG},
		{name: "sniff octet stream", declared: "application/octet-stream", head: pdfHead, want: domain.MIMETypePDF},
		{name: "gif rejected", declared: "image/gif", wantErr: true},
		{name: "text rejected", declared: "text/plain", wantErr: true},
		{name: "sniffed text rejected", declared: "", head: []byte("hello world"), wantErr: true},
		{name: "garbage header", declared: "///", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateUpload(tt.declared, tt.head)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimulatedProgress(t *testing.T) {
	total := 15 * time.Second
	tests := []struct {
		elapsed     time.Duration
		wantPercent int
		wantStep    int
	}{
		{0, 0, 0},
		{149 * time.Millisecond, 0, 0},
		{150 * time.Millisecond, 1, 0},
		{2500 * time.Millisecond, 16, 1},
		{7500 * time.Millisecond, 50, 3},
		{12499 * time.Millisecond, 83, 4},
		{12500 * time.Millisecond, 83, 5},
		{15 * time.Second, 100, 5},
		{90 * time.Second, 100, 5},
		{-time.Second, 0, 0},
	}

	for _, tt := range tests {
		percent, step := SimulatedProgress(tt.elapsed, total)
		assert.Equal(t, tt.wantPercent, percent, "percent at %s", tt.elapsed)
		assert.Equal(t, tt.wantStep, step, "step at %s", tt.elapsed)
	}
}

func TestNewProcessingView(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v := NewProcessingView("gear.pdf", start, start.Add(5*time.Second), 0)

	assert.Equal(t, "gear.pdf", v.FileName)
	assert.Equal(t, 33, v.Progress)
	assert.Equal(t, 2, v.Step)
	assert.Equal(t, "Performing Optical Character Recognition (OCR)...", v.StepLabel)
	assert.Len(t, v.Steps, 6)
	assert.Equal(t, ProcessingNote, v.Note)
}

func TestFormatStructuredData(t *testing.T) {
	out, ok := FormatStructuredData(`{"title":"Bracket","dims":[10,20],"meta":{"rev":"B"}}`)
	require.True(t, ok)
	assert.Equal(t, "{\n  \"title\": \"Bracket\",\n  \"dims\": [\n    10,\n    20\n  ],\n  \"meta\": {\n    \"rev\": \"B\"\n  }\n}", out)

	out, ok = FormatStructuredData("  {\"a\" :\n 1}  ")
	require.True(t, ok)
	assert.Equal(t, "{\n  \"a\": 1\n}", out)

	raw := "title: Bracket, not json"
	out, ok = FormatStructuredData(raw)
	assert.False(t, ok)
	assert.Equal(t, raw, out)
}

func TestFormatStructuredData_MatchesBrowserSerialization(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "trailing zero", raw: `{"d":1.50}`, want: "{\n  \"d\": 1.5\n}"},
		{name: "exponent", raw: `{"d":1e2}`, want: "{\n  \"d\": 100\n}"},
		{name: "large exponent", raw: `[1e21, 123e18]`, want: "[\n  1e+21,\n  123000000000000000000\n]"},
		{name: "small numbers", raw: `[0.000001, 1e-7, 1.25e-8]`, want: "[\n  0.000001,\n  1e-7,\n  1.25e-8\n]"},
		{name: "negative zero", raw: `[-0, -0.0, -2.50]`, want: "[\n  0,\n  0,\n  -2.5\n]"},
		{name: "overflow", raw: `[1e400]`, want: "[\n  null\n]"},
		{name: "duplicate keys keep last value", raw: `{"a":1,"b":2,"a":3}`, want: "{\n  \"a\": 3,\n  \"b\": 2\n}"},
		{name: "index keys first", raw: `{"b":1,"10":2,"a":3,"2":4,"02":5}`, want: "{\n  \"2\": 4,\n  \"10\": 2,\n  \"b\": 1,\n  \"a\": 3,\n  \"02\": 5\n}"},
		{name: "empty containers", raw: `{"a":{},"b":[]}`, want: "{\n  \"a\": {},\n  \"b\": []\n}"},
		{name: "string escapes", raw: `["<a&b>", "\u00e9", "tab\there", "\u0001", "q\"s\\"]`, want: "[\n  \"<a&b>\",\n  \"é\",\n  \"tab\\there\",\n  \"\\u0001\",\n  \"q\\\"s\\\\\"\n]"},
		{name: "scalar", raw: ` "x" `, want: `"x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatStructuredData(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBaseFileName(t *testing.T) {
	tests := map[string]string{
		"bracket.png": "bracket",
		"part.v2.pdf": "part.v2",
		"README":      "README",
		".hidden":     ".hidden",
		"trailing.":   "trailing",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseFileName(in), in)
	}
}

func TestNewResultsView(t *testing.T) {
	doc := &domain.UploadedDocument{Name: "flange.pdf", MIMEType: domain.MIMETypePDF}
	vector := "<svg xmlns=\"http://www.w3.org/2000/svg\">\n  <line x1=\"0\" y1=\"0\" x2=\"10\" y2=\"10\"/>\n</svg>\n"
	result := domain.ProcessedResult{StructuredData: `{"part":"flange"}`, VectorDrawing: vector}

	v := NewResultsView(doc, "/api/v1/objects/abc", result, ResultsOptions{
		DownloadURL: func(kind string) string { return "/dl/" + kind },
	})

	assert.Equal(t, "/api/v1/objects/abc", v.OriginalURL)
	assert.Equal(t, "flange.pdf", v.FileName)
	assert.True(t, v.Formatted)
	assert.Equal(t, "{\n  \"part\": \"flange\"\n}", v.StructuredData)
	assert.Equal(t, v.StructuredData, v.CopyText)
	assert.Equal(t, vector, v.VectorDrawing)
	assert.Equal(t, []Tab{{ID: DownloadJSON, Label: "1D Data (JSON)"}, {ID: DownloadVector, Label: "2D Data (Vector)"}}, v.Tabs)

	jsonDL, ok := v.Download(DownloadJSON)
	require.True(t, ok)
	assert.Equal(t, "flange.json", jsonDL.Filename)
	assert.Equal(t, "application/json", jsonDL.ContentType)
	assert.Equal(t, v.CopyText, jsonDL.Content)
	assert.Equal(t, "/dl/json", jsonDL.URL)

	vecDL, ok := v.Download(DownloadVector)
	require.True(t, ok)
	assert.Equal(t, "flange.dxf", vecDL.Filename)
	assert.Equal(t, "image/svg+xml", vecDL.ContentType)
	assert.Equal(t, []byte(vector), []byte(vecDL.Content))
}

func TestNewResultsView_RawFallbackAndExtension(t *testing.T) {
	doc := &domain.UploadedDocument{Name: "sketch.jpeg", MIMEType: domain.MIMETypeJPEG}
	result := domain.ProcessedResult{StructuredData: "not json {", VectorDrawing: "<svg/>"}

	v := NewResultsView(doc, "blob:1", result, ResultsOptions{VectorExtension: "svg"})

	assert.False(t, v.Formatted)
	assert.Equal(t, "not json {", v.StructuredData)
	jsonDL, _ := v.Download(DownloadJSON)
	assert.Equal(t, "not json {", jsonDL.Content)
	vecDL, _ := v.Download(DownloadVector)
	assert.Equal(t, "sketch.svg", vecDL.Filename)
	assert.Empty(t, vecDL.URL)

	_, ok := v.Download("zip")
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	start := time.Now().Add(-3 * time.Second)
	doc := &domain.UploadedDocument{Name: "a.png", MIMEType: domain.MIMETypePNG}
	result := &domain.ProcessedResult{StructuredData: `{"a":1}`, VectorDrawing: "<svg/>"}
	fixedNow := func() time.Time { return start.Add(3 * time.Second) }

	t.Run("idle", func(t *testing.T) {
		v := Render(session.Snapshot{Status: domain.StatusIdle}, RenderOptions{})
		assert.Equal(t, ViewUpload, v.View)
		require.NotNil(t, v.Upload)
		assert.Empty(t, v.Upload.Error)
		assert.Equal(t, domain.AcceptedMIMETypes, v.Upload.Accept)
		assert.Nil(t, v.Processing)
		assert.Nil(t, v.Results)
	})

	t.Run("error", func(t *testing.T) {
		v := Render(session.Snapshot{Status: domain.StatusError, Error: domain.UserErrorMessage, Generation: 4}, RenderOptions{})
		assert.Equal(t, ViewUpload, v.View)
		assert.Equal(t, domain.UserErrorMessage, v.Upload.Error)
		assert.Equal(t, uint64(4), v.Generation)
	})

	t.Run("processing", func(t *testing.T) {
		v := Render(session.Snapshot{Status: domain.StatusProcessing, Document: doc, StartedAt: start}, RenderOptions{Now: fixedNow})
		assert.Equal(t, ViewProcessing, v.View)
		require.NotNil(t, v.Processing)
		assert.Equal(t, 20, v.Processing.Progress)
		assert.Equal(t, 1, v.Processing.Step)
		assert.Equal(t, "a.png", v.Processing.FileName)
	})

	t.Run("success", func(t *testing.T) {
		v := Render(session.Snapshot{Status: domain.StatusSuccess, Document: doc, ObjectURL: "blob:x", Result: result}, RenderOptions{})
		assert.Equal(t, ViewResults, v.View)
		require.NotNil(t, v.Results)
		assert.Equal(t, "blob:x", v.Results.OriginalURL)
		assert.Equal(t, "{\n  \"a\": 1\n}", v.Results.CopyText)
	})

	t.Run("success without result", func(t *testing.T) {
		v := Render(session.Snapshot{Status: domain.StatusSuccess, Document: doc}, RenderOptions{})
		assert.Equal(t, ViewUpload, v.View)
		assert.Equal(t, domain.StatusIdle, v.Status)
	})
}
