package views

import (
	"encoding/json"
	"strings"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
)

// Download kinds.
const (
	DownloadJSON   = "json"
	DownloadVector = "vector"
)

const (
	jsonContentType   = "application/json"
	vectorContentType = "image/svg+xml"

	// DefaultVectorExtension keeps the historical download name.
	DefaultVectorExtension = ".dxf"
)

// Tab labels for the two result panes.
const (
	TabStructured = "1D Data (JSON)"
	TabVector     = "2D Data (Vector)"
)

// Download is one downloadable artifact.
type Download struct {
	Kind        string `json:"kind"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"-"`
	URL         string `json:"url,omitempty"`
}

// Tab is a labelled result pane.
type Tab struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ResultsView shows the original beside both artifacts.
type ResultsView struct {
	OriginalURL    string     `json:"originalUrl"`
	FileName       string     `json:"fileName"`
	MIMEType       string     `json:"mimeType"`
	StructuredData string     `json:"structuredData"`
	Formatted      bool       `json:"formatted"`
	CopyText       string     `json:"copyText"`
	VectorDrawing  string     `json:"vectorDrawing"`
	Tabs           []Tab      `json:"tabs"`
	Downloads      []Download `json:"downloads"`
}

// FormatStructuredData pretty-prints raw with two-space indentation, the way a
// browser re-serializes parsed JSON: numbers in shortest form, the last of any
// duplicate keys, integer-like keys first. When raw is not valid JSON it is
// returned unchanged with ok=false.
func FormatStructuredData(raw string) (string, bool) {
	if !json.Valid([]byte(raw)) {
		return raw, false
	}

	v, err := decodeOrdered([]byte(raw))
	if err != nil {
		return raw, false
	}
	var out strings.Builder
	writeIndented(&out, v, "")
	return out.String(), true
}

// BaseFileName strips the last extension from name. A name whose stem would be
// empty, like ".env", is returned whole.
func BaseFileName(name string) string {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name
	}
	return name[:i]
}

// ResultsOptions tunes download naming and URLs.
type ResultsOptions struct {
	VectorExtension string
	// DownloadURL maps a download kind to a fetchable URL; nil leaves URLs empty.
	DownloadURL func(kind string) string
}

// NewResultsView builds the results view for a successful cycle.
func NewResultsView(doc *domain.UploadedDocument, originalURL string, result domain.ProcessedResult, opts ResultsOptions) *ResultsView {
	ext := opts.VectorExtension
	if ext == "" {
		ext = DefaultVectorExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	var name, mimeType string
	if doc != nil {
		name = doc.Name
		mimeType = doc.MIMEType
	}

	formatted, ok := FormatStructuredData(result.StructuredData)
	base := BaseFileName(name)

	downloads := []Download{
		{
			Kind:        DownloadJSON,
			Filename:    base + ".json",
			ContentType: jsonContentType,
			Content:     formatted,
		},
		{
			Kind:        DownloadVector,
			Filename:    base + ext,
			ContentType: vectorContentType,
			Content:     result.VectorDrawing,
		},
	}
	if opts.DownloadURL != nil {
		for i := range downloads {
			downloads[i].URL = opts.DownloadURL(downloads[i].Kind)
		}
	}

	return &ResultsView{
		OriginalURL:    originalURL,
		FileName:       name,
		MIMEType:       mimeType,
		StructuredData: formatted,
		Formatted:      ok,
		CopyText:       formatted,
		VectorDrawing:  result.VectorDrawing,
		Tabs: []Tab{
			{ID: DownloadJSON, Label: TabStructured},
			{ID: DownloadVector, Label: TabVector},
		},
		Downloads: downloads,
	}
}

// Download returns the download of the given kind.
func (v *ResultsView) Download(kind string) (Download, bool) {
	for _, d := range v.Downloads {
		if d.Kind == kind {
			return d, true
		}
	}
	return Download{}, false
}
