package views

import (
	"time"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/session"
)

// View names.
const (
	ViewUpload     = "upload"
	ViewProcessing = "processing"
	ViewResults    = "results"
)

// View is the single active view for a session.
type View struct {
	View       string               `json:"view"`
	Status     domain.SessionStatus `json:"status"`
	Generation uint64               `json:"generation"`
	Upload     *UploadView          `json:"upload,omitempty"`
	Processing *ProcessingView      `json:"processing,omitempty"`
	Results    *ResultsView         `json:"results,omitempty"`
}

// RenderOptions carries presentation settings that are not session state.
type RenderOptions struct {
	SimulatedDuration time.Duration
	Results           ResultsOptions
	// Now defaults to time.Now.
	Now func() time.Time
}

// Render selects the view for a snapshot. Idle and error show the upload
// view, processing shows the progress view and success shows results.
func Render(snap session.Snapshot, opts RenderOptions) View {
	v := View{Status: snap.Status, Generation: snap.Generation}

	switch snap.Status {
	case domain.StatusProcessing:
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		name := ""
		if snap.Document != nil {
			name = snap.Document.Name
		}
		v.View = ViewProcessing
		v.Processing = NewProcessingView(name, snap.StartedAt, now(), opts.SimulatedDuration)
	case domain.StatusSuccess:
		if snap.Result == nil {
			// Snapshot already resets this case; fall back to upload if it slips through
			v.View = ViewUpload
			v.Status = domain.StatusIdle
			v.Upload = NewUploadView("")
			return v
		}
		v.View = ViewResults
		v.Results = NewResultsView(snap.Document, snap.ObjectURL, *snap.Result, opts.Results)
	case domain.StatusError:
		v.View = ViewUpload
		v.Upload = NewUploadView(snap.Error)
	default:
		v.View = ViewUpload
		v.Upload = NewUploadView("")
	}
	return v
}
