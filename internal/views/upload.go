// Package views builds the upload, processing and results view models a
// client renders for each session status.
package views

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
)

// SniffLen is how many leading bytes ValidateUpload inspects.
const SniffLen = 512

const octetStream = "application/octet-stream"

// UploadView is shown while idle and after a failure.
type UploadView struct {
	Accept []string `json:"accept"`
	Error  string   `json:"error,omitempty"`
}

// NewUploadView creates the upload view with an optional error message.
func NewUploadView(errMsg string) *UploadView {
	accept := make([]string, len(domain.AcceptedMIMETypes))
	copy(accept, domain.AcceptedMIMETypes)
	return &UploadView{Accept: accept, Error: errMsg}
}

// ValidateUpload resolves the MIME type of an upload. Parameters on the
// declared type are dropped. An empty or generic declared type is sniffed from
// head. Anything outside the accepted list is a ValidationError.
func ValidateUpload(declared string, head []byte) (string, error) {
	mediaType := ""
	if declared != "" {
		mt, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", domain.ValidationError(fmt.Sprintf("unreadable content type %q", declared), err)
		}
		mediaType = strings.ToLower(mt)
	}

	if mediaType == "" || mediaType == octetStream {
		if len(head) > SniffLen {
			head = head[:SniffLen]
		}
		sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(head))
		mediaType = sniffed
	}

	if mediaType == "image/jpg" {
		mediaType = domain.MIMETypeJPEG
	}

	for _, accepted := range domain.AcceptedMIMETypes {
		if mediaType == accepted {
			return mediaType, nil
		}
	}
	return "", domain.ValidationError(fmt.Sprintf("unsupported file type %q", mediaType), nil)
}
