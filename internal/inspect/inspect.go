// Package inspect gathers informational metadata about uploaded drawings.
// Nothing here rejects a document; results feed logs and the run audit.
package inspect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/encoder"
)

// Inspector reads a document and describes it.
type Inspector struct {
	pdfConf *model.Configuration
}

// New creates an Inspector with relaxed PDF validation.
func New() *Inspector {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Inspector{pdfConf: conf}
}

// Inspect returns size, hash and page or pixel dimensions of src. A read
// failure is returned as is. A parse failure still returns size and hash
// alongside the error.
func (i *Inspector) Inspect(ctx context.Context, src domain.Source) (domain.DocumentInfo, error) {
	data, err := encoder.ReadAll(ctx, src)
	if err != nil {
		return domain.DocumentInfo{}, err
	}
	return i.Describe(data, src.MIMEType())
}

// Describe inspects bytes already in memory.
func (i *Inspector) Describe(data []byte, mimeType string) (domain.DocumentInfo, error) {
	sum := sha256.Sum256(data)
	info := domain.DocumentInfo{
		SizeBytes: int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
	}

	switch mimeType {
	case domain.MIMETypePDF:
		n, err := api.PageCount(bytes.NewReader(data), i.pdfConf)
		if err != nil {
			return info, fmt.Errorf("pdf page count: %w", err)
		}
		info.PageCount = n
	case domain.MIMETypePNG, domain.MIMETypeJPEG:
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return info, fmt.Errorf("decode image header: %w", err)
		}
		info.Width = cfg.Width
		info.Height = cfg.Height
		info.PageCount = 1
	}

	return info, nil
}
