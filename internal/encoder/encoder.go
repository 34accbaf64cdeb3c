// Package encoder turns uploaded documents into base64 payloads for the remote model.
package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
)

// Encode reads all of src and returns its base64 text with the declared MIME type.
// Any open or read failure, including cancellation, is a ReadFailure.
func Encode(ctx context.Context, src domain.Source) (domain.EncodedPayload, error) {
	data, err := ReadAll(ctx, src)
	if err != nil {
		return domain.EncodedPayload{}, err
	}

	return domain.EncodedPayload{
		Data:     base64.StdEncoding.EncodeToString(data),
		MIMEType: src.MIMEType(),
	}, nil
}

// ReadAll reads the full content of src, honouring ctx between chunks.
func ReadAll(ctx context.Context, src domain.Source) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, domain.ReadFailure("open document", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, &ctxReader{ctx: ctx, r: rc}); err != nil {
		return nil, domain.ReadFailure("read document", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(p domain.EncodedPayload) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, domain.ReadFailure("decode payload", err)
	}
	return data, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// BytesSource is an in-memory document.
type BytesSource struct {
	name     string
	mimeType string
	data     []byte
}

// NewBytesSource wraps data as a Source.
func NewBytesSource(name, mimeType string, data []byte) *BytesSource {
	return &BytesSource{name: name, mimeType: mimeType, data: data}
}

func (s *BytesSource) Name() string     { return s.name }
func (s *BytesSource) MIMEType() string { return s.mimeType }

func (s *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// FileSource is a document on local disk.
type FileSource struct {
	path     string
	mimeType string
}

// NewFileSource wraps the file at path as a Source.
func NewFileSource(path, mimeType string) *FileSource {
	return &FileSource{path: path, mimeType: mimeType}
}

func (s *FileSource) Name() string     { return filepath.Base(s.path) }
func (s *FileSource) MIMEType() string { return s.mimeType }

func (s *FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}
