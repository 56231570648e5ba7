// Package datauri decodes the self-describing payloads accepted by the
// receipt extraction flow: data:<mime-type>;base64,<payload>. Receipts may be
// any image/* type or a PDF invoice.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
)

const (
	scheme       = "data:"
	base64Marker = ";base64"
)

// ErrInvalid is returned for any payload that is not a base64 image or PDF data URI.
var ErrInvalid = errors.New("invalid image data URI")

// Image is a decoded inline receipt: an image or a PDF document.
type Image struct {
	MIMEType string
	Data     []byte
}

// Parse decodes s. Only base64-encoded image/* and application/pdf payloads are accepted.
func Parse(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, scheme) {
		return Image{}, fmt.Errorf("%w: missing %q prefix", ErrInvalid, scheme)
	}

	header, payload, ok := strings.Cut(s[len(scheme):], ",")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing ',' separator", ErrInvalid)
	}
	if !strings.HasSuffix(header, base64Marker) {
		return Image{}, fmt.Errorf("%w: payload must be base64 encoded", ErrInvalid)
	}

	mediaType, _, err := mime.ParseMediaType(strings.TrimSuffix(header, base64Marker))
	if err != nil {
		return Image{}, fmt.Errorf("%w: mime type: %v", ErrInvalid, err)
	}
	if !strings.HasPrefix(mediaType, "image/") && mediaType != "application/pdf" {
		return Image{}, fmt.Errorf("%w: unsupported mime type %q", ErrInvalid, mediaType)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: base64: %v", ErrInvalid, err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty payload", ErrInvalid)
	}

	return Image{MIMEType: mediaType, Data: data}, nil
}

// String re-encodes the image as a data URI.
func (i Image) String() string {
	return scheme + i.MIMEType + base64Marker + "," + base64.StdEncoding.EncodeToString(i.Data)
}

// Extension returns a file extension suitable for archiving the image.
func (i Image) Extension() string {
	switch i.MIMEType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "application/pdf":
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(i.MIMEType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
