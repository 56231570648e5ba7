// Package receipts archives receipt images in Cloud Storage and reads them back.
package receipts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/bizledger/internal/datauri"
)

const uploadTimeout = 2 * time.Minute

// Archive stores receipts in a single bucket.
type Archive struct {
	client *storage.Client
	bucket string
}

// NewArchive creates a storage client using Application Default Credentials.
func NewArchive(ctx context.Context, bucket string) (*Archive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewArchive: create storage client: %w", err)
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (a *Archive) Close() error {
	return a.client.Close()
}

// ObjectName returns the archive path for a receipt: receipts/YYYY/MM/DD/<id><ext>.
func ObjectName(id string, at time.Time, img datauri.Image) string {
	return path.Join("receipts", at.UTC().Format("2006/01/02"), id+img.Extension())
}

// Upload writes img under objectName and returns its gs:// URI.
func (a *Archive) Upload(ctx context.Context, objectName string, img datauri.Image) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = img.MIMEType

	if _, err := w.Write(img.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: write %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize %s: %w", objectName, err)
	}

	return "gs://" + a.bucket + "/" + objectName, nil
}

// Fetch downloads the object at gcsURI as an image. The MIME type comes from the
// object metadata, falling back to content sniffing.
func (a *Archive) Fetch(ctx context.Context, gcsURI string) (datauri.Image, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return datauri.Image{}, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return datauri.Image{}, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return datauri.Image{}, fmt.Errorf("Fetch: reading bytes: %w", err)
	}

	mimeType := rc.Attrs.ContentType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return datauri.Image{MIMEType: mimeType, Data: data}, nil
}

// ParseURI splits gs://bucket/path/to/object into bucket and object path.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}
