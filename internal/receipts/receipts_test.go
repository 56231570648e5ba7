package receipts

import (
	"testing"
	"time"

	"github.com/dvloznov/bizledger/internal/datauri"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/receipts/2024/06/01/a.jpg", "bucket", "receipts/2024/06/01/a.jpg", false},
		{"gs://bucket/file.png", "bucket", "file.png", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"https://example.com/a.png", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI() = %q, %q", bucket, object)
			}
		})
	}
}

func TestObjectName(t *testing.T) {
	at := time.Date(2024, 6, 1, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	got := ObjectName("job-1", at, datauri.Image{MIMEType: "image/jpeg"})
	if got != "receipts/2024/06/02/job-1.jpg" {
		t.Errorf("ObjectName() = %q", got)
	}
}
