package datauri

import (
	"bytes"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMIME string
		wantData []byte
		wantErr  bool
	}{
		{
			name:     "png",
			input:    "data:image/png;base64,aGVsbG8=",
			wantMIME: "image/png",
			wantData: []byte("hello"),
		},
		{
			name:     "jpeg with surrounding whitespace",
			input:    "  data:image/jpeg;base64,aGVsbG8=\n",
			wantMIME: "image/jpeg",
			wantData: []byte("hello"),
		},
		{
			name:     "pdf invoice",
			input:    "data:application/pdf;base64,aGVsbG8=",
			wantMIME: "application/pdf",
			wantData: []byte("hello"),
		},
		{name: "not a data uri", input: "not-an-image", wantErr: true},
		{name: "missing separator", input: "data:image/png;base64", wantErr: true},
		{name: "not base64 encoded", input: "data:image/png,hello", wantErr: true},
		{name: "text mime type", input: "data:text/plain;base64,aGVsbG8=", wantErr: true},
		{name: "other application type", input: "data:application/zip;base64,aGVsbG8=", wantErr: true},
		{name: "bad base64", input: "data:image/png;base64,!!!", wantErr: true},
		{name: "empty payload", input: "data:image/png;base64,", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalid", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if img.MIMEType != tt.wantMIME {
				t.Errorf("MIMEType = %q, want %q", img.MIMEType, tt.wantMIME)
			}
			if !bytes.Equal(img.Data, tt.wantData) {
				t.Errorf("Data = %q, want %q", img.Data, tt.wantData)
			}
		})
	}
}

func TestImageString(t *testing.T) {
	const uri = "data:image/png;base64,aGVsbG8="
	img, err := Parse(uri)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := img.String(); got != uri {
		t.Errorf("String() = %q, want %q", got, uri)
	}
}

func TestImageExtension(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":      ".jpg",
		"image/png":       ".png",
		"application/pdf": ".pdf",
		"image/x-unknown": ".bin",
	}
	for mimeType, want := range tests {
		if got := (Image{MIMEType: mimeType}).Extension(); got != want {
			t.Errorf("Extension(%q) = %q, want %q", mimeType, got, want)
		}
	}
}
