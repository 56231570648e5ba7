package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes bounds request bodies; receipt images arrive base64 encoded.
const maxBodyBytes = 15 << 20

// decodeBody decodes a JSON body into dst. An empty body leaves dst untouched
// and reports empty=true.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) (empty bool, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err = json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
