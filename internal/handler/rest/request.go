package rest

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
)

const maxBodyBytes = 64 << 10

var errMalformedBody = errors.New("malformed request body")

// publishRequest is the single shape every send endpoint works with,
// whatever the client put on the wire.
type publishRequest struct {
	Message string `json:"message"`
	Source  string `json:"source"`
	Topic   string `json:"topic"`
}

// decodePublishRequest normalizes a JSON, form or (when allowRaw) plain text body.
// Missing fields stay empty; defaults are applied by the caller.
func decodePublishRequest(w http.ResponseWriter, r *http.Request, allowRaw bool) (publishRequest, error) {
	var req publishRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return req, nil
			}
			return req, errMalformedBody
		}

	case mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, errMalformedBody
		}
		req.Message = r.FormValue("message")
		req.Source = r.FormValue("source")
		req.Topic = r.FormValue("topic")

	case allowRaw:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return req, errMalformedBody
		}
		req.Message = string(body)
	}

	return req, nil
}
