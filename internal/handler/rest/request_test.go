package rest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePublishRequest(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		allowRaw    bool
		want        publishRequest
		wantErr     bool
	}{
		{"json", "application/json; charset=utf-8", `{"message":"m","source":"s","topic":"t"}`, false, publishRequest{"m", "s", "t"}, false},
		{"empty json body", "application/json", ``, false, publishRequest{}, false},
		{"json wrong type", "application/json", `{"message":5}`, false, publishRequest{}, true},
		{"form", "application/x-www-form-urlencoded", `message=m&source=s`, false, publishRequest{Message: "m", Source: "s"}, false},
		{"raw allowed", "text/plain", "raw body", true, publishRequest{Message: "raw body"}, false},
		{"raw ignored", "text/plain", "raw body", false, publishRequest{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			got, err := decodePublishRequest(httptest.NewRecorder(), req, tt.allowRaw)
			if tt.wantErr {
				require.ErrorIs(t, err, errMalformedBody)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
