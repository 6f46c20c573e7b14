package rest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type input struct {
	VideoId string `json:"videoId"`
}

func TestReadJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "ok", body: `{"videoId":"v1"}`},
		{name: "empty", body: ``, wantErr: "must not be empty"},
		{name: "unknown field", body: `{"videoId":"v1","x":1}`, wantErr: "unknown field"},
		{name: "wrong type", body: `{"videoId":1}`, wantErr: "incorrect JSON type"},
		{name: "two values", body: `{"videoId":"v1"}{}`, wantErr: "single JSON value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var in input
			err := ReadJSON(httptest.NewRecorder(), r, &in)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "v1", in.VideoId)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteJSON(w, http.StatusCreated, Envelope{"success": true}, nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
}
