package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONAcceptedConvertsKeys(t *testing.T) {
	rr := httptest.NewRecorder()

	err := JSONAcceptedResponse(rr, map[string]any{"jobId": "funding-1", "riskEvaluation": map[string]any{"riskLevel": "low"}}, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Request successful", body.Message)
	assert.Equal(t, "funding-1", body.Data["job_id"])
	assert.Equal(t, "low", body.Data["risk_evaluation"].(map[string]any)["risk_level"])
}

func TestMetricsResponseWriterRecordsFirstStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	mw := NewMetricsResponseWriter(rr)

	mw.WriteHeader(http.StatusConflict)
	mw.WriteHeader(http.StatusOK)
	n, err := mw.Write([]byte("busy"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusConflict, mw.StatusCode)
	assert.Equal(t, n, mw.BytesCount)
	assert.Same(t, http.ResponseWriter(rr), mw.Unwrap())
}
