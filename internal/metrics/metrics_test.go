package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("POST", "/v1/deposits", "200", 0.2)
	RecordHTTPRequest("POST", "/v1/deposits", "409", 0.1)
	RecordHTTPRequest("POST", "/v1/deposits", "200", 0.3)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/deposits", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/deposits", "409")))
}

func TestRecordResumption(t *testing.T) {
	ResumptionsTotal.Reset()

	RecordResumption("continue", true)
	RecordResumption("continue", false)
	RecordResumption("continue", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(ResumptionsTotal.WithLabelValues("continue", "true")))
	assert.Equal(t, float64(2), testutil.ToFloat64(ResumptionsTotal.WithLabelValues("continue", "false")))
}

func TestRecordSettlement(t *testing.T) {
	SettlementsTotal.Reset()

	RecordSettlement("link", "retry")

	assert.Equal(t, float64(1), testutil.ToFloat64(SettlementsTotal.WithLabelValues("link", "retry")))
}
