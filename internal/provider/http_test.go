package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quotes", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "buy", body["side"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quote_id":"q-77","amount":"100","rate":"0.9998","expires_at":"2030-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	client := NewClient(Endpoints{QuoteURL: srv.URL}, "secret", time.Second)

	quote, err := client.RequestQuote(context.Background(), QuoteRequest{
		ParticipantRef: "P1",
		SourceCurrency: "USD",
		TargetCurrency: "USDC",
		Operation:      models.QuoteOperationBuy,
		Amount:         decimal.NewFromInt(100),
		Expiry:         time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "q-77", quote.QuoteRef)
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("0.9998")))
	assert.Equal(t, "USD", quote.SourceCurrency)
}

func TestEvaluateNormalizesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"accept","ruleset_key":"default","request_ref":"r-1"}`))
	}))
	defer srv.Close()

	client := NewClient(Endpoints{RiskURL: srv.URL}, "", time.Second)

	eval, err := client.Evaluate(context.Background(), RiskRequest{Amount: decimal.NewFromInt(5), Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, models.RiskResultAccept, eval.Result)
}

func TestNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Endpoints{MonitoringURL: srv.URL}, "", time.Second)

	_, err := client.MonitorDeposit(context.Background(), "wtx-1")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestMonitoringResultVerdicts(t *testing.T) {
	assert.True(t, MonitoringResult{ReviewStatus: ReviewStatusCompleted, ReviewAnswer: ReviewAnswerGreen}.Accepted())
	assert.False(t, MonitoringResult{ReviewStatus: ReviewStatusCompleted, ReviewAnswer: ReviewAnswerRed}.Accepted())
	assert.True(t, MonitoringResult{ReviewStatus: ReviewStatusOnHold}.OnHold())
}

func TestExecuteQuoteSendsIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/quotes/execute", r.URL.Path)
		assert.Equal(t, "q-1", r.Header.Get("Idempotency-Key"))
		w.Write([]byte(`{"external_ref":"ext-1","status":"settled"}`))
	}))
	defer srv.Close()

	client := NewClient(Endpoints{FundingURL: srv.URL}, "", time.Second)

	execution, err := client.ExecuteQuote(context.Background(), "P1", "q-1")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", execution.ExternalRef)
	assert.Equal(t, ExecutionSettled, execution.Status)
}

func TestGetExecution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "P1", r.URL.Query().Get("participant_code"))

		switch r.URL.Path {
		case "/quotes/q-1/execution":
			w.Write([]byte(`{"external_ref":"ext-1","status":"settled"}`))
		default:
			http.Error(w, "no execution", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(Endpoints{FundingURL: srv.URL}, "", time.Second)

	execution, found, err := client.GetExecution(context.Background(), "P1", "q-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ext-1", execution.ExternalRef)

	_, found, err = client.GetExecution(context.Background(), "P1", "q-unknown")
	require.NoError(t, err)
	assert.False(t, found)
}
