package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/shopspring/decimal"
)

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider responded %d: %s", e.StatusCode, e.Body)
}

type Endpoints struct {
	RiskURL       string
	QuoteURL      string
	MonitoringURL string
	FundingURL    string
}

// Client talks JSON to the risk, quote, monitoring and funding endpoints.
type Client struct {
	endpoints Endpoints
	apiKey    string
	http      *http.Client
}

func NewClient(endpoints Endpoints, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoints: endpoints,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) Evaluate(ctx context.Context, req RiskRequest) (*models.RiskEvaluation, error) {
	body := map[string]any{
		"access_token": req.AccessToken,
		"account_id":   req.AccountRef,
		"amount":       req.Amount,
		"currency":     req.Currency,
		"country_code": req.CountryCode,
	}

	var out models.RiskEvaluation
	if err := c.post(ctx, c.endpoints.RiskURL+"/signal/evaluate", body, &out); err != nil {
		return nil, err
	}
	out.Result = strings.ToUpper(out.Result)

	return &out, nil
}

func (c *Client) RequestQuote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	body := map[string]any{
		"participant_code": req.ParticipantRef,
		"underlying":       req.TargetCurrency,
		"quoted_currency":  req.SourceCurrency,
		"side":             req.Operation,
		"total":            req.Amount,
		"expiry_seconds":   int(req.Expiry.Seconds()),
	}

	var out struct {
		QuoteID   string          `json:"quote_id"`
		Amount    decimal.Decimal `json:"amount"`
		Rate      decimal.Decimal `json:"rate"`
		ExpiresAt time.Time       `json:"expires_at"`
	}
	if err := c.post(ctx, c.endpoints.QuoteURL+"/quotes", body, &out); err != nil {
		return nil, err
	}
	if out.QuoteID == "" {
		return nil, errors.New("provider returned a quote without id")
	}

	return &models.Quote{
		QuoteRef:       out.QuoteID,
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		Operation:      req.Operation,
		Amount:         out.Amount,
		Rate:           out.Rate,
		ExpiresAt:      out.ExpiresAt,
	}, nil
}

func (c *Client) MonitorDeposit(ctx context.Context, walletTransactionID string) (*MonitoringResult, error) {
	body := map[string]any{"transaction_id": walletTransactionID, "direction": "in"}

	var out MonitoringResult
	if err := c.post(ctx, c.endpoints.MonitoringURL+"/transactions/monitor", body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ExecuteQuote sends the quote id as the idempotency key so a repeated call for the
// same quote does not move funds twice.
func (c *Client) ExecuteQuote(ctx context.Context, participantRef, quoteRef string) (*Execution, error) {
	body := map[string]any{"participant_code": participantRef, "quote_id": quoteRef}
	headers := map[string]string{"Idempotency-Key": quoteRef}

	var out Execution
	if err := c.do(ctx, http.MethodPost, c.endpoints.FundingURL+"/quotes/execute", body, headers, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) GetExecution(ctx context.Context, participantRef, quoteRef string) (*Execution, bool, error) {
	endpoint := c.endpoints.FundingURL + "/quotes/" + url.PathEscape(quoteRef) + "/execution?participant_code=" + url.QueryEscape(participantRef)

	var out Execution
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &out)
	if err != nil {
		var status *StatusError
		if errors.As(err, &status) && status.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &out, true, nil
}

func (c *Client) post(ctx context.Context, url string, body any, dst any) error {
	return c.do(ctx, http.MethodPost, url, body, nil, dst)
}

func (c *Client) do(ctx context.Context, method, url string, body any, headers map[string]string, dst any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	return json.NewDecoder(res.Body).Decode(dst)
}
