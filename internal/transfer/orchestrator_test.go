package transfer

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cradoe/fundsrail/internal/apperr"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/provider"
	"github.com/cradoe/fundsrail/internal/queue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func depositRequest(amount int64) Request {
	return Request{Amount: decimal.NewFromInt(amount), Currency: "USD"}
}

func TestDepositAcceptedGoesToProcessing(t *testing.T) {
	h := newHarness(t)

	h.risk.On("Evaluate", mock.Anything, mock.MatchedBy(func(req provider.RiskRequest) bool {
		return req.AccessToken == "access-token" && req.CountryCode == "US" && req.Currency == "USD"
	})).Return(&models.RiskEvaluation{Result: models.RiskResultAccept, RulesetKey: "default"}, nil)
	h.quotes.On("RequestQuote", mock.Anything, mock.MatchedBy(func(req provider.QuoteRequest) bool {
		return req.Operation == models.QuoteOperationBuy && req.SourceCurrency == "USD" && req.TargetCurrency == "USDC" && req.ParticipantRef == "P1"
	})).Return(quote("q-1", time.Now().Add(time.Minute)), nil)
	h.monitoring.On("MonitorDeposit", mock.Anything, "wtx-1").Return(acceptVerdict, nil)
	h.jobs.On("Enqueue", mock.Anything, mock.MatchedBy(func(job queue.FundingJob) bool {
		return job.WalletTransactionID == "wtx-1" && job.TransactionID == "tx-1" && job.QuoteRef == "q-1"
	})).Return("funding-wtx-1-q-1", nil)

	res, err := h.o.Deposit(context.Background(), testUser, depositRequest(100))
	require.NoError(t, err)

	assert.Equal(t, ResultProcessing, res.Status)
	assert.Equal(t, "wtx-1", res.TransactionID)
	assert.Equal(t, "funding-wtx-1-q-1", res.JobID)
	assert.NotEmpty(t, res.TransactionRef)

	wt := h.ledger.walletTx("wtx-1")
	txn := h.ledger.txn("tx-1")
	assert.Equal(t, models.StatusProcessing, wt.Status)
	assert.Equal(t, models.StatusProcessing, txn.Status)
	assert.Equal(t, int64(10000), wt.Amount)
	assert.Equal(t, int64(1000), txn.BalanceBefore)
	assert.Equal(t, txn.BalanceBefore, txn.BalanceAfter)
	assert.Equal(t, "q-1", wt.ProviderQuoteRef.String)
	require.NotNil(t, txn.Metadata.Transfer)
	assert.Equal(t, "acct-1", txn.Metadata.Transfer.ExternalAccountID)
	assert.Equal(t, models.RiskResultAccept, txn.Metadata.RiskSignal.Result)

	h.jobs.AssertExpectations(t)
}

func TestDepositRiskReviewIsHeldByMonitoring(t *testing.T) {
	h := newHarness(t)

	h.risk.On("Evaluate", mock.Anything, mock.Anything).Return(&models.RiskEvaluation{Result: models.RiskResultReview}, nil)
	h.quotes.On("RequestQuote", mock.Anything, mock.Anything).Return(quote("q-1", time.Now().Add(time.Minute)), nil)
	h.monitoring.On("MonitorDeposit", mock.Anything, "wtx-1").Return(holdVerdict, nil)

	res, err := h.o.Deposit(context.Background(), testUser, depositRequest(100))
	require.NoError(t, err)

	assert.Equal(t, ResultReview, res.Status)
	assert.Equal(t, models.StatusReview, h.ledger.walletTx("wtx-1").Status)
	assert.Equal(t, models.StatusReview, h.ledger.txn("tx-1").Status)
	h.jobs.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestDepositRerouteIsDeclinedWithoutRows(t *testing.T) {
	h := newHarness(t)

	eval := &models.RiskEvaluation{Result: models.RiskResultReroute, RequestRef: "r-9"}
	h.risk.On("Evaluate", mock.Anything, mock.Anything).Return(eval, nil)
	h.quotes.On("RequestQuote", mock.Anything, mock.Anything).Return(quote("q-1", time.Now().Add(time.Minute)), nil)

	res, err := h.o.Deposit(context.Background(), testUser, depositRequest(100))
	require.NoError(t, err)

	assert.Equal(t, ResultDeclined, res.Status)
	assert.Equal(t, eval, res.RiskEvaluation)
	assert.Zero(t, h.ledger.rowCount())
}

func TestDepositCollaboratorFailureIsDepositUnavailable(t *testing.T) {
	h := newHarness(t)

	h.risk.On("Evaluate", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	h.quotes.On("RequestQuote", mock.Anything, mock.Anything).Return(quote("q-1", time.Now().Add(time.Minute)), nil).Maybe()

	_, err := h.o.Deposit(context.Background(), testUser, depositRequest(100))
	require.Error(t, err)

	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))
	assert.Equal(t, msgDepositUnavailable, apperr.MessageOf(err))
	assert.Zero(t, h.ledger.rowCount())
}

func TestDepositMonitoringRejectionFailsRows(t *testing.T) {
	h := newHarness(t)

	h.risk.On("Evaluate", mock.Anything, mock.Anything).Return(&models.RiskEvaluation{Result: models.RiskResultAccept}, nil)
	h.quotes.On("RequestQuote", mock.Anything, mock.Anything).Return(quote("q-1", time.Now().Add(time.Minute)), nil)
	h.monitoring.On("MonitorDeposit", mock.Anything, "wtx-1").Return(&provider.MonitoringResult{
		ReviewStatus:  provider.ReviewStatusCompleted,
		ReviewAnswer:  provider.ReviewAnswerRed,
		FailureReason: "sanctions match",
	}, nil)

	_, err := h.o.Deposit(context.Background(), testUser, depositRequest(100))
	require.Error(t, err)

	assert.Equal(t, apperr.KindProcessing, apperr.KindOf(err))
	wt := h.ledger.walletTx("wtx-1")
	assert.Equal(t, models.StatusFailed, wt.Status)
	assert.Equal(t, "sanctions match", wt.FailureReason.String)
	assert.Zero(t, h.ledger.countInFlight(testUser.ID, models.TransactionTypeDeposit))
}

func TestDepositMonitoringOutageFailsRows(t *testing.T) {
	h := newHarness(t)

	h.risk.On("Evaluate", mock.Anything, mock.Anything).Return(&models.RiskEvaluation{Result: models.RiskResultAccept}, nil)
	h.quotes.On("RequestQuote", mock.Anything, mock.Anything).Return(quote("q-1", time.Now().Add(time.Minute)), nil)
	h.monitoring.On("MonitorDeposit", mock.Anything, "wtx-1").Return(nil, errors.New("connection refused"))

	_, err := h.o.Deposit(context.Background(), testUser, depositRequest(100))
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))
	assert.Equal(t, models.StatusFailed, h.ledger.walletTx("wtx-1").Status)
}

func TestSecondDepositWhilePendingConflicts(t *testing.T) {
	h := newHarness(t)
	h.ledger.seed(
		models.Transaction{ID: "tx-0", UserID: testUser.ID, Type: models.TransactionTypeDeposit, Status: models.StatusPending},
		models.WalletTransaction{ID: "wtx-0", UserID: testUser.ID, Type: models.TransactionTypeDeposit, Status: models.StatusPending, ExternalAccountID: "acct-1"},
	)

	_, err := h.o.Deposit(context.Background(), testUser, depositRequest(100))
	require.Error(t, err)

	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	h.risk.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
	assert.Equal(t, 1, h.ledger.rowCount())
}

func TestConcurrentDepositsLeaveOneInFlight(t *testing.T) {
	h := newHarness(t)

	h.risk.On("Evaluate", mock.Anything, mock.Anything).Return(&models.RiskEvaluation{Result: models.RiskResultAccept}, nil)
	h.quotes.On("RequestQuote", mock.Anything, mock.Anything).Return(quote("q-1", time.Now().Add(time.Minute)), nil)
	h.monitoring.On("MonitorDeposit", mock.Anything, mock.Anything).Return(acceptVerdict, nil)
	h.jobs.On("Enqueue", mock.Anything, mock.Anything).Return("job", nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.o.Deposit(context.Background(), testUser, depositRequest(100))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.KindOf(err) == apperr.KindConflict:
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, conflicts)
	assert.Equal(t, 1, h.ledger.countInFlight(testUser.ID, models.TransactionTypeDeposit))
}

func TestWithdrawalWithInsufficientBalance(t *testing.T) {
	h := newHarness(t)

	_, err := h.o.Withdraw(context.Background(), testUser, depositRequest(50))
	require.Error(t, err)

	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	assert.Equal(t, "Insufficient balance for withdrawal", apperr.MessageOf(err))
	assert.Zero(t, h.ledger.rowCount())
	h.quotes.AssertNotCalled(t, "RequestQuote", mock.Anything, mock.Anything)
}

func TestWithdrawalSkipsRiskAndMonitoring(t *testing.T) {
	h := newHarness(t)

	h.quotes.On("RequestQuote", mock.Anything, mock.MatchedBy(func(req provider.QuoteRequest) bool {
		return req.Operation == models.QuoteOperationSell && req.SourceCurrency == "USDC" && req.TargetCurrency == "USD"
	})).Return(quote("q-2", time.Now().Add(time.Minute)), nil)
	h.jobs.On("Enqueue", mock.Anything, mock.Anything).Return("funding-wtx-1-q-2", nil)

	res, err := h.o.Withdraw(context.Background(), testUser, Request{Amount: decimal.RequireFromString("7.5"), Currency: "usd"})
	require.NoError(t, err)

	assert.Equal(t, ResultProcessing, res.Status)
	assert.Equal(t, int64(-750), h.ledger.txn("tx-1").Amount)
	assert.Equal(t, int64(750), h.ledger.walletTx("wtx-1").Amount)
	h.risk.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
	h.monitoring.AssertNotCalled(t, "MonitorDeposit", mock.Anything, mock.Anything)
}

func TestEnqueueFailureFailsRows(t *testing.T) {
	h := newHarness(t)

	h.quotes.On("RequestQuote", mock.Anything, mock.Anything).Return(quote("q-2", time.Now().Add(time.Minute)), nil)
	h.jobs.On("Enqueue", mock.Anything, mock.Anything).Return("", errors.New("broker down"))

	_, err := h.o.Withdraw(context.Background(), testUser, depositRequest(5))
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))
	assert.Equal(t, models.StatusFailed, h.ledger.walletTx("wtx-1").Status)
}

func TestLimitExceededSurfaces(t *testing.T) {
	h := newHarness(t)
	h.limits.err = apperr.LimitExceeded("Amount exceeds your daily deposit limit")

	_, err := h.o.Deposit(context.Background(), testUser, depositRequest(100))
	assert.Equal(t, apperr.KindLimitExceeded, apperr.KindOf(err))
	assert.Zero(t, h.ledger.rowCount())
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		req  Request
	}{
		{"zero amount", Request{Amount: decimal.Zero, Currency: "USD"}},
		{"negative amount", Request{Amount: decimal.NewFromInt(-5), Currency: "USD"}},
		{"unsupported currency", Request{Amount: decimal.NewFromInt(5), Currency: "XYZ"}},
		{"too precise", Request{Amount: decimal.RequireFromString("1.001"), Currency: "USD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.o.Deposit(context.Background(), testUser, tt.req)
			assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
		})
	}
}

func TestAccountEligibility(t *testing.T) {
	blocked := approvedAccount()
	blocked.ProviderKycStatus = "LOCKED"

	noParticipant := approvedAccount()
	noParticipant.ParticipantCode = sql.NullString{}

	second := approvedAccount()
	second.ID = "acct-2"

	noCredentials := approvedAccount()
	noCredentials.AccessToken = sql.NullString{}

	disconnected := approvedAccount()
	disconnected.Status = models.ExternalAccountDisconnected

	pendingDisconnect := approvedAccount()
	pendingDisconnect.Status = models.ExternalAccountPendingDisconnect

	tests := []struct {
		name     string
		accounts []models.ExternalAccount
		wantKind apperr.Kind
	}{
		{"no accounts", nil, apperr.KindNotFound},
		{"kyc blocked", []models.ExternalAccount{blocked}, apperr.KindProviderKycBlocked},
		{"missing participant", []models.ExternalAccount{noParticipant}, apperr.KindBadRequest},
		{"disconnected", []models.ExternalAccount{disconnected}, apperr.KindBadRequest},
		{"two eligible", []models.ExternalAccount{approvedAccount(), second}, apperr.KindConflict},
		{"missing credentials", []models.ExternalAccount{noCredentials}, apperr.KindBadRequest},
		{"pending disconnect is eligible", []models.ExternalAccount{pendingDisconnect}, apperr.KindLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.accounts.accounts = tt.accounts
			// an eligible account reaches the limit check, which fails here
			h.limits.err = apperr.LimitExceeded("limit")

			_, err := h.o.Deposit(context.Background(), testUser, depositRequest(10))
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestProviderKycBlockedMessage(t *testing.T) {
	h := newHarness(t)
	account := approvedAccount()
	account.ProviderKycStatus = "Pending_Approval"
	h.accounts.accounts = []models.ExternalAccount{account}

	_, err := h.o.Deposit(context.Background(), testUser, depositRequest(10))
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderKycBlocked, apperr.KindOf(err))
	assert.NotEmpty(t, apperr.MessageOf(err))
}

func TestMissingProviderKycRecord(t *testing.T) {
	h := newHarness(t)
	h.kyc.records = map[string]*models.ProviderKyc{}

	_, err := h.o.Deposit(context.Background(), testUser, depositRequest(10))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
