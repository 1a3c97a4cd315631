package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cradoe/fundsrail/internal/lock"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/provider"
	"github.com/cradoe/fundsrail/internal/queue"
	"github.com/cradoe/fundsrail/internal/repository"
	"github.com/stretchr/testify/mock"
)

// fakeLedger keeps rows in memory and enforces the same guards as the SQL ledger,
// including the one-in-flight-transfer unique index.
type fakeLedger struct {
	mu        sync.Mutex
	seq       int
	wallets   map[string]*models.Wallet
	txns      map[string]*models.Transaction
	walletTxs map[string]*models.WalletTransaction
	writes    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		wallets:   make(map[string]*models.Wallet),
		txns:      make(map[string]*models.Transaction),
		walletTxs: make(map[string]*models.WalletTransaction),
	}
}

func (l *fakeLedger) addWallet(userID, currency string, balance int64) {
	l.wallets[userID+":"+currency] = &models.Wallet{ID: "wallet-" + userID + "-" + currency, UserID: userID, Currency: currency, Balance: balance}
}

// seed inserts a pair directly, bypassing the in-flight guard.
func (l *fakeLedger) seed(txn models.Transaction, walletTx models.WalletTransaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.txns[txn.ID] = &txn
	walletTx.TransactionID = sql.NullString{String: txn.ID, Valid: true}
	l.walletTxs[walletTx.ID] = &walletTx
}

func (l *fakeLedger) inFlightLocked(userID, transferType string) int {
	n := 0
	for _, wt := range l.walletTxs {
		if wt.UserID == userID && wt.Type == transferType && slices.Contains(models.InFlightStatuses, wt.Status) {
			n++
		}
	}
	return n
}

func (l *fakeLedger) countInFlight(userID, transferType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlightLocked(userID, transferType)
}

func (l *fakeLedger) walletTx(id string) models.WalletTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.walletTxs[id]
}

func (l *fakeLedger) txn(id string) models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.txns[id]
}

func (l *fakeLedger) rowCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.walletTxs)
}

func (l *fakeLedger) writeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

func (l *fakeLedger) HasInFlightTransfer(_ context.Context, userID, transferType string) (bool, error) {
	return l.countInFlight(userID, transferType) > 0, nil
}

func (l *fakeLedger) UserWallet(_ context.Context, userID, currency string) (*models.Wallet, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[userID+":"+currency]
	if !ok {
		return nil, false, nil
	}
	cp := *w
	return &cp, true, nil
}

func (l *fakeLedger) GetWalletTransaction(_ context.Context, id string) (*models.WalletTransaction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wt, ok := l.walletTxs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *wt
	return &cp, true, nil
}

func (l *fakeLedger) GetTransaction(_ context.Context, id string) (*models.Transaction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn, ok := l.txns[id]
	if !ok {
		return nil, false, nil
	}
	cp := *txn
	return &cp, true, nil
}

func (l *fakeLedger) CreatePending(_ context.Context, txn *models.Transaction, walletTx *models.WalletTransaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlightLocked(walletTx.UserID, walletTx.Type) > 0 {
		return repository.ErrDuplicate
	}

	l.seq++
	txn.ID = fmt.Sprintf("tx-%d", l.seq)
	walletTx.ID = fmt.Sprintf("wtx-%d", l.seq)
	walletTx.TransactionID = sql.NullString{String: txn.ID, Valid: true}

	txnCopy, wtCopy := *txn, *walletTx
	l.txns[txn.ID] = &txnCopy
	l.walletTxs[walletTx.ID] = &wtCopy
	l.writes++

	return nil
}

func (l *fakeLedger) Transition(_ context.Context, walletTxID string, from []string, to string, reason sql.NullString) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wt, ok := l.walletTxs[walletTxID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if !slices.Contains(from, wt.Status) {
		return false, nil
	}
	if slices.Contains(models.InFlightStatuses, to) && !slices.Contains(models.InFlightStatuses, wt.Status) &&
		l.inFlightLocked(wt.UserID, wt.Type) > 0 {
		return false, repository.ErrDuplicate
	}

	wt.Status = to
	if reason.Valid {
		wt.FailureReason = reason
	}
	if txn, ok := l.txns[wt.TransactionID.String]; ok {
		txn.Status = to
		if reason.Valid {
			txn.FailureReason = reason
		}
	}
	l.writes++

	return true, nil
}

func (l *fakeLedger) RefreshQuote(_ context.Context, walletTxID string, quote models.Quote, metadata models.TransactionMetadata) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wt, ok := l.walletTxs[walletTxID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if wt.Status != models.StatusReview {
		return false, nil
	}

	wt.ProviderQuoteRef = sql.NullString{String: quote.QuoteRef, Valid: true}
	metadata.Quote = &quote
	l.txns[wt.TransactionID.String].Metadata = metadata
	l.writes++

	return true, nil
}

type fakeAccounts struct {
	accounts []models.ExternalAccount
}

func (f *fakeAccounts) GetAllByUserAndProvider(_ context.Context, userID, providerName string) ([]models.ExternalAccount, error) {
	var out []models.ExternalAccount
	for _, a := range f.accounts {
		if a.UserID == userID && a.Provider == providerName {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeKyc struct {
	records map[string]*models.ProviderKyc
}

func (f *fakeKyc) FindByUserID(_ context.Context, userID, providerName string) (*models.ProviderKyc, bool, error) {
	rec, ok := f.records[userID]
	if !ok || rec.Provider != providerName {
		return nil, false, nil
	}
	return rec, true, nil
}

type fakeLimits struct {
	err error
}

func (f *fakeLimits) ValidateLimit(context.Context, string, int64, string, string) error {
	return f.err
}

type inlineRunner struct{}

func (inlineRunner) BackgroundTask(_ string, fn func() error) { _ = fn() }

type mockRisk struct{ mock.Mock }

func (m *mockRisk) Evaluate(ctx context.Context, req provider.RiskRequest) (*models.RiskEvaluation, error) {
	args := m.Called(ctx, req)
	eval, _ := args.Get(0).(*models.RiskEvaluation)
	return eval, args.Error(1)
}

type mockQuotes struct{ mock.Mock }

func (m *mockQuotes) RequestQuote(ctx context.Context, req provider.QuoteRequest) (*models.Quote, error) {
	args := m.Called(ctx, req)
	quote, _ := args.Get(0).(*models.Quote)
	return quote, args.Error(1)
}

type mockMonitoring struct{ mock.Mock }

func (m *mockMonitoring) MonitorDeposit(ctx context.Context, walletTxID string) (*provider.MonitoringResult, error) {
	args := m.Called(ctx, walletTxID)
	res, _ := args.Get(0).(*provider.MonitoringResult)
	return res, args.Error(1)
}

type mockJobs struct{ mock.Mock }

func (m *mockJobs) Enqueue(ctx context.Context, job queue.FundingJob) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

type harness struct {
	o          *Orchestrator
	ledger     *fakeLedger
	accounts   *fakeAccounts
	kyc        *fakeKyc
	limits     *fakeLimits
	risk       *mockRisk
	quotes     *mockQuotes
	monitoring *mockMonitoring
	jobs       *mockJobs
}

const testProvider = "zerohash"

var testUser = &models.User{ID: "user-1", FirstName: "Ada", Email: "ada@example.com", CountryCode: "US"}

func approvedAccount() models.ExternalAccount {
	return models.ExternalAccount{
		ID:                "acct-1",
		UserID:            testUser.ID,
		Provider:          testProvider,
		ParticipantCode:   sql.NullString{String: "P1", Valid: true},
		Status:            models.ExternalAccountApproved,
		ProviderKycStatus: "approved",
		AccessToken:       sql.NullString{String: "access-token", Valid: true},
		AccountRef:        sql.NullString{String: "acc-ref", Valid: true},
		Currency:          "USD",
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		ledger:     newFakeLedger(),
		accounts:   &fakeAccounts{accounts: []models.ExternalAccount{approvedAccount()}},
		kyc:        &fakeKyc{records: map[string]*models.ProviderKyc{testUser.ID: {ID: "pk-1", UserID: testUser.ID, Provider: testProvider, ProviderRef: "ZH-1", Status: "approved"}}},
		limits:     &fakeLimits{},
		risk:       new(mockRisk),
		quotes:     new(mockQuotes),
		monitoring: new(mockMonitoring),
		jobs:       new(mockJobs),
	}
	h.ledger.addWallet(testUser.ID, "USD", 1000)

	h.o = New(Config{
		Provider:        testProvider,
		SettlementAsset: "USDC",
		QuoteExpiry:     30 * time.Second,
		Lock:            lock.Options{TTL: time.Second, RetryCount: 200, RetryDelay: time.Millisecond},
	}, Deps{
		Ledger:     h.ledger,
		Accounts:   h.accounts,
		Kyc:        h.kyc,
		Limits:     h.limits,
		Risk:       h.risk,
		Quotes:     h.quotes,
		Monitoring: h.monitoring,
		Jobs:       h.jobs,
		Locker:     lock.NewMemoryLocker(),
		Background: inlineRunner{},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return h
}

func quote(ref string, expiresAt time.Time) *models.Quote {
	return &models.Quote{QuoteRef: ref, SourceCurrency: "USD", TargetCurrency: "USDC", Operation: models.QuoteOperationBuy, ExpiresAt: expiresAt}
}

var (
	acceptVerdict = &provider.MonitoringResult{ReviewStatus: provider.ReviewStatusCompleted, ReviewAnswer: provider.ReviewAnswerGreen}
	holdVerdict   = &provider.MonitoringResult{ReviewStatus: provider.ReviewStatusOnHold}
)
