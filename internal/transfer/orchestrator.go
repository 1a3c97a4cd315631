package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cradoe/fundsrail/internal/apperr"
	"github.com/cradoe/fundsrail/internal/kyc"
	"github.com/cradoe/fundsrail/internal/lock"
	"github.com/cradoe/fundsrail/internal/metrics"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/notify"
	"github.com/cradoe/fundsrail/internal/provider"
	"github.com/cradoe/fundsrail/internal/queue"
	"github.com/cradoe/fundsrail/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	msgDepositUnavailable  = "Deposits are temporarily unavailable, please try again later"
	msgServiceUnavailable  = "Service temporarily unavailable, please try again later"
	msgInsufficientBalance = "Insufficient balance for withdrawal"
	msgLockBusy            = "Another request for this account is in progress, please retry shortly"
)

// Result statuses returned to the caller.
const (
	ResultProcessing = models.StatusProcessing
	ResultReview     = models.StatusReview
	ResultDeclined   = "declined"
)

type Ledger interface {
	HasInFlightTransfer(ctx context.Context, userID, transferType string) (bool, error)
	UserWallet(ctx context.Context, userID, currency string) (*models.Wallet, bool, error)
	GetWalletTransaction(ctx context.Context, id string) (*models.WalletTransaction, bool, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, bool, error)
	CreatePending(ctx context.Context, transaction *models.Transaction, walletTx *models.WalletTransaction) error
	Transition(ctx context.Context, walletTxID string, from []string, to string, reason sql.NullString) (bool, error)
	RefreshQuote(ctx context.Context, walletTxID string, quote models.Quote, metadata models.TransactionMetadata) (bool, error)
}

type AccountSource interface {
	GetAllByUserAndProvider(ctx context.Context, userID, provider string) ([]models.ExternalAccount, error)
}

type KycStatusLookup interface {
	FindByUserID(ctx context.Context, userID, provider string) (*models.ProviderKyc, bool, error)
}

type TierLimitValidator interface {
	ValidateLimit(ctx context.Context, userID string, amount int64, currency, transferType string) error
}

type ActivityRecorder interface {
	Insert(ctx context.Context, log *models.ActivityLog) (*models.ActivityLog, error)
}

type BackgroundRunner interface {
	BackgroundTask(name string, fn func() error)
}

type Config struct {
	// Provider is used when the request does not name one
	Provider        string
	SettlementAsset string
	QuoteExpiry     time.Duration
	Lock            lock.Options
}

type Deps struct {
	Ledger     Ledger
	Accounts   AccountSource
	Kyc        KycStatusLookup
	Limits     TierLimitValidator
	Risk       provider.RiskSignalProvider
	Quotes     provider.QuoteProvider
	Monitoring provider.MonitoringService
	Jobs       queue.JobQueue
	Locker     lock.Locker
	Activity   ActivityRecorder
	Notifier   notify.Sink
	Background BackgroundRunner
	Logger     *slog.Logger
}

// Orchestrator drives the deposit and withdrawal saga and its webhook re-entry.
type Orchestrator struct {
	cfg Config
	Deps
	now func() time.Time
}

func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.QuoteExpiry <= 0 {
		cfg.QuoteExpiry = 30 * time.Second
	}

	return &Orchestrator{cfg: cfg, Deps: deps, now: time.Now}
}

type Request struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Provider string          `json:"provider,omitempty"`
}

type Result struct {
	Status         string                 `json:"status"`
	TransactionRef string                 `json:"transaction_ref,omitempty"`
	TransactionID  string                 `json:"transaction_id,omitempty"`
	JobID          string                 `json:"job_id,omitempty"`
	Message        string                 `json:"message"`
	RiskEvaluation *models.RiskEvaluation `json:"risk_evaluation,omitempty"`
}

// transferContext is everything resolved before the lock is taken.
type transferContext struct {
	user         *models.User
	account      *models.ExternalAccount
	transferType string
	provider     string
	currency     string
	amount       decimal.Decimal
	amountMinor  int64
}

func (o *Orchestrator) Deposit(ctx context.Context, user *models.User, req Request) (*Result, error) {
	res, err := o.run(ctx, user, req, models.TransactionTypeDeposit, o.deposit)
	recordOutcome(models.TransactionTypeDeposit, res, err)
	return res, err
}

func (o *Orchestrator) Withdraw(ctx context.Context, user *models.User, req Request) (*Result, error) {
	res, err := o.run(ctx, user, req, models.TransactionTypeWithdrawal, o.withdraw)
	recordOutcome(models.TransactionTypeWithdrawal, res, err)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, user *models.User, req Request, transferType string, step func(context.Context, *transferContext) (*Result, error)) (*Result, error) {
	tc, err := o.prepare(ctx, user, req, transferType)
	if err != nil {
		return nil, err
	}

	key := lock.DepositKey(tc.user.ID, tc.account.ID)
	if transferType == models.TransactionTypeWithdrawal {
		key = lock.WithdrawKey(tc.user.ID, tc.account.ID)
	}

	res, err := lock.WithLock(ctx, o.Locker, o.Logger, key, o.cfg.Lock, func(ctx context.Context) (*Result, error) {
		return step(ctx, tc)
	})
	if errors.Is(err, lock.ErrLockAcquisition) {
		metrics.RecordLockFailure(transferType)
		return nil, apperr.Wrap(apperr.KindLockAcquisition, msgLockBusy, err)
	}

	return res, err
}

// prepare validates the request and resolves the user's single eligible account.
func (o *Orchestrator) prepare(ctx context.Context, user *models.User, req Request, transferType string) (*transferContext, error) {
	if user == nil || user.ID == "" {
		return nil, apperr.BadRequest("User is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !models.IsSupportedAsset(currency) {
		return nil, apperr.BadRequest(fmt.Sprintf("Currency %q is not supported", req.Currency))
	}

	if !req.Amount.IsPositive() {
		return nil, apperr.BadRequest("Amount must be greater than zero")
	}

	amountMinor, err := models.ToMinorUnits(req.Amount, currency)
	if err != nil {
		return nil, apperr.BadRequest(fmt.Sprintf("Amount supports at most %d decimal places for %s", models.AssetDecimals(currency), currency))
	}

	providerName := strings.TrimSpace(req.Provider)
	if providerName == "" {
		providerName = o.cfg.Provider
	}
	if providerName == "" {
		return nil, apperr.BadRequest("Provider is required")
	}

	_, found, err := o.Kyc.FindByUserID(ctx, user.ID, providerName)
	if err != nil {
		return nil, fmt.Errorf("lookup provider kyc: %w", err)
	}
	if !found {
		return nil, apperr.NotFound("Complete identity verification with the provider before moving funds")
	}

	account, err := o.selectAccount(ctx, user.ID, providerName)
	if err != nil {
		return nil, err
	}

	return &transferContext{
		user:         user,
		account:      account,
		transferType: transferType,
		provider:     providerName,
		currency:     currency,
		amount:       req.Amount,
		amountMinor:  amountMinor,
	}, nil
}

func (o *Orchestrator) selectAccount(ctx context.Context, userID, providerName string) (*models.ExternalAccount, error) {
	accounts, err := o.Accounts.GetAllByUserAndProvider(ctx, userID, providerName)
	if err != nil {
		return nil, fmt.Errorf("load external accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, apperr.NotFound("No linked bank account found")
	}

	var (
		eligible      []models.ExternalAccount
		blockedStatus *string
	)

	for _, account := range accounts {
		if !kyc.IsApproved(account.ProviderKycStatus) {
			if blockedStatus == nil {
				status := account.ProviderKycStatus
				blockedStatus = &status
			}
			continue
		}
		if !account.ParticipantCode.Valid || account.ParticipantCode.String == "" {
			continue
		}
		if account.Status != models.ExternalAccountApproved && account.Status != models.ExternalAccountPendingDisconnect {
			continue
		}
		eligible = append(eligible, account)
	}

	switch {
	case len(eligible) > 1:
		return nil, apperr.Conflict("More than one eligible bank account is linked for this provider")
	case len(eligible) == 0 && blockedStatus != nil:
		return nil, kyc.BlockedError(*blockedStatus)
	case len(eligible) == 0:
		return nil, apperr.BadRequest("No eligible bank account found")
	}

	account := eligible[0]
	if !account.AccessToken.Valid || account.AccessToken.String == "" || !account.AccountRef.Valid || account.AccountRef.String == "" {
		return nil, apperr.BadRequest("Linked bank account credentials are missing, please relink your account")
	}

	return &account, nil
}

func (o *Orchestrator) deposit(ctx context.Context, tc *transferContext) (*Result, error) {
	wallet, err := o.precheck(ctx, tc)
	if err != nil {
		return nil, err
	}

	var (
		risk  *models.RiskEvaluation
		quote *models.Quote
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		eval, err := o.Risk.Evaluate(gctx, provider.RiskRequest{
			AccessToken: tc.account.AccessToken.String,
			AccountRef:  tc.account.AccountRef.String,
			Amount:      tc.amount,
			Currency:    tc.currency,
			CountryCode: tc.user.CountryCode,
		})
		if err != nil {
			return fmt.Errorf("risk signal: %w", err)
		}
		risk = eval
		return nil
	})

	g.Go(func() error {
		q, err := o.Quotes.RequestQuote(gctx, o.quoteRequest(tc))
		if err != nil {
			return fmt.Errorf("quote: %w", err)
		}
		quote = q
		return nil
	})

	if err := g.Wait(); err != nil {
		o.Logger.Warn("deposit collaborators failed", slog.String("user_id", tc.user.ID), slog.Any("error", err))
		return nil, apperr.ServiceUnavailable(msgDepositUnavailable, err)
	}

	switch risk.Result {
	case models.RiskResultAccept, models.RiskResultReview:
	default:
		return &Result{
			Status:         ResultDeclined,
			Message:        "Deposit declined after risk evaluation",
			RiskEvaluation: risk,
		}, nil
	}

	txn, walletTx, err := o.createPending(ctx, tc, wallet, quote, risk)
	if err != nil {
		return nil, err
	}

	verdict, err := o.Monitoring.MonitorDeposit(ctx, walletTx.ID)
	if err != nil {
		o.moveOrLog(ctx, walletTx.ID, EventMonitorReject, "Transaction monitoring unavailable")
		return nil, apperr.ServiceUnavailable(msgDepositUnavailable, err)
	}

	switch {
	case verdict.OnHold():
		reason := verdict.FailureReason
		if reason == "" {
			reason = "Held by transaction monitoring"
		}
		if _, err := o.apply(ctx, walletTx.ID, EventMonitorHold, reason); err != nil {
			return nil, fmt.Errorf("hold deposit: %w", err)
		}
		o.publish(notify.EventTransferReview, txn, models.StatusReview, reason)

		return &Result{
			Status:         ResultReview,
			TransactionRef: txn.Reference,
			TransactionID:  walletTx.ID,
			Message:        "Deposit is under review",
			RiskEvaluation: risk,
		}, nil

	case !verdict.Accepted():
		reason := verdict.FailureReason
		if reason == "" {
			reason = "Deposit rejected by transaction monitoring"
		}
		if _, err := o.apply(ctx, walletTx.ID, EventMonitorReject, reason); err != nil {
			return nil, fmt.Errorf("reject deposit: %w", err)
		}
		o.publish(notify.EventTransferFailed, txn, models.StatusFailed, reason)

		return nil, apperr.Processing("Deposit could not be processed: " + reason)
	}

	return o.startProcessing(ctx, txn, walletTx, quote.QuoteRef, EventSubmit)
}

func (o *Orchestrator) withdraw(ctx context.Context, tc *transferContext) (*Result, error) {
	wallet, err := o.precheck(ctx, tc)
	if err != nil {
		return nil, err
	}

	if wallet.Balance < tc.amountMinor {
		return nil, apperr.BadRequest(msgInsufficientBalance)
	}

	quote, err := o.Quotes.RequestQuote(ctx, o.quoteRequest(tc))
	if err != nil {
		return nil, apperr.ServiceUnavailable(msgServiceUnavailable, err)
	}

	txn, walletTx, err := o.createPending(ctx, tc, wallet, quote, nil)
	if err != nil {
		return nil, err
	}

	return o.startProcessing(ctx, txn, walletTx, quote.QuoteRef, EventSubmit)
}

// precheck runs the in-flight conflict check and the tier limits, then loads the wallet.
func (o *Orchestrator) precheck(ctx context.Context, tc *transferContext) (*models.Wallet, error) {
	inFlight, err := o.Ledger.HasInFlightTransfer(ctx, tc.user.ID, tc.transferType)
	if err != nil {
		return nil, fmt.Errorf("check in-flight transfers: %w", err)
	}
	if inFlight {
		return nil, apperr.Conflict(fmt.Sprintf("You already have a %s in progress", tc.transferType))
	}

	if err := o.Limits.ValidateLimit(ctx, tc.user.ID, tc.amountMinor, tc.currency, tc.transferType); err != nil {
		return nil, err
	}

	wallet, found, err := o.Ledger.UserWallet(ctx, tc.user.ID, tc.currency)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if !found {
		return nil, apperr.NotFound(fmt.Sprintf("No %s wallet found", tc.currency))
	}

	return wallet, nil
}

func (o *Orchestrator) quoteRequest(tc *transferContext) provider.QuoteRequest {
	req := provider.QuoteRequest{
		ParticipantRef: tc.account.ParticipantCode.String,
		Amount:         tc.amount,
		Expiry:         o.cfg.QuoteExpiry,
	}

	if tc.transferType == models.TransactionTypeDeposit {
		req.Operation = models.QuoteOperationBuy
		req.SourceCurrency = tc.currency
		req.TargetCurrency = o.cfg.SettlementAsset
	} else {
		req.Operation = models.QuoteOperationSell
		req.SourceCurrency = o.cfg.SettlementAsset
		req.TargetCurrency = tc.currency
	}

	return req
}

func (o *Orchestrator) createPending(ctx context.Context, tc *transferContext, wallet *models.Wallet, quote *models.Quote, risk *models.RiskEvaluation) (*models.Transaction, *models.WalletTransaction, error) {
	qr := o.quoteRequest(tc)

	source, destination, prefix, signed := "external_account", "wallet", "DEP", tc.amountMinor
	if tc.transferType == models.TransactionTypeWithdrawal {
		source, destination, prefix, signed = "wallet", "external_account", "WDR", -tc.amountMinor
	}

	txn := &models.Transaction{
		UserID:        tc.user.ID,
		Reference:     newReference(prefix),
		Asset:         tc.currency,
		Amount:        signed,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance,
		Type:          tc.transferType,
		Category:      models.TransactionCategoryFiat,
		Scope:         models.TransactionScopeExternal,
		Status:        models.StatusPending,
		Metadata: models.TransactionMetadata{
			Quote:      quote,
			RiskSignal: risk,
			Transfer: &models.TransferParams{
				Provider:          tc.provider,
				ParticipantRef:    qr.ParticipantRef,
				ExternalAccountID: tc.account.ID,
				SourceCurrency:    qr.SourceCurrency,
				TargetCurrency:    qr.TargetCurrency,
				Operation:         qr.Operation,
				Amount:            tc.amount,
			},
		},
		Description: sql.NullString{String: fmt.Sprintf("%s of %s %s", tc.transferType, tc.amount.String(), tc.currency), Valid: true},
	}

	walletTx := &models.WalletTransaction{
		WalletID:          wallet.ID,
		UserID:            tc.user.ID,
		Type:              tc.transferType,
		Amount:            tc.amountMinor,
		BalanceBefore:     wallet.Balance,
		BalanceAfter:      wallet.Balance,
		Currency:          tc.currency,
		Status:            models.StatusPending,
		Provider:          tc.provider,
		ProviderQuoteRef:  sql.NullString{String: quote.QuoteRef, Valid: true},
		Source:            source,
		Destination:       destination,
		ExternalAccountID: tc.account.ID,
	}

	if err := o.Ledger.CreatePending(ctx, txn, walletTx); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, apperr.Conflict(fmt.Sprintf("You already have a %s in progress", tc.transferType))
		}
		return nil, nil, fmt.Errorf("create ledger entries: %w", err)
	}

	o.recordActivity(txn.UserID, txn.ID, models.StatusPending, fmt.Sprintf("%s %s created", tc.transferType, txn.Reference))

	return txn, walletTx, nil
}

// startProcessing is the shared tail of the saga: both rows to processing, then the funding job.
func (o *Orchestrator) startProcessing(ctx context.Context, txn *models.Transaction, walletTx *models.WalletTransaction, quoteRef string, event Event) (*Result, error) {
	applied, err := o.apply(ctx, walletTx.ID, event, "")
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	if !applied {
		return nil, apperr.Conflict("Transaction changed while it was being processed")
	}

	jobID, err := o.Jobs.Enqueue(ctx, queue.FundingJob{
		WalletTransactionID: walletTx.ID,
		TransactionID:       txn.ID,
		UserID:              walletTx.UserID,
		ExternalAccountID:   walletTx.ExternalAccountID,
		TransferType:        walletTx.Type,
		QuoteRef:            quoteRef,
	})
	if err != nil {
		o.Logger.Error("failed to enqueue funding job", slog.String("wallet_transaction_id", walletTx.ID), slog.Any("error", err))
		o.moveOrLog(ctx, walletTx.ID, EventFundingReject, "Funding could not be scheduled")

		msg := msgServiceUnavailable
		if walletTx.Type == models.TransactionTypeDeposit {
			msg = msgDepositUnavailable
		}
		return nil, apperr.ServiceUnavailable(msg, err)
	}

	o.recordActivity(txn.UserID, txn.ID, models.StatusProcessing, fmt.Sprintf("%s %s queued as %s", walletTx.Type, txn.Reference, jobID))
	o.publish(notify.EventTransferProcessing, txn, models.StatusProcessing, "")

	return &Result{
		Status:         ResultProcessing,
		TransactionRef: txn.Reference,
		TransactionID:  walletTx.ID,
		JobID:          jobID,
		Message:        fmt.Sprintf("Your %s is being processed", walletTx.Type),
	}, nil
}

// apply moves both rows along the saga table; reason is written only when non-empty.
func (o *Orchestrator) apply(ctx context.Context, walletTxID string, event Event, reason string) (bool, error) {
	r := rules[event]
	return o.Ledger.Transition(ctx, walletTxID, r.from, r.to, nullable(reason))
}

// moveOrLog is used on paths that already return an error to the caller.
func (o *Orchestrator) moveOrLog(ctx context.Context, walletTxID string, event Event, reason string) {
	if _, err := o.apply(context.WithoutCancel(ctx), walletTxID, event, reason); err != nil {
		o.Logger.Error("failed to record transfer failure",
			slog.String("wallet_transaction_id", walletTxID),
			slog.String("event", string(event)),
			slog.Any("error", err))
	}
}

func (o *Orchestrator) recordActivity(userID, transactionID, status, description string) {
	if o.Activity == nil || o.Background == nil {
		return
	}

	o.Background.BackgroundTask("activity-log", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := o.Activity.Insert(ctx, &models.ActivityLog{
			UserID:      userID,
			Entity:      repository.ActivityLogTransactionEntity,
			EntityID:    transactionID,
			Status:      status,
			Description: description,
		})
		return err
	})
}

func (o *Orchestrator) publish(eventType string, txn *models.Transaction, status, reason string) {
	if o.Background == nil {
		return
	}

	amount := txn.Amount
	if amount < 0 {
		amount = -amount
	}

	event := notify.Event{
		Type:          eventType,
		UserID:        txn.UserID,
		TransactionID: txn.ID,
		Reference:     txn.Reference,
		TransferType:  txn.Type,
		Amount:        models.FromMinorUnits(amount, txn.Asset).StringFixed(models.AssetDecimals(txn.Asset)),
		Asset:         txn.Asset,
		Status:        status,
		Reason:        reason,
		OccurredAt:    o.now().UTC(),
	}

	o.Background.BackgroundTask("notify:"+eventType, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return o.Notifier.Notify(ctx, event)
	})
}

func newReference(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + strings.ToUpper(id[:20])
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func recordOutcome(transferType string, res *Result, err error) {
	switch {
	case err != nil:
		metrics.RecordTransfer(transferType, string(apperr.KindOf(err)))
	case res != nil:
		metrics.RecordTransfer(transferType, res.Status)
	}
}
