package app

import (
	"net/http"

	"github.com/cradoe/fundsrail/internal/handler"
	"github.com/cradoe/fundsrail/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	mid := middleware.New(app.errorHandler, app.Logger, app.DB.User(), &app.Config)

	healthHandler := handler.NewHealthCheckHandler(app.errorHandler, map[string]handler.Check{
		"postgres": app.DB.Ping,
		"redis":    app.Cache.Ping,
	})
	transactionHandler := handler.NewTransactionHandler(app.Transfers, app.errorHandler)
	walletHandler := handler.NewWalletHandler(&handler.WalletHandler{
		Transactions: app.DB.Ledger(),
		ErrHandler:   app.errorHandler,
	})
	kycHandler := handler.NewKycHandler(&handler.KycHandler{
		KycRepo:    app.DB.KYC(),
		ErrHandler: app.errorHandler,
	})
	webhookHandler := handler.NewWebhookHandler(app.Transfers, app.errorHandler)
	settlementHandler := handler.NewSettlementHandler(app.Settlement, app.DB.BlockchainWallet(), app.errorHandler)

	authed := func(h http.HandlerFunc) http.Handler {
		return mid.Authenticate(mid.RequireAuthenticatedUser(h))
	}
	signed := func(h http.HandlerFunc) http.Handler {
		return mid.VerifyWebhookSignature(h)
	}

	mux.HandleFunc("GET /status", healthHandler.HandleHealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/kyc-levels", kycHandler.HandleKYCs)

	mux.Handle("POST /v1/deposits", authed(transactionHandler.HandleDeposit))
	mux.Handle("POST /v1/withdrawals", authed(transactionHandler.HandleWithdraw))
	mux.Handle("GET /v1/transfers/{id}", authed(walletHandler.HandleTransferStatus))

	mux.Handle("POST /v1/webhooks/deposits/{id}/continue", signed(webhookHandler.HandleContinue))
	mux.Handle("POST /v1/webhooks/deposits/{id}/fail", signed(webhookHandler.HandleFail))
	mux.Handle("POST /v1/webhooks/deposits/{id}/hold", signed(webhookHandler.HandleHold))
	mux.Handle("POST /v1/blockchain/transactions/{id}/settle", signed(settlementHandler.HandleSettle))

	return mid.RequestID(mid.LogAccess(mid.RecoverPanic(mid.Metrics(mux))))
}
