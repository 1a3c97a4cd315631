package handler

import (
	"net/http"
	"strings"

	"github.com/cradoe/fundsrail/internal/errHandler"
	"github.com/cradoe/fundsrail/internal/request"
	"github.com/cradoe/fundsrail/internal/response"
	"github.com/cradoe/fundsrail/internal/settlement"
	"github.com/cradoe/fundsrail/internal/validator"
)

type settlementHandler struct {
	settler    Settler
	wallets    BlockchainWallets
	errHandler *errHandler.ErrorRepository
}

func NewSettlementHandler(settler Settler, wallets BlockchainWallets, errHandler *errHandler.ErrorRepository) *settlementHandler {
	return &settlementHandler{
		settler:    settler,
		wallets:    wallets,
		errHandler: errHandler,
	}
}

func (h *settlementHandler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	type SettleInput struct {
		WalletID     string              `json:"wallet_id"`
		TxHash       string              `json:"tx_hash"`
		BalanceAfter *int64              `json:"balance_after"`
		Description  string              `json:"description"`
		Validator    validator.Validator `json:"-"`
	}

	txID := pathID(r, "id")
	if txID == "" {
		h.errHandler.NotFound(w, r)
		return
	}

	var input SettleInput

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	input.WalletID = strings.TrimSpace(input.WalletID)
	input.TxHash = strings.TrimSpace(input.TxHash)

	input.Validator.CheckField(input.WalletID != "", "wallet_id", "Wallet id is required")
	input.Validator.CheckField(input.TxHash != "", "tx_hash", "Transaction hash is required")
	input.Validator.CheckField(input.BalanceAfter == nil || *input.BalanceAfter >= 0, "balance_after", "Balance after must not be negative")
	if input.Validator.HasErrors() {
		h.errHandler.FailedValidation(w, r, input.Validator)
		return
	}

	wallet, found, err := h.wallets.GetOne(r.Context(), input.WalletID)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.errHandler.NotFound(w, r)
		return
	}

	result, err := h.settler.MarkBlockchainTransactionSuccessful(r.Context(), txID, wallet, settlement.Update{
		TxHash:       input.TxHash,
		BalanceAfter: input.BalanceAfter,
		Description:  input.Description,
	})
	if err != nil {
		h.errHandler.AppError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, result, "Blockchain transaction settled", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}
