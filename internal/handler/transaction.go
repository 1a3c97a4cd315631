package handler

import (
	dctx "context"
	"net/http"
	"strings"

	"github.com/cradoe/fundsrail/internal/context"
	"github.com/cradoe/fundsrail/internal/errHandler"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/request"
	"github.com/cradoe/fundsrail/internal/response"
	"github.com/cradoe/fundsrail/internal/transfer"
	"github.com/cradoe/fundsrail/internal/validator"
)

type transactionHandler struct {
	transfers  Transfers
	errHandler *errHandler.ErrorRepository
}

func NewTransactionHandler(transfers Transfers, errHandler *errHandler.ErrorRepository) *transactionHandler {
	return &transactionHandler{
		transfers:  transfers,
		errHandler: errHandler,
	}
}

func (h *transactionHandler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleTransfer(w, r, h.transfers.Deposit)
}

func (h *transactionHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleTransfer(w, r, h.transfers.Withdraw)
}

type transferFunc func(ctx dctx.Context, user *models.User, req transfer.Request) (*transfer.Result, error)

func (h *transactionHandler) handleTransfer(w http.ResponseWriter, r *http.Request, run transferFunc) {
	type TransferInput struct {
		transfer.Request
		Validator validator.Validator `json:"-"`
	}

	var input TransferInput

	err := request.DecodeJSON(w, r, &input.Request)
	if err != nil {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))

	input.Validator.CheckField(input.Amount.IsPositive(), "amount", "Amount must be greater than zero")
	input.Validator.CheckField(input.Currency != "", "currency", "Currency is required")
	if input.Validator.HasErrors() {
		h.errHandler.FailedValidation(w, r, input.Validator)
		return
	}

	user := context.ContextGetAuthenticatedUser(r)

	result, err := run(r.Context(), user, input.Request)
	if err != nil {
		h.errHandler.AppError(w, r, err)
		return
	}

	switch result.Status {
	case transfer.ResultDeclined:
		err = response.JSONOkResponse(w, result, result.Message, nil)
	default:
		err = response.JSONAcceptedResponse(w, result, result.Message)
	}
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}
