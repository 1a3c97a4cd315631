package handler

import (
	dctx "context"
	"errors"
	"net/http"
	"strings"

	"github.com/cradoe/fundsrail/internal/errHandler"
	"github.com/cradoe/fundsrail/internal/request"
	"github.com/cradoe/fundsrail/internal/response"
	"github.com/cradoe/fundsrail/internal/transfer"
)

// webhookHandler receives provider callbacks for deposits waiting in review or failed.
type webhookHandler struct {
	deposits   DepositResumer
	errHandler *errHandler.ErrorRepository
}

func NewWebhookHandler(deposits DepositResumer, errHandler *errHandler.ErrorRepository) *webhookHandler {
	return &webhookHandler{
		deposits:   deposits,
		errHandler: errHandler,
	}
}

type webhookInput struct {
	Reason string `json:"reason"`
}

func (h *webhookHandler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	h.resume(w, r, func(ctx dctx.Context, id, _ string) (*transfer.ResumeResult, error) {
		return h.deposits.ContinueDeposit(ctx, id)
	})
}

func (h *webhookHandler) HandleFail(w http.ResponseWriter, r *http.Request) {
	h.resume(w, r, h.deposits.FailDeposit)
}

func (h *webhookHandler) HandleHold(w http.ResponseWriter, r *http.Request) {
	h.resume(w, r, h.deposits.HoldDeposit)
}

func (h *webhookHandler) resume(w http.ResponseWriter, r *http.Request, apply func(ctx dctx.Context, id, reason string) (*transfer.ResumeResult, error)) {
	id := pathID(r, "id")
	if id == "" {
		h.errHandler.NotFound(w, r)
		return
	}

	var input webhookInput

	// callbacks may arrive without a body
	err := request.DecodeJSON(w, r, &input)
	if err != nil && !errors.Is(err, request.ErrEmptyBody) {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	result, err := apply(r.Context(), id, strings.TrimSpace(input.Reason))
	if err != nil {
		h.errHandler.AppError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, result, result.Message, nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}
