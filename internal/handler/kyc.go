package handler

import (
	dctx "context"
	"net/http"

	"github.com/cradoe/fundsrail/internal/errHandler"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/response"
)

type KycLevels interface {
	GetAll(ctx dctx.Context) ([]models.KYCLevel, error)
}

type KYCResponseData struct {
	ID                  string `json:"id"`
	LevelName           string `json:"level_name"`
	Currency            string `json:"currency"`
	DailyTransferLimit  string `json:"daily_transfer_limit"`
	SingleTransferLimit string `json:"single_transfer_limit"`
	DailyDepositLimit   string `json:"daily_deposit_limit"`
}

type KycHandler struct {
	KycRepo    KycLevels
	ErrHandler *errHandler.ErrorRepository
}

func NewKycHandler(handler *KycHandler) *KycHandler {
	return &KycHandler{
		KycRepo:    handler.KycRepo,
		ErrHandler: handler.ErrHandler,
	}
}

// HandleKYCs lists the tiers and the limits the transfer flow enforces for each.
func (h *KycHandler) HandleKYCs(w http.ResponseWriter, r *http.Request) {
	levels, err := h.KycRepo.GetAll(r.Context())
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if len(levels) == 0 {
		err = response.JSONOkResponse(w, []KYCResponseData{}, "No KYC found", nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	data := make([]KYCResponseData, len(levels))
	for i, level := range levels {
		data[i] = KYCResponseData{
			ID:                  level.ID,
			LevelName:           level.LevelName,
			Currency:            level.Currency,
			DailyTransferLimit:  formatLimit(level.DailyTransferLimit, level.Currency),
			SingleTransferLimit: formatLimit(level.SingleTransferLimit, level.Currency),
			DailyDepositLimit:   formatLimit(level.DailyDepositLimit, level.Currency),
		}
	}

	err = response.JSONOkResponse(w, data, "Data retrieved successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// zero means the tier does not cap that window
func formatLimit(minor int64, currency string) string {
	if minor == 0 {
		return "unlimited"
	}
	return models.FromMinorUnits(minor, currency).StringFixed(models.AssetDecimals(currency))
}
