package handler

import (
	dctx "context"
	"net/http"
	"time"

	"github.com/cradoe/fundsrail/internal/context"
	"github.com/cradoe/fundsrail/internal/errHandler"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/response"
)

type WalletTransactions interface {
	GetWalletTransaction(ctx dctx.Context, id string) (*models.WalletTransaction, bool, error)
}

type TransferResponseData struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Type          string     `json:"type"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

type WalletHandler struct {
	Transactions WalletTransactions
	ErrHandler   *errHandler.ErrorRepository
}

func NewWalletHandler(handler *WalletHandler) *WalletHandler {
	return &WalletHandler{
		Transactions: handler.Transactions,
		ErrHandler:   handler.ErrHandler,
	}
}

// HandleTransferStatus lets the owner poll a deposit or withdrawal. Other users get 404.
func (h *WalletHandler) HandleTransferStatus(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	user := context.ContextGetAuthenticatedUser(r)

	walletTx, found, err := h.Transactions.GetWalletTransaction(r.Context(), id)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found || walletTx.UserID != user.ID {
		h.ErrHandler.NotFound(w, r)
		return
	}

	data := TransferResponseData{
		ID:            walletTx.ID,
		TransactionID: walletTx.TransactionID.String,
		Type:          walletTx.Type,
		Amount:        models.FromMinorUnits(walletTx.Amount, walletTx.Currency).StringFixed(models.AssetDecimals(walletTx.Currency)),
		Currency:      walletTx.Currency,
		Status:        walletTx.Status,
		FailureReason: walletTx.FailureReason.String,
		CreatedAt:     walletTx.CreatedAt,
	}
	if walletTx.UpdatedAt.Valid {
		data.UpdatedAt = &walletTx.UpdatedAt.Time
	}

	err = response.JSONOkResponse(w, data, "Transfer retrieved successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
