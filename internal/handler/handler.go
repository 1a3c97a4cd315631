package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/settlement"
	"github.com/cradoe/fundsrail/internal/transfer"
)

type Transfers interface {
	Deposit(ctx context.Context, user *models.User, req transfer.Request) (*transfer.Result, error)
	Withdraw(ctx context.Context, user *models.User, req transfer.Request) (*transfer.Result, error)
}

type DepositResumer interface {
	ContinueDeposit(ctx context.Context, walletTxID string) (*transfer.ResumeResult, error)
	FailDeposit(ctx context.Context, walletTxID, reason string) (*transfer.ResumeResult, error)
	HoldDeposit(ctx context.Context, walletTxID, reason string) (*transfer.ResumeResult, error)
}

type Settler interface {
	MarkBlockchainTransactionSuccessful(ctx context.Context, txID string, wallet *models.BlockchainWallet, update settlement.Update) (*settlement.Result, error)
}

type BlockchainWallets interface {
	GetOne(ctx context.Context, id string) (*models.BlockchainWallet, bool, error)
}

// pathID returns the trimmed {name} wildcard of the matched route.
func pathID(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}
