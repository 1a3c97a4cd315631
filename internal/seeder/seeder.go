package seeders

import (
	"context"
	"log/slog"
	"time"

	"github.com/cradoe/fundsrail/internal/repository"
)

const defaultTimeout = 5 * time.Second

type Seeder struct {
	DB     repository.Database
	logger *slog.Logger
}

func New(DB repository.Database, logger *slog.Logger) *Seeder {
	return &Seeder{
		DB:     DB,
		logger: logger,
	}
}

func (seeder *Seeder) Run(ctx context.Context) error {
	return seeder.seedKycData(ctx)
}
