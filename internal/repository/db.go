package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/cradoe/fundsrail/assets"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

const defaultTimeout = 3 * time.Second

var (
	// ErrDuplicate is returned when an insert or update hits a unique constraint
	ErrDuplicate = errors.New("duplicate record")

	// ErrStateChanged means a guarded update found the row in a different status than expected
	ErrStateChanged = errors.New("record status changed")
)

// Database interface defines available repositories
type Database interface {
	User() UserRepository
	Activity() ActivityRepository
	KYC() KycRepository
	ProviderKyc() ProviderKycRepository
	ExternalAccount() ExternalAccountRepository
	Wallet() WalletRepository
	Transaction() TransactionRepository
	WalletTransaction() WalletTransactionRepository
	BlockchainWallet() BlockchainWalletRepository
	BlockchainWalletTransaction() BlockchainWalletTransactionRepository
	Ledger() LedgerRepository
	BlockchainLedger() BlockchainLedgerRepository

	Close() error
	Ping(ctx context.Context) error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// DatabaseImpl implements the Database interface
type DatabaseImpl struct {
	db               *sqlx.DB
	userRepo         UserRepository
	activityRepo     ActivityRepository
	kycRepo          KycRepository
	providerKycRepo  ProviderKycRepository
	externalRepo     ExternalAccountRepository
	walletRepo       WalletRepository
	transactionRepo  TransactionRepository
	walletTxRepo     WalletTransactionRepository
	blockchainRepo   BlockchainWalletRepository
	blockchainTxRepo BlockchainWalletTransactionRepository
	ledgerRepo       LedgerRepository
	blockchainLedger BlockchainLedgerRepository

	mu sync.Mutex
}

// New initializes a database connection and runs migrations if enabled
func New(dsn string, automigrate bool) (Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", "postgres://"+dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	if automigrate {
		iofsDriver, err := iofs.New(assets.EmbeddedFiles, "migrations")
		if err != nil {
			return nil, err
		}

		migrator, err := migrate.NewWithSourceInstance("iofs", iofsDriver, "postgres://"+dsn)
		if err != nil {
			return nil, err
		}

		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	}

	return NewFromDB(db), nil
}

// NewFromDB wraps an existing connection pool without running migrations.
func NewFromDB(db *sqlx.DB) Database {
	return &DatabaseImpl{db: db}
}

func (d *DatabaseImpl) Close() error {
	return d.db.Close()
}

func (d *DatabaseImpl) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseImpl) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return d.db.BeginTxx(ctx, opts)
}

func (d *DatabaseImpl) User() UserRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.userRepo == nil {
		d.userRepo = NewUserRepository(d.db)
	}
	return d.userRepo
}

func (d *DatabaseImpl) Activity() ActivityRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activityRepo == nil {
		d.activityRepo = NewActivityRepository(d.db)
	}
	return d.activityRepo
}

func (d *DatabaseImpl) KYC() KycRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.kycRepo == nil {
		d.kycRepo = NewKycRepository(d.db)
	}
	return d.kycRepo
}

func (d *DatabaseImpl) ProviderKyc() ProviderKycRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.providerKycRepo == nil {
		d.providerKycRepo = NewProviderKycRepository(d.db)
	}
	return d.providerKycRepo
}

func (d *DatabaseImpl) ExternalAccount() ExternalAccountRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.externalRepo == nil {
		d.externalRepo = NewExternalAccountRepository(d.db)
	}
	return d.externalRepo
}

func (d *DatabaseImpl) Wallet() WalletRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.walletRepo == nil {
		d.walletRepo = NewWalletRepository(d.db)
	}
	return d.walletRepo
}

func (d *DatabaseImpl) Transaction() TransactionRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transactionRepo == nil {
		d.transactionRepo = NewTransactionRepository(d.db)
	}
	return d.transactionRepo
}

func (d *DatabaseImpl) WalletTransaction() WalletTransactionRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.walletTxRepo == nil {
		d.walletTxRepo = NewWalletTransactionRepository(d.db)
	}
	return d.walletTxRepo
}

func (d *DatabaseImpl) BlockchainWallet() BlockchainWalletRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.blockchainRepo == nil {
		d.blockchainRepo = NewBlockchainWalletRepository(d.db)
	}
	return d.blockchainRepo
}

func (d *DatabaseImpl) BlockchainWalletTransaction() BlockchainWalletTransactionRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.blockchainTxRepo == nil {
		d.blockchainTxRepo = NewBlockchainWalletTransactionRepository(d.db)
	}
	return d.blockchainTxRepo
}

// Ledger and BlockchainLedger build on the entity repositories, so they resolve them
// before taking the lock again.
func (d *DatabaseImpl) Ledger() LedgerRepository {
	transactions, walletTxs, wallets := d.Transaction(), d.WalletTransaction(), d.Wallet()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ledgerRepo == nil {
		d.ledgerRepo = NewLedgerRepository(d.db, transactions, walletTxs, wallets)
	}
	return d.ledgerRepo
}

func (d *DatabaseImpl) BlockchainLedger() BlockchainLedgerRepository {
	transactions, blockchainTxs := d.Transaction(), d.BlockchainWalletTransaction()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.blockchainLedger == nil {
		d.blockchainLedger = NewBlockchainLedgerRepository(d.db, transactions, blockchainTxs)
	}
	return d.blockchainLedger
}

// ext returns the open transaction when there is one, otherwise the pool.
func ext(db *sqlx.DB, tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return db
}

// withTx commits when fn returns nil and rolls back otherwise.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
