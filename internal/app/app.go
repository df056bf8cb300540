// Package app builds the payment services shared by the API server and the
// operator CLI.
package app

import (
	"fmt"

	"github.com/kmassidik/movegh/internal/commission"
	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/redis"
	"github.com/kmassidik/movegh/internal/escrow"
	"github.com/kmassidik/movegh/internal/fraud"
	"github.com/kmassidik/movegh/internal/governance"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/ledger"
	"github.com/kmassidik/movegh/internal/ops"
	"github.com/kmassidik/movegh/internal/payment"
	"github.com/kmassidik/movegh/internal/payout"
	"github.com/kmassidik/movegh/internal/provider"
	"github.com/kmassidik/movegh/internal/settlement"
	"github.com/kmassidik/movegh/pkg/outbox"
)

// App holds every service over one database
type App struct {
	Outbox     *outbox.Repository
	Ledger     *ledger.Service
	Governance *governance.Registry
	Escrow     *escrow.Manager
	Providers  *provider.Registry
	Payments   *payment.Service
	Payouts    *payout.Service
	Settlement *settlement.Service
	Ops        *ops.Service
}

// Build wires the services. A nil redis client disables the response cache,
// the balance cache and the payout lock.
func Build(cfg *config.Config, database *db.DB, redisClient *redis.Client, log *logger.Logger) (*App, error) {
	providers, err := provider.BuildRegistry(cfg.Payments, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	var (
		balanceCache  governance.BalanceCache
		responseCache idempotency.ResponseCache
		locker        payout.Locker
		redisPinger   ops.Pinger
	)
	if redisClient != nil {
		balanceCache = redisClient
		responseCache = redisClient
		locker = redisClient
		redisPinger = redisClient
	}

	platform := governance.LoadPlatformWallets(cfg.Payments.SecretsDir, log)
	outboxRepo := outbox.NewRepository(database.DB, log)
	ledgerService := ledger.NewService(ledger.NewRepository(database, log), log)
	registry := governance.NewRegistry(governance.NewRepository(database), balanceCache, platform, log)
	escrowManager := escrow.NewManager(database, log)
	journal := idempotency.NewJournal(responseCache, log)
	audit := idempotency.NewAuditLog()

	payments := payment.NewService(payment.Dependencies{
		DB:         database,
		Repo:       payment.NewRepository(database, log),
		Ledger:     ledgerService,
		Governance: registry,
		Commission: commission.NewRepository(),
		Fraud:      fraud.NewService(cfg.Fraud, log),
		Escrow:     escrowManager,
		Providers:  providers,
		Journal:    journal,
		Audit:      audit,
		Outbox:     outboxRepo,
		Config:     cfg.Payments,
		Logger:     log,
	})

	payouts := payout.NewService(payout.Dependencies{
		DB:         database,
		Repo:       payout.NewRepository(database),
		Ledger:     ledgerService,
		Governance: registry,
		Providers:  providers,
		Journal:    journal,
		Audit:      audit,
		Outbox:     outboxRepo,
		Locker:     locker,
		Config:     cfg.Payments,
		Logger:     log,
	})

	settlements := settlement.NewService(settlement.Dependencies{
		DB:              database,
		Repo:            settlement.NewRepository(database),
		Journal:         journal,
		Outbox:          outboxRepo,
		TreasuryOwnerID: platform.TreasuryOwnerID,
		DefaultCurrency: cfg.Payments.Currency,
		Logger:          log,
	})

	opsService := ops.NewService(ops.Dependencies{
		DB:          database,
		Redis:       redisPinger,
		Payments:    payments,
		Settlements: settlements,
		Treasury:    registry,
		Holds:       escrowManager,
		Reports:     ops.NewRepository(database),
		Config:      cfg,
		Logger:      log,
	})

	return &App{
		Outbox:     outboxRepo,
		Ledger:     ledgerService,
		Governance: registry,
		Escrow:     escrowManager,
		Providers:  providers,
		Payments:   payments,
		Payouts:    payouts,
		Settlement: settlements,
		Ops:        opsService,
	}, nil
}
