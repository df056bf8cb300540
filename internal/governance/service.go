// Package governance owns wallet and ledger account creation. Every other
// module asks the registry for account ids before touching the ledger.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/kmassidik/movegh/internal/ledger"
)

const balanceCacheTTL = 30 * time.Second

// BalanceCache is the redis balance cache. A nil cache disables caching.
type BalanceCache interface {
	CacheWalletBalance(ctx context.Context, walletID string, balances []byte, ttl time.Duration) error
	GetCachedWalletBalance(ctx context.Context, walletID string) (string, error)
	InvalidateWalletBalance(ctx context.Context, walletID string)
}

type Registry struct {
	repo     *Repository
	cache    BalanceCache
	platform PlatformWallets
	logger   *logger.Logger
}

func NewRegistry(repo *Repository, cache BalanceCache, platform PlatformWallets, log *logger.Logger) *Registry {
	return &Registry{
		repo:     repo,
		cache:    cache,
		platform: platform,
		logger:   log,
	}
}

// Platform returns the configured platform owner ids
func (g *Registry) Platform() PlatformWallets {
	return g.platform
}

// EnsureWallet creates the wallet and the requested account types if missing
func (g *Registry) EnsureWallet(ctx context.Context, q db.Querier, ownerType, ownerID, currency string, types ...string) (*WalletAccounts, error) {
	walletID, err := g.repo.UpsertWalletTx(ctx, q, ownerType, ownerID, currency)
	if err != nil {
		return nil, err
	}

	wallet := &WalletAccounts{WalletID: walletID, Accounts: make(map[string]string, len(types))}
	for _, t := range types {
		if !accountTypes[t] {
			return nil, fmt.Errorf("unknown account type %q", t)
		}
		id, err := g.repo.UpsertAccountTx(ctx, q, walletID, t, currency)
		if err != nil {
			return nil, err
		}
		wallet.Accounts[t] = id
	}

	return wallet, nil
}

// EnsurePlatformWallets creates all six platform wallets and registers each
// owner in financial_accounts. The treasury holds escrow, available and
// pending accounts; the others hold available only.
func (g *Registry) EnsurePlatformWallets(ctx context.Context, q db.Querier, currency string) (*PlatformAccounts, error) {
	treasury, err := g.EnsureWallet(ctx, q, OwnerPlatform, g.platform.TreasuryOwnerID, currency,
		ledger.AccountEscrow, ledger.AccountAvailable, ledger.AccountPending)
	if err != nil {
		return nil, err
	}

	accounts := &PlatformAccounts{
		TreasuryWalletID:  treasury.WalletID,
		TreasuryEscrow:    treasury.Account(ledger.AccountEscrow),
		TreasuryAvailable: treasury.Account(ledger.AccountAvailable),
		TreasuryPending:   treasury.Account(ledger.AccountPending),
	}

	others := []struct {
		ownerID string
		target  *string
	}{
		{g.platform.RevenueOwnerID, &accounts.RevenueAvailable},
		{g.platform.ReserveOwnerID, &accounts.ReserveAvailable},
		{g.platform.InsuranceOwnerID, &accounts.InsuranceAvailable},
		{g.platform.RegulatoryHoldOwnerID, &accounts.RegulatoryHoldAvailable},
		{g.platform.OpsOwnerID, &accounts.OpsAvailable},
	}
	for _, o := range others {
		wallet, err := g.EnsureWallet(ctx, q, OwnerPlatform, o.ownerID, currency, ledger.AccountAvailable)
		if err != nil {
			return nil, err
		}
		*o.target = wallet.Account(ledger.AccountAvailable)
	}

	for _, ownerID := range g.platform.OwnerIDs() {
		if _, err := g.repo.UpsertFinancialAccountTx(ctx, q, OwnerPlatform, ownerID, currency); err != nil {
			return nil, err
		}
	}

	return accounts, nil
}

// ListPlatformFinancialAccounts returns the financial accounts of the
// configured platform owners
func (g *Registry) ListPlatformFinancialAccounts(ctx context.Context, currency string) ([]FinancialAccount, error) {
	return g.repo.ListFinancialAccounts(ctx, OwnerPlatform, currency, g.platform.OwnerIDs())
}

// GetWalletBalances reads the available, pending and escrow balances of a
// wallet. A wallet that was never created reports a nil id and zeros.
func (g *Registry) GetWalletBalances(ctx context.Context, ownerType, ownerID, currency string) (*WalletBalances, error) {
	walletID, err := g.repo.FindWallet(ctx, ownerType, ownerID, currency)
	if err != nil {
		return nil, err
	}

	zero := money.String(money.Zero)
	result := &WalletBalances{Balances: Balances{Available: zero, Pending: zero, Escrow: zero}}
	if walletID == "" {
		return result, nil
	}
	result.WalletID = &walletID

	if g.cache != nil {
		if cached, err := g.cache.GetCachedWalletBalance(ctx, walletID); err == nil && cached != "" {
			var balances Balances
			if json.Unmarshal([]byte(cached), &balances) == nil {
				result.Balances = balances
				return result, nil
			}
		}
	}

	rows, err := g.repo.GetAccountBalances(ctx, walletID)
	if err != nil {
		return nil, err
	}

	for accountType, raw := range rows {
		amount, err := money.Parse(raw)
		if err != nil {
			return nil, err
		}
		switch accountType {
		case ledger.AccountAvailable:
			result.Balances.Available = money.String(amount)
		case ledger.AccountPending:
			result.Balances.Pending = money.String(amount)
		case ledger.AccountEscrow:
			result.Balances.Escrow = money.String(amount)
		}
	}

	if g.cache != nil {
		if payload, err := json.Marshal(result.Balances); err == nil {
			if err := g.cache.CacheWalletBalance(ctx, walletID, payload, balanceCacheTTL); err != nil {
				g.logger.Warnf("Failed to cache balances for wallet %s: %v", walletID, err)
			}
		}
	}

	return result, nil
}

// TreasuryBalances reads the treasury wallet's balances
func (g *Registry) TreasuryBalances(ctx context.Context, currency string) (*WalletBalances, error) {
	return g.GetWalletBalances(ctx, OwnerPlatform, g.platform.TreasuryOwnerID, currency)
}

// InvalidateBalances drops cached balances after a posting commits
func (g *Registry) InvalidateBalances(ctx context.Context, walletIDs ...string) {
	if g.cache == nil {
		return
	}
	for _, id := range walletIDs {
		if id != "" {
			g.cache.InvalidateWalletBalance(ctx, id)
		}
	}
}
