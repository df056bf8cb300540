package governance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kmassidik/movegh/internal/common/db/dbtest"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]string)}
}

func (m *memoryCache) CacheWalletBalance(ctx context.Context, walletID string, balances []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[walletID] = string(balances)
	return nil
}

func (m *memoryCache) GetCachedWalletBalance(ctx context.Context, walletID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[walletID], nil
}

func (m *memoryCache) InvalidateWalletBalance(ctx context.Context, walletID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, walletID)
}

func setupRegistry(t *testing.T, cache BalanceCache) *Registry {
	database := dbtest.Open(t)
	platform := PlatformWallets{
		TreasuryOwnerID:       dbtest.UniqueID("treasury"),
		RevenueOwnerID:        dbtest.UniqueID("revenue"),
		ReserveOwnerID:        dbtest.UniqueID("reserve"),
		InsuranceOwnerID:      dbtest.UniqueID("insurance"),
		RegulatoryHoldOwnerID: dbtest.UniqueID("reg_hold"),
		OpsOwnerID:            dbtest.UniqueID("ops"),
	}
	return NewRegistry(NewRepository(database), cache, platform, logger.NewNop())
}

func TestEnsurePlatformWalletsIsIdempotent(t *testing.T) {
	registry := setupRegistry(t, nil)
	ctx := context.Background()

	first, err := registry.EnsurePlatformWallets(ctx, registry.repo.db, "GHS")
	require.NoError(t, err)
	second, err := registry.EnsurePlatformWallets(ctx, registry.repo.db, "GHS")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.TreasuryEscrow)
	assert.NotEmpty(t, first.TreasuryPending)
	assert.NotEmpty(t, first.RevenueAvailable)
	assert.NotEqual(t, first.TreasuryEscrow, first.TreasuryAvailable)
}

func TestEnsureWalletRejectsUnknownType(t *testing.T) {
	registry := setupRegistry(t, nil)

	_, err := registry.EnsureWallet(context.Background(), registry.repo.db,
		OwnerRider, dbtest.UniqueID("rider"), "GHS", "savings")
	assert.Error(t, err)
}

func TestGetWalletBalances(t *testing.T) {
	cache := newMemoryCache()
	registry := setupRegistry(t, cache)
	ctx := context.Background()

	t.Run("missing wallet", func(t *testing.T) {
		got, err := registry.GetWalletBalances(ctx, OwnerRider, dbtest.UniqueID("nobody"), "GHS")
		require.NoError(t, err)
		assert.Nil(t, got.WalletID)
		assert.Equal(t, Balances{Available: "0.00", Pending: "0.00", Escrow: "0.00"}, got.Balances)
	})

	t.Run("existing wallet is cached then invalidated", func(t *testing.T) {
		riderID := dbtest.UniqueID("rider")
		wallet, err := registry.EnsureWallet(ctx, registry.repo.db, OwnerRider, riderID, "GHS", ledger.AccountAvailable)
		require.NoError(t, err)

		_, err = registry.repo.db.Exec(`UPDATE ledger_accounts SET balance = 42.5 WHERE id = $1`,
			wallet.Account(ledger.AccountAvailable))
		require.NoError(t, err)

		got, err := registry.GetWalletBalances(ctx, OwnerRider, riderID, "GHS")
		require.NoError(t, err)
		require.NotNil(t, got.WalletID)
		assert.Equal(t, wallet.WalletID, *got.WalletID)
		assert.Equal(t, "42.50", got.Balances.Available)

		cached, _ := cache.GetCachedWalletBalance(ctx, wallet.WalletID)
		assert.Contains(t, cached, "42.50")

		registry.InvalidateBalances(ctx, wallet.WalletID)
		cached, _ = cache.GetCachedWalletBalance(ctx, wallet.WalletID)
		assert.Empty(t, cached)
	})
}

// TEST: Ensuring platform wallets registers all six owners once
func TestEnsurePlatformWalletsRegistersFinancialAccounts(t *testing.T) {
	registry := setupRegistry(t, nil)
	ctx := context.Background()
	currency := "XOF"

	_, err := registry.EnsurePlatformWallets(ctx, registry.repo.db, currency)
	require.NoError(t, err)
	first, err := registry.ListPlatformFinancialAccounts(ctx, currency)
	require.NoError(t, err)
	require.Len(t, first, 6)

	_, err = registry.repo.db.Exec(`UPDATE financial_accounts SET status = 'frozen' WHERE id = $1`, first[0].ID)
	require.NoError(t, err)

	_, err = registry.EnsurePlatformWallets(ctx, registry.repo.db, currency)
	require.NoError(t, err)
	second, err := registry.ListPlatformFinancialAccounts(ctx, currency)
	require.NoError(t, err)
	require.Len(t, second, 6)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.Equal(t, "frozen", second[0].Status, "re-ensuring must not reactivate an account")
}
