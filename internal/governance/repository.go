package governance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/lib/pq"
)

type Repository struct {
	db *db.DB
}

func NewRepository(database *db.DB) *Repository {
	return &Repository{db: database}
}

// UpsertWalletTx returns the wallet id, creating the wallet on first reference
func (r *Repository) UpsertWalletTx(ctx context.Context, q db.Querier, ownerType, ownerID, currency string) (string, error) {
	query := `
		INSERT INTO wallets (owner_type, owner_id, currency, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (owner_type, owner_id, currency) DO UPDATE SET owner_id = EXCLUDED.owner_id
		RETURNING id
	`

	var id string
	if err := q.QueryRowContext(ctx, query, ownerType, ownerID, currency).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to ensure wallet %s/%s: %w", ownerType, ownerID, err)
	}
	return id, nil
}

// UpsertAccountTx returns the ledger account id, creating it with a zero balance
// NOTE: the conflict branch touches wallet_id only so an existing balance is never reset
func (r *Repository) UpsertAccountTx(ctx context.Context, q db.Querier, walletID, accountType, currency string) (string, error) {
	query := `
		INSERT INTO ledger_accounts (wallet_id, type, currency, balance)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (wallet_id, type, currency) DO UPDATE SET wallet_id = EXCLUDED.wallet_id
		RETURNING id
	`

	var id string
	if err := q.QueryRowContext(ctx, query, walletID, accountType, currency).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to ensure %s account: %w", accountType, err)
	}
	return id, nil
}

// FindWallet returns "" when the wallet does not exist
func (r *Repository) FindWallet(ctx context.Context, ownerType, ownerID, currency string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM wallets WHERE owner_type = $1 AND owner_id = $2 AND currency = $3`,
		ownerType, ownerID, currency,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find wallet: %w", err)
	}
	return id, nil
}

// GetAccountBalances maps account type to balance text for one wallet
func (r *Repository) GetAccountBalances(ctx context.Context, walletID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT type, balance::text FROM ledger_accounts WHERE wallet_id = $1`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]string)
	for rows.Next() {
		var accountType, balance string
		if err := rows.Scan(&accountType, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances[accountType] = balance
	}
	return balances, rows.Err()
}

// UpsertFinancialAccountTx returns the financial account id
func (r *Repository) UpsertFinancialAccountTx(ctx context.Context, q db.Querier, ownerType, ownerID, currency string) (string, error) {
	query := `
		INSERT INTO financial_accounts (owner_type, owner_id, currency, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (owner_type, owner_id, currency) DO UPDATE SET owner_id = EXCLUDED.owner_id
		RETURNING id
	`

	var id string
	if err := q.QueryRowContext(ctx, query, ownerType, ownerID, currency).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to ensure financial account: %w", err)
	}
	return id, nil
}

// ListFinancialAccounts returns the financial accounts of the given owners in a currency
func (r *Repository) ListFinancialAccounts(ctx context.Context, ownerType, currency string, ownerIDs []string) ([]FinancialAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, status FROM financial_accounts
		WHERE owner_type = $1 AND currency = $2 AND owner_id = ANY($3)
		ORDER BY owner_id
	`, ownerType, currency, pq.Array(ownerIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list financial accounts: %w", err)
	}
	defer rows.Close()

	accounts := []FinancialAccount{}
	for rows.Next() {
		var a FinancialAccount
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Status); err != nil {
			return nil, fmt.Errorf("failed to scan financial account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
