package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/money"
)

type Repository struct {
	db     *db.DB
	logger *logger.Logger
}

func NewRepository(database *db.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     database,
		logger: log,
	}
}

// LockAccountTx reads an account row and holds its lock until q commits
func (r *Repository) LockAccountTx(ctx context.Context, q db.Querier, id string) (*Account, error) {
	query := `
		SELECT id, wallet_id, type, currency, balance::text
		FROM ledger_accounts
		WHERE id = $1
		FOR UPDATE
	`

	var account Account
	var balance string
	err := q.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.WalletID,
		&account.Type,
		&account.Currency,
		&balance,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s: %w", id, err)
	}

	account.Balance, err = money.Parse(balance)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateBalanceTx overwrites the balance with a value computed under lock
func (r *Repository) UpdateBalanceTx(ctx context.Context, q db.Querier, id string, balance string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE ledger_accounts SET balance = $1, updated_at = now() WHERE id = $2`,
		balance, id)
	if err != nil {
		return fmt.Errorf("failed to update balance for %s: %w", id, err)
	}
	return nil
}

// CreateEntryTx inserts one ledger entry
// NOTE: Ledger entries are IMMUTABLE - no updates or deletes allowed
func (r *Repository) CreateEntryTx(ctx context.Context, q db.Querier, entry *Entry) error {
	query := `
		INSERT INTO ledger_entries (
			account_id, txn_id, direction, amount, balance_after,
			debit_account_id, credit_account_id, currency, memo, event_type
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
		RETURNING id, created_at
	`

	err := q.QueryRowContext(ctx, query,
		entry.AccountID,
		entry.TxnID,
		entry.Direction,
		money.String(entry.Amount),
		money.String(entry.BalanceAfter),
		entry.DebitAccountID,
		entry.CreditAccountID,
		entry.Currency,
		entry.Memo,
		entry.EventType,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	return nil
}

// GetAccount reads an account without locking it
func (r *Repository) GetAccount(ctx context.Context, id string) (*Account, error) {
	return r.GetAccountTx(ctx, r.db, id)
}

// GetAccountTx reads an account through q without locking it
func (r *Repository) GetAccountTx(ctx context.Context, q db.Querier, id string) (*Account, error) {
	var account Account
	var balance string
	err := q.QueryRowContext(ctx,
		`SELECT id, wallet_id, type, currency, balance::text FROM ledger_accounts WHERE id = $1`, id,
	).Scan(&account.ID, &account.WalletID, &account.Type, &account.Currency, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	account.Balance, err = money.Parse(balance)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetEntriesByTransaction retrieves all ledger entries for a transaction
// NOTE: Should return 2+ entries (debit + credit) for double-entry bookkeeping
func (r *Repository) GetEntriesByTransaction(ctx context.Context, txnID string) ([]Entry, error) {
	query := `
		SELECT
			id, account_id, txn_id, direction, amount::text, balance_after::text,
			COALESCE(debit_account_id::text, ''), COALESCE(credit_account_id::text, ''),
			COALESCE(currency, ''), COALESCE(memo, ''), COALESCE(event_type, ''), created_at
		FROM ledger_entries
		WHERE txn_id = $1
		ORDER BY created_at ASC, direction DESC
	`

	rows, err := r.db.QueryContext(ctx, query, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var amount, balanceAfter string
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.TxnID,
			&entry.Direction,
			&amount,
			&balanceAfter,
			&entry.DebitAccountID,
			&entry.CreditAccountID,
			&entry.Currency,
			&entry.Memo,
			&entry.EventType,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if entry.Amount, err = money.Parse(amount); err != nil {
			return nil, err
		}
		if entry.BalanceAfter, err = money.Parse(balanceAfter); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// FindUnbalancedTransactions returns txn ids whose credits and debits differ
func (r *Repository) FindUnbalancedTransactions(ctx context.Context) ([]string, error) {
	query := `
		SELECT txn_id
		FROM ledger_entries
		GROUP BY txn_id
		HAVING SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END)
		     - SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END) <> 0
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger invariant: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan txn id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
