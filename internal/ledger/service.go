package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/metrics"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/shopspring/decimal"
)

type Service struct {
	repo   *Repository
	logger *logger.Logger
}

func NewService(repo *Repository, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: log,
	}
}

// PostTransfer writes a balanced debit/credit pair inside the caller's
// transaction. Both account rows stay locked until the caller commits.
// NOTE: accounts are never created here; callers ensure wallets first
func (s *Service) PostTransfer(ctx context.Context, q db.Querier, req TransferRequest) (*TransferResult, error) {
	amount := money.Round2(req.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccount
	}

	// Lock in ascending id order so concurrent transfers over the same pair
	// always queue in the same sequence.
	first, second := req.FromAccountID, req.ToAccountID
	if second < first {
		first, second = second, first
	}

	locked := make(map[string]*Account, 2)
	for _, id := range []string{first, second} {
		account, err := s.repo.LockAccountTx(ctx, q, id)
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}

	from, to := locked[req.FromAccountID], locked[req.ToAccountID]

	result, err := ComputeTransfer(*from, *to, amount)
	if err != nil {
		return nil, err
	}

	result.Debit.TxnID = req.TxnID
	result.Debit.Memo = req.Memo
	result.Debit.EventType = req.EventType
	result.Credit.TxnID = req.TxnID
	result.Credit.Memo = req.Memo
	result.Credit.EventType = req.EventType

	if err := s.repo.UpdateBalanceTx(ctx, q, from.ID, money.String(result.Debit.BalanceAfter)); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBalanceTx(ctx, q, to.ID, money.String(result.Credit.BalanceAfter)); err != nil {
		return nil, err
	}

	if err := s.repo.CreateEntryTx(ctx, q, &result.Debit); err != nil {
		return nil, err
	}
	if err := s.repo.CreateEntryTx(ctx, q, &result.Credit); err != nil {
		return nil, err
	}

	s.logger.Debugf("Ledger transfer %s: %s -> %s amount=%s",
		req.TxnID, from.ID, to.ID, money.String(amount))
	return result, nil
}

// Balance reads an account balance inside the caller's transaction
func (s *Service) Balance(ctx context.Context, q db.Querier, accountID string) (decimal.Decimal, error) {
	account, err := s.repo.GetAccountTx(ctx, q, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// ComputeTransfer builds the entry pair for moving amount from one account
// to another. Balances are rounded to 2 decimals after the arithmetic.
func ComputeTransfer(from, to Account, amount decimal.Decimal) (*TransferResult, error) {
	amount = money.Round2(amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if from.ID == to.ID {
		return nil, ErrSameAccount
	}

	fromAfter := money.Round2(from.Balance.Sub(amount))
	toAfter := money.Round2(to.Balance.Add(amount))

	if from.Type != AccountPending && fromAfter.IsNegative() {
		return nil, ErrInsufficientBalance
	}

	currency := from.Currency
	if currency == "" {
		currency = to.Currency
	}

	return &TransferResult{
		Debit: Entry{
			AccountID:       from.ID,
			Direction:       DirectionDebit,
			Amount:          amount,
			BalanceAfter:    fromAfter,
			DebitAccountID:  from.ID,
			CreditAccountID: to.ID,
			Currency:        currency,
		},
		Credit: Entry{
			AccountID:       to.ID,
			Direction:       DirectionCredit,
			Amount:          amount,
			BalanceAfter:    toAfter,
			DebitAccountID:  from.ID,
			CreditAccountID: to.ID,
			Currency:        currency,
		},
	}, nil
}

// InvariantCheck returns every transaction whose credits and debits differ
func (s *Service) InvariantCheck(ctx context.Context) ([]string, error) {
	violations, err := s.repo.FindUnbalancedTransactions(ctx)
	if err != nil {
		return nil, err
	}

	if len(violations) > 0 {
		metrics.LedgerInvariantFailTotal.Add(float64(len(violations)))
		s.logger.Errorw("ledger_invariant_failed",
			"count", len(violations),
			"txn_ids", violations,
		)
	}

	return violations, nil
}

// RunAuditor runs InvariantCheck on every tick until ctx is cancelled
func (s *Service) RunAuditor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Ledger auditor stopped")
			return
		case <-ticker.C:
			if _, err := s.InvariantCheck(ctx); err != nil {
				s.logger.Errorf("Ledger invariant check failed: %v", err)
			}
		}
	}
}

// GetTransactionLedger retrieves all ledger entries for a transaction
func (s *Service) GetTransactionLedger(ctx context.Context, txnID string) (*TransactionLedger, error) {
	entries, err := s.repo.GetEntriesByTransaction(ctx, txnID)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no ledger entries found for transaction %s", txnID)
	}

	debits, credits := decimal.Zero, decimal.Zero
	for _, entry := range entries {
		if entry.Direction == DirectionDebit {
			debits = debits.Add(entry.Amount)
		} else {
			credits = credits.Add(entry.Amount)
		}
	}

	return &TransactionLedger{
		TxnID:        txnID,
		Entries:      entries,
		TotalDebits:  money.String(debits),
		TotalCredits: money.String(credits),
		Balanced:     debits.Equal(credits),
	}, nil
}
