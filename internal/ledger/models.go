package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Account types. Only pending accounts may go negative.
const (
	AccountAvailable = "available"
	AccountPending   = "pending"
	AccountEscrow    = "escrow"
)

// Entry directions for double-entry bookkeeping
const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountNotFound     = errors.New("ledger account not found")
	ErrSameAccount         = errors.New("cannot transfer to the same account")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Account is a ledger_accounts row
type Account struct {
	ID       string          `json:"id"`
	WalletID string          `json:"wallet_id"`
	Type     string          `json:"type"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// Entry is one side of a transfer
// NOTE: Immutable audit trail - never update or delete entries
type Entry struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	TxnID           string          `json:"txn_id"`
	Direction       string          `json:"direction"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	DebitAccountID  string          `json:"debit_account_id,omitempty"`
	CreditAccountID string          `json:"credit_account_id,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	Memo            string          `json:"memo,omitempty"`
	EventType       string          `json:"event_type,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TransferRequest moves Amount from one account to another under TxnID
type TransferRequest struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	TxnID         string
	Memo          string
	EventType     string
}

// TransferResult holds the debit and credit entries written for a transfer
type TransferResult struct {
	Debit  Entry `json:"debit"`
	Credit Entry `json:"credit"`
}

// TransactionLedger is every entry of one transaction with its totals
type TransactionLedger struct {
	TxnID        string  `json:"txn_id"`
	Entries      []Entry `json:"entries"`
	TotalDebits  string  `json:"total_debits"`
	TotalCredits string  `json:"total_credits"`
	Balanced     bool    `json:"balanced"`
}

// InvariantReport is returned by the ops invariant endpoint
type InvariantReport struct {
	Violations []string  `json:"violations"`
	CheckedAt  time.Time `json:"checked_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
