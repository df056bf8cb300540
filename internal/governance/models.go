package governance

import (
	"github.com/kmassidik/movegh/internal/ledger"
)

// Wallet owner types
const (
	OwnerRider    = "rider"
	OwnerDriver   = "driver"
	OwnerPlatform = "platform"
)

// PlatformWallets names the owner ids of the platform's wallets
type PlatformWallets struct {
	TreasuryOwnerID       string `mapstructure:"treasuryOwnerId"`
	RevenueOwnerID        string `mapstructure:"revenueOwnerId"`
	ReserveOwnerID        string `mapstructure:"reserveOwnerId"`
	InsuranceOwnerID      string `mapstructure:"insuranceOwnerId"`
	RegulatoryHoldOwnerID string `mapstructure:"regulatoryHoldOwnerId"`
	OpsOwnerID            string `mapstructure:"opsOwnerId"`
}

// OwnerIDs lists the six platform owners, treasury first
func (p PlatformWallets) OwnerIDs() []string {
	return []string{
		p.TreasuryOwnerID,
		p.RevenueOwnerID,
		p.ReserveOwnerID,
		p.InsuranceOwnerID,
		p.RegulatoryHoldOwnerID,
		p.OpsOwnerID,
	}
}

// WalletAccounts maps account type to ledger account id for one wallet
type WalletAccounts struct {
	WalletID string
	Accounts map[string]string
}

// Account returns the ledger account id of the given type, "" if absent
func (w *WalletAccounts) Account(accountType string) string {
	return w.Accounts[accountType]
}

// PlatformAccounts holds the ledger account ids of every platform wallet
type PlatformAccounts struct {
	TreasuryWalletID        string
	TreasuryEscrow          string
	TreasuryAvailable       string
	TreasuryPending         string
	RevenueAvailable        string
	ReserveAvailable        string
	InsuranceAvailable      string
	RegulatoryHoldAvailable string
	OpsAvailable            string
}

// Balances are the three bucket balances of a wallet, formatted with 2 decimals
type Balances struct {
	Available string `json:"available"`
	Pending   string `json:"pending"`
	Escrow    string `json:"escrow"`
}

// WalletBalances is returned for GET /v1/wallets/me
// NOTE: WalletID is nil when the wallet has never been created
type WalletBalances struct {
	WalletID *string  `json:"walletId"`
	Balances Balances `json:"balances"`
}

// FinancialAccount is a financial_accounts row
type FinancialAccount struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Status  string `json:"status"`
}

var accountTypes = map[string]bool{
	ledger.AccountAvailable: true,
	ledger.AccountPending:   true,
	ledger.AccountEscrow:    true,
}
