package governance

import (
	"errors"

	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/logger"
)

// PlatformConfigFile is read from the payments secrets directory
const PlatformConfigFile = "platform.json"

// DefaultPlatformWallets are used for any owner id platform.json leaves out
func DefaultPlatformWallets() PlatformWallets {
	return PlatformWallets{
		TreasuryOwnerID:       "movegh_treasury",
		RevenueOwnerID:        "movegh_revenue",
		ReserveOwnerID:        "movegh_reserve",
		InsuranceOwnerID:      "movegh_insurance",
		RegulatoryHoldOwnerID: "movegh_reg_hold",
		OpsOwnerID:            "movegh_ops",
	}
}

// LoadPlatformWallets reads platform.json from secretsDir. A missing or
// unreadable file yields the defaults.
func LoadPlatformWallets(secretsDir string, log *logger.Logger) PlatformWallets {
	defaults := DefaultPlatformWallets()
	if secretsDir == "" {
		return defaults
	}

	var file PlatformWallets
	if err := config.LoadSecretsFile(secretsDir, PlatformConfigFile, &file); err != nil {
		if !errors.Is(err, config.ErrSecretsFileMissing) {
			log.Warnf("Ignoring platform wallet config: %v", err)
		}
		return defaults
	}

	return PlatformWallets{
		TreasuryOwnerID:       orDefault(file.TreasuryOwnerID, defaults.TreasuryOwnerID),
		RevenueOwnerID:        orDefault(file.RevenueOwnerID, defaults.RevenueOwnerID),
		ReserveOwnerID:        orDefault(file.ReserveOwnerID, defaults.ReserveOwnerID),
		InsuranceOwnerID:      orDefault(file.InsuranceOwnerID, defaults.InsuranceOwnerID),
		RegulatoryHoldOwnerID: orDefault(file.RegulatoryHoldOwnerID, defaults.RegulatoryHoldOwnerID),
		OpsOwnerID:            orDefault(file.OpsOwnerID, defaults.OpsOwnerID),
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
