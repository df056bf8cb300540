// Package ops serves the operator endpoints: health, settlement, treasury,
// reporting and risk case handling.
package ops

import (
	"context"
	"errors"
	"time"

	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/kmassidik/movegh/internal/escrow"
	"github.com/kmassidik/movegh/internal/governance"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/payment"
	"github.com/kmassidik/movegh/internal/provider"
	"github.com/kmassidik/movegh/internal/settlement"
)

// Pinger is satisfied by *db.DB and *redis.Client
type Pinger interface {
	Health(ctx context.Context) error
}

// Payments is the part of the payment orchestrator ops drives
type Payments interface {
	ProviderHealth(ctx context.Context, name string) string
	ListRiskCases(ctx context.Context) ([]payment.RiskCase, error)
	ResolveRiskCase(ctx context.Context, intentID, action string) (*payment.RiskCase, error)
	RefundPayment(ctx context.Context, intentID string, in payment.RefundInput, key string, meta idempotency.RequestMeta) (*payment.RefundResponse, error)
}

type Settlements interface {
	RunReconciliation(ctx context.Context, in settlement.Input) (*settlement.Report, error)
	GetLatestSettlement(ctx context.Context) (*settlement.Settlement, error)
	CreateBatch(ctx context.Context, in settlement.Input) (string, error)
	ListBatches(ctx context.Context, limit int) ([]settlement.Batch, error)
	ListSettlements(ctx context.Context, batchID string) ([]settlement.Settlement, error)
	CloseBatch(ctx context.Context, id string) error
}

type Treasury interface {
	TreasuryBalances(ctx context.Context, currency string) (*governance.WalletBalances, error)
	ListPlatformFinancialAccounts(ctx context.Context, currency string) ([]governance.FinancialAccount, error)
	Platform() governance.PlatformWallets
}

type Holds interface {
	ListOpenHolds(ctx context.Context) ([]escrow.Hold, error)
	Apply(ctx context.Context, holdID, action, reason string) (*escrow.Resolution, error)
}

type Reports interface {
	Summary(ctx context.Context, since time.Time) (*FinOSReport, error)
}

// Dependencies wires the ops service. Redis is optional.
type Dependencies struct {
	DB          Pinger
	Redis       Pinger
	Payments    Payments
	Settlements Settlements
	Treasury    Treasury
	Holds       Holds
	Reports     Reports
	Config      *config.Config
	Logger      *logger.Logger
}

type Service struct {
	db          Pinger
	redis       Pinger
	payments    Payments
	settlements Settlements
	treasury    Treasury
	holds       Holds
	reports     Reports
	cfg         *config.Config
	now         func() time.Time
	logger      *logger.Logger
}

func NewService(d Dependencies) *Service {
	return &Service{
		db:          d.DB,
		redis:       d.Redis,
		payments:    d.Payments,
		settlements: d.Settlements,
		treasury:    d.Treasury,
		holds:       d.Holds,
		reports:     d.Reports,
		cfg:         d.Config,
		now:         time.Now,
		logger:      d.Logger,
	}
}

// Health is degraded when the database or redis is unreachable or the
// default provider is not ok
func (s *Service) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:       StatusOK,
		Env:          s.cfg.Service.Env,
		Dependencies: map[string]string{},
		Timestamp:    s.now().UTC(),
	}

	report.Dependencies["db"] = DependencyUp
	if err := s.db.Health(ctx); err != nil {
		s.logger.Warnf("Health check: database down: %v", err)
		report.Dependencies["db"] = DependencyDown
		report.Status = StatusDegraded
	}

	report.Dependencies["redis"] = DependencyDisabled
	if s.redis != nil {
		report.Dependencies["redis"] = DependencyUp
		if err := s.redis.Health(ctx); err != nil {
			s.logger.Warnf("Health check: redis down: %v", err)
			report.Dependencies["redis"] = DependencyDown
			report.Status = StatusDegraded
		}
	}

	payments := s.payments.ProviderHealth(ctx, "")
	report.Dependencies["payments"] = payments
	if payments != provider.HealthOK {
		report.Status = StatusDegraded
	}
	return report
}

func (s *Service) PaymentsStatus(ctx context.Context) (*PaymentsStatus, error) {
	latest, err := s.settlements.GetLatestSettlement(ctx)
	if err != nil {
		return nil, err
	}
	return &PaymentsStatus{
		ProviderMode:     s.cfg.Payments.Mode,
		Provider:         s.cfg.Payments.Provider,
		ProviderHealth:   s.payments.ProviderHealth(ctx, ""),
		LatestSettlement: latest,
		Timestamp:        s.now().UTC(),
	}, nil
}

func (s *Service) SettlementStatus(ctx context.Context) (*SettlementStatus, error) {
	latest, err := s.settlements.GetLatestSettlement(ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return &SettlementStatus{Status: StatusNotRun}, nil
	}
	return &SettlementStatus{Status: StatusOK, Latest: latest}, nil
}

func (s *Service) RunSettlement(ctx context.Context, in settlement.Input) (*SettlementRunResponse, error) {
	report, err := s.settlements.RunReconciliation(ctx, in)
	if err != nil {
		return nil, err
	}
	return &SettlementRunResponse{Status: StatusOK, Report: report}, nil
}

func (s *Service) CreateBatch(ctx context.Context, in settlement.Input) (string, error) {
	return s.settlements.CreateBatch(ctx, in)
}

func (s *Service) ListBatches(ctx context.Context, limit int) ([]settlement.Batch, error) {
	batches, err := s.settlements.ListBatches(ctx, limit)
	if err != nil {
		return nil, err
	}
	if batches == nil {
		batches = []settlement.Batch{}
	}
	return batches, nil
}

// BatchSettlements lists the runs recorded against one batch
func (s *Service) BatchSettlements(ctx context.Context, batchID string) ([]settlement.Settlement, error) {
	settlements, err := s.settlements.ListSettlements(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if settlements == nil {
		settlements = []settlement.Settlement{}
	}
	return settlements, nil
}

func (s *Service) CloseBatch(ctx context.Context, id string) error {
	return s.settlements.CloseBatch(ctx, id)
}

// TreasuryStatus flags low liquidity when available funds fall below the reserve
func (s *Service) TreasuryStatus(ctx context.Context, currency string) (*TreasuryStatus, error) {
	if currency == "" {
		currency = s.cfg.Payments.Currency
	}
	balances, err := s.treasury.TreasuryBalances(ctx, currency)
	if err != nil {
		return nil, err
	}

	minReserve := money.FromFloat(s.cfg.Ops.TreasuryMinReserve)
	status := StatusOK
	available, err := money.Parse(balances.Balances.Available)
	if err != nil {
		return nil, err
	}
	if available.LessThan(minReserve) {
		status = StatusLowLiquidity
		s.logger.Warnf("Treasury %s available %s below reserve %s", currency, balances.Balances.Available, money.String(minReserve))
	}

	accounts, err := s.treasury.ListPlatformFinancialAccounts(ctx, currency)
	if err != nil {
		return nil, err
	}

	return &TreasuryStatus{
		Currency:          currency,
		TreasuryOwnerID:   s.treasury.Platform().TreasuryOwnerID,
		Balances:          balances.Balances,
		MinReserve:        money.String(minReserve),
		Status:            status,
		FinancialAccounts: accounts,
	}, nil
}

// TreasuryRebalance is a hook for moving funds between platform wallets; it moves nothing yet
func (s *Service) TreasuryRebalance(ctx context.Context) *RebalanceResult {
	s.logger.Info("Treasury rebalance requested")
	return &RebalanceResult{Status: StatusNoop, Message: "treasury rebalance hook"}
}

func (s *Service) FinOSReport(ctx context.Context) (*FinOSReport, error) {
	now := s.now().UTC()
	report, err := s.reports.Summary(ctx, now.Add(-ReportWindow))
	if err != nil {
		return nil, err
	}
	report.WindowHours = int(ReportWindow / time.Hour)
	report.Timestamp = now
	return report, nil
}

func (s *Service) ListRiskCases(ctx context.Context) ([]payment.RiskCase, error) {
	return s.payments.ListRiskCases(ctx)
}

func (s *Service) ResolveRiskCase(ctx context.Context, intentID, action string) (*payment.RiskCase, error) {
	if action == "" {
		action = payment.ResolveClear
	}
	rc, err := s.payments.ResolveRiskCase(ctx, intentID, action)
	if errors.Is(err, payment.ErrIntentNotFound) {
		return nil, ErrRiskCaseNotFound
	}
	return rc, err
}

func (s *Service) OpenHolds(ctx context.Context) ([]escrow.Hold, error) {
	holds, err := s.holds.ListOpenHolds(ctx)
	if err != nil {
		return nil, err
	}
	if holds == nil {
		holds = []escrow.Hold{}
	}
	return holds, nil
}

// ApplyHoldAction releases, refunds or disputes one escrow hold
func (s *Service) ApplyHoldAction(ctx context.Context, holdID, action, reason string) (*escrow.Resolution, error) {
	res, err := s.holds.Apply(ctx, holdID, action, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Escrow hold %s: %s", holdID, action)
	return res, nil
}

func (s *Service) RefundPayment(ctx context.Context, intentID string, in payment.RefundInput, key string, meta idempotency.RequestMeta) (*payment.RefundResponse, error) {
	return s.payments.RefundPayment(ctx, intentID, in, key, meta)
}
