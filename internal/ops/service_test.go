package ops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/db/dbtest"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/escrow"
	"github.com/kmassidik/movegh/internal/governance"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/payment"
	"github.com/kmassidik/movegh/internal/provider"
	"github.com/kmassidik/movegh/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Health(ctx context.Context) error { return p.err }

type stubPayments struct {
	health     string
	resolveErr error
}

func (s *stubPayments) ProviderHealth(ctx context.Context, name string) string { return s.health }

func (s *stubPayments) ListRiskCases(ctx context.Context) ([]payment.RiskCase, error) {
	return nil, nil
}

func (s *stubPayments) ResolveRiskCase(ctx context.Context, intentID, action string) (*payment.RiskCase, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return &payment.RiskCase{IntentID: intentID, RiskStatus: action}, nil
}

func (s *stubPayments) RefundPayment(ctx context.Context, intentID string, in payment.RefundInput, key string, meta idempotency.RequestMeta) (*payment.RefundResponse, error) {
	return &payment.RefundResponse{Status: "captured"}, nil
}

type stubSettlements struct {
	latest *settlement.Settlement
}

func (s *stubSettlements) RunReconciliation(ctx context.Context, in settlement.Input) (*settlement.Report, error) {
	return &settlement.Report{Provider: in.Provider, Status: settlement.StatusPending}, nil
}

func (s *stubSettlements) GetLatestSettlement(ctx context.Context) (*settlement.Settlement, error) {
	return s.latest, nil
}

func (s *stubSettlements) CreateBatch(ctx context.Context, in settlement.Input) (string, error) {
	return "b1", nil
}

func (s *stubSettlements) ListBatches(ctx context.Context, limit int) ([]settlement.Batch, error) {
	return nil, nil
}

func (s *stubSettlements) ListSettlements(ctx context.Context, batchID string) ([]settlement.Settlement, error) {
	return nil, nil
}

func (s *stubSettlements) CloseBatch(ctx context.Context, id string) error {
	return nil
}

type stubTreasury struct {
	available string
}

func (s *stubTreasury) TreasuryBalances(ctx context.Context, currency string) (*governance.WalletBalances, error) {
	return &governance.WalletBalances{Balances: governance.Balances{Available: s.available, Pending: "0.00", Escrow: "0.00"}}, nil
}

func (s *stubTreasury) ListPlatformFinancialAccounts(ctx context.Context, currency string) ([]governance.FinancialAccount, error) {
	return []governance.FinancialAccount{{ID: "fa-1", OwnerID: "platform_treasury", Status: "active"}}, nil
}

func (s *stubTreasury) Platform() governance.PlatformWallets {
	return governance.DefaultPlatformWallets()
}

type stubHolds struct{}

func (stubHolds) ListOpenHolds(ctx context.Context) ([]escrow.Hold, error) { return nil, nil }

func (stubHolds) Apply(ctx context.Context, holdID, action, reason string) (*escrow.Resolution, error) {
	return &escrow.Resolution{HoldID: holdID, Status: escrow.StateReleased}, nil
}

func newTestService(d Dependencies) *Service {
	if d.DB == nil {
		d.DB = pinger{}
	}
	if d.Payments == nil {
		d.Payments = &stubPayments{health: provider.HealthOK}
	}
	if d.Settlements == nil {
		d.Settlements = &stubSettlements{}
	}
	if d.Treasury == nil {
		d.Treasury = &stubTreasury{available: "0.00"}
	}
	if d.Holds == nil {
		d.Holds = stubHolds{}
	}
	d.Config = &config.Config{
		Service:  config.ServiceConfig{Env: "dev"},
		Payments: config.PaymentsConfig{Provider: provider.NameMock, Mode: config.ModeMock, Currency: "GHS"},
		Ops:      config.OpsConfig{TreasuryMinReserve: 500},
	}
	d.Logger = logger.NewNop()
	return NewService(d)
}

// TEST: Health degrades on any failing dependency
func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		db     pinger
		redis  Pinger
		health string
		want   string
	}{
		{"all up", pinger{}, pinger{}, provider.HealthOK, StatusOK},
		{"redis disabled", pinger{}, nil, provider.HealthOK, StatusOK},
		{"db down", pinger{err: errors.New("dial tcp")}, nil, provider.HealthOK, StatusDegraded},
		{"redis down", pinger{}, pinger{err: errors.New("EOF")}, provider.HealthOK, StatusDegraded},
		{"provider degraded", pinger{}, nil, provider.HealthDegraded, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(Dependencies{DB: tt.db, Redis: tt.redis, Payments: &stubPayments{health: tt.health}})
			report := svc.Health(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Equal(t, "dev", report.Env)
			assert.Equal(t, tt.health, report.Dependencies["payments"])
		})
	}

	svc := newTestService(Dependencies{})
	assert.Equal(t, DependencyDisabled, svc.Health(context.Background()).Dependencies["redis"])
}

// TEST: Treasury is low on liquidity below the minimum reserve
func TestTreasuryStatus(t *testing.T) {
	tests := []struct {
		available string
		want      string
	}{
		{"499.99", StatusLowLiquidity},
		{"500.00", StatusOK},
		{"1200.50", StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.available, func(t *testing.T) {
			svc := newTestService(Dependencies{Treasury: &stubTreasury{available: tt.available}})
			status, err := svc.TreasuryStatus(context.Background(), "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.Status)
			assert.Equal(t, "GHS", status.Currency)
			assert.Equal(t, "500.00", status.MinReserve)
			assert.Equal(t, governance.DefaultPlatformWallets().TreasuryOwnerID, status.TreasuryOwnerID)
			require.Len(t, status.FinancialAccounts, 1)
			assert.Equal(t, "fa-1", status.FinancialAccounts[0].ID)
		})
	}
}

func TestSettlementStatus(t *testing.T) {
	svc := newTestService(Dependencies{})
	status, err := svc.SettlementStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNotRun, status.Status)
	assert.Nil(t, status.Latest)

	latest := &settlement.Settlement{ID: "s1", Status: settlement.StatusMatched, CreatedAt: time.Now()}
	svc = newTestService(Dependencies{Settlements: &stubSettlements{latest: latest}})
	status, err = svc.SettlementStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status.Status)
	assert.Equal(t, "s1", status.Latest.ID)

	ps, err := svc.PaymentsStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.ModeMock, ps.ProviderMode)
	assert.Equal(t, provider.NameMock, ps.Provider)
	assert.Equal(t, latest, ps.LatestSettlement)
}

func TestResolveRiskCase(t *testing.T) {
	svc := newTestService(Dependencies{})
	rc, err := svc.ResolveRiskCase(context.Background(), "i1", "")
	require.NoError(t, err)
	assert.Equal(t, payment.ResolveClear, rc.RiskStatus)

	svc = newTestService(Dependencies{Payments: &stubPayments{resolveErr: payment.ErrIntentNotFound}})
	_, err = svc.ResolveRiskCase(context.Background(), "missing", payment.ResolveBlock)
	assert.ErrorIs(t, err, ErrRiskCaseNotFound)
}

func TestOpenHoldsNeverNull(t *testing.T) {
	holds, err := newTestService(Dependencies{}).OpenHolds(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, holds)
}

// TEST: The FinOS report reads the last day of activity
func TestFinOSReport(t *testing.T) {
	database := dbtest.Open(t)
	svc := newTestService(Dependencies{Reports: NewRepository(database)})

	report, err := svc.FinOSReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24, report.WindowHours)
	assert.GreaterOrEqual(t, report.Payments.Count, 0)
	assert.Regexp(t, `^\d+\.\d{2}$`, report.Payments.Total)
	assert.Regexp(t, `^\d+\.\d{2}$`, report.Payouts.Total)
	assert.False(t, report.Timestamp.IsZero())
}

func TestBatchListsNeverNil(t *testing.T) {
	svc := newTestService(Dependencies{})

	batches, err := svc.ListBatches(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, batches)

	settlements, err := svc.BatchSettlements(context.Background(), "b1")
	require.NoError(t, err)
	assert.NotNil(t, settlements)
}
