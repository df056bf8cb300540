// Package settlement reconciles the ledger's escrow position against the
// totals reported by payment providers.
package settlement

import (
	"context"
	"database/sql"
	"time"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/metrics"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/pkg/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("movegh/settlement")

type Dependencies struct {
	DB              *db.DB
	Repo            *Repository
	Journal         *idempotency.Journal
	Outbox          *outbox.Repository
	TreasuryOwnerID string
	DefaultCurrency string
	Logger          *logger.Logger
}

type Service struct {
	db              *db.DB
	repo            *Repository
	journal         *idempotency.Journal
	outbox          *outbox.Repository
	treasuryOwnerID string
	defaultCurrency string
	now             func() time.Time
	logger          *logger.Logger
}

func NewService(d Dependencies) *Service {
	return &Service{
		db:              d.DB,
		repo:            d.Repo,
		journal:         d.Journal,
		outbox:          d.Outbox,
		treasuryOwnerID: d.TreasuryOwnerID,
		defaultCurrency: d.DefaultCurrency,
		now:             time.Now,
		logger:          d.Logger,
	}
}

// RunReconciliation records one settlement for the period. A nonzero
// drift also journals an adjustment and emits a drift event.
func (s *Service) RunReconciliation(ctx context.Context, in Input) (*Report, error) {
	ctx, span := tracer.Start(ctx, "settlement.reconcile")
	defer span.End()

	if err := Normalize(&in, s.defaultCurrency, s.now()); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("provider", in.Provider),
		attribute.String("currency", in.Currency),
	)

	var report *Report
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		batchID, err := s.repo.UpsertBatchTx(ctx, tx, in)
		if err != nil {
			return err
		}

		ledgerTotal, err := s.repo.EscrowTotalTx(ctx, tx, s.treasuryOwnerID, in.Currency)
		if err != nil {
			return err
		}
		ledgerTotal = money.Round2(ledgerTotal)
		drift, status := Classify(ledgerTotal, in.ProviderTotal)

		settlement := &Settlement{
			BatchID:       &batchID,
			Provider:      in.Provider,
			Currency:      in.Currency,
			PeriodStart:   in.PeriodStart,
			PeriodEnd:     in.PeriodEnd,
			LedgerTotal:   ledgerTotal,
			ProviderTotal: in.ProviderTotal,
			Drift:         drift,
			Status:        status,
		}
		if err := s.repo.InsertSettlementTx(ctx, tx, settlement); err != nil {
			return err
		}

		report = &Report{
			SettlementID:  settlement.ID,
			BatchID:       batchID,
			Provider:      in.Provider,
			Currency:      in.Currency,
			LedgerTotal:   ledgerTotal,
			ProviderTotal: in.ProviderTotal,
			Drift:         drift,
			Status:        status,
			PeriodStart:   in.PeriodStart,
			PeriodEnd:     in.PeriodEnd,
			CreatedAt:     settlement.CreatedAt,
		}
		if err := s.repo.InsertReportTx(ctx, tx, settlement.ID, report); err != nil {
			return err
		}

		if drift == nil || drift.IsZero() {
			return nil
		}

		if _, err := s.journal.RecordAdjustment(ctx, tx, map[string]interface{}{
			"settlementId": settlement.ID,
			"drift":        money.String(*drift),
		}); err != nil {
			return err
		}
		return s.outbox.SaveEvent(ctx, tx, &outbox.OutboxEvent{
			AggregateID: settlement.ID,
			EventType:   outbox.TopicDriftDetected,
			Topic:       outbox.TopicDriftDetected,
			Payload: map[string]interface{}{
				"settlementId": settlement.ID,
				"provider":     in.Provider,
				"currency":     in.Currency,
				"ledgerTotal":  money.String(ledgerTotal),
				"drift":        money.String(*drift),
			},
		})
	})
	if err != nil {
		s.logger.Errorf("Reconciliation for %s %s failed: %v", in.Provider, in.Currency, err)
		return nil, err
	}

	if report.Drift != nil {
		value, _ := report.Drift.Float64()
		metrics.LedgerDrift.Set(value)
		metrics.SettlementDriftAmount.Set(value)
	}
	metrics.ReconciliationLag.Set(0)

	s.logger.Infow("settlement_reconciled",
		"settlement_id", report.SettlementID,
		"provider", report.Provider,
		"currency", report.Currency,
		"status", report.Status,
	)
	if report.Status == StatusMismatch {
		s.logger.Warnf("Settlement %s drift %s %s", report.SettlementID, money.String(*report.Drift), report.Currency)
	}
	return report, nil
}

// GetLatestSettlement returns nil when nothing ran yet and refreshes the lag gauge
func (s *Service) GetLatestSettlement(ctx context.Context) (*Settlement, error) {
	latest, err := s.repo.LatestSettlement(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		metrics.ReconciliationLag.Set(s.now().Sub(latest.CreatedAt).Seconds())
	}
	return latest, nil
}

// CreateBatch opens the batch for a provider, currency and period ahead of
// any run and returns its id; an existing batch is returned unchanged
func (s *Service) CreateBatch(ctx context.Context, in Input) (string, error) {
	if err := Normalize(&in, s.defaultCurrency, s.now()); err != nil {
		return "", err
	}
	return s.repo.UpsertBatchTx(ctx, s.db, in)
}

func (s *Service) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.ListBatches(ctx, limit)
}

func (s *Service) ListSettlements(ctx context.Context, batchID string) ([]Settlement, error) {
	return s.repo.ListSettlements(ctx, batchID)
}

func (s *Service) CloseBatch(ctx context.Context, id string) error {
	if err := s.repo.CloseBatch(ctx, id); err != nil {
		return err
	}
	s.logger.Infof("Settlement batch %s closed", id)
	return nil
}
