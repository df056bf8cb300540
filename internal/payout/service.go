// Package payout moves a driver's available balance into the platform's
// pending account and hands the transfer to the mobile money provider.
package payout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/metrics"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/kmassidik/movegh/internal/governance"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/ledger"
	"github.com/kmassidik/movegh/internal/provider"
	"github.com/kmassidik/movegh/pkg/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("movegh/payout")

// Locker is the redis lock serializing payouts per driver. A nil locker
// relies on the ledger row locks alone.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

type Dependencies struct {
	DB         *db.DB
	Repo       *Repository
	Ledger     *ledger.Service
	Governance *governance.Registry
	Providers  *provider.Registry
	Journal    *idempotency.Journal
	Audit      *idempotency.AuditLog
	Outbox     *outbox.Repository
	Locker     Locker
	Config     config.PaymentsConfig
	Logger     *logger.Logger
}

type Service struct {
	db         *db.DB
	repo       *Repository
	ledger     *ledger.Service
	governance *governance.Registry
	providers  *provider.Registry
	journal    *idempotency.Journal
	audit      *idempotency.AuditLog
	outbox     *outbox.Repository
	locker     Locker
	cfg        config.PaymentsConfig
	logger     *logger.Logger
}

func NewService(d Dependencies) *Service {
	return &Service{
		db:         d.DB,
		repo:       d.Repo,
		ledger:     d.Ledger,
		governance: d.Governance,
		providers:  d.Providers,
		journal:    d.Journal,
		audit:      d.Audit,
		outbox:     d.Outbox,
		locker:     d.Locker,
		cfg:        d.Config,
		logger:     d.Logger,
	}
}

func lockKey(driverID string) string {
	return "payout:driver:" + driverID
}

// RequestPayout debits the driver, records a queued payout and asks the
// provider to send it. A provider failure marks the payout failed and
// leaves the funds in the platform's pending account for ops.
func (s *Service) RequestPayout(ctx context.Context, driverID string, in PayoutInput, key string, meta idempotency.RequestMeta) (*PayoutResponse, error) {
	ctx, span := tracer.Start(ctx, "payout.request")
	defer span.End()
	span.SetAttributes(attribute.String("driver_id", driverID))

	name := in.Provider
	if name == "" {
		name = s.cfg.Provider
	}
	prov, err := s.providers.Get(name)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		acquired, err := s.locker.AcquireLock(ctx, lockKey(driverID), LockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire payout lock: %w", err)
		}
		if !acquired {
			return nil, ErrPayoutInProgress
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), lockKey(driverID)); err != nil {
				s.logger.Warnf("Failed to release payout lock for %s: %v", driverID, err)
			}
		}()
	}

	amount := money.Round2(in.Amount)
	currency := s.cfg.Currency
	var resp *PayoutResponse
	var touched []string
	fresh := false
	started := time.Now()

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.journal.Claim(ctx, tx, key); err != nil {
			return err
		}
		if raw, found, err := s.journal.Lookup(ctx, tx, key); err != nil {
			return err
		} else if found {
			resp = &PayoutResponse{}
			return json.Unmarshal(raw, resp)
		}

		platform, err := s.governance.EnsurePlatformWallets(ctx, tx, currency)
		if err != nil {
			return err
		}
		driver, err := s.governance.EnsureWallet(ctx, tx, governance.OwnerDriver, driverID, currency, ledger.AccountAvailable)
		if err != nil {
			return err
		}

		txnID, err := s.journal.Record(ctx, tx, idempotency.Entry{
			Type:           idempotency.TypePayout,
			Status:         provider.TransferQueued,
			IdempotencyKey: key,
			Metadata: map[string]interface{}{
				"action":   "payout_request",
				"driverId": driverID,
				"amount":   money.String(amount),
				"provider": prov.Name(),
			},
		})
		if err != nil {
			return err
		}

		if _, err := s.ledger.PostTransfer(ctx, tx, ledger.TransferRequest{
			FromAccountID: driver.Account(ledger.AccountAvailable),
			ToAccountID:   platform.TreasuryPending,
			Amount:        amount,
			TxnID:         txnID,
			Memo:          "driver payout",
			EventType:     "payout.request",
		}); err != nil {
			return err
		}

		p := &Payout{
			DriverID:    driverID,
			Amount:      amount,
			Currency:    currency,
			Provider:    prov.Name(),
			Destination: in.DestinationPhone,
			Status:      provider.TransferQueued,
			TxnID:       &txnID,
		}
		if err := s.repo.CreatePayoutTx(ctx, tx, p); err != nil {
			return err
		}
		fresh = true

		status := provider.TransferFailed
		providerRef := ""
		result, err := prov.Payout(ctx, provider.RequestContext{
			IdempotencyKey: key,
			CorrelationID:  meta.RequestID,
			RequestID:      meta.RequestID,
		}, provider.PayoutInput{
			PayoutID:    p.ID,
			DriverID:    driverID,
			Amount:      amount,
			Currency:    currency,
			Destination: in.DestinationPhone,
		})
		if err != nil {
			s.logger.Errorf("Provider %s payout %s failed, funds stay pending: %v", prov.Name(), p.ID, err)
		} else {
			status = result.Status
			providerRef = result.ProviderRef
		}
		metrics.PayoutDelay.WithLabelValues(prov.Name(), status).Observe(time.Since(started).Seconds())

		if err := s.repo.UpdateStatusTx(ctx, tx, p.ID, status, providerRef); err != nil {
			return err
		}
		if err := s.journal.SetStatus(ctx, tx, txnID, status); err != nil {
			return err
		}

		resp = &PayoutResponse{PayoutID: p.ID, Status: status}
		if err := s.journal.AttachResponse(ctx, tx, key, resp); err != nil {
			return err
		}
		if err := s.audit.Write(ctx, tx, idempotency.AuditEntry{
			Actor:   driverID,
			Action:  "payout_request",
			Target:  p.ID,
			Meta:    meta,
			Payload: map[string]string{"driverId": driverID, "amount": money.String(amount)},
		}); err != nil {
			return err
		}

		touched = []string{driver.WalletID, platform.TreasuryWalletID}
		return s.outbox.SaveEvent(ctx, tx, &outbox.OutboxEvent{
			AggregateID: p.ID,
			EventType:   outbox.TopicPayoutRequested,
			Topic:       outbox.TopicPayoutRequested,
			Payload: map[string]interface{}{
				"payoutId":    p.ID,
				"driverId":    driverID,
				"amount":      money.String(amount),
				"currency":    currency,
				"provider":    prov.Name(),
				"status":      status,
				"providerRef": providerRef,
			},
		})
	})
	if err != nil {
		s.logger.Errorf("Payout for driver %s failed (request_id=%s): %v", driverID, meta.RequestID, err)
		return nil, err
	}

	if fresh {
		s.journal.CacheResponse(ctx, key, resp)
		s.governance.InvalidateBalances(ctx, touched...)
		metrics.PayoutTotal.WithLabelValues(prov.Name(), resp.Status).Inc()
		metrics.PayoutTotalPublic.WithLabelValues(prov.Name(), resp.Status).Inc()
		s.logger.Infow("payout_requested",
			"payout_id", resp.PayoutID,
			"driver_id", driverID,
			"amount", money.String(amount),
			"status", resp.Status,
		)
	}
	return resp, nil
}

// GetPayout reads one payout
func (s *Service) GetPayout(ctx context.Context, id string) (*Payout, error) {
	return s.repo.GetPayout(ctx, id)
}
