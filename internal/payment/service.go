// Package payment sequences fraud assessment, provider calls and ledger
// postings for a rider's payment intent.
package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kmassidik/movegh/internal/commission"
	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/metrics"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/kmassidik/movegh/internal/escrow"
	"github.com/kmassidik/movegh/internal/fraud"
	"github.com/kmassidik/movegh/internal/governance"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/ledger"
	"github.com/kmassidik/movegh/internal/provider"
	"github.com/kmassidik/movegh/pkg/outbox"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("movegh/payment")

// Dependencies wires the orchestrator to the components it sequences
type Dependencies struct {
	DB          *db.DB
	Repo        *Repository
	Ledger      *ledger.Service
	Governance  *governance.Registry
	Commission  *commission.Repository
	Fraud       *fraud.Service
	Escrow      *escrow.Manager
	Providers   *provider.Registry
	Journal     *idempotency.Journal
	Audit       *idempotency.AuditLog
	Outbox      *outbox.Repository
	Config      config.PaymentsConfig
	Logger      *logger.Logger
}

type Service struct {
	db         *db.DB
	repo       *Repository
	ledger     *ledger.Service
	governance *governance.Registry
	commission *commission.Repository
	fraud      *fraud.Service
	escrow     *escrow.Manager
	providers  *provider.Registry
	journal    *idempotency.Journal
	audit      *idempotency.AuditLog
	outbox     *outbox.Repository
	cfg        config.PaymentsConfig
	logger     *logger.Logger
}

func NewService(d Dependencies) *Service {
	return &Service{
		db:         d.DB,
		repo:       d.Repo,
		ledger:     d.Ledger,
		governance: d.Governance,
		commission: d.Commission,
		fraud:      d.Fraud,
		escrow:     d.Escrow,
		providers:  d.Providers,
		journal:    d.Journal,
		audit:      d.Audit,
		outbox:     d.Outbox,
		cfg:        d.Config,
		logger:     d.Logger,
	}
}

// WebhookKey is the idempotency key of a provider event
func WebhookKey(providerName, eventID string) string {
	return "webhook:" + providerName + ":" + eventID
}

func requestContext(key string, meta idempotency.RequestMeta) provider.RequestContext {
	return provider.RequestContext{
		IdempotencyKey: key,
		CorrelationID:  meta.RequestID,
		RequestID:      meta.RequestID,
	}
}

func (s *Service) provider(name string) (provider.Provider, error) {
	if name == "" {
		name = s.cfg.Provider
	}
	p, err := s.providers.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
	return p, nil
}

// CreatePaymentIntent assesses risk, records the intent and asks the provider
// to start collection. Blocked and review verdicts never reach the provider.
func (s *Service) CreatePaymentIntent(ctx context.Context, in CreateIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error) {
	ctx, span := tracer.Start(ctx, "payment.create_intent")
	defer span.End()

	if in.Currency == "" {
		in.Currency = s.cfg.Currency
	}
	prov, err := s.provider(in.Provider)
	if err != nil {
		return nil, err
	}
	in.Provider = prov.Name()
	in.Amount = money.Round2(in.Amount)
	span.SetAttributes(attribute.String("provider", in.Provider), attribute.String("trip_id", in.TripID))

	var resp *IntentResponse
	var touched []string
	replayed := false

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.journal.Claim(ctx, tx, key); err != nil {
			return err
		}
		if raw, found, err := s.journal.Lookup(ctx, tx, key); err != nil {
			return err
		} else if found {
			replayed = true
			resp = &IntentResponse{}
			return json.Unmarshal(raw, resp)
		}

		store := fraud.NewRepository(tx)
		assessment, err := s.fraud.AssessPaymentRisk(ctx, store, fraud.Input{
			RiderID:     in.RiderID,
			Amount:      in.Amount,
			Currency:    in.Currency,
			PhoneNumber: in.PhoneNumber,
			DeviceID:    in.DeviceID,
			IP:          in.IP,
			Country:     in.Country,
		})
		if err != nil {
			return fmt.Errorf("risk assessment failed: %w", err)
		}

		intent := &Intent{
			RiderID:    in.RiderID,
			TripID:     in.TripID,
			Amount:     in.Amount,
			Currency:   in.Currency,
			Provider:   in.Provider,
			Status:     StatusCreated,
			RiskScore:  assessment.Score,
			RiskStatus: assessment.Status,
			RiskReason: optional(strings.Join(assessment.Reasons, ";")),
			DeviceHash: optional(assessment.DeviceHash),
			PhoneHash:  optional(assessment.PhoneHash),
		}
		if err := s.repo.CreateIntentTx(ctx, tx, intent); err != nil {
			return err
		}

		txnID, err := s.journal.Record(ctx, tx, idempotency.Entry{
			Type:           idempotency.TypePayment,
			Status:         StatusCreated,
			IdempotencyKey: key,
			Metadata: map[string]interface{}{
				"action":     "intent_create",
				"intentId":   intent.ID,
				"provider":   in.Provider,
				"riskStatus": assessment.Status,
				"riskScore":  assessment.Score,
			},
		})
		if err != nil {
			return err
		}

		if len(assessment.Reasons) > 0 {
			details := map[string]interface{}{"amount": money.String(in.Amount), "currency": in.Currency}
			if err := s.fraud.RecordFlags(ctx, store, intent.ID, in.RiderID, assessment, details); err != nil {
				return err
			}
		}

		resp = &IntentResponse{IntentID: intent.ID}
		switch assessment.Status {
		case fraud.StatusBlocked:
			if err := s.repo.UpdateStatusTx(ctx, tx, intent.ID, StatusFailed, ""); err != nil {
				return err
			}
			resp.Status = StatusFailed
			resp.RiskStatus = fraud.StatusBlocked
		case fraud.StatusReview:
			if err := s.repo.UpdateStatusTx(ctx, tx, intent.ID, StatusReview, ""); err != nil {
				return err
			}
			resp.Status = StatusReview
			resp.RiskStatus = fraud.StatusReview
		default:
			status, instructions, wallets, err := s.initiate(ctx, tx, prov, intent, in.PhoneNumber, key, meta, txnID)
			if err != nil {
				return err
			}
			resp.Status = status
			resp.CheckoutInstructions = instructions
			touched = wallets
		}

		if err := s.journal.SetStatus(ctx, tx, txnID, resp.Status); err != nil {
			return err
		}
		if err := s.journal.AttachResponse(ctx, tx, key, resp); err != nil {
			return err
		}

		if err := s.audit.Write(ctx, tx, idempotency.AuditEntry{
			Actor:   in.RiderID,
			Action:  "payment_intent.create",
			Target:  intent.ID,
			Meta:    meta,
			Payload: in,
		}); err != nil {
			return err
		}

		return s.outbox.SaveEvent(ctx, tx, &outbox.OutboxEvent{
			AggregateID: intent.ID,
			EventType:   outbox.TopicIntentCreated,
			Topic:       outbox.TopicIntentCreated,
			Payload: map[string]interface{}{
				"intentId":   intent.ID,
				"tripId":     in.TripID,
				"riderId":    in.RiderID,
				"amount":     money.String(in.Amount),
				"currency":   in.Currency,
				"provider":   in.Provider,
				"status":     resp.Status,
				"riskStatus": assessment.Status,
			},
		})
	})
	if err != nil {
		s.logger.Errorf("Create payment intent failed (request_id=%s): %v", meta.RequestID, err)
		return nil, err
	}

	if !replayed {
		s.journal.CacheResponse(ctx, key, resp)
		s.governance.InvalidateBalances(ctx, touched...)
		metrics.IntentTotal.WithLabelValues(in.Provider, resp.Status).Inc()
		s.logger.Infow("payment_intent_created",
			"intent_id", resp.IntentID,
			"provider", in.Provider,
			"status", resp.Status,
			"amount", money.String(in.Amount),
			"request_id", meta.RequestID,
		)
	}
	return resp, nil
}

// initiate calls the provider for a risk-clear intent and applies the result
func (s *Service) initiate(ctx context.Context, tx *sql.Tx, prov provider.Provider, intent *Intent, phone, key string, meta idempotency.RequestMeta, txnID string) (string, string, []string, error) {
	result, err := prov.InitiatePayment(ctx, requestContext(key, meta), provider.InitiateInput{
		IntentID:    intent.ID,
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		PhoneNumber: phone,
		RiderID:     intent.RiderID,
		TripID:      intent.TripID,
	})
	if err != nil {
		s.logger.Errorf("Provider %s initiate failed for intent %s: %v", prov.Name(), intent.ID, err)
		return StatusFailed, "", nil, s.repo.UpdateStatusTx(ctx, tx, intent.ID, StatusFailed, "")
	}

	switch result.Status {
	case provider.StatusAuthorized:
		return StatusAuthorized, result.CheckoutInstructions, nil,
			s.repo.UpdateStatusTx(ctx, tx, intent.ID, StatusAuthorized, result.ProviderRef)
	case provider.StatusCaptured:
		wallets, err := s.capture(ctx, tx, captureInput{
			intent:      intent,
			amount:      intent.Amount,
			driverID:    DefaultDriverID,
			providerRef: result.ProviderRef,
			txnID:       txnID,
		})
		return StatusCaptured, result.CheckoutInstructions, wallets, err
	case provider.StatusFailed:
		return StatusFailed, result.CheckoutInstructions, nil,
			s.repo.UpdateStatusTx(ctx, tx, intent.ID, StatusFailed, result.ProviderRef)
	default:
		return StatusCreated, result.CheckoutInstructions, nil,
			s.repo.UpdateStatusTx(ctx, tx, intent.ID, StatusCreated, result.ProviderRef)
	}
}

// ConfirmPaymentIntent verifies the payment with the provider and captures it
func (s *Service) ConfirmPaymentIntent(ctx context.Context, intentID string, in ConfirmIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error) {
	ctx, span := tracer.Start(ctx, "payment.confirm_intent")
	defer span.End()
	span.SetAttributes(attribute.String("intent_id", intentID))

	var resp *IntentResponse
	var touched []string
	var providerName string
	attempted := false
	fresh := false

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.journal.Claim(ctx, tx, key); err != nil {
			return err
		}

		intent, err := s.repo.LockIntentTx(ctx, tx, intentID)
		if err != nil {
			return err
		}
		if in.RiderID != "" && intent.RiderID != in.RiderID {
			return ErrIntentNotFound
		}

		if raw, found, err := s.journal.Lookup(ctx, tx, key); err != nil {
			return err
		} else if found {
			resp = &IntentResponse{}
			return json.Unmarshal(raw, resp)
		}
		providerName = intent.Provider

		// risk cases must be resolved by ops first; nothing is journaled so
		// the same key can be retried after resolution
		if intent.Status == StatusReview || intent.RiskStatus != fraud.StatusClear {
			resp = &IntentResponse{IntentID: intent.ID, Status: intent.Status, RiskStatus: intent.RiskStatus}
			return nil
		}

		if intent.Status == StatusCaptured || intent.Status == StatusFailed {
			resp = &IntentResponse{IntentID: intent.ID, Status: intent.Status}
			return s.journalTerminal(ctx, tx, key, intent, resp)
		}

		prov, err := s.provider(intent.Provider)
		if err != nil {
			return err
		}

		attempted = true
		fresh = true
		status := provider.StatusFailed
		providerRef := ""
		verify, err := prov.VerifyPayment(ctx, requestContext(key, meta), provider.VerifyInput{
			IntentID:    intent.ID,
			ProviderRef: deref(intent.ProviderRef),
			Amount:      intent.Amount,
			Currency:    intent.Currency,
			PhoneNumber: in.PhoneNumber,
			RiderID:     intent.RiderID,
		})
		if err != nil {
			s.logger.Errorf("Provider %s verify failed for intent %s: %v", prov.Name(), intent.ID, err)
		} else {
			status = verify.Status
			providerRef = verify.ProviderRef
		}

		resp = &IntentResponse{IntentID: intent.ID}
		driverID := firstNonEmpty(in.DriverID, deref(intent.DriverID), DefaultDriverID)

		txnID, err := s.journal.Record(ctx, tx, idempotency.Entry{
			Type:           idempotency.TypePayment,
			Status:         status,
			IdempotencyKey: key,
			Metadata: map[string]interface{}{
				"action":   "intent_confirm",
				"intentId": intent.ID,
				"provider": intent.Provider,
				"driverId": driverID,
			},
		})
		if err != nil {
			return err
		}

		switch status {
		case provider.StatusCaptured:
			touched, err = s.capture(ctx, tx, captureInput{
				intent:      intent,
				amount:      intent.Amount,
				driverID:    driverID,
				providerRef: providerRef,
				txnID:       txnID,
			})
			if err != nil {
				return err
			}
			resp.Status = StatusCaptured
		case provider.StatusAuthorized:
			if err := s.repo.UpdateStatusTx(ctx, tx, intent.ID, StatusAuthorized, providerRef); err != nil {
				return err
			}
			resp.Status = StatusAuthorized
		default:
			if err := s.fail(ctx, tx, intent, providerRef, "verify_failed"); err != nil {
				return err
			}
			resp.Status = StatusFailed
		}

		if err := s.journal.AttachResponse(ctx, tx, key, resp); err != nil {
			return err
		}
		return s.audit.Write(ctx, tx, idempotency.AuditEntry{
			Actor:   intent.RiderID,
			Action:  "payment_intent." + resp.Status,
			Target:  intent.ID,
			Meta:    meta,
			Payload: map[string]string{"intentId": intent.ID, "driverId": driverID, "status": resp.Status},
		})
	})
	if err != nil {
		s.logger.Errorf("Confirm payment intent %s failed (request_id=%s): %v", intentID, meta.RequestID, err)
		return nil, err
	}

	if attempted {
		metrics.PaymentAttemptTotal.WithLabelValues(providerName, resp.Status).Inc()
	}
	if fresh {
		s.journal.CacheResponse(ctx, key, resp)
		s.governance.InvalidateBalances(ctx, touched...)
		metrics.IntentTotal.WithLabelValues(providerName, resp.Status).Inc()
		s.logger.Infof("Payment intent %s confirmed: %s (request_id=%s)", intentID, resp.Status, meta.RequestID)
	}
	return resp, nil
}

// journalTerminal records the response for a confirm on an intent that
// already reached captured or failed
func (s *Service) journalTerminal(ctx context.Context, tx *sql.Tx, key string, intent *Intent, resp *IntentResponse) error {
	if _, err := s.journal.Record(ctx, tx, idempotency.Entry{
		Type:           idempotency.TypePayment,
		Status:         intent.Status,
		IdempotencyKey: key,
		Metadata:       map[string]interface{}{"action": "intent_confirm", "intentId": intent.ID},
	}); err != nil {
		return err
	}
	return s.journal.AttachResponse(ctx, tx, key, resp)
}

func (s *Service) fail(ctx context.Context, tx *sql.Tx, intent *Intent, providerRef, reason string) error {
	if !CanTransition(intent.Status, StatusFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, intent.Status, StatusFailed)
	}
	if err := s.repo.UpdateStatusTx(ctx, tx, intent.ID, StatusFailed, providerRef); err != nil {
		return err
	}
	return s.outbox.SaveEvent(ctx, tx, &outbox.OutboxEvent{
		AggregateID: intent.ID,
		EventType:   outbox.TopicPaymentFailed,
		Topic:       outbox.TopicPaymentFailed,
		Payload: map[string]interface{}{
			"intentId": intent.ID,
			"riderId":  intent.RiderID,
			"tripId":   intent.TripID,
			"provider": intent.Provider,
			"reason":   reason,
		},
	})
}

type captureInput struct {
	intent      *Intent
	amount      decimal.Decimal
	driverID    string
	providerRef string
	txnID       string
}

// capture moves the fare rider -> treasury escrow and splits it out to
// revenue and the driver under one transaction id. It returns the wallets
// whose cached balances are now stale.
func (s *Service) capture(ctx context.Context, tx *sql.Tx, c captureInput) ([]string, error) {
	intent := c.intent
	if intent.RiskStatus != fraud.StatusClear || !CanTransition(intent.Status, StatusCaptured) {
		return nil, fmt.Errorf("%w: %s -> %s (risk %s)", ErrIllegalTransition, intent.Status, StatusCaptured, intent.RiskStatus)
	}

	amount := money.Round2(c.amount)
	platform, err := s.governance.EnsurePlatformWallets(ctx, tx, intent.Currency)
	if err != nil {
		return nil, err
	}
	rider, err := s.governance.EnsureWallet(ctx, tx, governance.OwnerRider, intent.RiderID, intent.Currency,
		ledger.AccountAvailable, ledger.AccountPending)
	if err != nil {
		return nil, err
	}
	driver, err := s.governance.EnsureWallet(ctx, tx, governance.OwnerDriver, c.driverID, intent.Currency,
		ledger.AccountAvailable)
	if err != nil {
		return nil, err
	}

	rule, err := s.commission.GetActiveRule(ctx, tx, commission.AppliesToRide)
	if err != nil {
		return nil, err
	}
	split := commission.ComputeSplit(amount, rule)

	// A mobile-money rider rarely has a stored balance: the provider has just
	// collected the fare, so any shortfall is booked in from the rider's
	// pending account first. A rider funded for the whole fare gets only the
	// debit, commission and net postings and available drops by the fare; an
	// unfunded rider gets this extra collection posting and available ends at
	// zero while pending carries the collected amount as a negative balance.
	available, err := s.ledger.Balance(ctx, tx, rider.Account(ledger.AccountAvailable))
	if err != nil {
		return nil, err
	}
	if shortfall := money.Round2(amount.Sub(available)); shortfall.IsPositive() {
		if _, err := s.ledger.PostTransfer(ctx, tx, ledger.TransferRequest{
			FromAccountID: rider.Account(ledger.AccountPending),
			ToAccountID:   rider.Account(ledger.AccountAvailable),
			Amount:        shortfall,
			TxnID:         c.txnID,
			Memo:          "mobile money collection",
			EventType:     "payment.collection",
		}); err != nil {
			return nil, err
		}
	}

	transfers := []ledger.TransferRequest{{
		FromAccountID: rider.Account(ledger.AccountAvailable),
		ToAccountID:   platform.TreasuryEscrow,
		Amount:        amount,
		Memo:          "trip " + intent.TripID,
		EventType:     "payment.capture",
	}}
	if split.Commission.IsPositive() {
		transfers = append(transfers, ledger.TransferRequest{
			FromAccountID: platform.TreasuryEscrow,
			ToAccountID:   platform.RevenueAvailable,
			Amount:        split.Commission,
			Memo:          "commission",
			EventType:     "payment.commission",
		})
	}
	if split.Net.IsPositive() {
		transfers = append(transfers, ledger.TransferRequest{
			FromAccountID: platform.TreasuryEscrow,
			ToAccountID:   driver.Account(ledger.AccountAvailable),
			Amount:        split.Net,
			Memo:          "driver net",
			EventType:     "payment.driver_net",
		})
	}
	for _, t := range transfers {
		t.TxnID = c.txnID
		if _, err := s.ledger.PostTransfer(ctx, tx, t); err != nil {
			return nil, err
		}
	}

	hold, err := s.escrow.Hold(ctx, tx, escrow.HoldInput{
		TripID:   intent.TripID,
		IntentID: intent.ID,
		TxnID:    c.txnID,
		Amount:   amount,
		Currency: intent.Currency,
	})
	if err != nil {
		return nil, err
	}
	// the split above already emptied escrow for this trip
	if err := s.escrow.Release(ctx, tx, hold.ID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatusTx(ctx, tx, intent.ID, StatusCaptured, c.providerRef); err != nil {
		return nil, err
	}
	if err := s.repo.SetDriverTx(ctx, tx, intent.ID, c.driverID); err != nil {
		return nil, err
	}

	if err := s.outbox.SaveEvent(ctx, tx, &outbox.OutboxEvent{
		AggregateID: intent.ID,
		EventType:   outbox.TopicPaymentCaptured,
		Topic:       outbox.TopicPaymentCaptured,
		Payload: map[string]interface{}{
			"intentId":   intent.ID,
			"tripId":     intent.TripID,
			"riderId":    intent.RiderID,
			"driverId":   c.driverID,
			"txnId":      c.txnID,
			"amount":     money.String(amount),
			"commission": money.String(split.Commission),
			"net":        money.String(split.Net),
			"currency":   intent.Currency,
		},
	}); err != nil {
		return nil, err
	}

	s.logger.Infow("payment_intent_captured",
		"intent_id", intent.ID,
		"driver_id", c.driverID,
		"amount", money.String(amount),
		"commission", money.String(split.Commission),
	)
	intent.Status = StatusCaptured
	return []string{rider.WalletID, driver.WalletID, platform.TreasuryWalletID}, nil
}

// HandleWebhook applies a verified provider event at most once per event id
func (s *Service) HandleWebhook(ctx context.Context, providerName string, headers http.Header, rawBody []byte) (*WebhookResponse, error) {
	ctx, span := tracer.Start(ctx, "payment.webhook")
	defer span.End()

	prov, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	event, err := prov.WebhookHandler(headers, rawBody)
	if err != nil {
		s.logger.Warnf("Rejected %s webhook: %v", providerName, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("event_id", event.EventID), attribute.String("intent_id", event.IntentID))

	if ts, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
		metrics.WebhookDelay.WithLabelValues(prov.Name()).Observe(time.Since(ts).Seconds())
	}

	key := WebhookKey(prov.Name(), event.EventID)
	var resp *WebhookResponse
	var touched []string
	fresh := false

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.journal.Claim(ctx, tx, key); err != nil {
			return err
		}
		if raw, found, err := s.journal.Lookup(ctx, tx, key); err != nil {
			return err
		} else if found {
			resp = &WebhookResponse{}
			return json.Unmarshal(raw, resp)
		}

		intent, err := s.repo.LockIntentTx(ctx, tx, event.IntentID)
		if err != nil {
			return err
		}
		fresh = true

		status := StatusFailed
		if event.Status == provider.StatusCaptured {
			status = StatusCaptured
		}

		txnID, err := s.journal.Record(ctx, tx, idempotency.Entry{
			Type:           idempotency.TypePayment,
			Status:         status,
			IdempotencyKey: key,
			Metadata: map[string]interface{}{
				"action":   "webhook",
				"intentId": intent.ID,
				"provider": prov.Name(),
				"eventId":  event.EventID,
				"status":   status,
			},
		})
		if err != nil {
			return err
		}

		switch {
		case status == StatusCaptured && intent.RiskStatus == fraud.StatusClear && CanTransition(intent.Status, StatusCaptured):
			amount := intent.Amount
			if event.Amount != nil {
				amount = *event.Amount
			}
			touched, err = s.capture(ctx, tx, captureInput{
				intent:      intent,
				amount:      amount,
				driverID:    firstNonEmpty(event.DriverID, deref(intent.DriverID), DefaultDriverID),
				providerRef: event.ProviderRef,
				txnID:       txnID,
			})
			if err != nil {
				return err
			}
		case status == StatusFailed && CanTransition(intent.Status, StatusFailed):
			if err := s.fail(ctx, tx, intent, event.ProviderRef, "webhook_failed"); err != nil {
				return err
			}
			intent.Status = StatusFailed
		default:
			s.logger.Infof("Webhook %s for intent %s in status %s changes nothing", event.EventID, intent.ID, intent.Status)
		}

		resp = &WebhookResponse{Received: true, IntentID: intent.ID, Status: intent.Status}
		if err := s.journal.AttachResponse(ctx, tx, key, resp); err != nil {
			return err
		}
		return s.audit.Write(ctx, tx, idempotency.AuditEntry{
			Actor:   "provider:" + prov.Name(),
			Action:  "payment_webhook",
			Target:  intent.ID,
			Payload: map[string]string{"eventId": event.EventID, "status": status},
		})
	})
	if err != nil {
		s.logger.Errorf("Webhook %s from %s failed: %v", event.EventID, prov.Name(), err)
		return nil, err
	}

	if fresh {
		s.journal.CacheResponse(ctx, key, resp)
		s.governance.InvalidateBalances(ctx, touched...)
	}
	return resp, nil
}

// RefundPayment returns funds for a captured intent from the treasury's
// available account to the rider
func (s *Service) RefundPayment(ctx context.Context, intentID string, in RefundInput, key string, meta idempotency.RequestMeta) (*RefundResponse, error) {
	ctx, span := tracer.Start(ctx, "payment.refund")
	defer span.End()

	var resp *RefundResponse
	var touched []string
	fresh := false

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.journal.Claim(ctx, tx, key); err != nil {
			return err
		}
		if raw, found, err := s.journal.Lookup(ctx, tx, key); err != nil {
			return err
		} else if found {
			resp = &RefundResponse{}
			return json.Unmarshal(raw, resp)
		}

		intent, err := s.repo.LockIntentTx(ctx, tx, intentID)
		if err != nil {
			return err
		}
		if intent.Status != StatusCaptured {
			return ErrIntentNotCaptured
		}

		amount := intent.Amount
		if in.Amount != nil {
			amount = money.Round2(*in.Amount)
		}
		if !amount.IsPositive() {
			return ledger.ErrInvalidAmount
		}
		refunded, err := s.repo.RefundedTotalTx(ctx, tx, intent.ID)
		if err != nil {
			return err
		}
		if refunded.Add(amount).GreaterThan(intent.Amount) {
			return ErrRefundExceedsAmount
		}

		platform, err := s.governance.EnsurePlatformWallets(ctx, tx, intent.Currency)
		if err != nil {
			return err
		}
		rider, err := s.governance.EnsureWallet(ctx, tx, governance.OwnerRider, intent.RiderID, intent.Currency, ledger.AccountAvailable)
		if err != nil {
			return err
		}
		treasury, err := s.ledger.Balance(ctx, tx, platform.TreasuryAvailable)
		if err != nil {
			return err
		}
		if treasury.LessThan(amount) {
			return ledger.ErrInsufficientBalance
		}

		prov, err := s.provider(intent.Provider)
		if err != nil {
			return err
		}
		result, err := prov.Refund(ctx, requestContext(key, meta), provider.RefundInput{
			IntentID:    intent.ID,
			ProviderRef: deref(intent.ProviderRef),
			Amount:      amount,
			Currency:    intent.Currency,
			Reason:      in.Reason,
		})
		if err != nil {
			return err
		}
		fresh = true

		txnID, err := s.journal.Record(ctx, tx, idempotency.Entry{
			Type:           idempotency.TypeRefund,
			Status:         result.Status,
			IdempotencyKey: key,
			Metadata: map[string]interface{}{
				"action":   "refund",
				"intentId": intent.ID,
				"amount":   money.String(amount),
				"reason":   in.Reason,
			},
		})
		if err != nil {
			return err
		}

		if result.Status != provider.TransferFailed {
			if _, err := s.ledger.PostTransfer(ctx, tx, ledger.TransferRequest{
				FromAccountID: platform.TreasuryAvailable,
				ToAccountID:   rider.Account(ledger.AccountAvailable),
				Amount:        amount,
				TxnID:         txnID,
				Memo:          "refund " + intent.ID,
				EventType:     "payment.refund",
			}); err != nil {
				return err
			}
			touched = []string{rider.WalletID, platform.TreasuryWalletID}
		}

		refundID, err := s.repo.CreateRefundTx(ctx, tx, intent.ID, txnID, amount, intent.Currency, result.ProviderRef, result.Status, in.Reason)
		if err != nil {
			return err
		}

		resp = &RefundResponse{RefundID: refundID, Status: result.Status}
		if err := s.journal.AttachResponse(ctx, tx, key, resp); err != nil {
			return err
		}
		return s.audit.Write(ctx, tx, idempotency.AuditEntry{
			Actor:   "ops",
			Action:  "payment_refund",
			Target:  intent.ID,
			Meta:    meta,
			Payload: map[string]string{"refundId": refundID, "amount": money.String(amount), "status": result.Status},
		})
	})
	if err != nil {
		s.logger.Errorf("Refund for intent %s failed (request_id=%s): %v", intentID, meta.RequestID, err)
		return nil, err
	}

	if fresh {
		s.journal.CacheResponse(ctx, key, resp)
		s.governance.InvalidateBalances(ctx, touched...)
		s.logger.Infof("Refund %s for intent %s: %s", resp.RefundID, intentID, resp.Status)
	}
	return resp, nil
}

// GetWalletBalances reads the caller's wallet in the configured currency
func (s *Service) GetWalletBalances(ctx context.Context, ownerType, ownerID string) (*governance.WalletBalances, error) {
	return s.governance.GetWalletBalances(ctx, ownerType, ownerID, s.cfg.Currency)
}

// ProviderHealth checks the named provider, or the default one
func (s *Service) ProviderHealth(ctx context.Context, name string) string {
	if name == "" {
		name = s.cfg.Provider
	}
	return s.providers.Health(ctx, name)
}

// ListRiskCases returns the newest intents held for review or blocked
func (s *Service) ListRiskCases(ctx context.Context) ([]RiskCase, error) {
	return s.repo.ListRiskCases(ctx, 100)
}

// Risk case resolutions
const (
	ResolveClear = "clear"
	ResolveBlock = "block"
)

var ErrInvalidResolution = errors.New("action must be clear or block")

// ResolveRiskCase clears or blocks a held intent. Clearing a review intent
// returns it to created so the rider can confirm it; blocking fails it and
// blocks the rider.
func (s *Service) ResolveRiskCase(ctx context.Context, intentID, action string) (*RiskCase, error) {
	if action != ResolveClear && action != ResolveBlock {
		return nil, ErrInvalidResolution
	}

	var result *RiskCase
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		intent, err := s.repo.LockIntentTx(ctx, tx, intentID)
		if err != nil {
			return err
		}

		riskStatus, status := fraud.StatusClear, intent.Status
		if action == ResolveClear {
			if intent.Status == StatusReview {
				status = StatusCreated
			}
		} else {
			riskStatus = fraud.StatusBlocked
			if intent.Status != StatusCaptured {
				status = StatusFailed
			}
			if err := s.fraud.BlockRider(ctx, fraud.NewRepository(tx), intent.RiderID, "ops: intent "+intent.ID); err != nil {
				return err
			}
		}

		if !CanResolve(intent.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, intent.Status, status)
		}
		if err := s.repo.UpdateRiskStatusTx(ctx, tx, intent.ID, riskStatus, status); err != nil {
			return err
		}

		result = &RiskCase{
			IntentID:   intent.ID,
			RiderID:    intent.RiderID,
			Amount:     intent.Amount,
			Currency:   intent.Currency,
			Status:     status,
			RiskScore:  intent.RiskScore,
			RiskStatus: riskStatus,
			RiskReason: intent.RiskReason,
			CreatedAt:  intent.CreatedAt,
		}
		return s.audit.Write(ctx, tx, idempotency.AuditEntry{
			Actor:   "ops",
			Action:  "risk_case." + action,
			Target:  intent.ID,
			Payload: map[string]string{"intentId": intent.ID, "action": action},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Risk case %s resolved: %s", intentID, action)
	return result, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
