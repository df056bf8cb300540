package payment

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/kmassidik/movegh/internal/commission"
	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/db/dbtest"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/kmassidik/movegh/internal/escrow"
	"github.com/kmassidik/movegh/internal/fraud"
	"github.com/kmassidik/movegh/internal/governance"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/ledger"
	"github.com/kmassidik/movegh/internal/provider"
	"github.com/kmassidik/movegh/pkg/outbox"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec-test"

type fixture struct {
	db         *db.DB
	service    *Service
	governance *governance.Registry
	platform   governance.PlatformWallets
}

func setupService(t *testing.T) *fixture {
	database := dbtest.Open(t)
	log := logger.NewNop()
	ctx := context.Background()

	platform := governance.PlatformWallets{
		TreasuryOwnerID:       dbtest.UniqueID("treasury"),
		RevenueOwnerID:        dbtest.UniqueID("revenue"),
		ReserveOwnerID:        dbtest.UniqueID("reserve"),
		InsuranceOwnerID:      dbtest.UniqueID("insurance"),
		RegulatoryHoldOwnerID: dbtest.UniqueID("reg_hold"),
		OpsOwnerID:            dbtest.UniqueID("ops"),
	}
	registry := governance.NewRegistry(governance.NewRepository(database), nil, platform, log)

	rules := commission.NewRepository()
	require.NoError(t, rules.CreateRule(ctx, database, &commission.Rule{
		Name:      dbtest.UniqueID("ride-20pct"),
		Percent:   decimal.RequireFromString("0.2"),
		FixedFee:  money.MustParse("1"),
		AppliesTo: commission.AppliesToRide,
		Active:    true,
	}))

	service := NewService(Dependencies{
		DB:         database,
		Repo:       NewRepository(database, log),
		Ledger:     ledger.NewService(ledger.NewRepository(database, log), log),
		Governance: registry,
		Commission: rules,
		Fraud: fraud.NewService(config.FraudConfig{
			MaxAmount: 500, RiderPerMin: 3, RiderPerDay: 20, DevicePerDay: 10, PhonePerDay: 10,
			HoldScore: 30, BlockScore: 90, HomeCountry: "GH",
		}, log),
		Escrow:    escrow.NewManager(database, log),
		Providers: provider.NewRegistry(provider.NewMockProvider(testWebhookSecret)),
		Journal:   idempotency.NewJournal(nil, log),
		Audit:     idempotency.NewAuditLog(),
		Outbox:    outbox.NewRepository(database.DB, log),
		Config:    config.PaymentsConfig{Provider: provider.NameMock, Mode: config.ModeMock, Currency: "GHS"},
		Logger:    log,
	})

	return &fixture{db: database, service: service, governance: registry, platform: platform}
}

// fund sets the available balance of an owner's wallet directly
func (f *fixture) fund(t *testing.T, ownerType, ownerID, amount string) *governance.WalletAccounts {
	ctx := context.Background()
	wallet, err := f.governance.EnsureWallet(ctx, f.db, ownerType, ownerID, "GHS", ledger.AccountAvailable, ledger.AccountPending)
	require.NoError(t, err)
	_, err = f.db.Exec(`UPDATE ledger_accounts SET balance = $1 WHERE id = $2`, amount, wallet.Account(ledger.AccountAvailable))
	require.NoError(t, err)
	return wallet
}

func (f *fixture) balance(t *testing.T, accountID string) string {
	var balance string
	require.NoError(t, f.db.QueryRow(`SELECT balance::text FROM ledger_accounts WHERE id = $1`, accountID).Scan(&balance))
	return balance
}

func (f *fixture) createIntent(t *testing.T, riderID, amount string) *IntentResponse {
	resp, err := f.service.CreatePaymentIntent(context.Background(), CreateIntentInput{
		TripID:      dbtest.UniqueID("trip"),
		RiderID:     riderID,
		Amount:      money.MustParse(amount),
		Currency:    "GHS",
		Provider:    provider.NameMock,
		PhoneNumber: "0241234567",
		DeviceID:    dbtest.UniqueID("device"),
	}, dbtest.UniqueID("create"), idempotency.RequestMeta{RequestID: "req-1"})
	require.NoError(t, err)
	return resp
}

// TEST: Capture of 50 under 20% + 1 splits 11.00 / 39.00 and debits the rider 50.00
func TestConfirmCapturesAndSplits(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	riderID := dbtest.UniqueID("rider")
	driverID := dbtest.UniqueID("driver")
	rider := f.fund(t, governance.OwnerRider, riderID, "100.00")

	created := f.createIntent(t, riderID, "50")
	require.Equal(t, StatusCreated, created.Status)
	assert.Contains(t, created.CheckoutInstructions, "50")

	confirmed, err := f.service.ConfirmPaymentIntent(ctx, created.IntentID,
		ConfirmIntentInput{PhoneNumber: "0241234567", DriverID: driverID}, dbtest.UniqueID("confirm"), idempotency.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, confirmed.Status)

	assert.Equal(t, "50.00", f.balance(t, rider.Account(ledger.AccountAvailable)))

	driver, err := f.governance.GetWalletBalances(ctx, governance.OwnerDriver, driverID, "GHS")
	require.NoError(t, err)
	assert.Equal(t, "39.00", driver.Balances.Available)

	revenue, err := f.governance.GetWalletBalances(ctx, governance.OwnerPlatform, f.platform.RevenueOwnerID, "GHS")
	require.NoError(t, err)
	assert.Equal(t, "11.00", revenue.Balances.Available)

	treasury, err := f.governance.TreasuryBalances(ctx, "GHS")
	require.NoError(t, err)
	assert.Equal(t, "0.00", treasury.Balances.Escrow)

	// the three postings share one txn id and balance
	var credits, debits string
	var entries int
	require.NoError(t, f.db.QueryRow(`
		SELECT COUNT(*),
		       SUM(CASE WHEN e.direction = 'credit' THEN e.amount ELSE 0 END)::text,
		       SUM(CASE WHEN e.direction = 'debit' THEN e.amount ELSE 0 END)::text
		FROM ledger_entries e
		JOIN escrow_holds h ON h.txn_id = e.txn_id
		WHERE h.intent_id = $1`, created.IntentID).Scan(&entries, &credits, &debits))
	assert.Equal(t, 6, entries)
	assert.Equal(t, credits, debits)

	var holdStatus string
	require.NoError(t, f.db.QueryRow(`SELECT status FROM escrow_holds WHERE intent_id = $1`, created.IntentID).Scan(&holdStatus))
	assert.Equal(t, escrow.StateReleased, holdStatus)
}

// TEST: Replaying a confirm key returns the stored response and posts nothing new
func TestConfirmIsIdempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	riderID := dbtest.UniqueID("rider")
	rider := f.fund(t, governance.OwnerRider, riderID, "80.00")

	created := f.createIntent(t, riderID, "20")
	key := dbtest.UniqueID("confirm")
	in := ConfirmIntentInput{PhoneNumber: "0241234567"}

	first, err := f.service.ConfirmPaymentIntent(ctx, created.IntentID, in, key, idempotency.RequestMeta{})
	require.NoError(t, err)
	second, err := f.service.ConfirmPaymentIntent(ctx, created.IntentID, in, key, idempotency.RequestMeta{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "60.00", f.balance(t, rider.Account(ledger.AccountAvailable)))

	// a new key on a captured intent is a terminal no-op
	third, err := f.service.ConfirmPaymentIntent(ctx, created.IntentID, in, dbtest.UniqueID("confirm"), idempotency.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, third.Status)
	assert.Equal(t, "60.00", f.balance(t, rider.Account(ledger.AccountAvailable)))
}

func TestCreateIntentReplaysByKey(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	key := dbtest.UniqueID("create")
	in := CreateIntentInput{
		TripID: dbtest.UniqueID("trip"), RiderID: dbtest.UniqueID("rider"),
		Amount: money.MustParse("12"), Currency: "GHS", PhoneNumber: "0241234567",
	}

	first, err := f.service.CreatePaymentIntent(ctx, in, key, idempotency.RequestMeta{})
	require.NoError(t, err)
	second, err := f.service.CreatePaymentIntent(ctx, in, key, idempotency.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM payment_intents WHERE trip_id = $1`, in.TripID).Scan(&count))
	assert.Equal(t, 1, count)
}

// TEST: Concurrent creates with one key produce one intent and one response
func TestCreateIntentConcurrentDuplicates(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	key := dbtest.UniqueID("create")
	in := CreateIntentInput{
		TripID: dbtest.UniqueID("trip"), RiderID: dbtest.UniqueID("rider"),
		Amount: money.MustParse("18"), Currency: "GHS", PhoneNumber: "0241234567",
	}

	var wg sync.WaitGroup
	responses := make([]*IntentResponse, 4)
	errs := make([]error, 4)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = f.service.CreatePaymentIntent(ctx, in, key, idempotency.RequestMeta{})
		}(i)
	}
	wg.Wait()

	for i := range responses {
		require.NoError(t, errs[i])
		assert.Equal(t, responses[0], responses[i])
	}

	var intents, entries int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM payment_intents WHERE trip_id = $1`, in.TripID).Scan(&intents))
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE idempotency_key = $1`, key).Scan(&entries))
	assert.Equal(t, 1, intents)
	assert.Equal(t, 1, entries)
}

// TEST: An unfunded rider's fare is collected through pending before the split
func TestConfirmCollectsShortfallFromPending(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	riderID := dbtest.UniqueID("rider")
	rider := f.fund(t, governance.OwnerRider, riderID, "10.00")
	created := f.createIntent(t, riderID, "50")

	confirmed, err := f.service.ConfirmPaymentIntent(ctx, created.IntentID,
		ConfirmIntentInput{PhoneNumber: "0241234567"}, dbtest.UniqueID("confirm"), idempotency.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, StatusCaptured, confirmed.Status)

	assert.Equal(t, "0.00", f.balance(t, rider.Account(ledger.AccountAvailable)))
	assert.Equal(t, "-40.00", f.balance(t, rider.Account(ledger.AccountPending)))

	var collections int
	require.NoError(t, f.db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1 AND event_type = 'payment.collection'`,
		rider.Account(ledger.AccountPending),
	).Scan(&collections))
	assert.Equal(t, 1, collections)
}

// TEST: Another rider cannot confirm an intent or pick its driver
func TestConfirmRejectsOtherRider(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	owner := dbtest.UniqueID("rider")
	f.fund(t, governance.OwnerRider, owner, "100.00")
	created := f.createIntent(t, owner, "20")

	_, err := f.service.ConfirmPaymentIntent(ctx, created.IntentID, ConfirmIntentInput{
		PhoneNumber: "0241234567",
		DriverID:    dbtest.UniqueID("driver"),
		RiderID:     dbtest.UniqueID("rider"),
	}, dbtest.UniqueID("confirm"), idempotency.RequestMeta{})
	assert.ErrorIs(t, err, ErrIntentNotFound)

	var status string
	var driverID *string
	require.NoError(t, f.db.QueryRow(`SELECT status, driver_id FROM payment_intents WHERE id = $1`, created.IntentID).Scan(&status, &driverID))
	assert.Equal(t, StatusCreated, status)
	assert.Nil(t, driverID)

	resp, err := f.service.ConfirmPaymentIntent(ctx, created.IntentID, ConfirmIntentInput{
		PhoneNumber: "0241234567",
		RiderID:     owner,
	}, dbtest.UniqueID("confirm"), idempotency.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, resp.Status)
}

// TEST: Amount over the ceiling is held for review and confirm does not progress it
func TestReviewIntentIsNotCaptured(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	riderID := dbtest.UniqueID("rider")
	f.fund(t, governance.OwnerRider, riderID, "1000.00")

	created := f.createIntent(t, riderID, "600")
	require.Equal(t, StatusReview, created.Status)
	assert.Equal(t, fraud.StatusReview, created.RiskStatus)

	resp, err := f.service.ConfirmPaymentIntent(ctx, created.IntentID, ConfirmIntentInput{PhoneNumber: "0241234567"},
		dbtest.UniqueID("confirm"), idempotency.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, StatusReview, resp.Status)
	assert.Equal(t, fraud.StatusReview, resp.RiskStatus)

	cleared, err := f.service.ResolveRiskCase(ctx, created.IntentID, ResolveClear)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, cleared.Status)
	assert.Equal(t, fraud.StatusClear, cleared.RiskStatus)

	resp, err = f.service.ConfirmPaymentIntent(ctx, created.IntentID, ConfirmIntentInput{PhoneNumber: "0241234567"},
		dbtest.UniqueID("confirm"), idempotency.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, resp.Status)
}

func TestResolveRiskCaseBlocksRider(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	riderID := dbtest.UniqueID("rider")

	created := f.createIntent(t, riderID, "700")
	require.Equal(t, StatusReview, created.Status)

	blocked, err := f.service.ResolveRiskCase(ctx, created.IntentID, ResolveBlock)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, blocked.Status)
	assert.Equal(t, fraud.StatusBlocked, blocked.RiskStatus)

	next := f.createIntent(t, riderID, "5")
	assert.Equal(t, StatusFailed, next.Status)
	assert.Equal(t, fraud.StatusBlocked, next.RiskStatus)

	_, err = f.service.ResolveRiskCase(ctx, created.IntentID, "maybe")
	assert.ErrorIs(t, err, ErrInvalidResolution)
	_, err = f.service.ResolveRiskCase(ctx, "not-a-uuid", ResolveClear)
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

// TEST: A webhook event is applied once per event id
func TestWebhookCapturesOnce(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	riderID := dbtest.UniqueID("rider")
	rider := f.fund(t, governance.OwnerRider, riderID, "30.00")
	created := f.createIntent(t, riderID, "30")

	headers := http.Header{}
	headers.Set("X-Mock-Signature", testWebhookSecret)
	body := []byte(`{"eventId":"` + dbtest.UniqueID("evt") + `","intentId":"` + created.IntentID + `","status":"success"}`)

	first, err := f.service.HandleWebhook(ctx, provider.NameMock, headers, body)
	require.NoError(t, err)
	assert.True(t, first.Received)
	assert.Equal(t, StatusCaptured, first.Status)

	second, err := f.service.HandleWebhook(ctx, provider.NameMock, headers, body)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "0.00", f.balance(t, rider.Account(ledger.AccountAvailable)))

	_, err = f.service.HandleWebhook(ctx, provider.NameMock, http.Header{}, body)
	assert.ErrorIs(t, err, provider.ErrInvalidSignature)
}

func TestConfirmUnknownIntent(t *testing.T) {
	f := setupService(t)
	_, err := f.service.ConfirmPaymentIntent(context.Background(), "00000000-0000-0000-0000-000000000000",
		ConfirmIntentInput{PhoneNumber: "0241234567"}, dbtest.UniqueID("confirm"), idempotency.RequestMeta{})
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

// TEST: Refunds draw on treasury available and cannot exceed the captured amount
func TestRefundPayment(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	riderID := dbtest.UniqueID("rider")
	rider := f.fund(t, governance.OwnerRider, riderID, "40.00")

	created := f.createIntent(t, riderID, "40")
	_, err := f.service.RefundPayment(ctx, created.IntentID, RefundInput{}, dbtest.UniqueID("refund"), idempotency.RequestMeta{})
	assert.ErrorIs(t, err, ErrIntentNotCaptured)

	_, err = f.service.ConfirmPaymentIntent(ctx, created.IntentID, ConfirmIntentInput{PhoneNumber: "0241234567"},
		dbtest.UniqueID("confirm"), idempotency.RequestMeta{})
	require.NoError(t, err)

	platform, err := f.governance.EnsurePlatformWallets(ctx, f.db, "GHS")
	require.NoError(t, err)
	_, err = f.db.Exec(`UPDATE ledger_accounts SET balance = 100 WHERE id = $1`, platform.TreasuryAvailable)
	require.NoError(t, err)

	partial := money.MustParse("15")
	resp, err := f.service.RefundPayment(ctx, created.IntentID, RefundInput{Amount: &partial, Reason: "detour"},
		dbtest.UniqueID("refund"), idempotency.RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RefundID)
	assert.Equal(t, provider.TransferSettled, resp.Status)
	assert.Equal(t, "15.00", f.balance(t, rider.Account(ledger.AccountAvailable)))
	assert.Equal(t, "85.00", f.balance(t, platform.TreasuryAvailable))

	tooMuch := money.MustParse("30")
	_, err = f.service.RefundPayment(ctx, created.IntentID, RefundInput{Amount: &tooMuch},
		dbtest.UniqueID("refund"), idempotency.RequestMeta{})
	assert.ErrorIs(t, err, ErrRefundExceedsAmount)
}
