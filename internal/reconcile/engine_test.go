package reconcile

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/clock"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/config"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/gateway"
	ledgerdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger/domain"
	ledgerservice "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger/service"
	orderdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/domain"
	orderrepository "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testKeySecret     = "test_key_secret"
	testWebhookSecret = "test_webhook_secret"
)

type engineFixture struct {
	engine    *Engine
	db        *gorm.DB
	orderRepo orderdomain.Repository
	ledgerSvc ledgerdomain.Service
	clock     *clock.FakeClock
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	prepareReconcileSchema(t, db)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{
		RazorpayKeySecret:     testKeySecret,
		RazorpayWebhookSecret: testWebhookSecret,
		OrderTTL:              30 * time.Minute,
	}

	orderRepo := orderrepository.Provide(db)
	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	engine := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Verifier:  gateway.NewVerifier(cfg),
		OrderRepo: orderRepo,
		LedgerSvc: ledgerSvc,
		Clock:     fake,
		Cfg:       cfg,
	})

	return &engineFixture{
		engine:    engine,
		db:        db,
		orderRepo: orderRepo,
		ledgerSvc: ledgerSvc,
		clock:     fake,
	}
}

func prepareReconcileSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE purchase_orders (
			order_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			plan_id TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency TEXT NOT NULL,
			tokens BIGINT NOT NULL,
			status TEXT NOT NULL,
			payment_id TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE token_ledger_entries (
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			tokens BIGINT NOT NULL,
			order_id TEXT,
			note TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_token_ledger_entries_order_id
			ON token_ledger_entries (order_id) WHERE order_id IS NOT NULL`,
		`CREATE TABLE user_token_states (
			user_id TEXT PRIMARY KEY,
			free_tokens BIGINT NOT NULL DEFAULT 0,
			paid_tokens BIGINT NOT NULL DEFAULT 0,
			total_used BIGINT NOT NULL DEFAULT 0,
			legacy_credits BIGINT NOT NULL DEFAULT 0,
			legacy_migrated BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE gateway_events (
			id BIGINT PRIMARY KEY,
			event_type TEXT NOT NULL,
			order_id TEXT NOT NULL,
			payment_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			received_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
}

func (f *engineFixture) seedOrder(t *testing.T, orderID, userID string, tokens, amountCents int64) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.orderRepo.Insert(context.Background(), &orderdomain.Order{
		OrderID:     orderID,
		UserID:      userID,
		PlanID:      "standard",
		AmountCents: amountCents,
		Currency:    "INR",
		Tokens:      tokens,
		Status:      orderdomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func (f *engineFixture) orderStatus(t *testing.T, orderID string) orderdomain.Status {
	t.Helper()
	order, err := f.orderRepo.FindByOrderID(context.Background(), nil, orderID)
	require.NoError(t, err)
	return order.Status
}

func (f *engineFixture) entryCount(t *testing.T, userID string) int {
	t.Helper()
	var count int
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(1) FROM token_ledger_entries WHERE user_id = ?`, userID,
	).Scan(&count).Error)
	return count
}

func (f *engineFixture) eventCount(t *testing.T) int {
	t.Helper()
	var count int
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM gateway_events`).Scan(&count).Error)
	return count
}

func hmacHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func capturedBody(orderID, paymentID string, amount int64) []byte {
	return fmt.Appendf(nil,
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"%s","amount":%d,"currency":"INR","order_id":"%s","status":"captured"}}}}`,
		paymentID, amount, orderID,
	)
}

func checkoutSignature(orderID, paymentID string) string {
	return hmacHex(testKeySecret, []byte(orderID+"|"+paymentID))
}

func TestWebhookCapturesAndCreditsOnce(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	body := capturedBody("order_1", "pay_1", 19900)
	sig := hmacHex(testWebhookSecret, body)

	result, err := f.engine.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)
	assert.Equal(t, orderdomain.StatusCaptured, f.orderStatus(t, "order_1"))

	balance, err := f.ledgerSvc.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), balance.PaidTokens)
	assert.Equal(t, 1, f.entryCount(t, "user_1"))
	assert.Equal(t, 1, f.eventCount(t))

	// Redeliveries of the same event acknowledge without a second credit.
	for i := 0; i < 3; i++ {
		result, err = f.engine.HandleWebhook(ctx, body, sig)
		require.NoError(t, err)
		assert.Equal(t, ResultAlreadyCaptured, result)
	}
	balance, err = f.ledgerSvc.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), balance.PaidTokens)
	assert.Equal(t, 1, f.entryCount(t, "user_1"))
}

func TestWebhookConcurrentDeliveries(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	body := capturedBody("order_1", "pay_1", 19900)
	sig := hmacHex(testWebhookSecret, body)

	const deliveries = 10
	results := make(chan WebhookResult, deliveries)
	errs := make(chan error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.engine.HandleWebhook(ctx, body, sig)
			results <- result
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	processed := 0
	for result := range results {
		if result == ResultProcessed {
			processed++
		} else {
			assert.Equal(t, ResultAlreadyCaptured, result)
		}
	}
	assert.Equal(t, 1, processed)

	balance, err := f.ledgerSvc.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), balance.Balance)
	assert.Equal(t, 1, f.entryCount(t, "user_1"))
}

func TestCheckoutVerifiesWithoutCrediting(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	err := f.engine.HandleCheckout(ctx, CheckoutConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: checkoutSignature("order_1", "pay_1"),
	})
	require.NoError(t, err)

	assert.Equal(t, orderdomain.StatusVerified, f.orderStatus(t, "order_1"))
	assert.Equal(t, 0, f.entryCount(t, "user_1"))

	// Repeating the call is harmless.
	err = f.engine.HandleCheckout(ctx, CheckoutConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: checkoutSignature("order_1", "pay_1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.entryCount(t, "user_1"))
}

func TestCheckoutThenWebhookCreditsOnce(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	require.NoError(t, f.engine.HandleCheckout(ctx, CheckoutConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: checkoutSignature("order_1", "pay_1"),
	}))

	body := capturedBody("order_1", "pay_1", 19900)
	result, err := f.engine.HandleWebhook(ctx, body, hmacHex(testWebhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)
	assert.Equal(t, 1, f.entryCount(t, "user_1"))

	// Late checkout call after the webhook settled the order.
	require.NoError(t, f.engine.HandleCheckout(ctx, CheckoutConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: checkoutSignature("order_1", "pay_1"),
	}))
	assert.Equal(t, 1, f.entryCount(t, "user_1"))
}

func TestCheckoutRejectsClaimedDetailMismatch(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	err := f.engine.HandleCheckout(ctx, CheckoutConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: checkoutSignature("order_1", "pay_1"),
		PlanID:    "starter",
	})
	assert.ErrorIs(t, err, ErrOrderMismatch)

	err = f.engine.HandleCheckout(ctx, CheckoutConfirmation{
		OrderID:     "order_1",
		PaymentID:   "pay_1",
		Signature:   checkoutSignature("order_1", "pay_1"),
		AmountCents: 9900,
	})
	assert.ErrorIs(t, err, ErrOrderMismatch)
	assert.Equal(t, orderdomain.StatusPending, f.orderStatus(t, "order_1"))
}

func TestCheckoutInvalidSignature(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	err := f.engine.HandleCheckout(ctx, CheckoutConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: checkoutSignature("order_1", "pay_other"),
	})
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	assert.Equal(t, orderdomain.StatusPending, f.orderStatus(t, "order_1"))
}

func TestCheckoutUnknownOrder(t *testing.T) {
	f := setupEngine(t)
	err := f.engine.HandleCheckout(context.Background(), CheckoutConfirmation{
		OrderID:   "order_missing",
		PaymentID: "pay_1",
		Signature: checkoutSignature("order_missing", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestWebhookTamperedBody(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	body := capturedBody("order_1", "pay_1", 19900)
	sig := hmacHex(testWebhookSecret, body)

	// Alter the amount after signing.
	tampered := capturedBody("order_1", "pay_1", 1)

	_, err := f.engine.HandleWebhook(ctx, tampered, sig)
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)

	// Nothing moved: no audit row, no credit, order untouched.
	assert.Equal(t, 0, f.eventCount(t))
	assert.Equal(t, 0, f.entryCount(t, "user_1"))
	assert.Equal(t, orderdomain.StatusPending, f.orderStatus(t, "order_1"))
}

func TestWebhookUnknownOrder(t *testing.T) {
	f := setupEngine(t)

	body := capturedBody("order_foreign", "pay_1", 19900)
	_, err := f.engine.HandleWebhook(context.Background(), body, hmacHex(testWebhookSecret, body))
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestWebhookPaymentIDMismatch(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	require.NoError(t, f.engine.HandleCheckout(ctx, CheckoutConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_a",
		Signature: checkoutSignature("order_1", "pay_a"),
	}))

	body := capturedBody("order_1", "pay_b", 19900)
	_, err := f.engine.HandleWebhook(ctx, body, hmacHex(testWebhookSecret, body))
	assert.ErrorIs(t, err, ErrPaymentIDMismatch)
	assert.Equal(t, 0, f.entryCount(t, "user_1"))
	assert.Equal(t, orderdomain.StatusVerified, f.orderStatus(t, "order_1"))
}

func TestWebhookIgnoredEventType(t *testing.T) {
	f := setupEngine(t)
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	body := []byte(`{"event":"payment.authorized","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1"}}}}`)
	result, err := f.engine.HandleWebhook(context.Background(), body, hmacHex(testWebhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, result)
	assert.Equal(t, 0, f.eventCount(t))
	assert.Equal(t, orderdomain.StatusPending, f.orderStatus(t, "order_1"))
}

func TestWebhookAmountDifferenceStillCaptures(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	// Authenticity comes from the signature; a differing amount is logged
	// and reconciled by hand, not refused.
	body := capturedBody("order_1", "pay_1", 19800)
	result, err := f.engine.HandleWebhook(ctx, body, hmacHex(testWebhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)

	balance, err := f.ledgerSvc.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), balance.PaidTokens)
}

func TestTwoOrdersCapturedInReverseOrder(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_small", "user_1", 10000, 9900)
	f.seedOrder(t, "order_big", "user_1", 50000, 49900)

	bigBody := capturedBody("order_big", "pay_big", 49900)
	result, err := f.engine.HandleWebhook(ctx, bigBody, hmacHex(testWebhookSecret, bigBody))
	require.NoError(t, err)
	require.Equal(t, ResultProcessed, result)

	smallBody := capturedBody("order_small", "pay_small", 9900)
	result, err = f.engine.HandleWebhook(ctx, smallBody, hmacHex(testWebhookSecret, smallBody))
	require.NoError(t, err)
	require.Equal(t, ResultProcessed, result)

	balance, err := f.ledgerSvc.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(60000), balance.Balance)
	assert.Equal(t, 2, f.entryCount(t, "user_1"))
}

func TestExpireStale(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_old", "user_1", 20000, 19900)

	f.clock.Advance(29 * time.Minute)
	f.seedOrder(t, "order_fresh", "user_1", 20000, 19900)

	// order_old is 29 minutes in; nothing crosses the 30 minute TTL yet.
	expired, err := f.engine.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	f.clock.Advance(2 * time.Minute)
	expired, err = f.engine.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, orderdomain.StatusExpired, f.orderStatus(t, "order_old"))
	assert.Equal(t, orderdomain.StatusPending, f.orderStatus(t, "order_fresh"))
}

func TestWebhookAfterExpiryIsRefused(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	f.clock.Advance(31 * time.Minute)
	expired, err := f.engine.ExpireStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	body := capturedBody("order_1", "pay_1", 19900)
	_, err = f.engine.HandleWebhook(ctx, body, hmacHex(testWebhookSecret, body))
	assert.ErrorIs(t, err, ErrOrderClosed)
	assert.Equal(t, 0, f.entryCount(t, "user_1"))
}

func TestCheckoutAfterExpiryIsRefused(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	f.clock.Advance(31 * time.Minute)
	expired, err := f.engine.ExpireStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	err = f.engine.HandleCheckout(ctx, CheckoutConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: checkoutSignature("order_1", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrOrderClosed)
}

func TestExpirySweepLosesToConcurrentCapture(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedOrder(t, "order_1", "user_1", 20000, 19900)

	f.clock.Advance(31 * time.Minute)

	// Capture lands between the stale scan and the expiry swap.
	body := capturedBody("order_1", "pay_1", 19900)
	result, err := f.engine.HandleWebhook(ctx, body, hmacHex(testWebhookSecret, body))
	require.NoError(t, err)
	require.Equal(t, ResultProcessed, result)

	expired, err := f.engine.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	assert.Equal(t, orderdomain.StatusCaptured, f.orderStatus(t, "order_1"))
}
