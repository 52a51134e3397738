package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/clock"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/config"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/gateway"
	ledgerdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger/domain"
	obsmetrics "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/observability/metrics"
	orderdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Verifier   *gateway.Verifier
	OrderRepo  orderdomain.Repository
	LedgerSvc  ledgerdomain.Service
	Clock      clock.Clock
	Cfg        config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Engine applies authenticated gateway confirmations to orders. Crediting
// happens only in HandleWebhook, gated by the compare-and-swap on order
// status, atomically with the ledger write.
type Engine struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	verifier   *gateway.Verifier
	orderRepo  orderdomain.Repository
	ledgerSvc  ledgerdomain.Service
	clock      clock.Clock
	orderTTL   time.Duration
	sweepBatch int
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Engine {
	ttl := p.Cfg.OrderTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Engine{
		db:         p.DB,
		log:        p.Log.Named("reconcile.engine"),
		genID:      p.GenID,
		verifier:   p.Verifier,
		orderRepo:  p.OrderRepo,
		ledgerSvc:  p.LedgerSvc,
		clock:      p.Clock,
		orderTTL:   ttl,
		sweepBatch: 100,
		obsMetrics: p.ObsMetrics,
	}
}

// HandleCheckout processes the client-side verification call. It advances
// pending -> verified and stores the payment id, but never credits tokens:
// a client can reach this path without real settlement, so the webhook
// stays the only crediting trigger.
func (e *Engine) HandleCheckout(ctx context.Context, req CheckoutConfirmation) error {
	event, err := e.verifier.Authenticate(gateway.ChannelCheckout, gateway.AuthInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		e.recordCheckout("rejected")
		return err
	}

	order, err := e.orderRepo.FindByOrderID(ctx, nil, event.OrderID)
	if err != nil {
		if errors.Is(err, orderdomain.ErrNotFound) {
			e.recordCheckout("unknown_order")
			return ErrUnknownOrder
		}
		return err
	}

	// A tampered client payload could reference a cheaper plan; the
	// claimed details must still match what was stored at creation.
	if req.PlanID != "" && req.PlanID != order.PlanID {
		e.recordCheckout("mismatch")
		return ErrOrderMismatch
	}
	if req.AmountCents != 0 && req.AmountCents != order.AmountCents {
		e.recordCheckout("mismatch")
		return ErrOrderMismatch
	}

	switch order.Status {
	case orderdomain.StatusPending:
	case orderdomain.StatusVerified, orderdomain.StatusCaptured:
		// Duplicate or late client call after the webhook settled the
		// order. Harmless as long as the payment id agrees.
		if order.PaymentID != nil && *order.PaymentID != event.PaymentID {
			e.recordCheckout("mismatch")
			return ErrPaymentIDMismatch
		}
		e.recordCheckout("duplicate")
		return nil
	default:
		e.recordCheckout("closed")
		return ErrOrderClosed
	}

	err = e.orderRepo.Verify(ctx, event.OrderID, event.PaymentID, e.clock.Now())
	if err != nil {
		if errors.Is(err, orderdomain.ErrConflict) {
			// Lost the race to a concurrent confirmation. Re-read and
			// classify instead of surfacing the conflict.
			return e.classifyCheckoutConflict(ctx, event.OrderID, event.PaymentID)
		}
		return err
	}

	e.recordCheckout("accepted")
	e.log.Info("checkout verified",
		zap.String("order_id", event.OrderID),
		zap.String("payment_id", event.PaymentID),
	)
	return nil
}

func (e *Engine) classifyCheckoutConflict(ctx context.Context, orderID, paymentID string) error {
	order, err := e.orderRepo.FindByOrderID(ctx, nil, orderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case orderdomain.StatusVerified, orderdomain.StatusCaptured:
		if order.PaymentID != nil && *order.PaymentID != paymentID {
			e.recordCheckout("mismatch")
			return ErrPaymentIDMismatch
		}
		e.recordCheckout("duplicate")
		return nil
	default:
		e.recordCheckout("closed")
		return ErrOrderClosed
	}
}

// HandleWebhook processes a gateway webhook delivery: the authoritative,
// at-most-once crediting path. The signature covers the exact raw body
// bytes. Redeliveries and concurrent duplicates collapse to
// ResultAlreadyCaptured without a second ledger entry.
func (e *Engine) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (WebhookResult, error) {
	event, err := e.verifier.Authenticate(gateway.ChannelWebhook, gateway.AuthInput{
		RawBody:   rawBody,
		Signature: signature,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrEventIgnored) {
			e.recordWebhook(string(ResultIgnored))
			return ResultIgnored, nil
		}
		e.recordWebhook("rejected")
		return "", err
	}

	if err := e.recordGatewayEvent(ctx, event); err != nil {
		return "", err
	}

	order, err := e.orderRepo.FindByOrderID(ctx, nil, event.OrderID)
	if err != nil {
		if errors.Is(err, orderdomain.ErrNotFound) {
			// Likely a foreign or test-mode event; logged, never retried.
			e.log.Warn("webhook for unknown order", zap.String("order_id", event.OrderID))
			e.recordWebhook("unknown_order")
			return "", ErrUnknownOrder
		}
		return "", err
	}

	switch order.Status {
	case orderdomain.StatusCaptured:
		e.recordWebhook(string(ResultAlreadyCaptured))
		return ResultAlreadyCaptured, nil
	case orderdomain.StatusFailed, orderdomain.StatusExpired:
		e.recordWebhook("closed")
		return "", ErrOrderClosed
	}

	if order.PaymentID != nil && *order.PaymentID != event.PaymentID {
		e.recordWebhook("mismatch")
		return "", ErrPaymentIDMismatch
	}
	if event.AmountCents != 0 && event.AmountCents != order.AmountCents {
		e.log.Warn("webhook amount differs from stored order",
			zap.String("order_id", order.OrderID),
			zap.Int64("webhook_amount", event.AmountCents),
			zap.Int64("order_amount", order.AmountCents),
		)
	}

	result, err := e.capture(ctx, order, event.PaymentID)
	if err != nil {
		return "", err
	}

	e.recordWebhook(string(result))
	if result == ResultProcessed {
		if e.obsMetrics != nil {
			e.obsMetrics.RecordCredit(order.Tokens)
		}
		e.log.Info("order captured",
			zap.String("order_id", order.OrderID),
			zap.String("user_id", order.UserID),
			zap.Int64("tokens", order.Tokens),
		)
	}
	return result, nil
}

// capture performs the single atomic unit: compare-and-swap into captured
// plus exactly one purchase ledger credit. Either both land or neither
// does.
func (e *Engine) capture(ctx context.Context, order *orderdomain.Order, paymentID string) (WebhookResult, error) {
	result := ResultProcessed
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		swapped, err := e.orderRepo.Capture(ctx, tx, order.OrderID, paymentID, e.clock.Now())
		if err != nil {
			return err
		}
		if !swapped {
			// Another delivery advanced the order first. Re-read inside
			// the transaction to classify the loss.
			current, err := e.orderRepo.FindByOrderID(ctx, tx, order.OrderID)
			if err != nil {
				return err
			}
			switch current.Status {
			case orderdomain.StatusCaptured:
				result = ResultAlreadyCaptured
				return nil
			case orderdomain.StatusFailed, orderdomain.StatusExpired:
				return ErrOrderClosed
			default:
				if current.PaymentID != nil && *current.PaymentID != paymentID {
					return ErrPaymentIDMismatch
				}
				return orderdomain.ErrConflict
			}
		}

		orderID := order.OrderID
		note := fmt.Sprintf("purchase of plan %s", order.PlanID)
		err = e.ledgerSvc.Credit(ctx, tx, order.UserID, &orderID, order.Tokens, ledgerdomain.KindPurchase, note)
		if err != nil {
			if errors.Is(err, ledgerdomain.ErrDuplicateCredit) {
				// The ledger's unique index is the second safety net;
				// keep the status repair and report the duplicate.
				result = ResultAlreadyCaptured
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// ExpireStale moves abandoned pending/verified orders past the TTL into
// expired, using the same compare-and-swap so a concurrent capture always
// wins over the sweep.
func (e *Engine) ExpireStale(ctx context.Context) (int, error) {
	cutoff := e.clock.Now().Add(-e.orderTTL)
	ids, err := e.orderRepo.FindStale(ctx, cutoff, e.sweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		swapped, err := e.orderRepo.Expire(ctx, id, e.clock.Now())
		if err != nil {
			return expired, err
		}
		if swapped {
			expired++
			if e.obsMetrics != nil {
				e.obsMetrics.OrdersExpired.Inc()
			}
			e.log.Info("order expired", zap.String("order_id", id))
		}
	}
	return expired, nil
}

func (e *Engine) recordGatewayEvent(ctx context.Context, event *gateway.CapturedEvent) error {
	return e.db.WithContext(ctx).Create(&GatewayEvent{
		ID:         e.genID.Generate(),
		EventType:  event.EventType,
		OrderID:    event.OrderID,
		PaymentID:  event.PaymentID,
		Payload:    datatypes.JSON(event.RawPayload),
		ReceivedAt: e.clock.Now(),
	}).Error
}

func (e *Engine) recordWebhook(result string) {
	if e.obsMetrics != nil {
		e.obsMetrics.RecordWebhook(result)
	}
}

func (e *Engine) recordCheckout(result string) {
	if e.obsMetrics != nil {
		e.obsMetrics.RecordCheckout(result)
	}
}
