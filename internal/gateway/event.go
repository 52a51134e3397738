package gateway

import (
	"encoding/json"
	"strings"
)

const EventPaymentCaptured = "payment.captured"

// CapturedEvent is an authenticated, channel-agnostic confirmation that a
// payment settled for an order.
type CapturedEvent struct {
	Channel     Channel
	OrderID     string
	PaymentID   string
	AmountCents int64
	Currency    string
	EventType   string
	RawPayload  []byte
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				OrderID  string `json:"order_id"`
				Status   string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseWebhook extracts the captured-payment event from a verified webhook
// body. Event types other than payment.captured return ErrEventIgnored so
// the caller can acknowledge without acting.
func ParseWebhook(rawBody []byte) (*CapturedEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(envelope.Event) != EventPaymentCaptured {
		return nil, ErrEventIgnored
	}

	entity := envelope.Payload.Payment.Entity
	if strings.TrimSpace(entity.ID) == "" || strings.TrimSpace(entity.OrderID) == "" {
		return nil, ErrInvalidPayload
	}

	return &CapturedEvent{
		Channel:     ChannelWebhook,
		OrderID:     strings.TrimSpace(entity.OrderID),
		PaymentID:   strings.TrimSpace(entity.ID),
		AmountCents: entity.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(entity.Currency)),
		EventType:   EventPaymentCaptured,
		RawPayload:  rawBody,
	}, nil
}
