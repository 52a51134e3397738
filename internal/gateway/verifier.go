package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/config"
)

// Channel identifies which inbound confirmation path a message arrived on.
// The two channels are signed with different secrets and over different
// inputs, so verification is per channel even though the engine treats the
// authenticated result uniformly.
type Channel string

const (
	ChannelCheckout Channel = "checkout"
	ChannelWebhook  Channel = "webhook"
)

// Verifier authenticates inbound gateway messages.
type Verifier struct {
	keySecret     string
	webhookSecret string
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{
		keySecret:     cfg.RazorpayKeySecret,
		webhookSecret: cfg.RazorpayWebhookSecret,
	}
}

// VerifyCheckout authenticates the client-redirected verification payload.
// The gateway signs "<order_id>|<payment_id>" with the key secret.
func (v *Verifier) VerifyCheckout(orderID, paymentID, signature string) error {
	if v.keySecret == "" {
		return ErrSecretNotConfigured
	}
	expected := signHex([]byte(v.keySecret), []byte(orderID+"|"+paymentID))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyWebhook authenticates a webhook delivery. The HMAC input must be
// the exact raw body bytes the gateway sent, never a re-serialized object.
func (v *Verifier) VerifyWebhook(rawBody []byte, signature string) error {
	if v.webhookSecret == "" {
		return ErrSecretNotConfigured
	}
	expected := signHex([]byte(v.webhookSecret), rawBody)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// AuthInput carries the channel-specific raw material for authentication.
type AuthInput struct {
	OrderID   string
	PaymentID string
	Signature string
	RawBody   []byte
}

// Authenticate verifies input for the given channel and returns the
// authenticated event, so callers downstream never need to know which
// channel produced a confirmation.
func (v *Verifier) Authenticate(channel Channel, input AuthInput) (*CapturedEvent, error) {
	switch channel {
	case ChannelCheckout:
		if err := v.VerifyCheckout(input.OrderID, input.PaymentID, input.Signature); err != nil {
			return nil, err
		}
		return &CapturedEvent{
			Channel:   ChannelCheckout,
			OrderID:   input.OrderID,
			PaymentID: input.PaymentID,
		}, nil
	case ChannelWebhook:
		if err := v.VerifyWebhook(input.RawBody, input.Signature); err != nil {
			return nil, err
		}
		return ParseWebhook(input.RawBody)
	default:
		return nil, ErrInvalidPayload
	}
}

func signHex(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
