package gateway

import (
	"context"
	"strings"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/config"
	"github.com/google/uuid"
)

// GatewayOrder is the gateway's record of a purchase intent. The gateway
// assigns the order id; it is the stable key for the whole reconciliation
// flow.
type GatewayOrder struct {
	OrderID     string
	AmountCents int64
	Currency    string
}

// OrderClient creates orders on the payment gateway. The hosted gateway is
// an external collaborator; standalone deployments run the local
// implementation, which fabricates gateway-shaped identifiers.
type OrderClient interface {
	CreateOrder(ctx context.Context, amountCents int64, currency, receipt string) (GatewayOrder, error)
	KeyID() string
}

type standaloneClient struct {
	keyID string
}

func NewStandaloneClient(cfg config.Config) OrderClient {
	return &standaloneClient{keyID: cfg.RazorpayKeyID}
}

func (c *standaloneClient) CreateOrder(ctx context.Context, amountCents int64, currency, receipt string) (GatewayOrder, error) {
	_ = ctx
	_ = receipt
	id := "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return GatewayOrder{
		OrderID:     id,
		AmountCents: amountCents,
		Currency:    strings.ToUpper(currency),
	}, nil
}

func (c *standaloneClient) KeyID() string {
	return c.keyID
}
