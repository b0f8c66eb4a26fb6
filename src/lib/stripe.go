package lib

import (
	"context"
	"os"

	"parkbook/src/payments"

	"github.com/stripe/stripe-go/v82"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	sc := stripe.NewClient(apiKey)
	stripeClient = sc

	return sc
}

// NewStripeClient Replace stripe instance with custom client implementation
func NewStripeClient(c *stripe.Client) {
	stripeClient = c
}

// StripeProcessor places, captures and voids manual-capture PaymentIntents.
// The intent id doubles as the hold id stored on the booking record.
type StripeProcessor struct{}

func (StripeProcessor) Authorize(ctx context.Context, amount int64, currency, paymentMethodRef string) (string, error) {
	sc := GetStripeClient()
	params := stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(paymentMethodRef),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
	}
	pi, err := sc.V1PaymentIntents.Create(ctx, &params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (StripeProcessor) Capture(ctx context.Context, holdID string, amount int64) error {
	sc := GetStripeClient()
	params := stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(amount),
	}
	_, err := sc.V1PaymentIntents.Capture(ctx, holdID, &params)
	return err
}

func (StripeProcessor) Void(ctx context.Context, holdID string) error {
	sc := GetStripeClient()
	_, err := sc.V1PaymentIntents.Cancel(ctx, holdID, &stripe.PaymentIntentCancelParams{})
	return err
}

func (StripeProcessor) Retrieve(ctx context.Context, holdID string) (*payments.HoldStatus, error) {
	sc := GetStripeClient()
	pi, err := sc.V1PaymentIntents.Retrieve(ctx, holdID, nil)
	if err != nil {
		return nil, err
	}
	return &payments.HoldStatus{
		Captured:       pi.Status == stripe.PaymentIntentStatusSucceeded,
		CapturedAmount: pi.AmountReceived,
		Canceled:       pi.Status == stripe.PaymentIntentStatusCanceled,
	}, nil
}
