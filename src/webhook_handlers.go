package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"

	"parkbook/src/db"
	"parkbook/src/models"
	"parkbook/src/types"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// webhookHandlers reconciles processor-side outcomes that happened without a
// corresponding local call, like a hold lapsing at the processor before the
// expiry sweep ran.
func webhookHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/webhook/stripe", func(ctx *gin.Context) {
			payload, err := io.ReadAll(ctx.Request.Body)
			if err != nil {
				log.Printf("Error reading request body: %v\n", err)
				ctx.Status(http.StatusServiceUnavailable)
				return
			}
			endpointSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
			signatureHeader := ctx.GetHeader("Stripe-Signature")
			event, err := webhook.ConstructEvent(payload, signatureHeader, endpointSecret)
			if err != nil {
				log.Printf("Webhook signature verification failed: %v\n", err)
				ctx.Status(http.StatusBadRequest)
				return
			}

			switch event.Type {
			case "payment_intent.canceled":
				var paymentIntent stripe.PaymentIntent
				err := json.Unmarshal(event.Data.Raw, &paymentIntent)
				if err != nil {
					log.Printf("Error parsing webhook JSON: %v\n", err)
					ctx.Status(http.StatusBadRequest)
					return
				}
				// uncaptured intents lapse at the processor with reason "automatic"
				end := types.HOLD_RELEASED
				if paymentIntent.CancellationReason == "automatic" {
					end = types.HOLD_EXPIRED
				}
				reconcileCanceledHold(ctx, paymentIntent.ID, end)
			case "payment_intent.succeeded":
				var paymentIntent stripe.PaymentIntent
				err := json.Unmarshal(event.Data.Raw, &paymentIntent)
				if err != nil {
					log.Printf("Error parsing webhook JSON: %v\n", err)
					ctx.Status(http.StatusBadRequest)
					return
				}
				reconcileCapturedHold(ctx, paymentIntent.ID, paymentIntent.AmountReceived)
			default:
				log.Printf("Unhandled event type: %s\n", event.Type)
			}
			ctx.Status(http.StatusOK)
		})
	return g
}

// reconcileCanceledHold flips a still-active local hold to the state the
// processor already reached. Bookings left pending on an expired hold are
// picked up by CancelExpired.
func reconcileCanceledHold(ctx *gin.Context, holdId string, end types.HoldState) {
	conn := db.GetDb()
	var b models.Booking
	err := conn.
		Model(&models.Booking{}).
		Where("payment_processor_hold_id = ?", holdId).
		First(&b).
		Error
	if err != nil {
		log.Printf("No booking found for hold %s: %s\n", holdId, err.Error())
		return
	}
	_, err = services.Store.ApplyTransition(ctx.Request.Context(), b.ID, func(b *models.Booking) error {
		if !b.Payment.State.Active() {
			return nil
		}
		b.Payment.State = end
		b.Payment.PendingCaptureAmount = nil
		return nil
	})
	if err != nil {
		log.Printf("Error reconciling hold %s: %s\n", holdId, err.Error())
		return
	}
	if end == types.HOLD_EXPIRED {
		if err := services.Bookings.CancelExpired(ctx.Request.Context(), b.ID); err != nil {
			log.Printf("Error cancelling booking %s: %s\n", b.ID, err.Error())
		}
	}
}

// reconcileCapturedHold settles a local hold the processor reports as charged.
// This covers the capture call that timed out after the money had moved.
func reconcileCapturedHold(ctx *gin.Context, holdId string, amountReceived int64) {
	conn := db.GetDb()
	var b models.Booking
	err := conn.
		Model(&models.Booking{}).
		Where("payment_processor_hold_id = ?", holdId).
		First(&b).
		Error
	if err != nil {
		log.Printf("No booking found for hold %s: %s\n", holdId, err.Error())
		return
	}
	_, err = services.Store.ApplyTransition(ctx.Request.Context(), b.ID, func(b *models.Booking) error {
		if !b.Payment.State.Active() {
			return nil
		}
		b.Payment.CapturedAmount = amountReceived
		b.Payment.PendingCaptureAmount = nil
		if amountReceived == b.Payment.AuthorizedAmount {
			b.Payment.State = types.HOLD_CAPTURED
		} else {
			b.Payment.State = types.HOLD_PARTIALLY_CAPTURED
		}
		return nil
	})
	if err != nil {
		log.Printf("Error reconciling hold %s: %s\n", holdId, err.Error())
	}
}
