package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"parkbook/src/bookings"
	"parkbook/src/boot"
	"parkbook/src/chat"
	"parkbook/src/config"
	"parkbook/src/models"
	"parkbook/src/payments"
	"parkbook/src/store"
	"parkbook/src/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statusForError maps domain errors onto HTTP statuses so every handler
// answers consistently.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, bookings.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, bookings.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, payments.ErrAuthorizationFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, payments.ErrOutcomeUnknown):
		return http.StatusGatewayTimeout
	case errors.Is(err, chat.ErrMessagingClosed):
		return http.StatusForbidden
	case errors.Is(err, payments.ErrAlreadyFinalized),
		errors.Is(err, payments.ErrNotCapturable),
		errors.Is(err, payments.ErrNotExtendable),
		errors.Is(err, payments.ErrExtensionLimitExceeded),
		errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, payments.ErrAlreadyAuthorized),
		errors.Is(err, payments.ErrHoldExpired):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func bookingIDFromUri(ctx *gin.Context) (uuid.UUID, bool) {
	var params types.BookingIDParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(params.ID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, false
	}
	return id, true
}

// bookingView decorates the record with the countdown the admin dashboard
// shows next to the extension button.
func bookingView(b *models.Booking, now time.Time) gin.H {
	return gin.H{
		"booking":           b,
		"days_until_expiry": payments.DaysUntilExpiry(&b.Payment, now),
	}
}

func bookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/bookings", func(ctx *gin.Context) {
			var body types.CreateBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			startsAt, err := time.Parse(config.TIME_PARSE_FORMAT, body.StartsAt)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			endsAt, err := time.Parse(config.TIME_PARSE_FORMAT, body.EndsAt)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			renterId := ctx.GetUint("id")
			b, err := services.Bookings.Create(ctx.Request.Context(), bookings.CreateInput{
				RenterID:         renterId,
				SpaceRef:         body.SpaceRef,
				Zone:             body.Zone,
				StartsAt:         startsAt,
				EndsAt:           endsAt,
				Amount:           body.Amount,
				Currency:         body.Currency,
				PaymentMethodRef: body.PaymentMethodRef,
			})
			if err != nil {
				log.Printf("[bookings] Error creating booking: %s\n", err.Error())
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			if b.Payment.ExpiresAt != nil {
				go boot.ScheduleExpiryNudge(b.ID, *b.Payment.ExpiresAt)
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": bookingView(b, time.Now().UTC())})
		}).
		GET("/bookings", func(ctx *gin.Context) {
			var query types.BookingQueryFilters
			if err := ctx.ShouldBindQuery(&query); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			f := store.Filter{}
			if query.Status != "" {
				status := types.BookingStatus(query.Status)
				f.Status = &status
			}
			if ctx.GetString("role") != "admin" {
				renterId := ctx.GetUint("id")
				f.RenterID = &renterId
			}
			list, err := services.Store.List(ctx.Request.Context(), f)
			if err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			now := time.Now().UTC()
			data := make([]gin.H, 0, len(list))
			for i := range list {
				data = append(data, bookingView(&list[i], now))
			}
			ctx.JSON(http.StatusOK, gin.H{"data": data, "count": len(data)})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			id, ok := bookingIDFromUri(ctx)
			if !ok {
				return
			}
			b, err := services.Store.Get(ctx.Request.Context(), id)
			if err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			if ctx.GetString("role") != "admin" && b.RenterID != ctx.GetUint("id") {
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookingView(b, time.Now().UTC())})
		})
	return g
}

func adminBookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		PUT("/bookings/:id/approve", func(ctx *gin.Context) {
			id, ok := bookingIDFromUri(ctx)
			if !ok {
				return
			}
			adminId := ctx.GetUint("id")
			b, err := services.Bookings.Approve(ctx.Request.Context(), id, adminId)
			if err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookingView(b, time.Now().UTC())})
		}).
		PUT("/bookings/:id/reject", func(ctx *gin.Context) {
			id, ok := bookingIDFromUri(ctx)
			if !ok {
				return
			}
			adminId := ctx.GetUint("id")
			b, err := services.Bookings.Reject(ctx.Request.Context(), id, adminId)
			if err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookingView(b, time.Now().UTC())})
		}).
		DELETE("/bookings/:id", func(ctx *gin.Context) {
			id, ok := bookingIDFromUri(ctx)
			if !ok {
				return
			}
			adminId := ctx.GetUint("id")
			if err := services.Bookings.DeleteBooking(ctx.Request.Context(), id, adminId); err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.Status(http.StatusNoContent)
		})
	return g
}
