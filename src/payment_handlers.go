package main

import (
	"net/http"
	"time"

	"parkbook/src/boot"
	"parkbook/src/config"
	"parkbook/src/payments"
	"parkbook/src/types"

	"github.com/gin-gonic/gin"
)

func paymentHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/bookings/:id/capture", func(ctx *gin.Context) {
			id, ok := bookingIDFromUri(ctx)
			if !ok {
				return
			}
			var body types.CaptureRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			hold, err := services.Payments.Capture(ctx.Request.Context(), id, body.Amount)
			if err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": hold})
		}).
		POST("/bookings/:id/extend", func(ctx *gin.Context) {
			id, ok := bookingIDFromUri(ctx)
			if !ok {
				return
			}
			var body types.ExtendRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			days := body.Days
			if days == 0 {
				days = config.HOLD_DURATION_DAYS
			}
			hold, err := services.Payments.Extend(ctx.Request.Context(), id, days)
			if err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			if hold.ExpiresAt != nil {
				go boot.ScheduleExpiryNudge(id, *hold.ExpiresAt)
			}
			ctx.JSON(http.StatusOK, gin.H{
				"data":              hold,
				"days_until_expiry": payments.DaysUntilExpiry(hold, time.Now().UTC()),
			})
		}).
		POST("/bookings/:id/release", func(ctx *gin.Context) {
			id, ok := bookingIDFromUri(ctx)
			if !ok {
				return
			}
			hold, err := services.Payments.Release(ctx.Request.Context(), id)
			if err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": hold})
		})
	return g
}
