package main

import (
	"net/http"

	"parkbook/src/types"

	"github.com/gin-gonic/gin"
)

func chatHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/bookings/:id/messages", func(ctx *gin.Context) {
			id, ok := bookingIDFromUri(ctx)
			if !ok {
				return
			}
			var body types.PostMessageRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			senderId := ctx.GetUint("id")
			msg, err := services.Chat.PostMessage(ctx.Request.Context(), id, senderId, body.Body)
			if err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": msg})
		}).
		GET("/bookings/:id/messages", func(ctx *gin.Context) {
			id, ok := bookingIDFromUri(ctx)
			if !ok {
				return
			}
			threads, err := services.Chat.Threads(ctx.Request.Context(), id)
			if err != nil {
				ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": threads, "count": len(threads)})
		})
	return g
}
