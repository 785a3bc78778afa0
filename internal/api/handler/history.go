package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetChatHistory returns the message log of a retired or live session.
// Only a participant may read it.
func (h *Handler) GetChatHistory(c *gin.Context) {
	anonID, ok := h.anonIDFromRequest(c)
	if !ok {
		return
	}
	sessionID := c.Param("sessionID")

	rec, err := h.Storage.GetSessionRecord(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if rec.User1ID != anonID && rec.User2ID != anonID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant"})
		return
	}

	history, err := h.Storage.GetChatHistory(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": history})
}
