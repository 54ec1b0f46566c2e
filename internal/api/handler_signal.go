package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inboxagent/internal/mq"
	"inboxagent/internal/service"
)

type SignalHandler struct {
	signalService *service.SignalService
}

func NewSignalHandler(signalService *service.SignalService) *SignalHandler {
	return &SignalHandler{signalService: signalService}
}

// IngestSignal handles POST /signals. The signal is queued, not decided
// inline; the engine worker picks it up from the exchange.
func (h *SignalHandler) IngestSignal(c *gin.Context) {
	var req mq.SignalReceivedPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.signalService.Ingest(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"source_external_id": req.SourceExternalID,
		"status":             "queued",
	})
}
