package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// HandlePaymentWebhook acknowledges with 200 once an event is applied or is a
// duplicate, 202 when it was parked for review and 5xx when the store failed
// so the provider retries.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, settlementdomain.ErrAlreadyTerminal):
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		case errors.Is(err, settlementdomain.ErrReconciliationMismatch):
			s.log.Warn("payment webhook parked for review",
				zap.String("provider", provider),
				zap.Error(err),
			)
			c.JSON(http.StatusAccepted, gin.H{"status": "review_required"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
