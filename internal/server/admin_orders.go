package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/eventreg/internal/authorization"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
)

type transitionOrderRequest struct {
	Target   string  `json:"target"`
	Reason   string  `json:"reason"`
	Amount   *int64  `json:"amount"`
	Currency *string `json:"currency"`
}

var transitionActions = map[orderdomain.OrderStatus]string{
	orderdomain.OrderStatusPaid:      authorization.ActionOrderMarkPaid,
	orderdomain.OrderStatusCancelled: authorization.ActionOrderCancel,
	orderdomain.OrderStatusExpired:   authorization.ActionOrderExpire,
	orderdomain.OrderStatusRefunded:  authorization.ActionOrderRefund,
}

// TransitionOrder is the manual path into the settlement state machine.
func (s *Server) TransitionOrder(c *gin.Context) {
	orderID, err := parseUUIDParam(c.Param("id"), "order_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req transitionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	target := orderdomain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Target)))
	action, ok := transitionActions[target]
	if !ok {
		AbortWithError(c, newValidationError("target", "invalid_target", "invalid target"))
		return
	}

	ctx := c.Request.Context()
	order, _, err := s.orderSvc.GetOrder(ctx, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, order.OrganizerID, authorization.ObjectOrder, action) {
		return
	}

	result, err := s.settlementSvc.Transition(ctx, settlementdomain.TransitionRequest{
		OrderID:  &order.ID,
		Target:   target,
		Source:   settlementdomain.SourceManual,
		Amount:   req.Amount,
		Currency: req.Currency,
		Actor:    actorFromContext(c),
		Reason:   strings.TrimSpace(req.Reason),
	})
	if err != nil {
		// a mismatched manual payment is parked for review like a webhook
		if errors.Is(err, settlementdomain.ErrReconciliationMismatch) && result != nil {
			c.JSON(http.StatusAccepted, gin.H{"order": result.Order, "status": "review_required"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": result.Order,
		"from":  result.From,
	})
}
