package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
)

// Checkout creates a pending order. When the provider cannot be reached the
// order is still returned, with 503, so the buyer can retry payment later.
func (s *Server) Checkout(c *gin.Context) {
	var req orderdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))

	result, err := s.orderSvc.Checkout(c.Request.Context(), req)
	s.writeCheckoutResult(c, http.StatusCreated, result, err)
}

func (s *Server) RetryPayment(c *gin.Context) {
	orderID, err := parseUUIDParam(c.Param("id"), "order_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.orderSvc.RetryPayment(c.Request.Context(), orderID)
	s.writeCheckoutResult(c, http.StatusOK, result, err)
}

func (s *Server) writeCheckoutResult(c *gin.Context, status int, result *orderdomain.CheckoutResult, err error) {
	if err != nil {
		if errors.Is(err, paymentdomain.ErrProviderUnavailable) && result != nil {
			_, payload := mapError(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":         payload,
				"order":         result.Order,
				"registrations": result.Registrations,
			})
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(status, result)
}

func (s *Server) GetOrder(c *gin.Context) {
	orderID, err := parseUUIDParam(c.Param("id"), "order_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, registrations, err := s.orderSvc.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":         order,
		"registrations": registrations,
	})
}

func (s *Server) ListOrderTickets(c *gin.Context) {
	orderID, err := parseUUIDParam(c.Param("id"), "order_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tickets, err := s.checkInSvc.OrderTickets(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// GetTicketQR renders the registration's signed ticket code as a PNG.
func (s *Server) GetTicketQR(c *gin.Context) {
	registrationID, err := parseUUIDParam(c.Param("id"), "registration_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	_, png, err := s.checkInSvc.IssueTicket(c.Request.Context(), registrationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
