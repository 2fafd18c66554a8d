package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/eventreg/internal/authorization"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
)

type createPayoutRequest struct {
	Currency    string `json:"currency"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

type listTransactionsQuery struct {
	Currency   string `form:"currency"`
	From       string `form:"from"`
	To         string `form:"to"`
	Unassigned bool   `form:"unassigned"`
}

func (s *Server) CreatePayout(c *gin.Context) {
	organizerID, err := organizerParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, organizerID, authorization.ObjectPayout, authorization.ActionPayoutCreate) {
		return
	}

	var req createPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	periodStart, err := parseOptionalTime(req.PeriodStart, false)
	if err != nil || periodStart == nil {
		AbortWithError(c, newValidationError("period_start", "invalid_period_start", "invalid period_start"))
		return
	}
	periodEnd, err := parseOptionalTime(req.PeriodEnd, true)
	if err != nil || periodEnd == nil {
		AbortWithError(c, newValidationError("period_end", "invalid_period_end", "invalid period_end"))
		return
	}

	payout, err := s.payoutSvc.CreatePayout(c.Request.Context(), organizerID, strings.TrimSpace(req.Currency), *periodStart, *periodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payout": payout})
}

func (s *Server) ListPayouts(c *gin.Context) {
	organizerID, err := organizerParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, organizerID, authorization.ObjectPayout, authorization.ActionPayoutView) {
		return
	}

	payouts, err := s.payoutSvc.ListPayouts(c.Request.Context(), organizerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

func (s *Server) ListTransactions(c *gin.Context) {
	organizerID, err := organizerParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, organizerID, authorization.ObjectPayout, authorization.ActionPayoutView) {
		return
	}

	var query listTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	txns, err := s.settlementSvc.ListTransactions(c.Request.Context(), settlementdomain.TransactionFilter{
		OrganizerID: organizerID,
		Currency:    query.Currency,
		From:        from,
		To:          to,
		Unassigned:  query.Unassigned,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}
