package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	checkindomain "github.com/smallbiznis/eventreg/internal/checkin/domain"
)

type checkInRequest struct {
	RegistrationID string `json:"registration_id"`
	TicketCode     string `json:"ticket_code"`
	Method         string `json:"method"`
	ScannerID      string `json:"scanner_id"`
}

// CreateCheckIn admits one registration. Every attempt, admitted or not, is
// recorded by the check-in service.
func (s *Server) CreateCheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	in := checkindomain.CheckInRequest{
		TicketCode: strings.TrimSpace(req.TicketCode),
		Method:     checkindomain.Method(strings.ToLower(strings.TrimSpace(req.Method))),
		ScannerID:  strings.TrimSpace(req.ScannerID),
	}
	if raw := strings.TrimSpace(req.RegistrationID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			AbortWithError(c, newValidationError("registration_id", "invalid_registration_id", "invalid registration_id"))
			return
		}
		in.RegistrationID = &id
	}
	if in.RegistrationID == nil && in.TicketCode == "" {
		AbortWithError(c, newValidationError("ticket_code", "required", "ticket_code or registration_id is required"))
		return
	}
	if in.ScannerID == "" {
		if kind, id, ok := strings.Cut(actorFromContext(c), ":"); ok && kind == "scanner" {
			in.ScannerID = id
		}
	}

	result, err := s.checkInSvc.CheckIn(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":       checkindomain.OutcomeCheckedIn,
		"registration":  result.Registration,
		"checked_in_at": result.CheckedInAt,
	})
}
