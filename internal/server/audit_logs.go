package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
)

type listAuditLogsQuery struct {
	OrganizerID  string `form:"organizer_id"`
	Action       string `form:"action"`
	TargetType   string `form:"target_type"`
	TargetID     string `form:"target_id"`
	ResourceType string `form:"resource_type"`
	ResourceID   string `form:"resource_id"`
	Limit        string `form:"limit"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}

	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var organizerID *uuid.UUID
	if raw := strings.TrimSpace(query.OrganizerID); raw != "" {
		parsed, err := parseUUIDParam(raw, "organizer_id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		organizerID = &parsed
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	targetType := strings.TrimSpace(query.TargetType)
	if targetType == "" {
		targetType = strings.TrimSpace(query.ResourceType)
	}
	targetID := strings.TrimSpace(query.TargetID)
	if targetID == "" {
		targetID = strings.TrimSpace(query.ResourceID)
	}

	logs, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListFilter{
		OrganizerID: organizerID,
		Action:      strings.TrimSpace(query.Action),
		TargetType:  targetType,
		TargetID:    targetID,
		Limit:       limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
