package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/authorization"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
)

type listReviewItemsQuery struct {
	Status string `form:"status"`
	Limit  string `form:"limit"`
}

type resolveReviewItemRequest struct {
	Resolution string `json:"resolution"`
}

// ListReviewItems lists one organizer's review queue.
func (s *Server) ListReviewItems(c *gin.Context) {
	organizerID, err := organizerParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, organizerID, authorization.ObjectReviewQueue, authorization.ActionReviewView) {
		return
	}
	s.listReviewItems(c, &organizerID)
}

// ListAllReviewItems includes items that could not be tied to an organizer.
// Only platform admins see it.
func (s *Server) ListAllReviewItems(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	s.listReviewItems(c, nil)
}

func (s *Server) listReviewItems(c *gin.Context, organizerID *uuid.UUID) {
	var query listReviewItemsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	status := settlementdomain.ReviewStatus(strings.ToLower(strings.TrimSpace(query.Status)))
	switch status {
	case "", settlementdomain.ReviewStatusOpen, settlementdomain.ReviewStatusResolved:
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	items, err := s.settlementSvc.ListReviewQueue(c.Request.Context(), settlementdomain.ReviewFilter{
		Status:      status,
		OrganizerID: organizerID,
		Limit:       limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"review_items": items})
}

func (s *Server) ResolveReviewItem(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req resolveReviewItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	resolution := strings.TrimSpace(req.Resolution)
	if resolution == "" {
		AbortWithError(c, newValidationError("resolution", "required", "resolution is required"))
		return
	}

	item, err := s.settlementSvc.ResolveReview(c.Request.Context(), id, resolution, actorFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"review_item": item})
}

func requireAdmin(c *gin.Context) bool {
	if strings.HasPrefix(actorFromContext(c), "admin:") {
		return true
	}
	AbortWithError(c, ErrForbidden)
	return false
}
