package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/authorization"
	paymentproviderdomain "github.com/smallbiznis/eventreg/internal/paymentprovider/domain"
)

type upsertPaymentProviderConfigRequest struct {
	Provider string         `json:"provider"`
	Config   map[string]any `json:"config"`
}

type updatePaymentProviderStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

func (s *Server) ListPaymentProviderConfigs(c *gin.Context) {
	organizerID, ok := s.providerScope(c)
	if !ok {
		return
	}

	resp, err := s.paymentProviderSvc.ListConfigs(c.Request.Context(), organizerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"configs": resp})
}

func (s *Server) UpsertPaymentProviderConfig(c *gin.Context) {
	organizerID, ok := s.providerScope(c)
	if !ok {
		return
	}

	var req upsertPaymentProviderConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentProviderSvc.UpsertConfig(c.Request.Context(), organizerID, paymentproviderdomain.UpsertRequest{
		Provider: strings.TrimSpace(req.Provider),
		Config:   req.Config,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": resp})
}

func (s *Server) UpdatePaymentProviderStatus(c *gin.Context) {
	organizerID, ok := s.providerScope(c)
	if !ok {
		return
	}

	provider := strings.TrimSpace(c.Param("provider"))
	var req updatePaymentProviderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.IsActive == nil {
		AbortWithError(c, newValidationError("is_active", "invalid_is_active", "invalid is_active"))
		return
	}

	resp, err := s.paymentProviderSvc.SetActive(c.Request.Context(), organizerID, provider, *req.IsActive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": resp})
}

func (s *Server) providerScope(c *gin.Context) (uuid.UUID, bool) {
	id, err := organizerParam(c)
	if err != nil {
		AbortWithError(c, err)
		return id, false
	}
	if !s.authorize(c, id, authorization.ObjectPaymentProvider, authorization.ActionPaymentProviderManage) {
		return id, false
	}
	return id, true
}
