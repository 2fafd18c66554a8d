package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/eventreg/internal/observability/context"
	"golang.org/x/crypto/bcrypt"
)

const (
	HeaderActor     = "X-Actor"
	HeaderOrganizer = "X-Organizer-ID"

	contextActorKey = "actor"
	defaultActor    = "admin:api"
)

// AdminAuth checks the bearer token against the configured bcrypt hash. The
// caller may narrow its identity with X-Actor ("organizer:<uuid>",
// "scanner:<id>"); authorization decides what that identity can do.
func (s *Server) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := strings.TrimSpace(s.cfg.AdminTokenHash)
		if hash == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actor == "" {
			actor = defaultActor
		}
		actorType, actorID, _ := strings.Cut(actor, ":")
		c.Set(contextActorKey, actor)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actorType, actorID))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func actorFromContext(c *gin.Context) string {
	if v, ok := c.Get(contextActorKey); ok {
		if actor, ok := v.(string); ok && actor != "" {
			return actor
		}
	}
	return defaultActor
}

// organizerParam reads the organizer scope from the route or the header.
func organizerParam(c *gin.Context) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Param("organizer_id"))
	if raw == "" {
		raw = strings.TrimSpace(c.GetHeader(HeaderOrganizer))
	}
	if raw == "" {
		raw = strings.TrimSpace(c.Query("organizer_id"))
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, newValidationError("organizer_id", "invalid_organizer_id", "invalid organizer_id")
	}
	c.Request = c.Request.WithContext(obscontext.WithOrganizerID(c.Request.Context(), id.String()))
	return id, nil
}

// authorize runs the casbin check for the request's actor within organizerID.
func (s *Server) authorize(c *gin.Context, organizerID uuid.UUID, object, action string) bool {
	if s.authzSvc == nil {
		return true
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actorFromContext(c), organizerID.String(), object, action); err != nil {
		AbortWithError(c, err)
		return false
	}
	return true
}
