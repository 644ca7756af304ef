package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	contextUserID = "user_id"
	contextRole   = "role"
)

// Middleware resolves the caller identity and stores it in the gin context
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.resolve(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(contextUserID, identity.UserID)
		c.Set(contextRole, identity.Role)
		c.Next()
	}
}

func (s *Service) resolve(r *http.Request) (*Identity, error) {
	if s.HeaderMode() {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			return nil, ErrUnauthenticated
		}
		role := r.Header.Get("X-User-Role")
		if role == "" {
			role = RoleClient
		}
		return &Identity{UserID: userID, Role: role}, nil
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		// browsers cannot set headers on WebSocket upgrades
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}
	return s.ParseToken(token)
}

// RequireRole aborts with 403 unless the caller has one of the roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(contextRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// CurrentIdentity returns the identity set by Middleware
func CurrentIdentity(c *gin.Context) Identity {
	return Identity{
		UserID: c.GetString(contextUserID),
		Role:   c.GetString(contextRole),
	}
}
