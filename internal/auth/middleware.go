package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"campustrack/internal/apperr"
	"campustrack/internal/identity"
	"campustrack/internal/respond"
)

const actorKey = "actor"

// Authenticate enforces bearer JWT tokens signed with HS256 and stores the
// actor on the context.
func Authenticate(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			respond.Abort(c, apperr.ErrUnauthorized)
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			respond.Abort(c, apperr.New(apperr.ErrUnauthorized.Status, apperr.ErrUnauthorized.Code, "Invalid or expired token"))
			return
		}
		c.Set(actorKey, claims.Actor())
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed.
func RequireRole(roles ...identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			respond.Abort(c, apperr.ErrUnauthorized)
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		respond.Abort(c, apperr.ErrForbidden)
	}
}

// RequireSelf rejects requests whose path parameter param is not the
// actor's own uid7.
func RequireSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			respond.Abort(c, apperr.ErrUnauthorized)
			return
		}
		if actor.UID7 != c.Param(param) {
			respond.Abort(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

// ActorFrom returns the actor stored by Authenticate.
func ActorFrom(c *gin.Context) (identity.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return identity.Actor{}, false
	}
	actor, ok := v.(identity.Actor)
	return actor, ok
}
