package records

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"catalogapi/internal/middleware"
)

// RegisterRoutes registers the generic table routes under the protected
// group. Mutating the users table additionally requires the admin role.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	tables := r.Group("/records")
	tables.Use(usersTableGuard())
	{
		tables.GET("/:table", h.List)
		tables.POST("/:table", h.Create)
		tables.PUT("/:table/:id", h.Update)
		tables.DELETE("/:table/:id", h.Delete)
	}
}

// usersTableGuard applies the admin role check to users-table mutations;
// reads and every other table pass through.
func usersTableGuard() gin.HandlerFunc {
	admin := middleware.AdminOnly()
	return func(c *gin.Context) {
		if c.Param("table") == "users" && c.Request.Method != http.MethodGet {
			admin(c)
			return
		}
		c.Next()
	}
}
