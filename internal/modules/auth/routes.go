package auth

import "github.com/gin-gonic/gin"

// RegisterPublicRoutes registers routes reachable without a token.
func RegisterPublicRoutes(r *gin.RouterGroup, h *Handler) {
	r.POST("/auth/login", h.Login)
}

// RegisterProtectedRoutes registers routes behind the JWT middleware.
func RegisterProtectedRoutes(r *gin.RouterGroup, h *Handler) {
	r.GET("/auth/me", h.Me)
	r.POST("/auth/logout", h.Logout)
}
