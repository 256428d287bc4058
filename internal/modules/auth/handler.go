package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"catalogapi/internal/pkg/response"
	"catalogapi/internal/repository"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_FAILED", "username and password are required")
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid username or password")
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		return
	}

	response.Success(c, http.StatusOK, LoginResponse{
		Token: result.Token,
		User: UserInfo{
			ID:          result.User.ID,
			Username:    result.User.Username,
			DisplayName: result.User.DisplayName,
			Role:        string(result.User.Role),
		},
	})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.service.Me(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "User not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		return
	}

	response.Success(c, http.StatusOK, UserInfo{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
	})
}

func (h *Handler) Logout(c *gin.Context) {
	h.service.Logout(c.GetInt64("user_id"), c.GetString("username"))
	response.Success(c, http.StatusOK, gin.H{"message": "logged out"})
}
