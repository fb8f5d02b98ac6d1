package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/aegis/internal/api/middleware"
	"github.com/Wikid82/aegis/internal/services"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, services.ErrOperatorDisabled) {
			status = http.StatusForbidden
		}
		middleware.GetRequestLogger(c).WithField("email", req.Email).Warn("Failed login attempt")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Me returns the identity carried by the caller's token.
func (h *AuthHandler) Me(c *gin.Context) {
	id, _ := c.Get(middleware.OperatorIDKey)
	c.JSON(http.StatusOK, gin.H{
		"operator_id": id,
		"email":       c.GetString(middleware.EmailKey),
		"role":        c.GetString(middleware.RoleKey),
	})
}
