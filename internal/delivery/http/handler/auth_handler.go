package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/internal/usecase/user"
	"medication-adherence-monitor/pkg/utils"
)

type AuthHandler struct {
	service *user.Service
}

func NewAuthHandler(service *user.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

// RegisterRoutes mounts /auth. requireAuth guards the endpoints that act on
// the caller's own session.
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	auth := router.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/revoke", requireAuth, h.Revoke)
		auth.GET("/me", requireAuth, h.Me)
	}
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req user.SignupRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Signup(c.Request.Context(), &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "User registered successfully", resp)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req user.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Login successful", resp)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req user.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Refresh(c.Request.Context(), &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Token refreshed successfully", resp)
}

// Revoke revokes one refresh token, or every token of the caller when the
// body names none.
func (h *AuthHandler) Revoke(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	var err error
	if req.RefreshToken == "" {
		err = h.service.RevokeAllUserTokens(c.Request.Context(), userID)
	} else {
		err = h.service.RevokeToken(c.Request.Context(), userID, req.RefreshToken)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Token revoked successfully", nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	resp, err := h.service.Me(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "User retrieved successfully", resp)
}
