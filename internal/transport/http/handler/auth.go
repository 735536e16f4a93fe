package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"studynotes/internal/app"
	"studynotes/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Register(app.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrUsernameExists):
			response.Error(c, http.StatusConflict, response.CodeUsernameExists, err.Error())
		case errors.Is(err, app.ErrEmailExists):
			response.Error(c, http.StatusConflict, response.CodeEmailExists, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "register failed")
		}
		return
	}

	response.OK(c, gin.H{"token": result.Token, "user": result.User})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Login(app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "login failed")
		}
		return
	}

	response.OK(c, gin.H{"token": result.Token, "user": result.User})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	user, err := h.authService.GetUserByID(userID)
	if err != nil || user == nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
		return
	}
	response.OK(c, user)
}
