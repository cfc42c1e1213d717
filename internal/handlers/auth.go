package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nandu/api/internal/middleware"
	"nandu/api/internal/models"
	"nandu/api/internal/repository"
	"nandu/api/internal/service"
	"nandu/api/internal/social"
)

type userResponse struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  string(user.Role),
	}
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := h.authService.Signup(c.Request.Context(), service.SignupInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Email is taken"})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Signup success! Please login."})
}

type signinRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// sendSession delivers the token both in the body and as the session cookie;
// clients consume either channel.
func (h HandlerSet) sendSession(c *gin.Context, token string, user models.User) {
	maxAge := int(h.cfg.Security.SessionTTL.Seconds())
	c.SetCookie(middleware.SessionCookie, token, maxAge, "/", "", h.cfg.Environment == "production", true)

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  toUserResponse(user),
	})
}

func (h HandlerSet) Signin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, user, err := h.authService.Signin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": service.ErrInvalidCredentials.Error()})
			return
		}
		h.internalError(c, err)
		return
	}

	h.sendSession(c, token, user)
}

func (h HandlerSet) Signout(c *gin.Context) {
	// Nothing to invalidate server side; dropping the cookie ends the session.
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cfg.Environment == "production", true)
	c.JSON(http.StatusOK, gin.H{"message": "Signout success!"})
}

type socialLoginRequest struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userID"`
	TokenID     string `json:"tokenId"`
}

func (h HandlerSet) SocialLogin(c *gin.Context) {
	var req socialLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, user, err := h.authService.SocialLogin(c.Request.Context(), social.Assertion{
		AccessToken: req.AccessToken,
		UserID:      req.UserID,
		IDToken:     req.TokenID,
	})
	if err != nil {
		switch {
		case errors.Is(err, social.ErrUnverifiedEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Social login failed. Email not verified."})
		case errors.Is(err, social.ErrProviderLookup), errors.Is(err, social.ErrBadAssertion):
			h.log.Warn().Err(err).Msg("social login rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Social login failed. Try again."})
		default:
			h.internalError(c, err)
		}
		return
	}

	h.sendSession(c, token, user)
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User with that email does not exist."})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Email has been sent to " + req.Email + ". Follow the instructions to reset your password.",
	})
}

type resetPasswordRequest struct {
	ResetPasswordLink string `json:"resetPasswordLink" binding:"required"`
	NewPassword       string `json:"newPassword" binding:"required,min=6"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.ResetPasswordLink, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidResetToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Link!"})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password updated, Now you can login with your new password.",
	})
}
