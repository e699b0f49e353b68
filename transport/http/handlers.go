package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/service"
	"github.com/shopspring/decimal"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

func invalidRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
}

// Register handles principal registration. The role is always the default one.
func (h *AuthHandlers) Register(c *gin.Context) {
	var req struct {
		Email          string           `json:"email"`
		Password       string           `json:"password"`
		InitialBalance *decimal.Decimal `json:"initialBalance"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	profile := core.Profile{}
	if req.InitialBalance != nil {
		profile.Balance = *req.InitialBalance
	}

	id, err := h.authService.Register(c.Request.Context(), req.Email, req.Password, profile)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"userId":  id,
	})
}

// Login handles the login request
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	pair, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"tokenType":    pair.TokenType,
		"expiresIn":    pair.ExpiresIn,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Token exchanges a refresh token for a new access token
func (h *AuthHandlers) Token(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	access, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": access.Value})
}

// Logout revokes a refresh token
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Balance returns the caller's balance
func (h *AuthHandlers) Balance(c *gin.Context) {
	claims, _ := claimsFrom(c)

	p, err := h.authService.Balance(c.Request.Context(), claims.PrincipalID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  p.ID,
		"email":   p.Key,
		"balance": p.Profile.Balance,
	})
}

// Transfer moves part of the caller's balance to another principal
func (h *AuthHandlers) Transfer(c *gin.Context) {
	var req struct {
		ToEmail string          `json:"toEmail"`
		Amount  decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}
	claims, _ := claimsFrom(c)

	toID, err := h.authService.Transfer(c.Request.Context(), claims.PrincipalID, req.ToEmail, req.Amount)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Transfer successful",
		"fromId":  claims.PrincipalID,
		"toId":    toID,
		"amount":  req.Amount,
	})
}

// Welcome greets callers that passed the role check of their route
func (h *AuthHandlers) Welcome(area string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := claimsFrom(c)
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome to the " + area + " area",
			"userId":  claims.PrincipalID,
			"role":    claims.Role,
		})
	}
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
