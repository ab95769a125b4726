package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"instadash/internal/domain"
	"instadash/internal/service"
)

type registerRequest struct {
	Email     string  `json:"email" binding:"required,email"`
	Username  string  `json:"username" binding:"required,min=3,max=50"`
	Password  string  `json:"password" binding:"required,min=8,max=100"`
	FirstName *string `json:"first_name" binding:"omitempty,max=100"`
	LastName  *string `json:"last_name" binding:"omitempty,max=100"`
}

// Empty credentials are left to the service, which rejects them like any
// other failed login.
type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Email     *string `json:"email" binding:"omitempty,email"`
	Username  *string `json:"username" binding:"omitempty,min=3,max=50"`
	FirstName *string `json:"first_name" binding:"omitempty,max=100"`
	LastName  *string `json:"last_name" binding:"omitempty,max=100"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type AccountResponse struct {
	ID         int64   `json:"id"`
	Email      string  `json:"email"`
	Username   string  `json:"username"`
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	IsActive   bool    `json:"is_active"`
	IsVerified bool    `json:"is_verified"`
	CreatedAt  string  `json:"created_at"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	account, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.registerError(c, err)
		return
	}

	c.JSON(http.StatusOK, accountToResponse(account))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	tok, err := h.auth.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{AccessToken: tok.AccessToken, TokenType: tok.TokenType})
}

func (h *Handler) me(c *gin.Context, account *domain.Account) {
	c.JSON(http.StatusOK, accountToResponse(account))
}

func (h *Handler) updateMe(c *gin.Context, account *domain.Account) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	updated, err := h.auth.UpdateProfile(c.Request.Context(), account.ID, domain.AccountUpdate{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, accountToResponse(updated))
}

// logout is a no-op server side; tokens are stateless and the client drops its copy.
func (h *Handler) logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

// authenticated resolves the bearer token before calling next with the
// caller's account.
func (h *Handler) authenticated(next func(c *gin.Context, account *domain.Account)) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}

		account, err := h.auth.ResolveCurrentIdentity(c.Request.Context(), raw)
		if err != nil {
			h.writeError(c, err)
			return
		}

		next(c, account)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func accountToResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		ID:         account.ID,
		Email:      account.Email,
		Username:   account.Username,
		FirstName:  account.FirstName,
		LastName:   account.LastName,
		IsActive:   account.IsActive,
		IsVerified: account.IsVerified,
		CreatedAt:  account.CreatedAt.UTC().Format(time.RFC3339),
	}
}
