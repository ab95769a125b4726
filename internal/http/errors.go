package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"instadash/internal/service"
)

type errorMapping struct {
	err     error
	status  int
	message string
}

// ordered; the first match wins
var errorMappings = []errorMapping{
	{service.ErrEmailTaken, http.StatusBadRequest, "Email already registered"},
	{service.ErrUsernameTaken, http.StatusBadRequest, "Username already taken"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Incorrect login credentials"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "Could not validate credentials"},
	{service.ErrAccountInactive, http.StatusBadRequest, "Inactive user"},
	{service.ErrAccountNotFound, http.StatusNotFound, "User not found"},
}

// writeError maps a service error to a status and a stable message.
// Anything unrecognised becomes a generic 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.status == http.StatusUnauthorized {
				c.Header("WWW-Authenticate", "Bearer")
			}
			c.JSON(m.status, gin.H{"detail": m.message})
			return
		}
	}

	if errors.Is(err, service.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")})
		return
	}

	h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	sentry.CaptureException(err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
}

// registerError reports any creation failure other than a known conflict as 400.
func (h *Handler) registerError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrPersistence) {
		h.logger.WithError(err).Warn("registration failed")
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Failed to create user"})
		return
	}
	h.writeError(c, err)
}

func (h *Handler) bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": strings.Join(fields, "; ")})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
}
