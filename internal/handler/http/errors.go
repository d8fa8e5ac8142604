package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	"github.com/gin-gonic/gin"
)

func (h *Handler) writeError(c *gin.Context, err error) {
	var authErr *errs.AuthFailure
	if errors.As(err, &authErr) {
		c.JSON(authStatus(authErr.Kind), gin.H{
			"error": authErr.Message(language(c)),
			"code":  string(authErr.Kind),
		})
		return
	}

	switch {
	case errors.Is(err, errs.ErrInsufficientFunds):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient funds"})
	case errors.Is(err, errs.ErrInsufficientHoldings):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient holdings"})
	case errors.Is(err, errs.ErrAlreadyCompeting):
		c.JSON(http.StatusConflict, gin.H{"error": "already competing"})
	case errors.Is(err, errs.ErrInvalidAmount),
		errors.Is(err, errs.ErrInvalidSymbol),
		errors.Is(err, errs.ErrInvalidKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrNoSession):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no active session, sign in again"})
	default:
		h.log.Error("request failed", "path", c.FullPath(), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func authStatus(kind errs.AuthKind) int {
	switch kind {
	case errs.AuthInvalidCredential:
		return http.StatusUnauthorized
	case errs.AuthNotFound:
		return http.StatusNotFound
	case errs.AuthAlreadyInUse:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// language picks the primary tag of Accept-Language, e.g. "vi" from "vi-VN,vi;q=0.9".
func language(c *gin.Context) string {
	if lang := c.Query("lang"); lang != "" {
		return lang
	}
	tag, _, _ := strings.Cut(c.GetHeader("Accept-Language"), ",")
	tag, _, _ = strings.Cut(tag, "-")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.ToLower(strings.TrimSpace(tag))
}
