package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"referral-engine/internal/auth"
	"referral-engine/internal/logging"
	"referral-engine/internal/services"
)

// respondError maps service errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	var funds *services.InsufficientFundsError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &funds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "Insufficient funds",
			"requested": funds.Requested.StringFixed(2),
			"available": funds.Available.StringFixed(2),
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	default:
		logging.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// requireAccount reads the authenticated account id or answers 401
func requireAccount(c *gin.Context) (uint, bool) {
	accountID, exists := auth.GetAccountID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return accountID, true
}

// pagination reads limit/offset query parameters
func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
