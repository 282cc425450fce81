package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"referral-engine/internal/services"
)

type PayoutHandler struct {
	payoutService *services.PayoutService
}

func NewPayoutHandler(payoutService *services.PayoutService) *PayoutHandler {
	return &PayoutHandler{
		payoutService: payoutService,
	}
}

// RequestPayout reserves part of the caller's available balance for withdrawal
func (h *PayoutHandler) RequestPayout(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var req struct {
		Amount           decimal.Decimal `json:"amount"`
		DestinationEmail string          `json:"destination_email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.payoutService.RequestPayout(c.Request.Context(), services.PayoutInput{
		AccountID:        accountID,
		Amount:           req.Amount,
		DestinationEmail: req.DestinationEmail,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    request,
	})
}

// GetPayouts lists the caller's payout requests
func (h *PayoutHandler) GetPayouts(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	payouts, err := h.payoutService.ListPayouts(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payouts,
		"minimum": h.payoutService.MinimumPayout().StringFixed(2),
	})
}
