package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"referral-engine/internal/models"
	"referral-engine/internal/services"
)

// SubscriptionHandler receives billing events from the subscription provider
type SubscriptionHandler struct {
	subscriptionService *services.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// ActivateSubscription records a plan change and distributes commissions
func (h *SubscriptionHandler) ActivateSubscription(c *gin.Context) {
	var req struct {
		AccountID uint   `json:"account_id" binding:"required"`
		Plan      string `json:"plan" binding:"required"`
		EventID   string `json:"event_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.subscriptionService.ActivateSubscription(c.Request.Context(), services.SubscriptionEvent{
		AccountID: req.AccountID,
		Plan:      models.SubscriptionPlan(req.Plan),
		EventID:   req.EventID,
	})
	if err != nil {
		if result != nil {
			// partial distribution: report what was written alongside the failure
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Commission distribution incomplete",
				"data":  result,
			})
			return
		}
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Replayed && len(result.Entries) > 0 {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"success": true,
		"data":    result,
	})
}
