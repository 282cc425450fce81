package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"referral-engine/internal/services"
)

type ReferralHandler struct {
	accountService    *services.AccountService
	commissionService *services.CommissionService
	integrityService  *services.IntegrityService
}

func NewReferralHandler(
	accountService *services.AccountService,
	commissionService *services.CommissionService,
	integrityService *services.IntegrityService,
) *ReferralHandler {
	return &ReferralHandler{
		accountService:    accountService,
		commissionService: commissionService,
		integrityService:  integrityService,
	}
}

// GetReferralCode returns the caller's referral code
func (h *ReferralHandler) GetReferralCode(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	code, err := h.accountService.GetReferralCode(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"referral_code": code},
	})
}

// GetReferralLink returns the caller's shareable signup link
func (h *ReferralHandler) GetReferralLink(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	link, err := h.accountService.GetReferralLink(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"link": link},
	})
}

// GetReferralQRCode returns the signup link as a PNG QR code
func (h *ReferralHandler) GetReferralQRCode(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	png, err := h.accountService.GetReferralQRCode(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// ApplyReferralCode links the caller to the referrer owning the code
func (h *ReferralHandler) ApplyReferralCode(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountService.ApplyReferralCode(c.Request.Context(), accountID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Referral code applied successfully",
		"data":    gin.H{"referred_by": account.Referrer()},
	})
}

// GetReferralStats returns referral statistics for the caller
func (h *ReferralHandler) GetReferralStats(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	stats, err := h.accountService.GetReferralStats(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// GetCommissions lists the caller's commissions, newest first
func (h *ReferralHandler) GetCommissions(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	commissions, err := h.commissionService.ListCommissions(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    commissions,
	})
}

// GetChain returns the caller's upline as it resolves today
func (h *ReferralHandler) GetChain(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	chain, err := h.integrityService.ValidateChain(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    chain,
	})
}
