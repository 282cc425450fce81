package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"referral-engine/internal/auth"
	"referral-engine/internal/services"
)

// AccountHandler handles account bootstrap and profile endpoints
type AccountHandler struct {
	accountService *services.AccountService
	adminService   *services.AdminService
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accountService *services.AccountService, adminService *services.AdminService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		adminService:   adminService,
	}
}

// EnsureAccount creates the caller's account on first call and returns it
func (h *AccountHandler) EnsureAccount(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	email, _ := auth.GetEmail(c)
	var req struct {
		Email string `json:"email" binding:"omitempty,email"`
	}
	if err := c.ShouldBindJSON(&req); err == nil && req.Email != "" {
		email = req.Email
	}

	account, err := h.accountService.EnsureAccount(c.Request.Context(), accountID, email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    account,
	})
}

// GetProfile returns the caller's account with its admin role, if any
func (h *AccountHandler) GetProfile(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	profile := gin.H{
		"id":                account.ID,
		"email":             account.Email,
		"referral_code":     account.Code(),
		"referred_by":       account.Referrer(),
		"subscription_plan": account.SubscriptionPlan,
		"pending_payout":    account.PendingPayout(),
		"available_balance": account.AvailableBalance(),
		"created_at":        account.CreatedAt,
	}
	if admin, err := h.adminService.GetAdminByAccountID(c.Request.Context(), accountID); err == nil {
		profile["role"] = admin.Role
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profile,
	})
}
