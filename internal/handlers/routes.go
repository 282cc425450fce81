package handlers

import (
	"github.com/gin-gonic/gin"

	"referral-engine/internal/auth"
	"referral-engine/internal/models"
)

// Handlers bundles every HTTP handler of the service
type Handlers struct {
	Account      *AccountHandler
	Referral     *ReferralHandler
	Payout       *PayoutHandler
	Subscription *SubscriptionHandler
	Admin        *AdminHandler
}

// RegisterRoutes mounts the authenticated API under /api
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.POST("/account", h.Account.EnsureAccount)
		api.GET("/account", h.Account.GetProfile)

		referrals := api.Group("/referral")
		{
			referrals.GET("/code", h.Referral.GetReferralCode)
			referrals.GET("/link", h.Referral.GetReferralLink)
			referrals.GET("/qr", h.Referral.GetReferralQRCode)
			referrals.POST("/apply", h.Referral.ApplyReferralCode)
			referrals.GET("/stats", h.Referral.GetReferralStats)
			referrals.GET("/commissions", h.Referral.GetCommissions)
			referrals.GET("/chain", h.Referral.GetChain)
		}

		api.POST("/payouts", h.Payout.RequestPayout)
		api.GET("/payouts", h.Payout.GetPayouts)
	}

	internal := api.Group("/internal")
	internal.Use(h.Admin.RequirePermission(models.PermTriggerCommissions))
	{
		internal.POST("/subscriptions", h.Subscription.ActivateSubscription)
	}

	admin := api.Group("/admin")
	{
		referrals := admin.Group("/referrals")
		referrals.Use(h.Admin.RequirePermission(models.PermManageReferrals))
		{
			referrals.GET("/audit", h.Admin.RunAudit)
			referrals.GET("/audit/missing", h.Admin.ScanMissing)
			referrals.GET("/audit/duplicates", h.Admin.ScanDuplicates)
			referrals.GET("/audit/malformed", h.Admin.ScanMalformed)
			referrals.GET("/audit/broken", h.Admin.ScanBroken)
			referrals.GET("/audit/depth", h.Admin.AnalyzeDepth)
			referrals.GET("/audit/export", h.Admin.ExportAudit)
			referrals.GET("/chain/:id", h.Admin.ValidateChain)
			referrals.POST("/fix-missing", h.Admin.FixMissingCodes)
			referrals.POST("/regenerate", h.Admin.RegenerateCodes)
			referrals.GET("/snapshots/latest", h.Admin.LatestSnapshot)
		}

		payouts := admin.Group("")
		payouts.Use(h.Admin.RequirePermission(models.PermManagePayouts))
		{
			payouts.GET("/payouts", h.Admin.ListPayouts)
			payouts.PUT("/payouts/:id/status", h.Admin.UpdatePayoutStatus)
			payouts.POST("/commissions/release", h.Admin.ReleaseCommissions)
			payouts.GET("/logs", h.Admin.GetAdminLogs)
		}

		admins := admin.Group("/admins")
		admins.Use(h.Admin.RequirePermission(models.PermManageAdmins))
		{
			admins.POST("", h.Admin.PromoteAdmin)
		}
	}
}
