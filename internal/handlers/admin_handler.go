package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"referral-engine/internal/models"
	"referral-engine/internal/services"
)

type AdminHandler struct {
	adminService     *services.AdminService
	integrityService *services.IntegrityService
	payoutService    *services.PayoutService
}

func NewAdminHandler(
	adminService *services.AdminService,
	integrityService *services.IntegrityService,
	payoutService *services.PayoutService,
) *AdminHandler {
	return &AdminHandler{
		adminService:     adminService,
		integrityService: integrityService,
		payoutService:    payoutService,
	}
}

// RequirePermission lets the request through only for admins holding permission
func (h *AdminHandler) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := requireAccount(c)
		if !ok {
			c.Abort()
			return
		}

		admin, err := h.adminService.Authorize(c.Request.Context(), accountID, permission)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}

		c.Set("admin_id", admin.ID)
		c.Set("admin_role", admin.Role)
		c.Next()
	}
}

func adminID(c *gin.Context) uint {
	id, _ := c.Get("admin_id")
	v, _ := id.(uint)
	return v
}

// RunAudit runs every integrity scan
func (h *AdminHandler) RunAudit(c *gin.Context) {
	report, err := h.integrityService.RunAudit(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

// ScanMissing lists accounts without a code
func (h *AdminHandler) ScanMissing(c *gin.Context) {
	findings, err := h.integrityService.ScanMissingCodes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": findings, "count": len(findings)})
}

// ScanDuplicates lists codes held by several accounts
func (h *AdminHandler) ScanDuplicates(c *gin.Context) {
	findings, err := h.integrityService.ScanDuplicateCodes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": findings, "count": len(findings)})
}

// ScanMalformed lists codes with an invalid format
func (h *AdminHandler) ScanMalformed(c *gin.Context) {
	findings, err := h.integrityService.ScanMalformedCodes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": findings, "count": len(findings)})
}

// ScanBroken lists referrer links that resolve to nobody
func (h *AdminHandler) ScanBroken(c *gin.Context) {
	findings, err := h.integrityService.ScanBrokenChains(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": findings, "count": len(findings)})
}

// AnalyzeDepth returns chain depth analytics
func (h *AdminHandler) AnalyzeDepth(c *gin.Context) {
	stats, err := h.integrityService.AnalyzeChainDepth(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

// ExportAudit downloads the audit as an XLSX workbook
func (h *AdminHandler) ExportAudit(c *gin.Context) {
	report, err := h.integrityService.RunAudit(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := services.ExportAuditWorkbook(report)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("referral-audit-%s.xlsx", report.GeneratedAt.Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ValidateChain re-validates one account's upline
func (h *AdminHandler) ValidateChain(c *gin.Context) {
	var uri struct {
		ID uint `uri:"id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account ID"})
		return
	}

	chain, err := h.integrityService.ValidateChain(c.Request.Context(), uri.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": chain})
}

// FixMissingCodes generates codes for every account lacking one
func (h *AdminHandler) FixMissingCodes(c *gin.Context) {
	results, err := h.integrityService.FixMissingCodes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.LogAdminAction(c.Request.Context(), adminID(c), "FIX_MISSING_CODES", "ACCOUNT", "",
		repairDetails(results))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": results})
}

// RegenerateCodes force-replaces the codes of the listed accounts
func (h *AdminHandler) RegenerateCodes(c *gin.Context) {
	var req struct {
		AccountIDs []uint `json:"account_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.integrityService.RegenerateCodes(c.Request.Context(), req.AccountIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.LogAdminAction(c.Request.Context(), adminID(c), "REGENERATE_CODES", "ACCOUNT", "",
		repairDetails(results))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": results})
}

func repairDetails(results []services.RepairResult) map[string]interface{} {
	var ok, failed []uint
	for _, r := range results {
		if r.Success {
			ok = append(ok, r.AccountID)
		} else {
			failed = append(failed, r.AccountID)
		}
	}
	return map[string]interface{}{
		"repaired": ok,
		"failed":   failed,
	}
}

// LatestSnapshot returns the last stored audit summary
func (h *AdminHandler) LatestSnapshot(c *gin.Context) {
	snapshot, err := h.integrityService.LatestSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": snapshot})
}

// ListPayouts lists payout requests, optionally filtered by ?status=
func (h *AdminHandler) ListPayouts(c *gin.Context) {
	limit, offset := pagination(c)
	payouts, err := h.payoutService.ListPayoutsByStatus(c.Request.Context(),
		models.PayoutStatus(c.Query("status")), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": payouts})
}

// UpdatePayoutStatus records the outcome of an off-platform payout
func (h *AdminHandler) UpdatePayoutStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payout ID"})
		return
	}

	var req services.StatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payout, err := h.payoutService.UpdatePayoutStatus(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.LogAdminAction(c.Request.Context(), adminID(c), "UPDATE_PAYOUT_STATUS", "PAYOUT", id.String(),
		map[string]interface{}{
			"status":         req.Status,
			"transaction_id": req.TransactionID,
			"reason":         req.Reason,
		})
	c.JSON(http.StatusOK, gin.H{"success": true, "data": payout})
}

// ReleaseCommissions releases every matured commission now
func (h *AdminHandler) ReleaseCommissions(c *gin.Context) {
	start := time.Now()
	released, err := h.payoutService.ReleaseMaturedCommissions(c.Request.Context(), nil)
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.LogAdminAction(c.Request.Context(), adminID(c), "RELEASE_COMMISSIONS", "COMMISSION", "",
		map[string]interface{}{"released": released})
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"released": released, "took_ms": time.Since(start).Milliseconds()},
	})
}

// GetAdminLogs returns admin activity logs
func (h *AdminHandler) GetAdminLogs(c *gin.Context) {
	limit, offset := pagination(c)
	logs, err := h.adminService.GetAdminLogs(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": logs})
}

// PromoteAdmin grants admin privileges to an account
func (h *AdminHandler) PromoteAdmin(c *gin.Context) {
	var req struct {
		AccountID uint   `json:"account_id" binding:"required"`
		Role      string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	admin, err := h.adminService.PromoteAccount(c.Request.Context(), req.AccountID, req.Role, adminID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": admin})
}
