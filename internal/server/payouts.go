package server

import (
	"net/http"
	"strings"

	payoutdomain "github.com/chapterly/revenue/internal/payout/domain"
	"github.com/chapterly/revenue/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

type bulkApproveRequest struct {
	IDs []string `json:"ids"`
}

type recordSaleRequest struct {
	PurchaseID string `json:"purchase_id"`
	AuthorID   string `json:"author_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

func (s *Server) ListPayouts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payoutSvc.List(c.Request.Context(), payoutdomain.ListRequest{
		Status:    strings.TrimSpace(query.Status),
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayout(c *gin.Context) {
	payout, err := s.payoutSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) PayoutDashboardStats(c *gin.Context) {
	stats, err := s.payoutSvc.DashboardStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) ApprovePayout(c *gin.Context) {
	payout, err := s.payoutSvc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) MarkPayoutPaid(c *gin.Context) {
	payout, err := s.payoutSvc.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) CancelPayout(c *gin.Context) {
	payout, err := s.payoutSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) BulkApprovePayouts(c *gin.Context) {
	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.IDs) == 0 {
		AbortWithError(c, newValidationError("ids", "invalid_ids", "at least one payout id is required"))
		return
	}

	results, err := s.payoutSvc.BulkApprove(c.Request.Context(), req.IDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"results": results}})
}

func (s *Server) RecordSalePayout(c *gin.Context) {
	var req recordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payout, err := s.payoutSvc.RecordSale(c.Request.Context(), payoutdomain.RecordSaleRequest{
		PurchaseID: strings.TrimSpace(req.PurchaseID),
		AuthorID:   strings.TrimSpace(req.AuthorID),
		Amount:     req.Amount,
		Currency:   strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) ListPayoutAudit(c *gin.Context) {
	logs, err := s.auditSvc.ListByTarget(c.Request.Context(), "payout", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"audit_logs": logs}})
}
