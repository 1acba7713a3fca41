package server

import (
	"net/http"
	"strings"

	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	"github.com/gin-gonic/gin"
)

type getOrCreatePeriodRequest struct {
	Month    string `json:"month"`
	Currency string `json:"currency"`
}

type updatePeriodRequest struct {
	SubscriptionGross   *int64 `json:"subscription_gross"`
	SubscriptionFees    *int64 `json:"subscription_fees"`
	SubscriptionRefunds *int64 `json:"subscription_refunds"`
	PPVGross            *int64 `json:"ppv_gross"`
	PPVFees             *int64 `json:"ppv_fees"`
	PPVRefunds          *int64 `json:"ppv_refunds"`
}

func (s *Server) ListRevenuePeriods(c *gin.Context) {
	resp, err := s.periodSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPeriodSummaries(c *gin.Context) {
	resp, err := s.periodSvc.ListSummaries(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRevenuePeriod(c *gin.Context) {
	period, err := s.periodSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": period})
}

func (s *Server) GetOrCreateRevenuePeriod(c *gin.Context) {
	var req getOrCreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	period, err := s.periodSvc.GetOrCreate(c.Request.Context(), perioddomain.GetOrCreateRequest{
		Month:    strings.TrimSpace(req.Month),
		Currency: strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": period})
}

func (s *Server) UpdateRevenuePeriod(c *gin.Context) {
	var req updatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	period, err := s.periodSvc.Update(c.Request.Context(), perioddomain.UpdateRequest{
		ID:                  c.Param("id"),
		SubscriptionGross:   req.SubscriptionGross,
		SubscriptionFees:    req.SubscriptionFees,
		SubscriptionRefunds: req.SubscriptionRefunds,
		PPVGross:            req.PPVGross,
		PPVFees:             req.PPVFees,
		PPVRefunds:          req.PPVRefunds,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": period})
}

func (s *Server) CloseRevenuePeriod(c *gin.Context) {
	period, err := s.periodSvc.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": period})
}

func (s *Server) FinalizeRevenuePeriod(c *gin.Context) {
	period, err := s.periodSvc.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": period})
}
