package server

import (
	"net/http"
	"strings"

	engagementdomain "github.com/chapterly/revenue/internal/engagement/domain"
	"github.com/gin-gonic/gin"
)

type aggregateEngagementRequest struct {
	Month    string `json:"month"`
	Currency string `json:"currency"`
}

func (s *Server) AggregateEngagement(c *gin.Context) {
	var req aggregateEngagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	summary, err := s.engagementSvc.Aggregate(c.Request.Context(), engagementdomain.AggregateRequest{
		Month:    strings.TrimSpace(req.Month),
		Currency: strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ListEngagementAggregates(c *gin.Context) {
	aggregates, err := s.engagementSvc.ListByPeriod(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"aggregates": aggregates}})
}
