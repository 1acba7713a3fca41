package server

import (
	"net/http"

	pooldomain "github.com/chapterly/revenue/internal/creatorpool/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type updatePoolRequest struct {
	PoolPercent decimal.Decimal `json:"pool_percent"`
}

func (s *Server) GetCreatorPool(c *gin.Context) {
	pool, err := s.poolSvc.GetByPeriod(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pool})
}

func (s *Server) UpdateCreatorPool(c *gin.Context) {
	var req updatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pool, err := s.poolSvc.UpdatePercent(c.Request.Context(), pooldomain.UpdatePercentRequest{
		PeriodID:    c.Param("id"),
		PoolPercent: req.PoolPercent,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pool})
}

func (s *Server) CalculatePoolDistribution(c *gin.Context) {
	summary, err := s.poolSvc.Calculate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) VerifyPoolConservation(c *gin.Context) {
	report, err := s.poolSvc.VerifyConservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
