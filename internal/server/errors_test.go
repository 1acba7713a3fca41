package server

import (
	"errors"
	"net/http"
	"testing"

	pooldomain "github.com/chapterly/revenue/internal/creatorpool/domain"
	payoutdomain "github.com/chapterly/revenue/internal/payout/domain"
	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		errType  string
	}{
		{perioddomain.ErrInvalidState, http.StatusConflict, "conflict"},
		{payoutdomain.ErrInvalidState, http.StatusConflict, "conflict"},
		{payoutdomain.ErrConflictingState, http.StatusConflict, "conflict"},
		{pooldomain.ErrAggregationRequired, http.StatusPreconditionFailed, "precondition_failed"},
		{pooldomain.ErrNotCalculated, http.StatusPreconditionFailed, "precondition_failed"},
		{perioddomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{pooldomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{payoutdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{perioddomain.ErrInvalidMonth, http.StatusBadRequest, "validation_error"},
		{perioddomain.ErrNegativeNet, http.StatusBadRequest, "validation_error"},
		{pooldomain.ErrInvalidPercent, http.StatusBadRequest, "validation_error"},
		{payoutdomain.ErrInvalidStatusFilter, http.StatusBadRequest, "validation_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, "error %v", tc.err)
		assert.Equal(t, tc.errType, payload.Type, "error %v", tc.err)
	}
}

func TestMapValidationErrorFields(t *testing.T) {
	status, payload := mapError(newValidationError("month", "invalid_period_month", "invalid month"))
	assert.Equal(t, http.StatusBadRequest, status)
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "month", payload.Errors[0].Field)
	}

	status, payload = mapError(pooldomain.ErrInvalidPercent)
	assert.Equal(t, http.StatusBadRequest, status)
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "pool_percent", payload.Errors[0].Field)
		assert.Equal(t, "invalid_pool_percent", payload.Errors[0].Code)
	}
}
