package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorly/service-learning/pkg/domain"
)

func TestError_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.NewValidationError("amount", "must be positive"), http.StatusBadRequest, "validation_error"},
		{domain.NewNotFoundError("Booking", "x"), http.StatusNotFound, "not_found"},
		{domain.NewInvalidTransitionError("booking", "pending", "refunded"), http.StatusConflict, "invalid_transition"},
		{domain.NewSlotConflictError("taken"), http.StatusConflict, "slot_conflict"},
		{domain.NewInsufficientBalanceError(150, 100), http.StatusUnprocessableEntity, "insufficient_balance"},
		{fmt.Errorf("wrap: %w", domain.NewExternalServiceError("gateway", nil)), http.StatusBadGateway, "external_service_error"},
		{domain.NewPaymentDeclinedError("card_declined"), http.StatusPaymentRequired, "payment_declined"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var env Envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestError_ValidationFields(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, domain.NewValidationError("amount", "must be positive"))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "must be positive", env.Error.Fields["amount"])
}
