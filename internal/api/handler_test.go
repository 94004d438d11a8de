package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"interview-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAccepted(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	require.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteErrorRefundReconciliationShape(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, &models.ReconciliationRequired{
		SessionID: "sess-1",
		Operation: models.ReconOpRefund,
		RecordID:  "rec-1",
	})

	body := decodeAccepted(t, w)
	assert.Equal(t, "accepted", body["status"])
	refund, ok := body["refund"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, refund["reconciliation_pending"])
	assert.NotContains(t, body, "payout")
}

func TestWriteErrorTransferReconciliationShape(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, &models.ReconciliationRequired{
		SessionID: "pay-1",
		Operation: models.ReconOpPayoutTransfer,
		RecordID:  "rec-1",
	})

	body := decodeAccepted(t, w)
	assert.Equal(t, "accepted", body["status"])
	payout, ok := body["payout"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "pay-1", payout["payout_id"])
	assert.Equal(t, true, payout["reconciliation_pending"])
	assert.NotContains(t, body, "refund")
}
