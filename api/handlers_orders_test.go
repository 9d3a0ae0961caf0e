package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexherrero/sherwood/backend/broker"
	"github.com/alexherrero/sherwood/backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrderHistoryHandler(t *testing.T) {
	pb := broker.NewPaperBroker(100000)
	require.NoError(t, pb.Connect())
	handler := NewHandler(nil, nil, &config.Config{}, pb, nil, nil, nil, nil, nil)

	t.Run("Success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/execution/history", nil)
		rec := httptest.NewRecorder()

		handler.GetOrderHistoryHandler(rec, req)

		// Since the paper broker has placed no orders, it should return an empty list
		assert.Equal(t, http.StatusOK, rec.Code)

		var response map[string]interface{}
		err := json.Unmarshal(rec.Body.Bytes(), &response)
		require.NoError(t, err)
		assert.Empty(t, response["orders"])
	})

	t.Run("ServiceUnavailable", func(t *testing.T) {
		nilHandler := NewHandler(nil, nil, nil, nil, nil, nil, nil, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/execution/history", nil)
		rec := httptest.NewRecorder()

		nilHandler.GetOrderHistoryHandler(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestPlaceOrder_Errors(t *testing.T) {
	pb := broker.NewPaperBroker(100000)
	require.NoError(t, pb.Connect())
	handler := NewHandler(nil, nil, &config.Config{}, pb, nil, nil, nil, nil, nil)

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/execution/orders", nil) // Empty body
		rec := httptest.NewRecorder()

		handler.PlaceOrderHandler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("InvalidSide", func(t *testing.T) {
		payload := map[string]interface{}{
			"symbol":           "AAPL",
			"instrument_token": 738561,
			"side":             "invalid",
			"type":             "market",
			"quantity":         1,
		}
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/execution/orders", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		handler.PlaceOrderHandler(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code) // Validation fails "oneof=buy sell"
	})

	t.Run("LimitOrderNoPrice", func(t *testing.T) {
		payload := map[string]interface{}{
			"symbol":           "AAPL",
			"instrument_token": 738561,
			"side":             "buy",
			"type":             "limit",
			"quantity":         1,
			"price":            0, // Invalid for limit
		}
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/execution/orders", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		handler.PlaceOrderHandler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestModifyOrder_Errors(t *testing.T) {
	pb := broker.NewPaperBroker(100000)
	require.NoError(t, pb.Connect())
	handler := NewHandler(nil, nil, &config.Config{}, pb, nil, nil, nil, nil, nil)

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/execution/orders/1", nil)
		rec := httptest.NewRecorder()

		handler.ModifyOrderHandler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("NoChanges", func(t *testing.T) {
		payload := map[string]interface{}{}
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/execution/orders/1", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		handler.ModifyOrderHandler(rec, req)
		// Empty payload validates ok structurally but the handler rejects a no-op change
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
