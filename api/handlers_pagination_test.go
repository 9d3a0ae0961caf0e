package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexherrero/sherwood/backend/broker"
	"github.com/alexherrero/sherwood/backend/config"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrdersPaginationAndFiltering(t *testing.T) {
	cfg := &config.Config{AllowedOrigins: []string{"http://localhost:3000"}}
	pb := broker.NewPaperBroker(1000000)
	require.NoError(t, pb.Connect())
	pb.SetPrice(1, 100.0, time.Now())
	pb.SetPrice(2, 200.0, time.Now())

	// Place 10 orders, alternating symbol so filtering has something to bite on.
	for i := 0; i < 10; i++ {
		token := int64(1)
		symbol := "AAPL"
		if i >= 5 {
			token = 2
			symbol = "GOOGL"
		}
		_, err := pb.PlaceOrder(broker.OrderParams{
			InstrumentToken: token,
			TradingSymbol:   symbol,
			Side:            models.OrderSideBuy,
			Type:            models.OrderTypeMarket,
			Quantity:        1,
		})
		require.NoError(t, err)
	}

	handler := NewHandler(nil, nil, cfg, pb, nil, nil, nil, nil, nil)

	t.Run("Pagination_Page1", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/execution/orders?limit=3&page=1", nil)
		rec := httptest.NewRecorder()
		handler.GetOrdersHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)

		orders := resp["orders"].([]interface{})
		assert.Len(t, orders, 3)
		assert.Equal(t, float64(10), resp["total"])
	})

	t.Run("Pagination_Page2", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/execution/orders?limit=3&page=2", nil)
		rec := httptest.NewRecorder()
		handler.GetOrdersHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)

		orders := resp["orders"].([]interface{})
		assert.Len(t, orders, 3)
	})

	t.Run("Filter_Symbol", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/execution/orders?symbol=GOOGL", nil)
		rec := httptest.NewRecorder()
		handler.GetOrdersHandler(rec, req)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, float64(5), resp["total"]) // 5 GOOGL orders
	})

	t.Run("Filter_Status", func(t *testing.T) {
		// The paper broker fills every order synchronously, so all 10 are "filled".
		req := httptest.NewRequest(http.MethodGet, "/api/v1/execution/orders?status=filled", nil)
		rec := httptest.NewRecorder()
		handler.GetOrdersHandler(rec, req)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, float64(10), resp["total"])

		req = httptest.NewRequest(http.MethodGet, "/api/v1/execution/orders?status=pending", nil)
		rec = httptest.NewRecorder()
		handler.GetOrdersHandler(rec, req)
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, float64(0), resp["total"])
	})
}

func TestGetOrderHandler(t *testing.T) {
	cfg := &config.Config{AllowedOrigins: []string{"http://localhost:3000"}}
	pb := broker.NewPaperBroker(100000)
	require.NoError(t, pb.Connect())
	pb.SetPrice(738561, 150.0, time.Now())

	orderID, err := pb.PlaceOrder(broker.OrderParams{
		InstrumentToken: 738561,
		TradingSymbol:   "AAPL",
		Side:            models.OrderSideBuy,
		Type:            models.OrderTypeMarket,
		Quantity:        1,
	})
	require.NoError(t, err)

	// Use the router to exercise URL param parsing, not just the bare handler.
	router := NewRouter(cfg, nil, nil, pb, nil, nil, nil, nil, nil)

	t.Run("Approves_Valid_ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/execution/orders/"+orderID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Returns_404_Invalid_ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/execution/orders/missing-id", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPerformanceSummary(t *testing.T) {
	cfg := &config.Config{AllowedOrigins: []string{"http://localhost:3000"}}
	pb := broker.NewPaperBroker(100000)
	require.NoError(t, pb.Connect())
	pb.SetPrice(1, 100.0, time.Now())

	_, err := pb.PlaceOrder(broker.OrderParams{
		InstrumentToken: 1,
		TradingSymbol:   "AAPL",
		Side:            models.OrderSideBuy,
		Type:            models.OrderTypeMarket,
		Quantity:        10,
	})
	require.NoError(t, err)

	handler := NewHandler(nil, nil, cfg, pb, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/portfolio/summary", nil)
	rec := httptest.NewRecorder()
	handler.GetPortfolioSummaryHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)

	assert.Equal(t, float64(1), resp["open_positions"])
}
