package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alexherrero/sherwood/backend/broker"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/go-chi/chi/v5"
)

// GetOrdersHandler returns a list of orders with optional filtering and pagination.
func (h *Handler) GetOrdersHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}

	limit := getQueryInt(r, "limit", 50)
	page := getQueryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	symbol := r.URL.Query().Get("symbol")
	statusStr := r.URL.Query().Get("status")

	orders, err := h.broker.GetOrders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filtered := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if statusStr != "" && string(o.Status) != statusStr {
			continue
		}
		filtered = append(filtered, o)
	}

	total := len(filtered)
	offset := (page - 1) * limit
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": filtered[offset:end],
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// GetOrderHandler returns a single order by ID.
func (h *Handler) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Order ID is required")
		return
	}

	orders, err := h.broker.GetOrders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, o := range orders {
		if o.ID == id {
			writeJSON(w, http.StatusOK, o)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Order not found")
}

// GetOrderHistoryHandler returns a list of past orders, same shape as GetOrdersHandler.
func (h *Handler) GetOrderHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}
	h.GetOrdersHandler(w, r)
}

// GetPortfolioSummaryHandler returns an aggregated portfolio summary.
func (h *Handler) GetPortfolioSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}

	balance, err := h.broker.GetMargins()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get balance: %v", err))
		return
	}

	positions, err := h.broker.GetPositions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get positions: %v", err))
		return
	}

	var totalUnrealizedPL float64
	for _, p := range positions {
		totalUnrealizedPL += p.UnrealizedPL
	}

	summary := map[string]interface{}{
		"balance":             balance,
		"total_unrealized_pl": totalUnrealizedPL,
		"open_positions":      len(positions),
	}
	if h.governor != nil {
		summary["risk"] = h.governor.Snapshot()
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetPositionsHandler returns a list of current positions.
func (h *Handler) GetPositionsHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}
	positions, err := h.broker.GetPositions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetBalanceHandler returns the current account balance.
func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}
	balance, err := h.broker.GetMargins()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// PlaceOrderRequest defines the payload for placing an order.
type PlaceOrderRequest struct {
	Symbol          string  `json:"symbol" validate:"required,min=1,max=20"`
	InstrumentToken int64   `json:"instrument_token" validate:"required"`
	Side            string  `json:"side" validate:"required,oneof=buy sell"`
	Type            string  `json:"type" validate:"required,oneof=market limit"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0,lte=1000000"`
	Price           float64 `json:"price" validate:"omitempty,gt=0"`
}

// PlaceOrderHandler handles manual order placement.
func (h *Handler) PlaceOrderHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if valErr := validateStruct(req); valErr != nil {
		writeValidationError(w, valErr)
		return
	}

	var side models.OrderSide
	switch req.Side {
	case "buy":
		side = models.OrderSideBuy
	case "sell":
		side = models.OrderSideSell
	default:
		writeError(w, http.StatusBadRequest, "Invalid side: must be 'buy' or 'sell'")
		return
	}

	var orderType models.OrderType
	switch req.Type {
	case "market":
		orderType = models.OrderTypeMarket
	case "limit":
		if req.Price <= 0 {
			writeError(w, http.StatusBadRequest, "Price must be positive for limit orders")
			return
		}
		orderType = models.OrderTypeLimit
	default:
		writeError(w, http.StatusBadRequest, "Invalid type: must be 'market' or 'limit'")
		return
	}

	orderID, err := h.broker.PlaceOrder(broker.OrderParams{
		InstrumentToken: req.InstrumentToken,
		TradingSymbol:   req.Symbol,
		Side:            side,
		Type:            orderType,
		Quantity:        req.Quantity,
		Price:           req.Price,
		Tag:             "manual",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to place order: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID})
}

// CancelOrderHandler handles order cancellation.
func (h *Handler) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Order ID is required")
		return
	}

	if err := h.broker.CancelOrder(id); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to cancel order: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "id": id})
}

// ModifyOrderRequest defines the payload for modifying an order.
type ModifyOrderRequest struct {
	Price    float64 `json:"price" validate:"omitempty,gt=0"`
	Quantity float64 `json:"quantity" validate:"omitempty,gt=0"`
}

// ModifyOrderHandler handles order modification.
func (h *Handler) ModifyOrderHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Order ID is required")
		return
	}

	var req ModifyOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if valErr := validateStruct(req); valErr != nil {
		writeValidationError(w, valErr)
		return
	}

	if req.Price == 0 && req.Quantity == 0 {
		writeError(w, http.StatusBadRequest, "Must provide either new price or new quantity")
		return
	}

	if err := h.broker.ModifyOrder(id, broker.OrderParams{Price: req.Price, Quantity: req.Quantity}); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to modify order: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "modified", "id": id})
}

// GetTradesHandler returns the history of managed trades — the position
// lifecycle aggregates the trade manager tracks, distinct from individual
// broker orders/fills.
func (h *Handler) GetTradesHandler(w http.ResponseWriter, r *http.Request) {
	if h.tradeStore == nil {
		writeError(w, http.StatusServiceUnavailable, "Trade store not available")
		return
	}

	if r.URL.Query().Get("open") == "true" {
		trades, err := h.tradeStore.Open()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get open trades: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, trades)
		return
	}

	trades, err := h.tradeStore.All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get trades: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// getQueryInt parses a query parameter as an integer.
func getQueryInt(r *http.Request, key string, defaultVal int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
