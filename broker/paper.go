package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/rs/zerolog/log"
)

// PaperBroker simulates broker behavior for dry runs and backtests. No real
// money is at risk; orders fill instantly against the last price fed via
// SetPrice.
type PaperBroker struct {
	mu sync.RWMutex

	name         string
	connected    bool
	balance      models.Balance
	positions    map[int64]models.Position
	orders       map[string]models.Order
	orderCounter int
	latestPrices map[int64]float64
	subscribed   map[int64]bool

	tickHandlers        []TickHandler
	orderUpdateHandlers []OrderUpdateHandler
}

// NewPaperBroker creates a paper broker with the given starting cash.
func NewPaperBroker(initialCash float64) *PaperBroker {
	return &PaperBroker{
		name: "paper",
		balance: models.Balance{
			Cash: initialCash, Equity: initialCash,
			BuyingPower: initialCash, PortfolioValue: initialCash,
			UpdatedAt: time.Now(),
		},
		positions:    make(map[int64]models.Position),
		orders:       make(map[string]models.Order),
		latestPrices: make(map[int64]float64),
		subscribed:   make(map[int64]bool),
	}
}

func (b *PaperBroker) Name() string { return b.name }

func (b *PaperBroker) Connect() error {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	log.Info().Msg("paper broker connected")
	return nil
}

func (b *PaperBroker) Disconnect() error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

func (b *PaperBroker) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *PaperBroker) Subscribe(tokens []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tokens {
		b.subscribed[t] = true
	}
	return nil
}

func (b *PaperBroker) Unsubscribe(tokens []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tokens {
		delete(b.subscribed, t)
	}
	return nil
}

func (b *PaperBroker) SetMode(tokens []int64, mode Mode) error { return nil }

func (b *PaperBroker) OnTicks(h TickHandler)               { b.tickHandlers = append(b.tickHandlers, h) }
func (b *PaperBroker) OnOrderUpdate(h OrderUpdateHandler)   { b.orderUpdateHandlers = append(b.orderUpdateHandlers, h) }
func (b *PaperBroker) OnConnect(h func())                   {}
func (b *PaperBroker) OnDisconnect(h func())                {}
func (b *PaperBroker) OnReconnect(h func())                 {}
func (b *PaperBroker) OnError(h func(error))                {}

// SetPrice updates the simulated last price for a token and fans the tick
// out to any registered handlers, the same way a live feed would.
func (b *PaperBroker) SetPrice(token int64, price float64, ts time.Time) {
	b.mu.Lock()
	b.latestPrices[token] = price
	handlers := append([]TickHandler(nil), b.tickHandlers...)
	b.mu.Unlock()

	tick := Tick{InstrumentToken: token, LastPrice: price, ExchangeTimestamp: ts}
	for _, h := range handlers {
		h([]Tick{tick})
	}
}

// PlaceOrder simulates instant order execution against the last known
// price for the token.
func (b *PaperBroker) PlaceOrder(params OrderParams) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return "", fmt.Errorf("paper broker: not connected")
	}

	b.orderCounter++
	orderID := fmt.Sprintf("paper-%06d", b.orderCounter)

	price := params.Price
	if params.Type == models.OrderTypeMarket {
		p, ok := b.latestPrices[params.InstrumentToken]
		if !ok {
			return "", fmt.Errorf("paper broker: no price available for token %d", params.InstrumentToken)
		}
		price = p
	}

	order := models.Order{
		ID: orderID, Symbol: params.TradingSymbol, Side: params.Side, Type: params.Type,
		Quantity: params.Quantity, Price: params.Price,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	if params.Side == models.OrderSideBuy {
		cost := price * params.Quantity
		if cost > b.balance.BuyingPower {
			order.Status = models.OrderStatusRejected
			b.orders[orderID] = order
			return orderID, fmt.Errorf("paper broker: insufficient buying power: need %.2f, have %.2f", cost, b.balance.BuyingPower)
		}
	}

	order.Status = models.OrderStatusFilled
	order.FilledQuantity = params.Quantity
	order.AveragePrice = price
	order.UpdatedAt = time.Now()
	b.orders[orderID] = order

	if params.Side == models.OrderSideBuy {
		b.applyBuy(params.InstrumentToken, params.TradingSymbol, params.Quantity, price)
	} else {
		b.applySell(params.InstrumentToken, params.Quantity, price)
	}

	handlers := append([]OrderUpdateHandler(nil), b.orderUpdateHandlers...)
	go func() {
		for _, h := range handlers {
			h(OrderUpdate{
				OrderID: orderID, Status: order.Status,
				FilledQuantity: order.FilledQuantity, AveragePrice: order.AveragePrice,
				ExchangeTimestamp: order.UpdatedAt,
			})
		}
	}()

	return orderID, nil
}

func (b *PaperBroker) applyBuy(token int64, symbol string, qty, price float64) {
	cost := qty * price
	b.balance.Cash -= cost
	b.balance.BuyingPower -= cost
	b.balance.UpdatedAt = time.Now()

	pos, exists := b.positions[token]
	if exists {
		totalQty := pos.Quantity + qty
		totalCost := pos.AverageCost*pos.Quantity + cost
		pos.AverageCost = totalCost / totalQty
		pos.Quantity = totalQty
	} else {
		pos = models.Position{Symbol: symbol, Quantity: qty, AverageCost: price}
	}
	pos.CurrentPrice = price
	pos.MarketValue = pos.Quantity * price
	pos.UnrealizedPL = pos.MarketValue - pos.Quantity*pos.AverageCost
	pos.UpdatedAt = time.Now()
	b.positions[token] = pos
}

func (b *PaperBroker) applySell(token int64, qty, price float64) {
	proceeds := qty * price
	b.balance.Cash += proceeds
	b.balance.BuyingPower += proceeds
	b.balance.UpdatedAt = time.Now()

	pos, exists := b.positions[token]
	if !exists {
		return
	}
	pos.Quantity -= qty
	if pos.Quantity <= 0 {
		delete(b.positions, token)
		return
	}
	pos.CurrentPrice = price
	pos.MarketValue = pos.Quantity * price
	pos.UnrealizedPL = pos.MarketValue - pos.Quantity*pos.AverageCost
	pos.UpdatedAt = time.Now()
	b.positions[token] = pos
}

func (b *PaperBroker) ModifyOrder(orderID string, params OrderParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("paper broker: order not found: %s", orderID)
	}
	if order.Status == models.OrderStatusFilled {
		return fmt.Errorf("paper broker: cannot modify filled order: %s", orderID)
	}
	if params.Price > 0 {
		order.Price = params.Price
	}
	if params.Quantity > 0 {
		order.Quantity = params.Quantity
	}
	order.UpdatedAt = time.Now()
	b.orders[orderID] = order
	return nil
}

func (b *PaperBroker) CancelOrder(orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("paper broker: order not found: %s", orderID)
	}
	if order.Status == models.OrderStatusFilled {
		return fmt.Errorf("paper broker: cannot cancel filled order: %s", orderID)
	}
	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = time.Now()
	b.orders[orderID] = order
	return nil
}

func (b *PaperBroker) GetOrders() ([]models.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	return out, nil
}

func (b *PaperBroker) GetOrderHistory(orderID string) ([]OrderUpdate, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	order, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("paper broker: order not found: %s", orderID)
	}
	return []OrderUpdate{{
		OrderID: order.ID, Status: order.Status,
		FilledQuantity: order.FilledQuantity, AveragePrice: order.AveragePrice,
		ExchangeTimestamp: order.UpdatedAt,
	}}, nil
}

func (b *PaperBroker) GetPositions() ([]models.Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

func (b *PaperBroker) GetMargins() (*models.Balance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bal := b.balance
	return &bal, nil
}

func (b *PaperBroker) GetInstruments(exchange string) ([]models.Instrument, error) {
	return nil, nil
}

func (b *PaperBroker) GetHistoricalData(token int64, intervalMinutes int, from, to time.Time) ([]models.Candle, error) {
	return nil, fmt.Errorf("paper broker: historical data not available, use the backtest harness's data source")
}

func (b *PaperBroker) GetQuote(tokens []int64) (map[int64]Tick, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int64]Tick, len(tokens))
	for _, t := range tokens {
		if p, ok := b.latestPrices[t]; ok {
			out[t] = Tick{InstrumentToken: t, LastPrice: p}
		}
	}
	return out, nil
}

func (b *PaperBroker) GetLTP(tokens []int64) (map[int64]float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int64]float64, len(tokens))
	for _, t := range tokens {
		if p, ok := b.latestPrices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

var _ Broker = (*PaperBroker)(nil)
