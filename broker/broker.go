// Package broker defines the external broker contract the engine consumes
// and a simulated PaperBroker implementation used for dry runs and
// backtests.
package broker

import (
	"time"

	"github.com/alexherrero/sherwood/backend/models"
)

// Mode is the tick subscription depth requested for a set of tokens.
type Mode string

const (
	ModeLTP   Mode = "ltp"
	ModeQuote Mode = "quote"
	ModeFull  Mode = "full"
)

// Tick is one market-data update for an instrument token.
type Tick struct {
	InstrumentToken  int64
	LastPrice        float64
	ExchangeTimestamp time.Time
	VolumeDelta      float64
	BestBid          float64
	BestAsk          float64
}

// OrderParams describes a new order request.
type OrderParams struct {
	InstrumentToken int64
	TradingSymbol   string
	Side            models.OrderSide
	Type            models.OrderType
	Quantity        float64
	Price           float64
	TriggerPrice    float64
	Tag             string
}

// OrderUpdate is an asynchronous order status push from the broker.
type OrderUpdate struct {
	OrderID           string
	Status            models.OrderStatus
	FilledQuantity    float64
	AveragePrice      float64
	ExchangeTimestamp time.Time
	RejectionReason   string
}

// TickHandler receives a batch of ticks. Implementations must return
// without blocking — the broker dispatches from its own read loop.
type TickHandler func(batch []Tick)

// OrderUpdateHandler receives one order status push.
type OrderUpdateHandler func(update OrderUpdate)

// Broker is the external adapter contract (spec.md §6 "Broker adapter
// (consumed)"). PlaceOrder must never be retried by the implementation;
// every other request may be retried with backoff on transient errors and
// must surface auth failures distinctly so callers can trigger HALT.
type Broker interface {
	Name() string
	Connect() error
	Disconnect() error
	IsConnected() bool

	Subscribe(tokens []int64) error
	Unsubscribe(tokens []int64) error
	SetMode(tokens []int64, mode Mode) error

	OnTicks(handler TickHandler)
	OnOrderUpdate(handler OrderUpdateHandler)
	OnConnect(handler func())
	OnDisconnect(handler func())
	OnReconnect(handler func())
	OnError(handler func(error))

	PlaceOrder(params OrderParams) (orderID string, err error)
	ModifyOrder(orderID string, params OrderParams) error
	CancelOrder(orderID string) error
	GetOrders() ([]models.Order, error)
	GetOrderHistory(orderID string) ([]OrderUpdate, error)
	GetPositions() ([]models.Position, error)
	GetMargins() (*models.Balance, error)
	GetInstruments(exchange string) ([]models.Instrument, error)
	GetHistoricalData(token int64, intervalMinutes int, from, to time.Time) ([]models.Candle, error)
	GetQuote(tokens []int64) (map[int64]Tick, error)
	GetLTP(tokens []int64) (map[int64]float64, error)
}
