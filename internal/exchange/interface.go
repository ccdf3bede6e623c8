package exchange

import (
	"context"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

// Exchange is the surface the DCA executor and the evaluator's bar-fetch
// workers need from a trading venue. Narrowed from a multi-exchange,
// position-and-leverage-aware interface to the single-exchange,
// spot-DCA-oriented shape this engine actually drives.
type Exchange interface {
	// Connect establishes the signed-REST session.
	Connect(apiKey, apiSecret string) error

	// GetName returns the exchange identifier, e.g. "binance".
	GetName() string

	// GetKlines fetches up to limit closed candles for (symbol, timeframe),
	// most recent last.
	GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error)

	// GetTicker fetches the current best bid/ask/last trade for symbol.
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)

	// PlaceOrder submits a market or limit order (req.Type) and returns the
	// resulting fill.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// CancelOrder cancels a resting order by exchange order ID.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// AccountBalance returns the free balance of asset (e.g. "USDT").
	AccountBalance(ctx context.Context, asset string) (float64, error)

	// GetLimits returns the exchange's trading constraints for symbol.
	GetLimits(ctx context.Context, symbol string) (*Limits, error)

	// SubscribeKlines streams closed-candle updates for (symbol, timeframe).
	SubscribeKlines(symbol, timeframe string, callback func(models.Bar)) error

	// Close releases REST and WebSocket resources.
	Close() error
}

// Ticker is the current best-price snapshot for a symbol.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	LastPrice float64   `json:"last_price"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderRequest is an order to place. The zero Type behaves as
// models.OrderTypeMarket, so existing market-order callers are unaffected.
type OrderRequest struct {
	Symbol   string
	Side     models.OrderSide
	Type     models.OrderType
	Quantity float64
	// QuoteQty, when set, places a quote-denominated market order
	// (Binance's quoteOrderQty) instead of a base-asset quantity order.
	// Used for base-order sizing specified in USDT.
	QuoteQty float64
	// LimitPrice is required when Type == models.OrderTypeLimit.
	LimitPrice float64
}

// OrderResult is the exchange's response to a placed order.
type OrderResult struct {
	OrderID      string
	Symbol       string
	Side         models.OrderSide
	FilledQty    float64
	AvgFillPrice float64
	Fee          float64
	Status       OrderStatus
	FilledAt     time.Time
}

// OrderStatus mirrors the subset of Binance order states this engine acts
// on.
type OrderStatus string

const (
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Limits holds an exchange symbol's trading constraints (Binance's
// LOT_SIZE/MIN_NOTIONAL/PRICE_FILTER rules).
type Limits struct {
	Symbol      string  `json:"symbol"`
	MinOrderQty float64 `json:"min_order_qty"`
	MaxOrderQty float64 `json:"max_order_qty"`
	QtyStep     float64 `json:"qty_step"`
	MinNotional float64 `json:"min_notional"`
	PriceStep   float64 `json:"price_step"`
}

// Error represents an error returned by the exchange's REST API, carrying
// its error code for callers that branch on specific rejections (e.g.
// insufficient balance vs. filter violation).
type Error struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *Error) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap supports errors.Is()/errors.As() against the underlying transport
// error.
func (e *Error) Unwrap() error {
	return e.Original
}
