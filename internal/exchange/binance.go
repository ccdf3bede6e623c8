package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/pkg/ratelimit"
	"github.com/tradeeon/condition-engine/pkg/retry"
	"github.com/tradeeon/condition-engine/pkg/utils"
)

const (
	binanceBaseURL    = "https://api.binance.com"
	binanceWSBase     = "wss://stream.binance.com:9443/ws"
	binanceRecvWindow = "5000"
)

// Binance implements the Exchange interface against Binance's spot REST and
// WebSocket APIs. Grounded on the teacher's Bybit client (internal/exchange/
// bybit.go): same doRequest/sign shape, adapted from Bybit's header-based
// v5 signature (X-BAPI-SIGN over timestamp+apiKey+recvWindow+params) to
// Binance's query-string HMAC-SHA256 signature appended as a "signature"
// parameter, with the key carried in the X-MBX-APIKEY header instead.
type Binance struct {
	apiKey    string
	apiSecret string

	httpClient *http.Client
	limiter    *ratelimit.RateLimiter

	wsManager *WSReconnectManager
	klineSubs map[string]func(models.Bar)
	subMu     sync.RWMutex

	connected bool
	log       *utils.Logger
}

// NewBinance constructs a Binance client reusing the global HTTP client
// (connection pooling, timeouts) the way the teacher's NewBybit does.
func NewBinance() *Binance {
	return &Binance{
		httpClient: GetGlobalHTTPClient().GetClient(),
		limiter:    ratelimit.NewRateLimiter(10, 20),
		klineSubs:  make(map[string]func(models.Bar)),
		log:        utils.L().WithComponent("exchange.binance"),
	}
}

// sign computes Binance's query-string HMAC-SHA256 signature.
func (b *Binance) sign(query string) string {
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest performs one signed or public REST call against Binance,
// retrying transient failures per pkg/retry's network profile and
// respecting the per-client rate limiter.
func (b *Binance) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	if signed {
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("recvWindow", binanceRecvWindow)
		query.Set("signature", b.sign(query.Encode()))
	}

	reqURL := binanceBaseURL + endpoint
	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if q := query.Encode(); q != "" {
			reqURL += "?" + q
		}
	} else {
		body = strings.NewReader(query.Encode())
	}

	retryCfg := retry.NetworkConfig()
	retryCfg.RetryIf = retry.IsRetryable
	var respBody []byte
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return retry.Permanent(err)
		}
		if method == http.MethodPost || method == http.MethodPut {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if signed {
			req.Header.Set("X-MBX-APIKEY", b.apiKey)
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return retry.Temporary(err)
		}
		defer resp.Body.Close()

		out, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Temporary(err)
		}

		if resp.StatusCode >= 400 {
			var apiErr struct {
				Code int    `json:"code"`
				Msg  string `json:"msg"`
			}
			_ = json.Unmarshal(out, &apiErr)
			exchErr := &Error{Exchange: "binance", Code: strconv.Itoa(apiErr.Code), Message: apiErr.Msg}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return retry.Temporary(exchErr)
			}
			return retry.Permanent(exchErr)
		}

		respBody = out
		return nil
	}, retryCfg)

	return respBody, err
}

func (b *Binance) Connect(apiKey, apiSecret string) error {
	b.apiKey = apiKey
	b.apiSecret = apiSecret

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := b.AccountBalance(ctx, "USDT"); err != nil {
		return fmt.Errorf("failed to connect to binance: %w", err)
	}
	b.connected = true
	return nil
}

func (b *Binance) GetName() string { return "binance" }

// GetKlines fetches up to limit closed candles, oldest first as Binance
// returns them (most recent last, matching the Exchange contract).
func (b *Binance) GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error) {
	params := map[string]string{
		"symbol":   symbol,
		"interval": timeframe,
		"limit":    strconv.Itoa(limit),
	}

	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/klines", params, false)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding klines: %w", err)
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			continue
		}
		bar, err := parseBinanceKline(symbol, timeframe, k)
		if err != nil {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBinanceKline(symbol, timeframe string, k []interface{}) (models.Bar, error) {
	openTimeMs, ok := k[0].(float64)
	if !ok {
		return models.Bar{}, fmt.Errorf("unexpected openTime type")
	}
	open, _ := strconv.ParseFloat(fmt.Sprint(k[1]), 64)
	high, _ := strconv.ParseFloat(fmt.Sprint(k[2]), 64)
	low, _ := strconv.ParseFloat(fmt.Sprint(k[3]), 64)
	closeP, _ := strconv.ParseFloat(fmt.Sprint(k[4]), 64)
	volume, _ := strconv.ParseFloat(fmt.Sprint(k[5]), 64)
	closeTimeMs, _ := k[6].(float64)

	return models.Bar{
		Symbol:    symbol,
		Timeframe: timeframe,
		OpenTime:  time.UnixMilli(int64(openTimeMs)),
		CloseTime: time.UnixMilli(int64(closeTimeMs)),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	}, nil
}

func (b *Binance) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	params := map[string]string{"symbol": symbol}
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/ticker/bookTicker", params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbol   string `json:"symbol"`
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	bid, _ := strconv.ParseFloat(resp.BidPrice, 64)
	ask, _ := strconv.ParseFloat(resp.AskPrice, 64)

	return &Ticker{
		Symbol:    resp.Symbol,
		BidPrice:  bid,
		AskPrice:  ask,
		LastPrice: (bid + ask) / 2,
		Timestamp: time.Now(),
	}, nil
}

// PlaceOrder submits a market or limit order. Binance's quoteOrderQty lets
// a market buy be sized in quote currency directly, matching OrderRequest's
// QuoteQty field.
func (b *Binance) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	side := "BUY"
	if req.Side == models.OrderSideSell {
		side = "SELL"
	}

	orderType := "MARKET"
	params := map[string]string{
		"symbol": req.Symbol,
		"side":   side,
	}

	if req.Type == models.OrderTypeLimit {
		orderType = "LIMIT"
		params["timeInForce"] = "GTC"
		params["price"] = strconv.FormatFloat(req.LimitPrice, 'f', -1, 64)
		params["quantity"] = strconv.FormatFloat(req.Quantity, 'f', -1, 64)
	} else if req.QuoteQty > 0 {
		params["quoteOrderQty"] = strconv.FormatFloat(req.QuoteQty, 'f', -1, 64)
	} else {
		params["quantity"] = strconv.FormatFloat(req.Quantity, 'f', -1, 64)
	}
	params["type"] = orderType

	body, err := b.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderId             int64  `json:"orderId"`
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
		Fills               []struct {
			Price           string `json:"price"`
			Qty             string `json:"qty"`
			Commission      string `json:"commission"`
			CommissionAsset string `json:"commissionAsset"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}

	executedQty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)

	var avgPrice float64
	if executedQty > 0 {
		avgPrice = quoteQty / executedQty
	}

	var fee float64
	for _, f := range resp.Fills {
		c, _ := strconv.ParseFloat(f.Commission, 64)
		fee += c
	}

	return &OrderResult{
		OrderID:      strconv.FormatInt(resp.OrderId, 10),
		Symbol:       req.Symbol,
		Side:         req.Side,
		FilledQty:    executedQty,
		AvgFillPrice: avgPrice,
		Fee:          fee,
		Status:       binanceOrderStatus(resp.Status),
		FilledAt:     time.Now(),
	}, nil
}

func binanceOrderStatus(s string) OrderStatus {
	switch s {
	case "FILLED":
		return OrderStatusFilled
	case "PARTIALLY_FILLED", "NEW":
		return OrderStatusPartial
	case "CANCELED", "EXPIRED":
		return OrderStatusCancelled
	default:
		return OrderStatusRejected
	}
}

func (b *Binance) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]string{"symbol": symbol, "orderId": orderID}
	_, err := b.doRequest(ctx, http.MethodDelete, "/api/v3/order", params, true)
	return err
}

func (b *Binance) AccountBalance(ctx context.Context, asset string) (float64, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	for _, bal := range resp.Balances {
		if bal.Asset == asset {
			free, _ := strconv.ParseFloat(bal.Free, 64)
			return free, nil
		}
	}
	return 0, nil
}

func (b *Binance) GetLimits(ctx context.Context, symbol string) (*Limits, error) {
	params := map[string]string{"symbol": symbol}
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				MinQty      string `json:"minQty"`
				MaxQty      string `json:"maxQty"`
				StepSize    string `json:"stepSize"`
				TickSize    string `json:"tickSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Symbols) == 0 {
		return nil, fmt.Errorf("symbol info not found for %s", symbol)
	}

	limits := &Limits{Symbol: symbol}
	for _, f := range resp.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			limits.MinOrderQty, _ = strconv.ParseFloat(f.MinQty, 64)
			limits.MaxOrderQty, _ = strconv.ParseFloat(f.MaxQty, 64)
			limits.QtyStep, _ = strconv.ParseFloat(f.StepSize, 64)
		case "PRICE_FILTER":
			limits.PriceStep, _ = strconv.ParseFloat(f.TickSize, 64)
		case "NOTIONAL", "MIN_NOTIONAL":
			limits.MinNotional, _ = strconv.ParseFloat(f.MinNotional, 64)
		}
	}
	return limits, nil
}

// SubscribeKlines streams closed-candle updates over Binance's combined
// kline WebSocket stream, reusing the kept WSReconnectManager exactly as
// the teacher's SubscribeTicker does for Bybit's public stream.
func (b *Binance) SubscribeKlines(symbol, timeframe string, callback func(models.Bar)) error {
	streamKey := strings.ToLower(symbol) + "@kline_" + timeframe

	b.subMu.Lock()
	b.klineSubs[streamKey] = callback
	b.subMu.Unlock()

	if b.wsManager == nil {
		config := DefaultWSReconnectConfig()
		b.wsManager = NewWSReconnectManager("binance", binanceWSBase, config)
		b.wsManager.SetOnMessage(b.handleWSMessage)
		b.wsManager.SetOnConnect(func() {
			b.log.Info("binance websocket connected")
		})
		b.wsManager.SetOnDisconnect(func(err error) {
			if err != nil {
				b.log.Warn("binance websocket disconnected", utils.Err(err))
			}
		})
		if err := b.wsManager.Connect(); err != nil {
			return fmt.Errorf("failed to connect to binance websocket: %w", err)
		}
	}

	subMsg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{streamKey},
		"id":     time.Now().UnixNano(),
	}
	b.wsManager.AddSubscription(subMsg)
	return b.wsManager.Send(subMsg)
}

func (b *Binance) handleWSMessage(message []byte) {
	var msg struct {
		Stream string `json:"stream"`
		Data   struct {
			EventType string `json:"e"`
			Symbol    string `json:"s"`
			Kline     struct {
				StartTime int64  `json:"t"`
				CloseTime int64  `json:"T"`
				Interval  string `json:"i"`
				Open      string `json:"o"`
				High      string `json:"h"`
				Low       string `json:"l"`
				Close     string `json:"c"`
				Volume    string `json:"v"`
				Closed    bool   `json:"x"`
			} `json:"k"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Data.EventType != "kline" || !msg.Data.Kline.Closed {
		return
	}

	streamKey := strings.ToLower(msg.Data.Symbol) + "@kline_" + msg.Data.Kline.Interval
	b.subMu.RLock()
	callback, ok := b.klineSubs[streamKey]
	b.subMu.RUnlock()
	if !ok || callback == nil {
		return
	}

	open, _ := strconv.ParseFloat(msg.Data.Kline.Open, 64)
	high, _ := strconv.ParseFloat(msg.Data.Kline.High, 64)
	low, _ := strconv.ParseFloat(msg.Data.Kline.Low, 64)
	closeP, _ := strconv.ParseFloat(msg.Data.Kline.Close, 64)
	volume, _ := strconv.ParseFloat(msg.Data.Kline.Volume, 64)

	callback(models.Bar{
		Symbol:    msg.Data.Symbol,
		Timeframe: msg.Data.Kline.Interval,
		OpenTime:  time.UnixMilli(msg.Data.Kline.StartTime),
		CloseTime: time.UnixMilli(msg.Data.Kline.CloseTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	})
}

func (b *Binance) Close() error {
	if b.wsManager != nil {
		b.wsManager.Close()
		b.wsManager = nil
	}
	b.connected = false
	return nil
}
