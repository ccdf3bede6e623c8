package utils

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входных данных: символов, API-credentials и
// конфигурации DCA-бота.

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidSymbol     = errors.New("invalid symbol format")
	ErrInvalidSpread     = errors.New("spread must be between 0 and 100")
	ErrInvalidVolume     = errors.New("volume must be positive and within supported range")
	ErrInvalidNOrders    = errors.New("number of orders must be between 1 and 100")
	ErrInvalidStopLoss   = errors.New("stop loss must be between 0 and 100")
	ErrInvalidLeverage   = errors.New("leverage must be between 1 and 100")
	ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrInvalidAPIKey     = errors.New("invalid API key format")
	ErrInvalidAPISecret  = errors.New("invalid API secret format")
	ErrInvalidPassphrase = errors.New("passphrase too long")
	ErrInvalidExchange   = errors.New("unsupported exchange")
)

var symbolRe = regexp.MustCompile(`^[A-Za-z0-9/_-]{2,20}$`)
var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
var apiKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]{16,}$`)

// ValidateSymbol checks that symbol looks like an exchange trading pair,
// e.g. "BTCUSDT" or "BTC-USDT".
func ValidateSymbol(symbol string) error {
	if !symbolRe.MatchString(symbol) {
		return ErrInvalidSymbol
	}
	return nil
}

// IsValidSymbol is the boolean-returning sibling of ValidateSymbol.
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// NormalizeSymbol strips separators and upper-cases symbol, e.g.
// "btc-usdt" -> "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "/", "")
	return s
}

// quoteCurrencies lists quote assets recognized when splitting a symbol into
// base/quote; they are tried in this order and the first suffix match wins.
var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "FDUSD", "BTC", "ETH", "BNB"}

// ExtractBaseCurrency returns the base asset of a trading pair symbol.
func ExtractBaseCurrency(symbol string) string {
	norm := NormalizeSymbol(symbol)
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(norm, q) && len(norm) > len(q) {
			return norm[:len(norm)-len(q)]
		}
	}
	return norm
}

// ExtractQuoteCurrency returns the quote asset of a trading pair symbol.
func ExtractQuoteCurrency(symbol string) string {
	norm := NormalizeSymbol(symbol)
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(norm, q) && len(norm) > len(q) {
			return q
		}
	}
	return ""
}

// ValidateSpread checks a spread percentage is within (0, 100].
func ValidateSpread(spread float64) error {
	if spread <= 0 || spread > 100 {
		return ErrInvalidSpread
	}
	return nil
}

// ValidateVolume checks an order volume is positive and within a sane
// upper bound.
func ValidateVolume(volume float64) error {
	if volume <= 0 || volume >= 1e9 {
		return ErrInvalidVolume
	}
	return nil
}

// ValidateNOrders checks an order count is within [1, 100].
func ValidateNOrders(n int) error {
	if n < 1 || n > 100 {
		return ErrInvalidNOrders
	}
	return nil
}

// ValidateStopLoss checks a stop-loss percentage is within (0, 100].
func ValidateStopLoss(sl float64) error {
	if sl <= 0 || sl > 100 {
		return ErrInvalidStopLoss
	}
	return nil
}

// ValidateLeverage checks a leverage multiplier is within [1, 100].
func ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > 100 {
		return ErrInvalidLeverage
	}
	return nil
}

// ValidatePercentage checks a value is within [0, 100].
func ValidatePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidPercentage
	}
	return nil
}

// ValidateEmail checks email against a pragmatic format (not RFC 5322
// exhaustive).
func ValidateEmail(email string) error {
	if email == "" || strings.Count(email, "@") != 1 || !emailRe.MatchString(email) {
		return ErrInvalidEmail
	}
	if !strings.Contains(strings.SplitN(email, "@", 2)[1], ".") {
		return ErrInvalidEmail
	}
	return nil
}

func IsValidEmail(email string) bool {
	return ValidateEmail(email) == nil
}

// ValidateAPIKey checks an exchange API key is at least 16 chars of
// alphanumeric/dash/underscore.
func ValidateAPIKey(key string) error {
	if !apiKeyRe.MatchString(key) {
		return ErrInvalidAPIKey
	}
	return nil
}

func IsValidAPIKey(key string) bool {
	return ValidateAPIKey(key) == nil
}

// ValidateAPISecret checks an exchange API secret is at least 16 chars.
func ValidateAPISecret(secret string) error {
	if len(secret) < 16 {
		return ErrInvalidAPISecret
	}
	return nil
}

// ValidateAPIPassphrase checks an optional passphrase (Binance has none,
// kept for symmetry with other credential fields) doesn't exceed a sane
// length.
func ValidateAPIPassphrase(passphrase string) error {
	if len(passphrase) > 64 {
		return ErrInvalidPassphrase
	}
	return nil
}

// SupportedExchanges lists the exchanges this engine can execute against.
var SupportedExchanges = []string{"binance"}

// ValidateExchange checks exchange is one of SupportedExchanges.
func ValidateExchange(exchange string) error {
	norm := NormalizeExchange(exchange)
	for _, e := range SupportedExchanges {
		if norm == e {
			return nil
		}
	}
	return ErrInvalidExchange
}

func IsValidExchange(exchange string) bool {
	return ValidateExchange(exchange) == nil
}

// NormalizeExchange lower-cases and trims an exchange name.
func NormalizeExchange(exchange string) string {
	return strings.ToLower(strings.TrimSpace(exchange))
}

// GetSupportedExchanges returns a copy of SupportedExchanges so callers
// can't mutate the package-level slice.
func GetSupportedExchanges() []string {
	out := make([]string, len(SupportedExchanges))
	copy(out, SupportedExchanges)
	return out
}

// BotConfigValidation is the flat shape ValidateBotConfig checks, mirroring
// the fields of models.BotConfig that have hard numeric constraints.
type BotConfigValidation struct {
	Symbol                 string
	BaseOrderSize          float64
	SafetyOrderSize        float64
	MaxSafetyOrders        int
	PriceDeviationPct      float64
	SafetyOrderStepScale   float64
	SafetyOrderVolumeScale float64
	TakeProfitPct          float64
	TrailingStopPct        float64
}

// ValidateBotConfig checks a DCA bot configuration for internally
// consistent, tradeable values.
func ValidateBotConfig(cfg BotConfigValidation) error {
	var errs ValidationErrors

	errs.AddError("symbol", ValidateSymbol(cfg.Symbol))
	errs.AddError("base_order_size", ValidateVolume(cfg.BaseOrderSize))

	if cfg.MaxSafetyOrders > 0 {
		errs.AddError("safety_order_size", ValidateVolume(cfg.SafetyOrderSize))
		if cfg.PriceDeviationPct <= 0 || cfg.PriceDeviationPct > 100 {
			errs.Add("price_deviation_pct", "must be between 0 and 100 when safety orders are enabled")
		}
		if cfg.SafetyOrderStepScale <= 0 {
			errs.Add("safety_order_step_scale", "must be positive")
		}
		if cfg.SafetyOrderVolumeScale <= 0 {
			errs.Add("safety_order_volume_scale", "must be positive")
		}
	}
	if cfg.MaxSafetyOrders < 0 {
		errs.Add("max_safety_orders", "must not be negative")
	}

	errs.AddError("take_profit_pct", ValidatePercentage(cfg.TakeProfitPct))
	if cfg.TakeProfitPct == 0 {
		errs.Add("take_profit_pct", "must be greater than 0")
	}
	if cfg.TrailingStopPct < 0 || cfg.TrailingStopPct > 100 {
		errs.Add("trailing_stop_pct", "must be between 0 and 100")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ValidationErrors accumulates (field, message) validation failures.
type ValidationErrors []ValidationError

// ValidationError is a single field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

// Add appends a validation failure with an explicit message.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// AddError appends err's message for field, unless err is nil.
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	e.Add(field, err.Error())
}

// HasErrors reports whether any failures were recorded.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Error implements the error interface, joining all field failures.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return strings.Join(parts, "; ")
}
