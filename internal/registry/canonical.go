// Package registry accepts condition configurations from bot-creation
// requests, canonicalizes them into a stable fingerprint, deduplicates by
// that fingerprint, and owns the subscription rows binding bots to
// fingerprints (spec.md §4.1).
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var canonicalJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// BadConditionError is returned when canonicalization or validation rejects
// a condition. Callers MUST NOT retry with the same input; the caller's
// state is unmutated.
type BadConditionError struct {
	Reason string
}

func (e *BadConditionError) Error() string {
	return "bad condition: " + e.Reason
}

// operatorSynonyms collapses the accepted spellings of an operator into its
// canonical name.
var operatorSynonyms = map[string]string{
	">":                    "gt",
	"greater_than":         "gt",
	"gt":                   "gt",
	"<":                    "lt",
	"less_than":            "lt",
	"lt":                   "lt",
	">=":                   "ge",
	"greater_or_equal":     "ge",
	"ge":                   "ge",
	"<=":                   "le",
	"less_or_equal":        "le",
	"le":                   "le",
	"==":                   "eq",
	"equal":                "eq",
	"eq":                   "eq",
	"between":              "between",
	"crosses_above":        "crosses_above",
	"crosses_above_level":  "crosses_above",
	"crosses_below":        "crosses_below",
	"crosses_below_level":  "crosses_below",
	"closes_above":         "closes_above",
	"closes_below":         "closes_below",
}

// indicatorDefaults materializes the settings a condition omits, keyed by
// indicator name.
var indicatorDefaults = map[string]map[string]interface{}{
	"rsi":  {"period": 14.0},
	"mfi":  {"period": 14.0},
	"cci":  {"period": 14.0},
	"sma":  {"period": 14.0},
	"ema":  {"period": 14.0},
	"atr":  {"period": 14.0},
	"wma":  {"period": 14.0},
	"tema": {"period": 14.0},
	"kama": {"period": 14.0},
	"mama": {"period": 14.0},
	"vwma": {"period": 14.0},
	"hull": {"period": 14.0},
	"macd": {"fast": 12.0, "slow": 26.0, "signal": 9.0},
}

// RawCondition is the bot-creation request's condition payload, prior to
// canonicalization. Numeric values arrive as interface{} so both "14" and
// 14.0 round-trip identically.
type RawCondition struct {
	Symbol    string                 `json:"symbol"`
	Timeframe string                 `json:"timeframe"`
	Indicator string                 `json:"indicator"`
	Settings  map[string]interface{} `json:"settings"`
	Operator  string                 `json:"operator"`
	Operand   map[string]interface{} `json:"operand"`
}

// canonicalForm is the exact JSON shape hashed to produce a fingerprint.
// The struct's fields are encoded in declaration order, and the Settings and
// Operand maps are encoded with sorted keys, so the bytes are stable across
// encodings.
type canonicalForm struct {
	Symbol    string                 `json:"symbol"`
	Timeframe string                 `json:"timeframe"`
	Indicator string                 `json:"indicator"`
	Settings  map[string]interface{} `json:"settings"`
	Operator  string                 `json:"operator"`
	Operand   map[string]interface{} `json:"operand"`
}

var errEmptySymbol = errors.New("symbol is required")
var errEmptyTimeframe = errors.New("timeframe is required")
var errEmptyIndicator = errors.New("indicator is required")
var errUnknownOperator = errors.New("unknown operator")
var errBetweenBounds = errors.New("between requires operand.upper >= operand.lower")

// Canonicalize applies the canonicalization rules of spec.md §4.1 and
// returns the canonical JSON bytes and the derived fingerprint.
func Canonicalize(raw RawCondition) (canonicalJSON []byte, fingerprint string, err error) {
	if raw.Symbol == "" {
		return nil, "", &BadConditionError{Reason: errEmptySymbol.Error()}
	}
	if raw.Timeframe == "" {
		return nil, "", &BadConditionError{Reason: errEmptyTimeframe.Error()}
	}
	if raw.Indicator == "" {
		return nil, "", &BadConditionError{Reason: errEmptyIndicator.Error()}
	}

	op, ok := operatorSynonyms[raw.Operator]
	if !ok {
		return nil, "", &BadConditionError{Reason: fmt.Sprintf("%s: %q", errUnknownOperator, raw.Operator)}
	}

	settings := materializeSettings(raw.Indicator, raw.Settings)
	operand := normalizeOperand(raw.Operand)

	if op == "between" {
		lower, lok := numericValue(operand["lower"])
		upper, uok := numericValue(operand["upper"])
		if lok && uok && upper < lower {
			return nil, "", &BadConditionError{Reason: errBetweenBounds.Error()}
		}
	}

	form := canonicalForm{
		Symbol:    normalizeDecimalStrings(raw.Symbol).(string),
		Timeframe: raw.Timeframe,
		Indicator: raw.Indicator,
		Settings:  settings,
		Operator:  op,
		Operand:   operand,
	}

	buf, err := canonicalJSONMarshal(form)
	if err != nil {
		return nil, "", &BadConditionError{Reason: err.Error()}
	}

	sum := sha256.Sum256(buf)
	fp := hex.EncodeToString(sum[:16])
	return buf, fp, nil
}

func canonicalJSONMarshal(form canonicalForm) ([]byte, error) {
	return canonicalJSON.Marshal(form)
}

// materializeSettings copies the settings and fills in indicator defaults that the
// caller omitted, normalizing every numeric value to float64 so "14" and
// 14.0 canonicalize identically.
func materializeSettings(indicator string, settings map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		out[k] = normalizeDecimalStrings(v)
	}
	if defaults, ok := indicatorDefaults[indicator]; ok {
		for k, v := range defaults {
			if _, present := out[k]; !present {
				out[k] = v
			}
		}
	}
	return out
}

func normalizeOperand(operand map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(operand))
	for k, v := range operand {
		out[k] = normalizeDecimalStrings(v)
	}
	return out
}

// normalizeDecimalStrings normalizes any numeric-looking value (float64,
// int, or a numeric string) into a float64, so identical magnitudes
// canonicalize to the same JSON number regardless of how the caller
// represented them. Non-numeric values pass through unchanged.
func normalizeDecimalStrings(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
		return t
	default:
		return v
	}
}

func numericValue(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// sortedKeys is exposed for tests asserting settings-key order stability.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
