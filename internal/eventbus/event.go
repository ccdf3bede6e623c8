package eventbus

import "time"

// Event is the wire shape for a trigger, matching spec.md §6's "Event bus
// wire format" exactly: fingerprint, symbol, timeframe, triggered_at,
// bar_close_time (both RFC 3339), values.
type Event struct {
	Fingerprint  string             `json:"fingerprint"`
	Symbol       string             `json:"symbol"`
	Timeframe    string             `json:"timeframe"`
	TriggeredAt  time.Time          `json:"triggered_at"`
	BarCloseTime time.Time          `json:"bar_close_time"`
	Values       map[string]float64 `json:"values"`
}
