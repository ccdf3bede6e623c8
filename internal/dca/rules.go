package dca

import "github.com/tradeeon/condition-engine/internal/models"

// evaluateDCARule reports whether rule fires at price against pos, per
// spec.md §4.8's five rule types. customLatched carries whether rule's
// referenced condition fingerprint has fired since the position's last
// DCA fill (custom_condition rules have no price formula of their own).
func evaluateDCARule(rule models.DCARule, pos *models.Position, price float64, customLatched bool) bool {
	switch rule.Type {
	case models.DCARuleDownFromLastEntry:
		if pos.LastEntryPrice <= 0 {
			return false
		}
		return price <= pos.LastEntryPrice*(1-rule.Threshold/100)
	case models.DCARuleDownFromAveragePrice:
		if pos.AverageEntryPrice <= 0 {
			return false
		}
		return price <= pos.AverageEntryPrice*(1-rule.Threshold/100)
	case models.DCARuleLossByPercent:
		if pos.AverageEntryPrice <= 0 {
			return false
		}
		return (pos.AverageEntryPrice-price)/pos.AverageEntryPrice >= rule.Threshold/100
	case models.DCARuleLossByAmount:
		return (pos.AverageEntryPrice-price)*pos.Quantity >= rule.Threshold
	case models.DCARuleCustomCondition:
		return customLatched
	default:
		return false
	}
}

// capReason names which cap blocked a DCA fill, for metrics labels and
// logs. Empty means no cap was hit.
type capReason string

const (
	capNone               capReason = ""
	capMaxPerPosition     capReason = "max_dcas_per_position"
	capMaxGlobal          capReason = "max_dcas_global"
	capMaxInvestment      capReason = "max_investment_per_position"
	capStopOnLoss         capReason = "stop_dca_on_loss_pct"
)

// checkCaps enforces spec.md §4.8's caps before any DCA order is placed.
// globalDCACount is the count of DCA orders already placed across every
// symbol within the current bot run (spec.md §9's resolved Open Question:
// max_dcas_global counts orders, not positions).
func checkCaps(cfg models.BotConfig, pos *models.Position, price, nextOrderNotional float64, globalDCACount int) capReason {
	dcaIndex := pos.EntryCount - 1 // entry fill doesn't count as a DCA
	if cfg.MaxDCAsPerPosition > 0 && dcaIndex >= cfg.MaxDCAsPerPosition {
		return capMaxPerPosition
	}
	if cfg.MaxDCAsGlobal > 0 && globalDCACount >= cfg.MaxDCAsGlobal {
		return capMaxGlobal
	}
	if cfg.MaxInvestmentPerPosition > 0 && pos.TotalInvested+nextOrderNotional > cfg.MaxInvestmentPerPosition {
		return capMaxInvestment
	}
	if cfg.StopDCAOnLossPct > 0 && pos.AverageEntryPrice > 0 {
		lossPct := (pos.AverageEntryPrice - price) / pos.AverageEntryPrice * 100
		if lossPct >= cfg.StopDCAOnLossPct {
			return capStopOnLoss
		}
	}
	return capNone
}

func clampMultiplier(v float64) float64 {
	if v <= 0 {
		return 1.0
	}
	if v < 0.25 {
		return 0.25
	}
	if v > 4.0 {
		return 4.0
	}
	return v
}

// dynamicSize applies spec.md §4.8's optional dca_amount_scale: each
// multiplier pulled from signals (absent or non-positive means the
// corresponding feature is disabled, defaulting to 1.0) is clamped to
// [0.25, 4.0], and their product is clamped to [0.1, 10.0] before scaling
// base. signals is sourced from the Values map of the most recent trigger
// event observed for this position (e.g. a volatility or sentiment
// indicator published alongside a custom_condition fingerprint).
func dynamicSize(base float64, signals map[string]float64) float64 {
	volMul := clampMultiplier(signals["volatility_mul"])
	srMul := clampMultiplier(signals["sr_mul"])
	sentimentMul := clampMultiplier(signals["sentiment_mul"])

	product := volMul * srMul * sentimentMul
	if product < 0.1 {
		product = 0.1
	}
	if product > 10.0 {
		product = 10.0
	}
	return base * product
}
