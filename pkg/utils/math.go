package utils

// math.go - математические утилиты
//
// Назначение:
// Вспомогательные математические функции для DCA-исполнителя и
// paper-trading симулятора.
//
// Функции:
// - RoundToLotSize/RoundToLotSizeUp/RoundToLotSizeNearest: округление
//   количества до lot size биржи.
// - CalculateWeightedAverage: средневзвешенная цена входа (VWAP),
//   используется для average_entry_price при накоплении позиции.
// - SimulateMarketBuy/SimulateMarketSell: проход по стакану ордеров для
//   paper-trading симулятора (один ордер, одна сторона — не два плеча, как
//   было у арбитражного тичера).
// - CalculatePNL: unrealized PNL одной позиции (long/short).
// - SplitVolume: разбиение объёма на N ордеров равного размера.
// - Clamp: ограничение значения диапазоном (используется для клампинга
//   множителя динамического сайзинга ордеров DCA).

import "math"

// RoundToLotSize округляет value вниз до ближайшего кратного lotSize.
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// RoundToLotSizeUp округляет value вверх до ближайшего кратного lotSize.
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize) * lotSize
}

// RoundToLotSizeNearest округляет value до ближайшего кратного lotSize.
func RoundToLotSizeNearest(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Round(value/lotSize) * lotSize
}

// CalculateWeightedAverage вычисляет средневзвешенное значение. Веса <= 0
// игнорируются. Возвращает 0 при несовпадении длин, пустых срезах или
// нулевой сумме весов.
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(weights) == 0 || len(values) != len(weights) {
		return 0
	}

	var weightedSum, totalWeight float64
	for i, v := range values {
		w := weights[i]
		if w <= 0 {
			continue
		}
		weightedSum += v * w
		totalWeight += w
	}

	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// OrderBookLevel is one price/volume level of a market-data order book, as
// consumed by the paper-trading fill simulator.
type OrderBookLevel struct {
	Price  float64
	Volume float64
}

// SimulateMarketBuy walks the ask side of an order book filling up to
// targetVolume. Returns the volume-weighted average fill price, the filled
// quantity (may be less than targetVolume if the book is too thin), and the
// slippage percent relative to the best ask.
func SimulateMarketBuy(asks []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	return simulateMarketFill(asks, targetVolume)
}

// SimulateMarketSell walks the bid side of an order book filling up to
// targetVolume, same semantics as SimulateMarketBuy.
func SimulateMarketSell(bids []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	return simulateMarketFill(bids, targetVolume)
}

func simulateMarketFill(levels []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	if len(levels) == 0 || targetVolume <= 0 {
		return 0, 0, 0
	}

	bestPrice := levels[0].Price
	var notional, remaining float64
	remaining = targetVolume

	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Volume
		if take > remaining {
			take = remaining
		}
		notional += take * lvl.Price
		filled += take
		remaining -= take
	}

	if filled == 0 {
		return 0, 0, 0
	}

	avgPrice = notional / filled
	slippagePct = (avgPrice - bestPrice) / bestPrice * 100
	return avgPrice, filled, slippagePct
}

// CalculatePNL computes unrealized profit/loss for a single position.
// side must be "long" or "short"; any other value returns 0.
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	switch side {
	case "long":
		return (currentPrice - entryPrice) * quantity
	case "short":
		return (entryPrice - currentPrice) * quantity
	default:
		return 0
	}
}

// SplitVolume splits totalVolume into nParts equal lot-sized orders. Returns
// nil if nParts <= 0 or totalVolume <= 0.
func SplitVolume(totalVolume float64, nParts int, lotSize float64) []float64 {
	if nParts <= 0 || totalVolume <= 0 {
		return nil
	}

	part := RoundToLotSizeNearest(totalVolume/float64(nParts), lotSize)
	parts := make([]float64, nParts)
	for i := range parts {
		parts[i] = part
	}
	return parts
}

// Clamp restricts value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
