package utils

// money.go - фиксированная точка для проверки balance law
//
// Назначение:
// Горячий путь оценки условий остаётся на float64 (как и у тичера в его
// арбитражной математике), но закон сохранения баланса в paper-трейдинге
// (initial_balance - free == Σ fill_qty*fill_price + fees) должен
// проверяться детерминированно, а не полагаться на порядок суммирования
// float64. Тип Ticks представляет денежную величину как целое число
// "тиков" (1 тик = 1e-8 единицы валюты, как у большинства бирж в
// qty/price precision), что делает сложение ассоциативным и тестируемым.

import "math"

const ticksPerUnit = 1e8

// Ticks is a fixed-point money amount: int64 count of 1e-8 units.
type Ticks int64

// ToTicks converts a float64 amount to its fixed-point representation,
// rounding to the nearest tick.
func ToTicks(amount float64) Ticks {
	return Ticks(math.Round(amount * ticksPerUnit))
}

// Float64 converts back to a float64 amount.
func (t Ticks) Float64() float64 {
	return float64(t) / ticksPerUnit
}

// Add returns t + other.
func (t Ticks) Add(other Ticks) Ticks {
	return t + other
}

// Sub returns t - other.
func (t Ticks) Sub(other Ticks) Ticks {
	return t - other
}

// SumTicks adds a set of float64 amounts via their fixed-point
// representation and returns the float64 total. Used by the paper
// simulator's balance-law check so the comparison doesn't depend on
// float64 summation order.
func SumTicks(amounts ...float64) float64 {
	var total Ticks
	for _, a := range amounts {
		total = total.Add(ToTicks(a))
	}
	return total.Float64()
}

// TicksEqual reports whether a and b are equal once rounded to the tick
// grid, i.e. whether any discrepancy between them is pure float64 noise
// rather than a real balance mismatch.
func TicksEqual(a, b float64) bool {
	return ToTicks(a) == ToTicks(b)
}
