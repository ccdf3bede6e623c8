package indicator

// Comparison is the three-valued outcome of a tail operator: a condition
// evaluated against too little history is Indeterminate, never true or
// false.
type Comparison int

const (
	// ComparisonIndeterminate means the inputs didn't have enough history
	// to decide; callers treat this as "not triggered" and must not count
	// it as an evaluation.
	ComparisonIndeterminate Comparison = iota
	ComparisonTrue
	ComparisonFalse
)

// Holds reports whether c is a determinate true.
func (c Comparison) Holds() bool {
	return c == ComparisonTrue
}

// fromBool lifts a bool into a determinate Comparison.
func fromBool(b bool) Comparison {
	if b {
		return ComparisonTrue
	}
	return ComparisonFalse
}

// Gt, Lt, Ge, Le, Eq compare x against a reference value on the last closed
// bar.
func Gt(x float64, xOK bool, ref float64) Comparison {
	if !xOK {
		return ComparisonIndeterminate
	}
	return fromBool(x > ref)
}

func Lt(x float64, xOK bool, ref float64) Comparison {
	if !xOK {
		return ComparisonIndeterminate
	}
	return fromBool(x < ref)
}

func Ge(x float64, xOK bool, ref float64) Comparison {
	if !xOK {
		return ComparisonIndeterminate
	}
	return fromBool(x >= ref)
}

func Le(x float64, xOK bool, ref float64) Comparison {
	if !xOK {
		return ComparisonIndeterminate
	}
	return fromBool(x <= ref)
}

func Eq(x float64, xOK bool, ref float64) Comparison {
	if !xOK {
		return ComparisonIndeterminate
	}
	return fromBool(x == ref)
}

// Between reports lower <= x <= upper on the last closed bar. upper must be
// >= lower; callers validate that at registration time.
func Between(x float64, xOK bool, lower, upper float64) Comparison {
	if !xOK {
		return ComparisonIndeterminate
	}
	return fromBool(x >= lower && x <= upper)
}

// CrossesAbove reports whether the previous bar had x <= y and the current
// bar has x > y.
func CrossesAbove(xPrev, yPrev float64, prevOK bool, xCurr, yCurr float64, currOK bool) Comparison {
	if !prevOK || !currOK {
		return ComparisonIndeterminate
	}
	return fromBool(xPrev <= yPrev && xCurr > yCurr)
}

// CrossesBelow is the symmetric counterpart of CrossesAbove.
func CrossesBelow(xPrev, yPrev float64, prevOK bool, xCurr, yCurr float64, currOK bool) Comparison {
	if !prevOK || !currOK {
		return ComparisonIndeterminate
	}
	return fromBool(xPrev >= yPrev && xCurr < yCurr)
}

// ClosesAbove and ClosesBelow test the bar's close against a reference,
// identical in shape to Gt/Lt but named for readability at call sites that
// compare price to a level rather than two series.
func ClosesAbove(close float64, ref float64) Comparison {
	return fromBool(close > ref)
}

func ClosesBelow(close float64, ref float64) Comparison {
	return fromBool(close < ref)
}

// CrossesAboveSeries and CrossesBelowSeries apply the cross operators to two
// Series directly, reading the last two bars of each.
func CrossesAboveSeries(x, y Series) Comparison {
	xPrev, xPrevOK := x.Prev()
	yPrev, yPrevOK := y.Prev()
	xCurr, xCurrOK := x.Tail()
	yCurr, yCurrOK := y.Tail()
	return CrossesAbove(xPrev, yPrev, xPrevOK && yPrevOK, xCurr, yCurr, xCurrOK && yCurrOK)
}

func CrossesBelowSeries(x, y Series) Comparison {
	xPrev, xPrevOK := x.Prev()
	yPrev, yPrevOK := y.Prev()
	xCurr, xCurrOK := x.Tail()
	yCurr, yCurrOK := y.Tail()
	return CrossesBelow(xPrev, yPrev, xPrevOK && yPrevOK, xCurr, yCurr, xCurrOK && yCurrOK)
}
