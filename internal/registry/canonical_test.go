package registry

import "testing"

func TestCanonicalizeOperatorSynonymsCollide(t *testing.T) {
	a := RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Settings: map[string]interface{}{"period": 14},
		Operator: ">", Operand: map[string]interface{}{"value": 30},
	}
	b := RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Settings: map[string]interface{}{"period": 14.0},
		Operator: "greater_than", Operand: map[string]interface{}{"value": 30.0},
	}

	_, fpA, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	_, fpB, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if fpA != fpB {
		t.Errorf("semantically equal conditions produced different fingerprints: %s vs %s", fpA, fpB)
	}
}

func TestCanonicalizeCrossesAboveLevelSynonym(t *testing.T) {
	a := RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Settings: map[string]interface{}{"period": 14},
		Operator: "crosses_above_level", Operand: map[string]interface{}{"value": 30},
	}
	b := RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Settings: map[string]interface{}{"period": 14},
		Operator: "crosses_above", Operand: map[string]interface{}{"value": 30},
	}
	_, fpA, _ := Canonicalize(a)
	_, fpB, _ := Canonicalize(b)
	if fpA != fpB {
		t.Errorf("crosses_above_level should canonicalize the same as crosses_above: %s vs %s", fpA, fpB)
	}
}

func TestCanonicalizeDefaultsAreMaterialized(t *testing.T) {
	withoutPeriod := RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Settings: map[string]interface{}{},
		Operator: "gt", Operand: map[string]interface{}{"value": 30},
	}
	withPeriod := RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Settings: map[string]interface{}{"period": 14},
		Operator: "gt", Operand: map[string]interface{}{"value": 30},
	}
	_, fp1, _ := Canonicalize(withoutPeriod)
	_, fp2, _ := Canonicalize(withPeriod)
	if fp1 != fp2 {
		t.Errorf("default period=14 should materialize identically to an explicit period=14: %s vs %s", fp1, fp2)
	}
}

func TestCanonicalizeDifferentPeriodDiffers(t *testing.T) {
	p14 := RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Settings: map[string]interface{}{"period": 14},
		Operator: "gt", Operand: map[string]interface{}{"value": 30},
	}
	p15 := RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Settings: map[string]interface{}{"period": 15},
		Operator: "gt", Operand: map[string]interface{}{"value": 30},
	}
	_, fp1, _ := Canonicalize(p14)
	_, fp2, _ := Canonicalize(p15)
	if fp1 == fp2 {
		t.Error("changing period from 14 to 15 must change the fingerprint")
	}
}

func TestCanonicalizeRejectsUnknownOperator(t *testing.T) {
	_, _, err := Canonicalize(RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Operator: "frobnicates",
	})
	if err == nil {
		t.Fatal("expected BadConditionError for unknown operator")
	}
	if _, ok := err.(*BadConditionError); !ok {
		t.Errorf("expected *BadConditionError, got %T", err)
	}
}

func TestCanonicalizeRejectsEmptySymbol(t *testing.T) {
	_, _, err := Canonicalize(RawCondition{Timeframe: "1h", Indicator: "rsi", Operator: "gt"})
	if err == nil {
		t.Fatal("expected BadConditionError for empty symbol")
	}
}

func TestCanonicalizeRejectsBetweenWithInvertedBounds(t *testing.T) {
	_, _, err := Canonicalize(RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Operator: "between", Operand: map[string]interface{}{"lower": 35, "upper": 25},
	})
	if err == nil {
		t.Fatal("expected BadConditionError when upper < lower")
	}
}

func TestCanonicalizeFingerprintIs128BitHex(t *testing.T) {
	_, fp, err := Canonicalize(RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Operator: "gt", Operand: map[string]interface{}{"value": 30},
	})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if len(fp) != 32 {
		t.Errorf("fingerprint length = %d hex chars, want 32 (128 bits)", len(fp))
	}
}

func TestSortedKeysStableOrder(t *testing.T) {
	keys := sortedKeys(map[string]interface{}{"c": 1, "a": 2, "b": 3})
	if keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("sortedKeys = %v, want [a b c]", keys)
	}
}
