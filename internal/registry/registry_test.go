package registry

import "testing"

func newTestRegistry() (*Registry, *mockConditionStore, *mockSubscriptionStore) {
	cs := newMockConditionStore()
	ss := newMockSubscriptionStore()
	return New(cs, ss), cs, ss
}

func TestRegisterIsIdempotent(t *testing.T) {
	r, cs, _ := newTestRegistry()
	cond := RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Operator: "gt", Operand: map[string]interface{}{"value": 30},
	}

	fp1, err := r.Register(cond)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	fp2, err := r.Register(cond)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("register should return the same fingerprint: %s vs %s", fp1, fp2)
	}
	if len(cs.records) != 1 {
		t.Errorf("expected exactly one stored condition record, got %d", len(cs.records))
	}
}

func TestRegisterRejectsBadCondition(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, err := r.Register(RawCondition{Operator: "gt"})
	if _, ok := err.(*BadConditionError); !ok {
		t.Fatalf("expected *BadConditionError, got %T (%v)", err, err)
	}
}

func TestSubscribeAndSubscribers(t *testing.T) {
	r, _, _ := newTestRegistry()
	fp, _ := r.Register(RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Operator: "gt", Operand: map[string]interface{}{"value": 30},
	})

	id, err := r.Subscribe(42, fp)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero subscription id")
	}

	subs, err := r.Subscribers(fp)
	if err != nil {
		t.Fatalf("subscribers: %v", err)
	}
	if len(subs) != 1 || subs[0].BotID != 42 {
		t.Fatalf("expected one subscriber with bot_id=42, got %+v", subs)
	}
}

func TestUnsubscribeRevokes(t *testing.T) {
	r, _, ss := newTestRegistry()
	fp, _ := r.Register(RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Operator: "gt", Operand: map[string]interface{}{"value": 30},
	})
	id, _ := r.Subscribe(1, fp)

	if err := r.Unsubscribe(id); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	subs, _ := r.Subscribers(fp)
	if len(subs) != 0 {
		t.Errorf("expected no active subscribers after unsubscribe, got %d", len(subs))
	}
	if ss.subs[id].Status != "revoked" {
		t.Errorf("subscription status = %q, want revoked", ss.subs[id].Status)
	}
}

func TestActiveFingerprints(t *testing.T) {
	r, _, _ := newTestRegistry()
	fp1, _ := r.Register(RawCondition{
		Symbol: "BTCUSDT", Timeframe: "1h", Indicator: "rsi",
		Operator: "gt", Operand: map[string]interface{}{"value": 30},
	})
	fp2, _ := r.Register(RawCondition{
		Symbol: "ETHUSDT", Timeframe: "4h", Indicator: "ema",
		Operator: "lt", Operand: map[string]interface{}{"value": 3000},
	})

	fps, err := r.ActiveFingerprints()
	if err != nil {
		t.Fatalf("active fingerprints: %v", err)
	}
	seen := map[string]bool{}
	for _, fp := range fps {
		seen[fp] = true
	}
	if !seen[fp1] || !seen[fp2] {
		t.Errorf("expected both fingerprints active, got %v", fps)
	}
}
